package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-engine/internal/service/fraud"
)

// storedSample is the sorted set member. The ID keeps identical samples distinct.
type storedSample struct {
	ID     string               `json:"id"`
	Sample fraud.BehaviorSample `json:"sample"`
}

type decodedSample struct {
	member string
	sample fraud.BehaviorSample
}

// ProfileStore keeps behavioral profiles in Redis sorted sets
type ProfileStore struct {
	client    redis.UniversalClient
	logger    *zap.Logger
	retention time.Duration
	now       func() time.Time
}

var _ fraud.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore creates a Redis-backed profile store. Idle profiles expire
// after retention.
func NewProfileStore(client redis.UniversalClient, logger *zap.Logger, retention time.Duration) *ProfileStore {
	if retention <= 0 {
		retention = fraud.DefaultProfileRetention
	}
	return &ProfileStore{
		client:    client,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
}

func (s *ProfileStore) Get(ctx context.Context, userID string) (*fraud.BehavioralProfile, error) {
	members, err := s.client.ZRange(ctx, profileKey(userID), 0, -1).Result()
	if err != nil {
		s.logger.Error("failed to load profile", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("redis zrange failed: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	decoded := s.decode(userID, members)
	return buildProfile(userID, decoded), nil
}

// Append adds a sample and trims the profile to the policy. The insert,
// count cap and expiry refresh run in one MULTI; age trimming follows as a
// separate ZREM which only ever removes samples older than the newest one
// seen, so a concurrent append can never be lost.
func (s *ProfileStore) Append(ctx context.Context, userID string, sample fraud.BehaviorSample, policy fraud.RetentionPolicy) (*fraud.BehavioralProfile, error) {
	member, err := json.Marshal(storedSample{ID: uuid.NewString(), Sample: sample})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sample: %w", err)
	}

	key := profileKey(userID)
	expiresAt := s.now().Add(s.retention)

	var members *redis.StringSliceCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(sample.ObservedAt.UnixMilli()), Member: string(member)})
		if policy.MaxSamples > 0 {
			pipe.ZRemRangeByRank(ctx, key, 0, int64(-policy.MaxSamples-1))
		}
		pipe.Expire(ctx, key, s.retention)
		pipe.ZAdd(ctx, profileIndexKey, redis.Z{Score: float64(expiresAt.Unix()), Member: userID})
		members = pipe.ZRange(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		s.logger.Error("failed to append sample", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("redis append failed: %w", err)
	}

	decoded := s.decode(userID, members.Val())
	kept := policy.Apply(samplesOf(decoded))

	if dropped := decoded[:len(decoded)-len(kept)]; len(dropped) > 0 {
		stale := make([]any, len(dropped))
		for i, d := range dropped {
			stale[i] = d.member
		}
		if err := s.client.ZRem(ctx, key, stale...).Err(); err != nil {
			// the next append retries the trim
			s.logger.Warn("failed to trim profile", zap.String("user_id", userID), zap.Error(err))
		}
		decoded = decoded[len(dropped):]
	}

	return buildProfile(userID, decoded), nil
}

// Count returns the number of live profiles, pruning index entries whose
// profile has expired
func (s *ProfileStore) Count(ctx context.Context) (int64, error) {
	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, profileIndexKey, "-inf", "("+strconv.FormatInt(s.now().Unix(), 10))
		card = pipe.ZCard(ctx, profileIndexKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis profile count failed: %w", err)
	}
	return card.Val(), nil
}

// decode parses members and orders them oldest first. Undecodable members
// are skipped and logged.
func (s *ProfileStore) decode(userID string, members []string) []decodedSample {
	out := make([]decodedSample, 0, len(members))
	for _, m := range members {
		var st storedSample
		if err := json.Unmarshal([]byte(m), &st); err != nil {
			s.logger.Warn("skipping corrupt profile sample", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		out = append(out, decodedSample{member: m, sample: st.Sample})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].sample.ObservedAt.Before(out[j].sample.ObservedAt)
	})
	return out
}

func samplesOf(decoded []decodedSample) []fraud.BehaviorSample {
	out := make([]fraud.BehaviorSample, len(decoded))
	for i, d := range decoded {
		out[i] = d.sample
	}
	return out
}

func buildProfile(userID string, decoded []decodedSample) *fraud.BehavioralProfile {
	p := &fraud.BehavioralProfile{UserID: userID, Samples: samplesOf(decoded)}
	if n := len(p.Samples); n > 0 {
		p.LastUpdated = p.Samples[n-1].ObservedAt
	}
	return p
}
