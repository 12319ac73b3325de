package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-engine/internal/service/fraud"
)

// swapScript stores the new fingerprint and returns the previous one atomically
var swapScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return prev
`)

// DeviceStore keeps the last seen fingerprint per user in a Redis hash
type DeviceStore struct {
	client redis.UniversalClient
	logger *zap.Logger
}

var _ fraud.DeviceStore = (*DeviceStore)(nil)

func NewDeviceStore(client redis.UniversalClient, logger *zap.Logger) *DeviceStore {
	return &DeviceStore{client: client, logger: logger}
}

func (s *DeviceStore) Swap(ctx context.Context, userID string, fp fraud.DeviceFingerprint) (*fraud.DeviceFingerprint, error) {
	data, err := json.Marshal(fp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	raw, err := swapScript.Run(ctx, s.client, []string{devicesKey}, userID, string(data)).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("device swap failed", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("redis device swap failed: %w", err)
	}

	var prev fraud.DeviceFingerprint
	if err := json.Unmarshal([]byte(raw), &prev); err != nil {
		// treat a corrupt entry as a first sighting; it has just been overwritten
		s.logger.Warn("discarding corrupt fingerprint", zap.String("user_id", userID), zap.Error(err))
		return nil, nil
	}
	return &prev, nil
}

func (s *DeviceStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.HLen(ctx, devicesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen failed: %w", err)
	}
	return n, nil
}
