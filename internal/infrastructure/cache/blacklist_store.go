package cache

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-engine/internal/service/fraud"
)

// BlacklistStore keeps flagged IPs in a Redis set
type BlacklistStore struct {
	client redis.UniversalClient
	logger *zap.Logger
}

var _ fraud.BlacklistStore = (*BlacklistStore)(nil)

func NewBlacklistStore(client redis.UniversalClient, logger *zap.Logger) *BlacklistStore {
	return &BlacklistStore{client: client, logger: logger}
}

func (s *BlacklistStore) Add(ctx context.Context, ip string) error {
	if err := s.client.SAdd(ctx, blacklistKey, ip).Err(); err != nil {
		s.logger.Error("blacklist add failed", zap.String("ip", ip), zap.Error(err))
		return fmt.Errorf("redis sadd failed: %w", err)
	}
	return nil
}

func (s *BlacklistStore) Remove(ctx context.Context, ip string) error {
	if err := s.client.SRem(ctx, blacklistKey, ip).Err(); err != nil {
		s.logger.Error("blacklist remove failed", zap.String("ip", ip), zap.Error(err))
		return fmt.Errorf("redis srem failed: %w", err)
	}
	return nil
}

func (s *BlacklistStore) Contains(ctx context.Context, ip string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, blacklistKey, ip).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember failed: %w", err)
	}
	return ok, nil
}

// List returns the blacklisted addresses sorted lexically
func (s *BlacklistStore) List(ctx context.Context) ([]string, error) {
	ips, err := s.client.SMembers(ctx, blacklistKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	sort.Strings(ips)
	return ips, nil
}

func (s *BlacklistStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.SCard(ctx, blacklistKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard failed: %w", err)
	}
	return n, nil
}
