package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-engine/internal/infrastructure/config"
)

// Manager owns the Redis client and the stores built on it
type Manager struct {
	Profiles  *ProfileStore
	Devices   *DeviceStore
	Blacklist *BlacklistStore
	client    *redis.Client
	logger    *zap.Logger
}

// NewManager connects to Redis and builds every Redis-backed store.
// retention bounds how long an idle profile survives.
func NewManager(cfg *config.RedisConfig, retention time.Duration, logger *zap.Logger) (*Manager, error) {
	client, err := NewRedisClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	logger = logger.Named("cache")
	return &Manager{
		Profiles:  NewProfileStore(client, logger, retention),
		Devices:   NewDeviceStore(client, logger),
		Blacklist: NewBlacklistStore(client, logger),
		client:    client,
		logger:    logger,
	}, nil
}

// Health pings Redis
func (m *Manager) Health(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (m *Manager) Close() error {
	if err := m.client.Close(); err != nil {
		m.logger.Error("failed to close redis client", zap.Error(err))
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}
