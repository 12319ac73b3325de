package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-engine/internal/infrastructure/config"
)

const connectTimeout = 10 * time.Second

// ConnectionPool wraps the pgx pool used by the repositories
type ConnectionPool struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewConnectionPool opens a pgx pool and verifies it with a ping
func NewConnectionPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	pgxCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	configurePool(pgxCfg, cfg)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database pool initialized",
		zap.Int32("max_conns", pgxCfg.MaxConns),
		zap.Int32("min_conns", pgxCfg.MinConns))

	return &ConnectionPool{pool: pool, logger: logger}, nil
}

func configurePool(pc *pgxpool.Config, cfg *config.DatabaseConfig) {
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	pc.HealthCheckPeriod = time.Minute
}

// Pool exposes the underlying pgx pool
func (p *ConnectionPool) Pool() *pgxpool.Pool {
	return p.pool
}

// Transaction runs fn inside a transaction, rolling back on error
func (p *ConnectionPool) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Health pings the database and logs pool saturation
func (p *ConnectionPool) Health(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	stat := p.pool.Stat()
	if stat.MaxConns() > 0 && stat.AcquiredConns() == stat.MaxConns() {
		p.logger.Warn("database pool saturated",
			zap.Int32("acquired", stat.AcquiredConns()),
			zap.Int64("empty_acquire_count", stat.EmptyAcquireCount()))
	}
	return nil
}

func (p *ConnectionPool) Close() {
	p.pool.Close()
	p.logger.Info("database pool closed")
}
