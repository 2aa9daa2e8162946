package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/retry"
)

// PoolConfig holds PostgreSQL pool configuration.
type PoolConfig struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Retry controls how long to wait for a database that is still starting.
	// Nil means a single attempt.
	Retry *retry.Config
}

// NewPostgresPool creates a connection pool and verifies it with a ping.
func NewPostgresPool(ctx context.Context, cfg *PoolConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 25
	}

	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = time.Minute * 30
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := Ping(ctx, pool.Ping, cfg.Retry, logger); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Ping calls ping until it succeeds or the retry budget is spent.
func Ping(ctx context.Context, ping func(context.Context) error, cfg *retry.Config, logger *zap.Logger) error {
	if cfg == nil {
		cfg = &retry.Config{MaxRetries: 0}
	}
	attemptCfg := *cfg
	attemptCfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("Database not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := retry.Do(ctx, &attemptCfg, func() error { return ping(ctx) }); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
