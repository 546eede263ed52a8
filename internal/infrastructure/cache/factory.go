package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropcraft/backend/internal/infrastructure/config"
)

// Factory creates the worker's shared caches from configuration: the
// redelivery dedupe store and the per-store rate limiter.
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory caches when
// Redis is unavailable. Default is true (allow fallback).
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// connect dials Redis and verifies the connection.
func (f *Factory) connect() (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// CreateIdempotencyStore creates a dedupe store, preferring Redis so multiple
// worker instances share state. Falls back to in-memory when Redis is
// unavailable and fallback is allowed.
func (f *Factory) CreateIdempotencyStore(client *redis.Client) (IdempotencyStore, error) {
	if client != nil {
		return NewRedisIdempotencyStore(client, ""), nil
	}

	client, err := f.connect()
	if err == nil {
		f.logger.Info("using Redis idempotency store")
		return NewRedisIdempotencyStore(client, ""), nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
		"This may let duplicate deliveries through in multi-worker deployments.",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}

// CreateRateLimiter creates a per-store token bucket from the sync settings.
// The window budget becomes both the burst capacity and the sustained rate.
func (f *Factory) CreateRateLimiter(syncCfg config.SyncConfig, client *redis.Client) (*RedisTokenBucket, error) {
	refillPerSecond := float64(syncCfg.RateLimitPerStore) / syncCfg.RateLimitWindow.Seconds()

	if client == nil {
		var err error
		client, err = f.connect()
		if err != nil {
			return nil, fmt.Errorf("Redis required for rate limiting but unavailable: %w", err)
		}
	}

	return NewRedisTokenBucket(client, "", syncCfg.RateLimitPerStore, refillPerSecond)
}
