package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/config"
)

// redisCache implements Cache over a shared Redis instance so multiple
// gateway replicas serve hits for each other's stores.
type redisCache struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	logger     *zap.Logger
}

// newRedisCache creates a Redis-backed cache.
func newRedisCache(cfg *config.CacheConfig, redisCfg *config.RedisConfig, logger *zap.Logger) (*redisCache, error) {
	if redisCfg == nil || redisCfg.Address == "" {
		return nil, errors.New("redis cache requires redis.address")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         redisCfg.Address,
		Password:     redisCfg.Password,
		DB:           redisCfg.DB,
		PoolSize:     redisCfg.PoolSize,
		DialTimeout:  redisCfg.DialTimeout.Duration(),
		ReadTimeout:  redisCfg.ReadTimeout.Duration(),
		WriteTimeout: redisCfg.WriteTimeout.Duration(),
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "cache:"
	}

	logger.Info("redis cache initialized",
		zap.String("address", redisCfg.Address),
		zap.Duration("defaultTTL", cfg.EffectiveTTL()),
	)

	return &redisCache{
		client:     client,
		prefix:     prefix,
		defaultTTL: cfg.EffectiveTTL(),
		logger:     logger,
	}, nil
}

// newRedisCacheFromClient creates a cache over an existing client.
// Used by tests with miniredis.
func newRedisCacheFromClient(client *redis.Client, prefix string, defaultTTL time.Duration) *redisCache {
	return &redisCache{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		logger:     zap.NewNop(),
	}
}

// Get implements Cache. Redis evicts expired keys itself, so a hit is
// always fresh.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cache.backend", "redis")),
	)
	defer span.End()

	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		recordMiss("redis")
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache get: %w", err)
	}

	recordHit("redis")
	span.SetAttributes(attribute.Bool("cache.hit", true))

	return value, nil
}

// Set implements Cache.
func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.Int("cache.value_size", len(value)),
		),
	)
	defer span.End()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}

	return nil
}

// Delete implements Cache.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis cache delete: %w", err)
	}
	return nil
}

// Close implements Cache.
func (c *redisCache) Close() error {
	return c.client.Close()
}
