// Package cache provides response caching for the gateway.
package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/config"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheDisabled indicates that caching is disabled.
	ErrCacheDisabled = errors.New("cache disabled")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// Cache stores serialized responses keyed by request fingerprint.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns ErrCacheMiss if the key is not found or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	// A TTL of 0 selects the configured default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// Close closes the cache and releases resources.
	Close() error
}

// Stats contains cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int64
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// New creates a cache from the configuration.
func New(cfg *config.CacheConfig, redisCfg *config.RedisConfig, logger *zap.Logger) (Cache, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.Enabled {
		return disabledCache{}, nil
	}

	switch cfg.Type {
	case "", "memory":
		return newMemoryCache(cfg, logger), nil
	case "redis":
		return newRedisCache(cfg, redisCfg, logger)
	default:
		return nil, errors.New("unknown cache type: " + cfg.Type)
	}
}

// disabledCache rejects every operation with ErrCacheDisabled.
type disabledCache struct{}

func (disabledCache) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheDisabled
}

func (disabledCache) Set(context.Context, string, []byte, time.Duration) error {
	return ErrCacheDisabled
}

func (disabledCache) Delete(context.Context, string) error {
	return ErrCacheDisabled
}

func (disabledCache) Close() error { return nil }
