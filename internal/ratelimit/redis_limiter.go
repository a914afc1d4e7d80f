package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/ratelimit/store"
)

// ErrRedisUnavailable indicates the shared store is not reachable and
// no fallback is configured.
var ErrRedisUnavailable = errors.New("rate limit store unavailable")

// RedisLimiterConfig holds configuration for the store-backed limiter.
type RedisLimiterConfig struct {
	// Limits shared by the store-backed and fallback limiters.
	Limits *Config

	// RedisConfig configures the shared store connection.
	RedisConfig *store.RedisConfig

	// FallbackEnabled degrades to per-process counting when the store
	// is unavailable instead of failing requests.
	FallbackEnabled bool

	// BreakerTimeout is how long the store breaker stays open before
	// probing Redis again.
	BreakerTimeout time.Duration

	// Logger for the limiter.
	Logger *zap.Logger
}

// DefaultRedisLimiterConfig returns a RedisLimiterConfig with defaults.
func DefaultRedisLimiterConfig() *RedisLimiterConfig {
	return &RedisLimiterConfig{
		Limits:          DefaultConfig(),
		RedisConfig:     store.DefaultRedisConfig(),
		FallbackEnabled: true,
		BreakerTimeout:  10 * time.Second,
	}
}

// RedisLimiter is a fixed-window limiter backed by a shared Redis store.
// Store operations run behind a circuit breaker; when the store is
// unhealthy the limiter falls back to per-process counting so admission
// control keeps working (more permissively across instances) during a
// Redis outage.
type RedisLimiter struct {
	config   *Config
	stored   *FixedWindowLimiter
	fallback *FixedWindowLimiter
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewRedisLimiter creates a store-backed limiter with optional fallback.
func NewRedisLimiter(cfg *RedisLimiterConfig) (*RedisLimiter, error) {
	if cfg == nil {
		cfg = DefaultRedisLimiterConfig()
	}
	if cfg.Limits == nil {
		cfg.Limits = DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	redisStore, err := store.NewRedisStore(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	return newRedisLimiter(cfg, redisStore, logger), nil
}

// NewRedisLimiterWithStore creates a limiter over an existing store.
// Used by tests with miniredis.
func NewRedisLimiterWithStore(cfg *RedisLimiterConfig, s store.Store) *RedisLimiter {
	if cfg == nil {
		cfg = DefaultRedisLimiterConfig()
	}
	if cfg.Limits == nil {
		cfg.Limits = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return newRedisLimiter(cfg, s, logger)
}

func newRedisLimiter(cfg *RedisLimiterConfig, s store.Store, logger *zap.Logger) *RedisLimiter {
	l := &RedisLimiter{
		config: cfg.Limits,
		stored: NewFixedWindowLimiter(cfg.Limits, s, WithLogger(logger)),
		logger: logger,
	}

	if cfg.FallbackEnabled {
		l.fallback = NewFixedWindowLimiter(cfg.Limits, nil, WithLogger(logger))
	}

	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 10 * time.Second
	}

	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-redis",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("rate limit store breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return l
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, identity string, tier Tier) (*Result, error) {
	value, err := l.breaker.Execute(func() (interface{}, error) {
		return l.stored.Allow(ctx, identity, tier)
	})
	if err == nil {
		return value.(*Result), nil
	}

	storeErrorsTotal.Inc()

	if l.fallback == nil {
		return nil, errors.Join(ErrRedisUnavailable, err)
	}

	fallbackTotal.Inc()
	l.logger.Warn("rate limit store unavailable, using local fallback",
		zap.String("identity", identity),
		zap.Error(err),
	)

	return l.fallback.Allow(ctx, identity, tier)
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, identity string) error {
	if l.fallback != nil {
		_ = l.fallback.Reset(ctx, identity)
	}
	return l.stored.Reset(ctx, identity)
}
