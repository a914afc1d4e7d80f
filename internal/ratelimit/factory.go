package ratelimit

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/config"
	"github.com/svcgateway/svcgw/internal/ratelimit/store"
)

// NewLimiter builds a Limiter from gateway configuration.
func NewLimiter(cfg *config.GatewayConfig, logger *zap.Logger) (Limiter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	limits := &Config{
		Requests:          cfg.RateLimit.StandardThreshold(),
		Window:            cfg.RateLimit.EffectiveWindow(),
		PremiumMultiplier: cfg.RateLimit.PremiumMultiplier,
	}

	switch cfg.RateLimit.Algorithm {
	case "", "fixed_window":
	case "token_bucket":
		return NewTokenBucketLimiter(limits), nil
	default:
		return nil, fmt.Errorf("unknown rate limit algorithm %q", cfg.RateLimit.Algorithm)
	}

	switch cfg.RateLimit.Store {
	case "", "memory":
		return NewFixedWindowLimiter(limits, nil, WithLogger(logger)), nil
	case "redis":
		return NewRedisLimiter(&RedisLimiterConfig{
			Limits: limits,
			RedisConfig: &store.RedisConfig{
				Address:      cfg.Redis.Address,
				Password:     cfg.Redis.Password,
				DB:           cfg.Redis.DB,
				Prefix:       "ratelimit:",
				PoolSize:     cfg.Redis.PoolSize,
				DialTimeout:  cfg.Redis.DialTimeout.Duration(),
				ReadTimeout:  cfg.Redis.ReadTimeout.Duration(),
				WriteTimeout: cfg.Redis.WriteTimeout.Duration(),
				Logger:       logger,
			},
			FallbackEnabled: true,
			Logger:          logger,
		})
	default:
		return nil, fmt.Errorf("unknown rate limit store %q", cfg.RateLimit.Store)
	}
}
