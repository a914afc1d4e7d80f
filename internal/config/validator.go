package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/svcgateway/svcgw/internal/util"
)

// ValidateConfig validates the gateway configuration.
func ValidateConfig(cfg *GatewayConfig) error {
	if cfg == nil {
		return util.NewConfigError("", "configuration is nil")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return util.NewConfigError("server.port", fmt.Sprintf("invalid port %d", cfg.Server.Port))
	}

	if cfg.Identity.IssuerURL == "" {
		return util.NewConfigError("identity.issuerURL", "issuer URL is required")
	}
	if _, err := url.Parse(cfg.Identity.IssuerURL); err != nil {
		return util.NewConfigError("identity.issuerURL", err.Error())
	}

	if cfg.Security.MaxPayloadSize <= 0 {
		return util.NewConfigError("security.maxPayloadSize", "must be positive")
	}

	if cfg.RateLimit.Requests <= 0 {
		return util.NewConfigError("rateLimit.requests", "must be positive")
	}
	if cfg.RateLimit.Window.Duration() <= 0 {
		return util.NewConfigError("rateLimit.window", "must be positive")
	}
	switch cfg.RateLimit.Store {
	case "", "memory":
	case "redis":
		if cfg.Redis.Address == "" {
			return util.NewConfigError("redis.address", "required when rateLimit.store is redis")
		}
	default:
		return util.NewConfigError("rateLimit.store", "must be memory or redis")
	}

	if cfg.Cache.Enabled {
		switch cfg.Cache.Type {
		case "", "memory":
		case "redis":
			if cfg.Redis.Address == "" {
				return util.NewConfigError("redis.address", "required when cache.type is redis")
			}
		default:
			return util.NewConfigError("cache.type", "must be memory or redis")
		}
	}

	if cfg.CircuitBreaker.FailureThreshold < 0 {
		return util.NewConfigError("circuitBreaker.failureThreshold", "must not be negative")
	}

	if len(cfg.Services) == 0 {
		return util.NewConfigError("services", "at least one service is required")
	}

	seen := make(map[string]bool, len(cfg.Services))
	for i, svc := range cfg.Services {
		field := fmt.Sprintf("services[%d]", i)
		if svc.Name == "" {
			return util.NewConfigError(field+".name", "service name is required")
		}
		if seen[svc.Name] {
			return util.NewConfigError(field+".name", "duplicate service name "+svc.Name)
		}
		seen[svc.Name] = true

		if !strings.HasPrefix(svc.PathPrefix, "/") {
			return util.NewConfigError(field+".pathPrefix", "must start with /")
		}
		if len(svc.Instances) == 0 {
			return util.NewConfigError(field+".instances", "at least one instance URL is required")
		}
		for j, instance := range svc.Instances {
			u, err := url.Parse(instance)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return util.NewConfigError(
					fmt.Sprintf("%s.instances[%d]", field, j),
					"invalid instance URL "+instance,
				)
			}
		}
	}

	return nil
}
