package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *GatewayConfig {
	cfg := DefaultConfig()
	cfg.Identity.IssuerURL = "http://localhost:8080/realms/master"
	cfg.Services = []ServiceConfig{
		{
			Name:       "user-service",
			PathPrefix: "/api/user",
			Instances:  []string{"http://localhost:8001"},
		},
	}
	return cfg
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GatewayConfig)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*GatewayConfig) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *GatewayConfig) { c.Server.Port = -1 },
			wantErr: "server.port",
		},
		{
			name:    "missing issuer",
			mutate:  func(c *GatewayConfig) { c.Identity.IssuerURL = "" },
			wantErr: "identity.issuerURL",
		},
		{
			name:    "zero payload size",
			mutate:  func(c *GatewayConfig) { c.Security.MaxPayloadSize = 0 },
			wantErr: "security.maxPayloadSize",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *GatewayConfig) { c.RateLimit.Requests = 0 },
			wantErr: "rateLimit.requests",
		},
		{
			name:    "zero window",
			mutate:  func(c *GatewayConfig) { c.RateLimit.Window = 0 },
			wantErr: "rateLimit.window",
		},
		{
			name:    "unknown rate limit store",
			mutate:  func(c *GatewayConfig) { c.RateLimit.Store = "etcd" },
			wantErr: "rateLimit.store",
		},
		{
			name:    "redis store without address",
			mutate:  func(c *GatewayConfig) { c.RateLimit.Store = "redis" },
			wantErr: "redis.address",
		},
		{
			name:    "redis cache without address",
			mutate:  func(c *GatewayConfig) { c.Cache.Type = "redis" },
			wantErr: "redis.address",
		},
		{
			name:    "no services",
			mutate:  func(c *GatewayConfig) { c.Services = nil },
			wantErr: "services",
		},
		{
			name: "duplicate service names",
			mutate: func(c *GatewayConfig) {
				c.Services = append(c.Services, c.Services[0])
			},
			wantErr: "duplicate service name",
		},
		{
			name: "bad path prefix",
			mutate: func(c *GatewayConfig) {
				c.Services[0].PathPrefix = "api/user"
			},
			wantErr: "pathPrefix",
		},
		{
			name: "no instances",
			mutate: func(c *GatewayConfig) {
				c.Services[0].Instances = nil
			},
			wantErr: "instances",
		},
		{
			name: "bad instance URL",
			mutate: func(c *GatewayConfig) {
				c.Services[0].Instances = []string{"not a url"}
			},
			wantErr: "invalid instance URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateConfig_Nil(t *testing.T) {
	assert.Error(t, ValidateConfig(nil))
}

func TestEffectiveDefaults(t *testing.T) {
	var cb CircuitBreakerConfig
	assert.Equal(t, 5, cb.EffectiveFailureThreshold())
	assert.Equal(t, 60*time.Second, cb.EffectiveRecoveryTimeout())

	var fw ForwardConfig
	assert.Equal(t, 30*time.Second, fw.EffectiveTimeout())

	var cc CacheConfig
	assert.Equal(t, 300*time.Second, cc.EffectiveTTL())

	var rl RateLimitConfig
	assert.Equal(t, 60*time.Second, rl.EffectiveWindow())
}
