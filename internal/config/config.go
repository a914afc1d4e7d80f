// Package config provides configuration types and loading for the gateway.
package config

import "time"

// Default configuration values.
const (
	DefaultPort              = 8080
	DefaultMaxPayloadSize    = 10 << 20 // 10 MB
	DefaultRateLimitRequests = 100
	DefaultPremiumMultiplier = 10
	DefaultFailureThreshold  = 5
	DefaultCacheMaxEntries   = 10000
)

// Default durations.
var (
	DefaultRateLimitWindow = 60 * time.Second
	DefaultRecoveryTimeout = 60 * time.Second
	DefaultCacheTTL        = 300 * time.Second
	DefaultForwardTimeout  = 30 * time.Second
)

// GatewayConfig is the root configuration for the gateway.
type GatewayConfig struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Tracing        TracingConfig        `yaml:"tracing"`
	Identity       IdentityConfig       `yaml:"identity"`
	Security       SecurityConfig       `yaml:"security"`
	RateLimit      RateLimitConfig      `yaml:"rateLimit"`
	Cache          CacheConfig          `yaml:"cache"`
	Redis          RedisConfig          `yaml:"redis"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Forward        ForwardConfig        `yaml:"forward"`
	Services       []ServiceConfig      `yaml:"services"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string   `yaml:"address"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"readTimeout,omitempty"`
	WriteTimeout Duration `yaml:"writeTimeout,omitempty"`
	IdleTimeout  Duration `yaml:"idleTimeout,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty"`
}

// IdentityConfig holds identity-provider settings. Tokens are validated
// locally against the provider's JWKS endpoint.
type IdentityConfig struct {
	// IssuerURL is the expected token issuer (e.g. a Keycloak realm URL).
	IssuerURL string `yaml:"issuerURL"`

	// JWKSURL is the provider's key-set endpoint. Defaults to the
	// standard OIDC certs path under IssuerURL when empty.
	JWKSURL string `yaml:"jwksURL,omitempty"`

	// Audience, when set, must appear in the token's aud claim.
	Audience string `yaml:"audience,omitempty"`

	// RequestTimeout bounds JWKS fetches.
	RequestTimeout Duration `yaml:"requestTimeout,omitempty"`

	// TierClaim is the claim holding the rate-limit tier. Default "tier".
	TierClaim string `yaml:"tierClaim,omitempty"`
}

// SecurityConfig holds admission settings for origin, IP and payload checks.
type SecurityConfig struct {
	// AllowedOrigins lists Origin header values permitted for
	// cross-origin requests. "*" allows any origin.
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// AllowedIPs lists client IPs or CIDRs permitted to use the gateway.
	// "0.0.0.0/0" (or an empty list) disables the check.
	AllowedIPs []string `yaml:"allowedIPs"`

	// MaxPayloadSize is the maximum request body size in bytes.
	MaxPayloadSize int64 `yaml:"maxPayloadSize"`

	// TrustedProxies lists proxies whose X-Forwarded-For is honored.
	TrustedProxies []string `yaml:"trustedProxies,omitempty"`
}

// RateLimitConfig holds rate limiter settings.
type RateLimitConfig struct {
	// Requests is the standard-tier threshold per window.
	Requests int `yaml:"requests"`

	// Window is the fixed window length.
	Window Duration `yaml:"window"`

	// PremiumMultiplier scales the threshold for premium identities.
	PremiumMultiplier int `yaml:"premiumMultiplier"`

	// Algorithm selects the limiting algorithm: "fixed_window" (default)
	// or "token_bucket".
	Algorithm string `yaml:"algorithm,omitempty"`

	// Store selects the counter store: "memory" (default) or "redis".
	Store string `yaml:"store,omitempty"`
}

// StandardThreshold returns the per-window threshold for the standard tier.
func (c *RateLimitConfig) StandardThreshold() int {
	if c.Requests > 0 {
		return c.Requests
	}
	return DefaultRateLimitRequests
}

// PremiumThreshold returns the per-window threshold for the premium tier.
func (c *RateLimitConfig) PremiumThreshold() int {
	multiplier := c.PremiumMultiplier
	if multiplier <= 0 {
		multiplier = DefaultPremiumMultiplier
	}
	return c.StandardThreshold() * multiplier
}

// EffectiveWindow returns the configured window or the default.
func (c *RateLimitConfig) EffectiveWindow() time.Duration {
	if c.Window.Duration() > 0 {
		return c.Window.Duration()
	}
	return DefaultRateLimitWindow
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Type is the cache backend: "memory" (default) or "redis".
	Type string `yaml:"type,omitempty"`

	// TTL is the default time-to-live for cached responses.
	TTL Duration `yaml:"ttl,omitempty"`

	// MaxEntries bounds the memory cache.
	MaxEntries int `yaml:"maxEntries,omitempty"`

	// CacheablePrefixes lists path prefixes eligible for caching.
	CacheablePrefixes []string `yaml:"cacheablePrefixes,omitempty"`

	// KeyPrefix is prepended to cache keys in shared stores.
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

// EffectiveTTL returns the configured TTL or the default.
func (c *CacheConfig) EffectiveTTL() time.Duration {
	if c.TTL.Duration() > 0 {
		return c.TTL.Duration()
	}
	return DefaultCacheTTL
}

// RedisConfig holds connection settings for the shared Redis store.
type RedisConfig struct {
	Address      string   `yaml:"address"`
	Password     string   `yaml:"password,omitempty"`
	DB           int      `yaml:"db,omitempty"`
	PoolSize     int      `yaml:"poolSize,omitempty"`
	DialTimeout  Duration `yaml:"dialTimeout,omitempty"`
	ReadTimeout  Duration `yaml:"readTimeout,omitempty"`
	WriteTimeout Duration `yaml:"writeTimeout,omitempty"`
}

// CircuitBreakerConfig holds per-service breaker settings.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that
	// opens the circuit.
	FailureThreshold int `yaml:"failureThreshold"`

	// RecoveryTimeout is how long the circuit stays open before a
	// half-open trial is allowed.
	RecoveryTimeout Duration `yaml:"recoveryTimeout"`
}

// EffectiveFailureThreshold returns the configured threshold or the default.
func (c *CircuitBreakerConfig) EffectiveFailureThreshold() int {
	if c.FailureThreshold > 0 {
		return c.FailureThreshold
	}
	return DefaultFailureThreshold
}

// EffectiveRecoveryTimeout returns the configured timeout or the default.
func (c *CircuitBreakerConfig) EffectiveRecoveryTimeout() time.Duration {
	if c.RecoveryTimeout.Duration() > 0 {
		return c.RecoveryTimeout.Duration()
	}
	return DefaultRecoveryTimeout
}

// ForwardConfig holds settings for forwarding requests to backends.
type ForwardConfig struct {
	// Timeout bounds a single backend call.
	Timeout Duration `yaml:"timeout"`
}

// EffectiveTimeout returns the configured timeout or the default.
func (c *ForwardConfig) EffectiveTimeout() time.Duration {
	if c.Timeout.Duration() > 0 {
		return c.Timeout.Duration()
	}
	return DefaultForwardTimeout
}

// ServiceConfig describes one backend microservice.
type ServiceConfig struct {
	// Name identifies the service. Breaker state and the selector
	// cursor are keyed by this name.
	Name string `yaml:"name"`

	// PathPrefix routes requests whose path starts with this prefix.
	PathPrefix string `yaml:"pathPrefix"`

	// Instances is the ordered, static list of instance base URLs.
	Instances []string `yaml:"instances"`

	// HealthPath, when set, enables active health checking against
	// each instance.
	HealthPath string `yaml:"healthPath,omitempty"`

	// HealthInterval is the polling interval for health checks.
	HealthInterval Duration `yaml:"healthInterval,omitempty"`
}

// DefaultConfig returns a GatewayConfig with default values.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Server: ServerConfig{
			Port:         DefaultPort,
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
			IdleTimeout:  Duration(120 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			MaxPayloadSize: DefaultMaxPayloadSize,
		},
		RateLimit: RateLimitConfig{
			Requests:          DefaultRateLimitRequests,
			Window:            Duration(DefaultRateLimitWindow),
			PremiumMultiplier: DefaultPremiumMultiplier,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        Duration(DefaultCacheTTL),
			MaxEntries: DefaultCacheMaxEntries,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: DefaultFailureThreshold,
			RecoveryTimeout:  Duration(DefaultRecoveryTimeout),
		},
		Forward: ForwardConfig{
			Timeout: Duration(DefaultForwardTimeout),
		},
	}
}
