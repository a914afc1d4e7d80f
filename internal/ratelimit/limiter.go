// Package ratelimit provides tiered rate limiting for the gateway.
// The default algorithm is fixed-window counting; a token-bucket
// alternative is available for smoother admission.
package ratelimit

import (
	"context"
	"time"
)

// Tier identifies the rate-limit tier of an identity.
type Tier string

const (
	// TierStandard is the default tier.
	TierStandard Tier = "standard"

	// TierPremium gets a higher threshold (multiplier applied).
	TierPremium Tier = "premium"
)

// ParseTier maps a claim value to a Tier, defaulting to standard.
func ParseTier(s string) Tier {
	if s == string(TierPremium) {
		return TierPremium
	}
	return TierStandard
}

// Limiter decides whether a request from an identity is admitted.
type Limiter interface {
	// Allow checks and accounts a single request for the identity.
	// The counter is always advanced, even for rejected requests.
	Allow(ctx context.Context, identity string, tier Tier) (*Result, error)

	// Reset clears the rate-limit state for the identity.
	Reset(ctx context.Context, identity string) error
}

// Result is the outcome of a rate-limit check.
type Result struct {
	// Allowed indicates whether the request is admitted.
	Allowed bool

	// Limit is the threshold applied for the identity's tier.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAfter is the duration until the current window ends.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying.
	// Zero when the request is allowed.
	RetryAfter time.Duration
}

// Config holds thresholds shared by all limiter implementations.
type Config struct {
	// Requests is the standard-tier threshold per window.
	Requests int

	// Window is the fixed window length.
	Window time.Duration

	// PremiumMultiplier scales Requests for the premium tier.
	PremiumMultiplier int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Requests:          100,
		Window:            time.Minute,
		PremiumMultiplier: 10,
	}
}

// Threshold returns the request threshold for the given tier.
func (c *Config) Threshold(tier Tier) int {
	if tier == TierPremium {
		multiplier := c.PremiumMultiplier
		if multiplier <= 0 {
			multiplier = 10
		}
		return c.Requests * multiplier
	}
	return c.Requests
}

// KeyForSubject builds the rate-limit key for an authenticated subject.
func KeyForSubject(subject string) string {
	return "user:" + subject
}
