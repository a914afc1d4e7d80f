package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter is an alternative to fixed-window counting that
// smooths admission over the window instead of counting per discrete
// interval. Each identity gets its own bucket refilled at
// threshold/window tokens per second with a burst of the full threshold.
type TokenBucketLimiter struct {
	config *Config

	mu      sync.Mutex
	buckets map[string]*bucketEntry
}

// bucketEntry holds a bucket and its last access time for cleanup.
type bucketEntry struct {
	limiter    *rate.Limiter
	tier       Tier
	lastAccess time.Time
}

// NewTokenBucketLimiter creates a token-bucket limiter.
func NewTokenBucketLimiter(config *Config) *TokenBucketLimiter {
	if config == nil {
		config = DefaultConfig()
	}
	return &TokenBucketLimiter{
		config:  config,
		buckets: make(map[string]*bucketEntry),
	}
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, identity string, tier Tier) (*Result, error) {
	threshold := l.config.Threshold(tier)

	l.mu.Lock()
	entry, ok := l.buckets[identity]
	if !ok || entry.tier != tier {
		refill := rate.Limit(float64(threshold) / l.config.Window.Seconds())
		entry = &bucketEntry{
			limiter: rate.NewLimiter(refill, threshold),
			tier:    tier,
		}
		l.buckets[identity] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	l.mu.Unlock()

	// Reserve instead of Allow to learn how long a rejected caller
	// should wait for the next token.
	reservation := limiter.Reserve()
	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		recordDecision("token_bucket", false)
		return &Result{
			Allowed:    false,
			Limit:      threshold,
			Remaining:  0,
			ResetAfter: delay,
			RetryAfter: delay,
		}, nil
	}

	recordDecision("token_bucket", true)
	return &Result{
		Allowed:   true,
		Limit:     threshold,
		Remaining: int(limiter.Tokens()),
	}, nil
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(_ context.Context, identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, identity)
	return nil
}

// Cleanup removes buckets idle longer than maxAge.
func (l *TokenBucketLimiter) Cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for identity, entry := range l.buckets {
		if now.Sub(entry.lastAccess) > maxAge {
			delete(l.buckets, identity)
		}
	}
}
