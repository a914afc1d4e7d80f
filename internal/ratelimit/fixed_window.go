package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/svcgateway/svcgw/internal/ratelimit/store"
)

// FixedWindowLimiter implements fixed-window rate limiting. Time is
// divided into non-overlapping windows of fixed length; each request
// increments the counter of (identity, current window) and is rejected
// when the incremented count exceeds the tier threshold.
//
// A burst straddling a window boundary can admit up to twice the
// threshold within a short span. This is an accepted property of fixed
// windows, not a defect.
type FixedWindowLimiter struct {
	config *Config
	store  store.Store
	logger *zap.Logger
	now    func() time.Time

	// In-memory counters when no store is configured.
	counters sync.Map
}

// windowCounter is the counter for one (identity, window) pair.
// The mutex makes the roll-over check and the increment a single
// atomic step; concurrent requests for the same identity serialize
// here and nowhere else.
type windowCounter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// FixedWindowOption is a functional option for the limiter.
type FixedWindowOption func(*FixedWindowLimiter)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) FixedWindowOption {
	return func(l *FixedWindowLimiter) {
		l.logger = logger
	}
}

// WithClock sets the time source. Used by tests to control windows.
func WithClock(now func() time.Time) FixedWindowOption {
	return func(l *FixedWindowLimiter) {
		l.now = now
	}
}

// NewFixedWindowLimiter creates a fixed-window limiter. A nil store
// selects per-process in-memory counting.
func NewFixedWindowLimiter(config *Config, s store.Store, opts ...FixedWindowOption) *FixedWindowLimiter {
	if config == nil {
		config = DefaultConfig()
	}

	l := &FixedWindowLimiter{
		config: config,
		store:  s,
		logger: zap.NewNop(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Allow implements Limiter.
func (l *FixedWindowLimiter) Allow(ctx context.Context, identity string, tier Tier) (*Result, error) {
	if l.store == nil {
		return l.allowLocal(identity, tier), nil
	}
	return l.allowStored(ctx, identity, tier)
}

// windowStart returns the start of the window containing t.
func (l *FixedWindowLimiter) windowStart(t time.Time) time.Time {
	windowNanos := l.config.Window.Nanoseconds()
	return time.Unix(0, (t.UnixNano()/windowNanos)*windowNanos)
}

// allowLocal counts in process memory with one lock per identity.
func (l *FixedWindowLimiter) allowLocal(identity string, tier Tier) *Result {
	now := l.now()
	windowStart := l.windowStart(now)
	threshold := l.config.Threshold(tier)

	value, _ := l.counters.LoadOrStore(identity, &windowCounter{windowStart: windowStart})
	wc := value.(*windowCounter)

	wc.mu.Lock()
	if !wc.windowStart.Equal(windowStart) {
		// Previous window elapsed; its count is discarded.
		wc.count = 0
		wc.windowStart = windowStart
	}
	wc.count++
	count := wc.count
	wc.mu.Unlock()

	return l.buildResult(count, threshold, windowStart, now)
}

// allowStored counts in the shared store. The increment is a single
// atomic store operation so concurrent gateways never lose updates.
func (l *FixedWindowLimiter) allowStored(ctx context.Context, identity string, tier Tier) (*Result, error) {
	now := l.now()
	windowStart := l.windowStart(now)
	threshold := l.config.Threshold(tier)

	windowKey := fmt.Sprintf("%s:fw:%d", identity, windowStart.UnixNano())

	// Expiry slightly beyond the window absorbs clock skew between
	// gateway instances.
	count, err := l.store.IncrementWithExpiry(ctx, windowKey, 1, l.config.Window+time.Second)
	if err != nil {
		return nil, err
	}

	return l.buildResult(int(count), threshold, windowStart, now), nil
}

// buildResult derives the admission decision from the post-increment count.
func (l *FixedWindowLimiter) buildResult(count, threshold int, windowStart, now time.Time) *Result {
	allowed := count <= threshold

	remaining := threshold - count
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := windowStart.Add(l.config.Window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = resetAfter
	}

	recordDecision("fixed_window", allowed)

	return &Result{
		Allowed:    allowed,
		Limit:      threshold,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}
}

// Reset implements Limiter.
func (l *FixedWindowLimiter) Reset(ctx context.Context, identity string) error {
	l.counters.Delete(identity)

	if l.store != nil {
		windowStart := l.windowStart(l.now())
		windowKey := fmt.Sprintf("%s:fw:%d", identity, windowStart.UnixNano())
		if err := l.store.Delete(ctx, windowKey); err != nil {
			l.logger.Warn("failed to delete window counter", zap.Error(err))
		}
	}

	return nil
}

// Cleanup discards counters from past windows. Correctness never
// depends on this; expired windows are ignored on access.
func (l *FixedWindowLimiter) Cleanup() {
	windowStart := l.windowStart(l.now())

	l.counters.Range(func(key, value interface{}) bool {
		wc := value.(*windowCounter)
		wc.mu.Lock()
		stale := wc.windowStart.Before(windowStart)
		wc.mu.Unlock()
		if stale {
			l.counters.Delete(key)
		}
		return true
	})
}
