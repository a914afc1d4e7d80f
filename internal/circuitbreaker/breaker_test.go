package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func breakerClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	current := start

	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(d)
	}
	return now, advance
}

func newTestBreaker(t *testing.T, threshold int, recovery time.Duration) (*CircuitBreaker, func(time.Duration)) {
	t.Helper()

	now, advance := breakerClock(time.Unix(1000, 0))
	cb := NewCircuitBreaker("orders", &Config{
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
	}, nil, WithClock(now))

	return cb, advance
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, 5, time.Minute)

	for i := 0; i < 4; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, StateClosed, cb.State(), "failure %d keeps the circuit closed", i+1)
	}

	require.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	assert.False(t, cb.Allow(), "open circuit rejects requests")
}

func TestCircuitBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	cb, _ := newTestBreaker(t, 3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State(), "non-consecutive failures never open the circuit")

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	cb, advance := newTestBreaker(t, 1, time.Minute)

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	advance(30 * time.Second)
	assert.False(t, cb.Allow(), "still inside the recovery period")

	advance(30 * time.Second)
	assert.True(t, cb.Allow(), "first request after recovery becomes the trial")
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_SingleHalfOpenTrial(t *testing.T) {
	cb, advance := newTestBreaker(t, 1, time.Minute)

	cb.RecordFailure()
	advance(time.Minute)

	require.True(t, cb.Allow())

	// Further requests are rejected until the trial outcome arrives.
	assert.False(t, cb.Allow())
	assert.False(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_AbandonReleasesTrialSlot(t *testing.T) {
	cb, advance := newTestBreaker(t, 1, time.Minute)

	cb.RecordFailure()
	advance(time.Minute)

	require.True(t, cb.Allow())
	require.False(t, cb.Allow(), "trial slot is held")

	// The admitted caller never reached a backend.
	cb.Abandon()

	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow(), "released slot admits the next probe")

	stats := cb.Stats()
	assert.Equal(t, 1, stats.Failures, "abandoning records no outcome")
	assert.Equal(t, 0, stats.Successes)
}

func TestCircuitBreaker_AbandonWhileClosedIsNoop(t *testing.T) {
	cb, _ := newTestBreaker(t, 5, time.Minute)

	require.True(t, cb.Allow())
	cb.Abandon()

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_TrialFailureReopens(t *testing.T) {
	cb, advance := newTestBreaker(t, 1, time.Minute)

	cb.RecordFailure()
	advance(time.Minute)

	require.True(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow(), "recovery period restarted")

	advance(time.Minute)
	assert.True(t, cb.Allow(), "new trial after the restarted recovery period")
}

func TestCircuitBreaker_ConcurrentTrialExclusion(t *testing.T) {
	cb, advance := newTestBreaker(t, 1, time.Minute)

	cb.RecordFailure()
	advance(time.Minute)

	const workers = 50
	var wg sync.WaitGroup
	var admitted int64
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.Allow() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), admitted, "exactly one caller holds the trial")
}

func TestCircuitBreaker_LateOutcomesRecorded(t *testing.T) {
	cb, _ := newTestBreaker(t, 2, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	// Outcomes from requests admitted before the circuit opened still
	// land in the stats without changing state.
	cb.RecordSuccess()
	assert.Equal(t, StateOpen, cb.State())

	stats := cb.Stats()
	assert.Equal(t, 2, stats.Failures)
	assert.Equal(t, 1, stats.Successes)
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb, _ := newTestBreaker(t, 2, time.Minute)
	ctx := context.Background()

	backendErr := errors.New("backend down")

	err := cb.Execute(ctx, func() error { return backendErr })
	assert.ErrorIs(t, err, backendErr)

	err = cb.Execute(ctx, func() error { return backendErr })
	assert.ErrorIs(t, err, backendErr)
	require.Equal(t, StateOpen, cb.State())

	err = cb.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_ExecuteIsSuccessful(t *testing.T) {
	now, _ := breakerClock(time.Unix(1000, 0))
	clientErr := errors.New("client error")

	cb := NewCircuitBreaker("orders", &Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, clientErr)
		},
	}, nil, WithClock(now))

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := cb.Execute(ctx, func() error { return clientErr })
		assert.ErrorIs(t, err, clientErr)
	}

	assert.Equal(t, StateClosed, cb.State(), "client errors are not failures")
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(t, 1, time.Minute)

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
