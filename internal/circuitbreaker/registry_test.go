package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)

	cb := r.GetOrCreate("orders")
	require.NotNil(t, cb)
	assert.Equal(t, "orders", cb.Name())

	assert.Same(t, cb, r.GetOrCreate("orders"), "same name returns the same breaker")
	assert.NotSame(t, cb, r.GetOrCreate("payments"))
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)

	assert.Nil(t, r.Get("missing"))

	created := r.GetOrCreate("orders")
	assert.Same(t, created, r.Get("orders"))
}

func TestRegistry_BreakersIsolated(t *testing.T) {
	r := NewRegistry(&Config{FailureThreshold: 1, RecoveryTimeout: time.Minute}, nil)

	orders := r.GetOrCreate("orders")
	payments := r.GetOrCreate("payments")

	orders.RecordFailure()

	assert.Equal(t, StateOpen, orders.State())
	assert.Equal(t, StateClosed, payments.State(), "one service's failures never affect another")
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)

	const workers = 50
	breakers := make([]*CircuitBreaker, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = r.GetOrCreate("orders")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, breakers[0], breakers[i])
	}
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_ResetAll(t *testing.T) {
	r := NewRegistry(&Config{FailureThreshold: 1, RecoveryTimeout: time.Minute}, nil)

	orders := r.GetOrCreate("orders")
	payments := r.GetOrCreate("payments")

	orders.RecordFailure()
	payments.RecordFailure()

	r.ResetAll()

	assert.Equal(t, StateClosed, orders.State())
	assert.Equal(t, StateClosed, payments.State())
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry(&Config{FailureThreshold: 5, RecoveryTimeout: time.Minute}, nil)

	r.GetOrCreate("orders").RecordFailure()
	r.GetOrCreate("payments").RecordSuccess()

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats["orders"].Failures)
	assert.Equal(t, 1, stats["payments"].Successes)
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)

	r.GetOrCreate("orders")
	r.Remove("orders")

	assert.Nil(t, r.Get("orders"))
	assert.Zero(t, r.Count())
}
