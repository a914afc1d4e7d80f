// Package circuitbreaker isolates failing backends. A breaker opens
// after a run of consecutive failures, rejects calls for a recovery
// period, then admits exactly one trial call to probe the backend.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and requests are allowed.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and requests are rejected.
	StateOpen

	// StateHalfOpen indicates the circuit is probing the backend with
	// a single trial request.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker implements the circuit breaker pattern with
// consecutive-failure counting.
//
// Transitions are evaluated lazily on access; no background timer
// moves the breaker between states. Outcomes may be recorded at any
// time, including after the breaker has already opened for other
// reasons, and are applied under the breaker lock in arrival order.
type CircuitBreaker struct {
	name   string
	config *Config
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State

	// consecutiveFails counts failures since the last success while
	// closed. Reaching FailureThreshold opens the circuit.
	consecutiveFails int

	// trialInFlight guards the half-open probe. At most one caller
	// holds the trial at a time.
	trialInFlight bool

	// Counters for stats. Never drive transitions.
	failures      int
	successes     int
	totalRequests int

	openedAt        time.Time
	lastFailure     time.Time
	lastStateChange time.Time
}

// Option is a functional option for the circuit breaker.
type Option func(*CircuitBreaker)

// WithClock sets the time source. Used by tests to control recovery.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config *Config, logger *zap.Logger, opts ...Option) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	if logger == nil {
		logger = zap.NewNop()
	}

	cb := &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
	}

	for _, opt := range opts {
		opt(cb)
	}

	cb.lastStateChange = cb.now()

	return cb
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	err := fn()

	if cb.isSuccessful(err) {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}

	return err
}

// Allow reports whether a request may proceed. When the recovery
// timeout has elapsed on an open circuit, the calling request becomes
// the half-open trial; concurrent callers are rejected until the
// trial's outcome is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var allowed bool

	switch cb.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.transitionTo(StateHalfOpen)
			cb.trialInFlight = true
			allowed = true
		}

	case StateHalfOpen:
		if !cb.trialInFlight {
			cb.trialInFlight = true
			allowed = true
		}
	}

	RecordRequest(cb.name, allowed)

	return allowed
}

// RecordSuccess records a successful outcome. In half-open state the
// trial success closes the circuit; in open state a late success is
// counted but does not close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++
	cb.totalRequests++
	RecordSuccess(cb.name)

	switch cb.state {
	case StateClosed:
		cb.consecutiveFails = 0

	case StateHalfOpen:
		cb.trialInFlight = false
		cb.consecutiveFails = 0
		cb.transitionTo(StateClosed)
	}
}

// RecordFailure records a failed outcome. Reaching the consecutive
// failure threshold opens the circuit; a half-open trial failure
// reopens it and restarts the recovery period.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.totalRequests++
	cb.lastFailure = cb.now()
	RecordFailure(cb.name)

	switch cb.state {
	case StateClosed:
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.config.FailureThreshold {
			cb.open()
		}

	case StateHalfOpen:
		cb.trialInFlight = false
		cb.open()
	}
}

// Abandon hands back an admission obtained from Allow when no backend
// attempt was made. A held half-open trial slot is released so the next
// caller can probe; no outcome is recorded and counters are untouched.
func (cb *CircuitBreaker) Abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.trialInFlight = false
	}
}

// open transitions to the open state and restarts the recovery clock.
func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.now()
	cb.transitionTo(StateOpen)
}

// transitionTo moves the breaker to a new state. Callers hold cb.mu.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()

	RecordStateChange(cb.name, oldState, newState)

	cb.logger.Info("circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

// isSuccessful classifies an error for Execute.
func (cb *CircuitBreaker) isSuccessful(err error) bool {
	if cb.config.IsSuccessful != nil {
		return cb.config.IsSuccessful(err)
	}
	return err == nil
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the circuit breaker back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFails = 0
	cb.trialInFlight = false
	cb.failures = 0
	cb.successes = 0
	cb.totalRequests = 0
	cb.lastStateChange = cb.now()

	cb.logger.Info("circuit breaker reset",
		zap.String("name", cb.name),
	)
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Stats returns the current statistics of the circuit breaker.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:            cb.state,
		Failures:         cb.failures,
		Successes:        cb.successes,
		ConsecutiveFails: cb.consecutiveFails,
		TotalRequests:    cb.totalRequests,
		LastFailure:      cb.lastFailure,
		LastStateChange:  cb.lastStateChange,
	}
}

// Stats holds circuit breaker statistics.
type Stats struct {
	State            State
	Failures         int
	Successes        int
	ConsecutiveFails int
	TotalRequests    int
	LastFailure      time.Time
	LastStateChange  time.Time
}
