package circuitbreaker

import "time"

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that
	// opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a
	// half-open trial is allowed.
	RecoveryTimeout time.Duration

	// OnStateChange is called when the circuit changes state.
	OnStateChange func(name string, from, to State)

	// IsSuccessful classifies an error as success or failure for
	// Execute. Client errors from the backend are not failures; the
	// default treats only a nil error as success.
	IsSuccessful func(err error) bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// Validate normalizes invalid values to defaults.
func (c *Config) Validate() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
}
