package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open, 2=half_open)",
		},
		[]string{"name"},
	)

	breakerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breakers",
		},
		[]string{"name", "result"},
	)

	breakerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_failures_total",
			Help: "Total number of failures recorded by circuit breakers",
		},
		[]string{"name"},
	)

	breakerSuccessesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_successes_total",
			Help: "Total number of successes recorded by circuit breakers",
		},
		[]string{"name"},
	)

	breakerStateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_state_changes_total",
			Help: "Total number of circuit breaker state changes",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordRequest records a request through a circuit breaker.
func RecordRequest(name string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	breakerRequestsTotal.WithLabelValues(name, result).Inc()
}

// RecordFailure records a failure.
func RecordFailure(name string) {
	breakerFailuresTotal.WithLabelValues(name).Inc()
}

// RecordSuccess records a success.
func RecordSuccess(name string) {
	breakerSuccessesTotal.WithLabelValues(name).Inc()
}

// RecordStateChange records a state change.
func RecordStateChange(name string, from, to State) {
	breakerStateChangesTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	breakerState.WithLabelValues(name).Set(float64(to))
}
