package ratelimit

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ratelimit_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"algorithm", "allowed"},
	)

	fallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_ratelimit_fallback_total",
			Help: "Total number of times the local fallback limiter was used",
		},
	)

	storeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_ratelimit_store_errors_total",
			Help: "Total number of rate limit store errors",
		},
	)
)

// recordDecision records a rate limit decision.
func recordDecision(algorithm string, allowed bool) {
	decisionsTotal.WithLabelValues(algorithm, strconv.FormatBool(allowed)).Inc()
}
