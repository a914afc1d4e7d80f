package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total requests processed by the gateway.",
		},
		[]string{"method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end request latency through the gateway.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// recordRequest accounts one completed request.
func recordRequest(method string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
