package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"backend"},
	)

	missesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"backend"},
	)

	evictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"backend"},
	)

	sizeGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_cache_entries",
			Help: "Current number of cache entries",
		},
		[]string{"backend"},
	)
)

func recordHit(backend string) {
	hitsTotal.WithLabelValues(backend).Inc()
}

func recordMiss(backend string) {
	missesTotal.WithLabelValues(backend).Inc()
}

func recordEviction(backend string) {
	evictionsTotal.WithLabelValues(backend).Inc()
}

func recordSize(backend string, size int) {
	sizeGauge.WithLabelValues(backend).Set(float64(size))
}
