package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var validationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_auth_validations_total",
		Help: "Total number of token validations by result",
	},
	[]string{"result"},
)

func recordValidation(result string) {
	validationsTotal.WithLabelValues(result).Inc()
}
