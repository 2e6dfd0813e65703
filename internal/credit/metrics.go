package credit

import "github.com/prometheus/client_golang/prometheus"

var paymentsApplied = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pharmapos_credit_payments_total",
		Help: "Credit payments applied, by method and resulting status",
	},
	[]string{"method", "status"},
)

// Collectors returns the metrics this package updates.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{paymentsApplied}
}
