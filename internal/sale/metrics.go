package sale

import "github.com/prometheus/client_golang/prometheus"

var (
	salesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmapos_sales_created_total",
			Help: "Committed sales by payment method",
		},
		[]string{"payment_method"},
	)
	saleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmapos_sale_failures_total",
			Help: "Rejected or failed sale attempts by reason",
		},
		[]string{"reason"},
	)
	salesVoided = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pharmapos_sales_voided_total",
			Help: "Sales reversed through void",
		},
	)
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{salesCreated, saleFailures, salesVoided}
}
