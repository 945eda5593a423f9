package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(purchasesTotal) }

var purchasesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vpnbot_purchases_total",
		Help: "Purchase workflow events by outcome.",
	},
	[]string{"outcome"}, // 'started', 'submitted', 'approved', 'rejected', 'cancelled', 'failed'
)

func IncPurchase(outcome string) {
	purchasesTotal.WithLabelValues(norm(outcome)).Inc()
}
