package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(provisioningTotal, provisioningDuration, renewalsTotal, deletionsTotal)
}

var (
	provisioningTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnbot_provisioning_total",
			Help: "Client creations by result.",
		},
		[]string{"result"}, // 'success', 'exists', 'failed', 'artifact_missing', 'store_error'
	)

	provisioningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vpnbot_provisioning_duration_seconds",
			Help:    "Wall time of the external provisioning command.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	renewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnbot_renewals_total",
			Help: "Client renewals by result.",
		},
		[]string{"result"},
	)

	deletionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vpnbot_deletions_total",
			Help: "Clients deleted from the registry or the disk.",
		},
	)
)

func IncProvisioning(result string) {
	provisioningTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveProvisioning(d time.Duration) {
	provisioningDuration.Observe(d.Seconds())
}

func IncRenewal(result string) {
	renewalsTotal.WithLabelValues(norm(result)).Inc()
}

func IncDeletion() {
	deletionsTotal.Inc()
}
