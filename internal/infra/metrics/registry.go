package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(registryClients, expiryNotificationsTotal, watcherScansTotal)
}

var (
	registryClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vpnbot_registry_clients",
			Help: "Current number of registry clients by derived status.",
		},
		[]string{"status"}, // 'active', 'expired', 'invalid'
	)

	expiryNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnbot_expiry_notifications_total",
			Help: "Expiry alerts sent by the watcher, by recipient role.",
		},
		[]string{"recipient"}, // 'approver', 'owner'
	)

	watcherScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnbot_watcher_scans_total",
			Help: "Expiry watcher scan cycles by result.",
		},
		[]string{"result"},
	)
)

func SetRegistryClients(active, expired, invalid int) {
	registryClients.WithLabelValues("active").Set(float64(active))
	registryClients.WithLabelValues("expired").Set(float64(expired))
	registryClients.WithLabelValues("invalid").Set(float64(invalid))
}

func IncExpiryNotification(recipient string) {
	expiryNotificationsTotal.WithLabelValues(norm(recipient)).Inc()
}

func IncWatcherScan(result string) {
	watcherScansTotal.WithLabelValues(norm(result)).Inc()
}
