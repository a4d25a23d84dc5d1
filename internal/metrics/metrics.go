package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Connections reports the number of registered connections.
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wavesync_connections",
		Help: "Current number of connected clients",
	})
	// LocksHeld reports the number of held edit locks.
	LocksHeld = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wavesync_locks_held",
		Help: "Current number of held edit locks",
	})
	// LockRequests counts lock requests by result (granted, denied, refreshed).
	LockRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wavesync_lock_requests_total",
		Help: "Total number of edit lock requests",
	}, []string{"result"})
	// LocksReleased counts released locks by reason (holder, disconnect, expired).
	LocksReleased = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wavesync_locks_released_total",
		Help: "Total number of released edit locks",
	}, []string{"reason"})
	// Events counts inbound coordinator events by type.
	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wavesync_events_total",
		Help: "Total number of inbound coordinator events",
	}, []string{"type"})
	// Deliveries counts outbound messages handed to the transport.
	Deliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wavesync_deliveries_total",
		Help: "Total number of per-recipient deliveries attempted",
	})
	// DeliveryFailures counts per-recipient delivery failures.
	DeliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wavesync_delivery_failures_total",
		Help: "Total number of per-recipient delivery failures",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Register registers the wavesync collectors on reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(Connections, LocksHeld, LockRequests, LocksReleased, Events, Deliveries, DeliveryFailures)
}
