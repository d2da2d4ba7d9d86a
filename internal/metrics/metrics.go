package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audioserver_commands_total",
		Help: "Accepted miniserver commands by verb and surface",
	}, []string{"verb", "surface"})

	CommandErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audioserver_command_errors_total",
		Help: "Command responses that carried an error, by error kind",
	}, []string{"kind"})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audioserver_events_total",
		Help: "Push events emitted to the broadcast plane by type",
	}, []string{"type"})

	EventDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audioserver_event_drops_total",
		Help: "Push events dropped on slow subscribers by reason",
	}, []string{"reason"})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audioserver_subscribers",
		Help: "Connected websocket subscribers",
	})

	BackendReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audioserver_backend_reconnects_total",
		Help: "Backend reconnect attempts by backend kind",
	}, []string{"backend"})

	UnknownNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audioserver_unknown_notifications_total",
		Help: "Vendor notifications without a dispatch entry by backend kind",
	}, []string{"backend"})

	HistoryDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audioserver_history_drops_total",
		Help: "Play-history entries dropped on a full recorder queue",
	})

	AuditDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audioserver_audit_drops_total",
		Help: "Audit entries dropped on a full writer queue",
	})

	RPCInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audioserver_rpc_inflight",
		Help: "Pending provider RPC requests",
	})
)

// IncEventDrop records a push event dropped for a slow subscriber.
func IncEventDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	EventDropsTotal.WithLabelValues(reason).Inc()
}

// IncCommand records an accepted command.
func IncCommand(verb, surface string) {
	if verb == "" {
		verb = "unknown"
	}
	CommandsTotal.WithLabelValues(verb, surface).Inc()
}
