package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names exposed on the /metrics endpoint.
const (
	SnapshotsIngested   = "fleetglass_snapshots_ingested_total"
	SnapshotsRejected   = "fleetglass_snapshots_rejected_total"
	CommandsDispatched  = "fleetglass_commands_dispatched_total"
	CommandsSucceeded   = "fleetglass_commands_succeeded_total"
	CommandsFailed      = "fleetglass_commands_failed_total"
	CommandsTimedOut    = "fleetglass_commands_timed_out_total"
	ResponsesUnmatched  = "fleetglass_responses_unmatched_total"
	HistoryQueueDropped = "fleetglass_history_queue_dropped_total"

	PendingCommands  = "fleetglass_pending_commands"
	HistoryQueueLen  = "fleetglass_history_queue_length"
	ConnectedClients = "fleetglass_ws_connected_clients"
	TrackedDevices   = "fleetglass_tracked_devices"

	SnapshotPersistLatency = "fleetglass_snapshot_persist_seconds"
	CommandRoundTrip       = "fleetglass_command_round_trip_seconds"
)

// Registry holds the Prometheus collectors for FleetGlass Core.
//
// Collectors are registered on a private registry so tests can create
// multiple instances without duplicate-registration panics. Unknown metric
// names are silently ignored, which keeps call sites free of error handling.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	registry *prometheus.Registry

	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// New creates a Registry with all FleetGlass collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	counters := make(map[string]prometheus.Counter)
	for name, help := range map[string]string{
		SnapshotsIngested:   "Telemetry snapshots successfully merged into the live cache.",
		SnapshotsRejected:   "Telemetry snapshots rejected during decode or validation.",
		CommandsDispatched:  "Commands published to the command channel.",
		CommandsSucceeded:   "Commands settled by a success acknowledgment.",
		CommandsFailed:      "Commands settled by a failure acknowledgment.",
		CommandsTimedOut:    "Commands settled by the acknowledgment timeout.",
		ResponsesUnmatched:  "Acknowledgments that matched no pending command.",
		HistoryQueueDropped: "Snapshots dropped due to history queue backpressure.",
	} {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		reg.MustRegister(c)
		counters[name] = c
	}

	gauges := make(map[string]prometheus.Gauge)
	for name, help := range map[string]string{
		PendingCommands:  "Commands currently awaiting acknowledgment.",
		HistoryQueueLen:  "Snapshots buffered ahead of the history writer.",
		ConnectedClients: "WebSocket clients currently connected.",
		TrackedDevices:   "Devices present in the live cache.",
	} {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		reg.MustRegister(g)
		gauges[name] = g
	}

	histos := make(map[string]prometheus.Observer)
	for name, help := range map[string]string{
		SnapshotPersistLatency: "Time from snapshot dequeue to SQLite commit.",
		CommandRoundTrip:       "Time from command dispatch to settlement.",
	} {
		h := prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		})
		reg.MustRegister(h)
		histos[name] = h
	}

	return &Registry{
		registry: reg,
		counters: counters,
		gauges:   gauges,
		histos:   histos,
	}
}

// Inc increments a counter by 1. Unknown names are ignored.
func (r *Registry) Inc(name string) {
	r.Add(name, 1)
}

// Add increments a counter by v. Unknown names are ignored.
func (r *Registry) Add(name string, v float64) {
	if c, ok := r.counters[name]; ok {
		c.Add(v)
	}
}

// SetGauge sets a gauge to v. Unknown names are ignored.
func (r *Registry) SetGauge(name string, v float64) {
	if g, ok := r.gauges[name]; ok {
		g.Set(v)
	}
}

// Observe records a histogram observation in seconds. Unknown names are ignored.
func (r *Registry) Observe(name string, seconds float64) {
	if h, ok := r.histos[name]; ok {
		h.Observe(seconds)
	}
}

// Handler returns an http.Handler serving the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
