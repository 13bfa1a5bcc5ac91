package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/metrics"
)

// Broadcaster receives the merged snapshot after every successful ingest.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastSnapshot(snap Snapshot)
}

// SnapshotSink receives the wire snapshot for durable persistence.
// Implemented by the history syncer.
type SnapshotSink interface {
	Enqueue(snap Snapshot)
}

// Ingestor consumes raw telemetry payloads from the fabric, applies them
// to the store, and fans the merged result out to subscribers and the
// persistence queue.
//
// Malformed payloads are logged and dropped; they never interrupt the
// ingest loop.
type Ingestor struct {
	store     *Store
	broadcast Broadcaster
	sink      SnapshotSink
	logger    *logging.Logger
	metrics   *metrics.Registry
}

// NewIngestor creates an Ingestor. broadcast and sink may be nil during
// tests; nil targets are skipped.
func NewIngestor(store *Store, broadcast Broadcaster, sink SnapshotSink, logger *logging.Logger, reg *metrics.Registry) *Ingestor {
	return &Ingestor{
		store:     store,
		broadcast: broadcast,
		sink:      sink,
		logger:    logger,
		metrics:   reg,
	}
}

// Handle processes one telemetry payload. The signature matches the MQTT
// message handler so it can be subscribed directly:
//
//	client.Subscribe(topics.TelemetryData(), qos, ingestor.Handle)
func (i *Ingestor) Handle(topic string, payload []byte) error {
	snap, err := ParseSnapshot(payload)
	if err != nil {
		i.metrics.Inc(metrics.SnapshotsRejected)
		i.logger.Warn("dropping malformed telemetry snapshot",
			"topic", topic,
			"error", err,
		)
		return nil // drop, don't propagate
	}

	i.store.ApplySnapshot(snap)
	i.metrics.Inc(metrics.SnapshotsIngested)
	i.metrics.SetGauge(metrics.TrackedDevices, float64(i.store.DeviceCount()))

	merged := i.store.Snapshot()
	if i.broadcast != nil {
		i.broadcast.BroadcastSnapshot(merged)
	}
	if i.sink != nil {
		i.sink.Enqueue(snap)
	}

	return nil
}

// ParseSnapshot decodes and validates a wire snapshot payload.
//
// Returns ErrMalformedSnapshot for undecodable payloads and
// ErrDuplicateDevice when a device id appears more than once. A snapshot
// carrying no devices is valid: its system metrics are still merged.
func ParseSnapshot(payload []byte) (Snapshot, error) {
	var wire wireSnapshot
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}

	seen := make(map[string]struct{}, len(wire.Devices))
	devices := make([]Device, 0, len(wire.Devices))
	for _, wd := range wire.Devices {
		if wd.ID == "" {
			return Snapshot{}, fmt.Errorf("%w: device with empty id", ErrMalformedSnapshot)
		}
		if _, dup := seen[wd.ID]; dup {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrDuplicateDevice, wd.ID)
		}
		seen[wd.ID] = struct{}{}

		status := wd.Status
		if !ValidStatus(status) {
			return Snapshot{}, fmt.Errorf("%w: device %s has status %q", ErrMalformedSnapshot, wd.ID, wd.Status)
		}

		value := wd.Value
		if status == StatusOffline {
			value = nil
		}

		devices = append(devices, Device{
			ID:          wd.ID,
			Name:        wd.Name,
			Type:        wd.Type,
			Unit:        wd.Unit,
			Status:      status,
			Value:       value,
			LastUpdated: wire.Timestamp,
		})
	}

	return Snapshot{
		Timestamp: wire.Timestamp,
		Devices:   devices,
		System: SystemMetrics{
			CPU:       wire.System.CPU,
			Memory:    wire.System.Memory,
			Storage:   wire.System.Storage,
			Network:   wire.System.Network,
			Timestamp: wire.Timestamp,
		},
	}, nil
}
