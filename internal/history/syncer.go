package history

import (
	"context"
	"time"

	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/metrics"
	"github.com/fleetglass/fleetglass-core/internal/telemetry"
)

// Mirror receives a copy of every persisted reading. Implemented by the
// InfluxDB client; nil disables mirroring.
type Mirror interface {
	WriteDeviceValue(deviceID, deviceType, unit string, value float64, timestamp time.Time)
	WriteSystemMetrics(cpu, memory, storage float64, network string, timestamp time.Time)
}

// Syncer moves snapshots from the ingest path to durable storage
// without ever blocking ingest.
//
// Enqueue is non-blocking: when the queue is full the oldest queued
// snapshot is dropped to make room, on the theory that a newer snapshot
// supersedes an older one. Drops are counted and logged but never
// propagate upstream.
type Syncer struct {
	store   *Store
	mirror  Mirror
	logger  *logging.Logger
	metrics *metrics.Registry

	queue chan telemetry.Snapshot
}

// NewSyncer creates a Syncer with a bounded queue. mirror may be nil.
func NewSyncer(store *Store, mirror Mirror, queueSize int, logger *logging.Logger, reg *metrics.Registry) *Syncer {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Syncer{
		store:   store,
		mirror:  mirror,
		logger:  logger,
		metrics: reg,
		queue:   make(chan telemetry.Snapshot, queueSize),
	}
}

// Enqueue hands a snapshot to the writer. Implements the ingest sink.
func (s *Syncer) Enqueue(snap telemetry.Snapshot) {
	for {
		select {
		case s.queue <- snap:
			s.metrics.SetGauge(metrics.HistoryQueueLen, float64(len(s.queue)))
			return
		default:
		}

		// Queue full: shed the oldest entry and retry.
		select {
		case dropped := <-s.queue:
			s.metrics.Inc(metrics.HistoryQueueDropped)
			s.logger.Warn("history queue full, dropping oldest snapshot",
				"dropped_timestamp", dropped.Timestamp,
			)
		default:
		}
	}
}

// Run drains the queue until ctx is cancelled. Persistence failures are
// logged and the snapshot is discarded; the loop never stops on error.
func (s *Syncer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case snap := <-s.queue:
			s.persist(ctx, snap)
			s.metrics.SetGauge(metrics.HistoryQueueLen, float64(len(s.queue)))
		}
	}
}

// drain flushes whatever is still queued at shutdown, with a bounded
// grace period per snapshot.
func (s *Syncer) drain() {
	for {
		select {
		case snap := <-s.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			s.persist(ctx, snap)
			cancel()
		default:
			return
		}
	}
}

func (s *Syncer) persist(ctx context.Context, snap telemetry.Snapshot) {
	start := time.Now()
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		s.logger.Error("persisting snapshot failed",
			"timestamp", snap.Timestamp,
			"devices", len(snap.Devices),
			"error", err,
		)
		return
	}
	s.metrics.Observe(metrics.SnapshotPersistLatency, time.Since(start).Seconds())

	if s.mirror == nil {
		return
	}
	ts := time.UnixMilli(snap.Timestamp)
	for _, d := range snap.Devices {
		if d.Value == nil {
			continue
		}
		s.mirror.WriteDeviceValue(d.ID, d.Type, d.Unit, d.Value.Float64(), ts)
	}
	s.mirror.WriteSystemMetrics(snap.System.CPU, snap.System.Memory, snap.System.Storage, snap.System.Network, ts)
}

// QueueLen returns the current queue depth.
func (s *Syncer) QueueLen() int {
	return len(s.queue)
}
