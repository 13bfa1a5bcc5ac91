// Package history owns the durable side of the telemetry pipeline: a
// SQLite store of per-device readings, fleet health samples, and the
// device registry; a bounded Syncer that decouples persistence from
// ingest; an optional InfluxDB mirror; and a retention job that prunes
// expired time-series rows.
//
// The live telemetry store never depends on this package. Data flows
// one way: ingest enqueues snapshots here, and the only thing that
// flows back is the periodic registry refresh the composition root
// feeds into the live store.
package history
