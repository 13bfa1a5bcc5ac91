// Package telemetry maintains the live device and system state for
// FleetGlass Core.
//
// Device peers publish merged snapshots on the telemetry data topic. The
// Ingestor decodes them, the Store merges them atomically, and the merged
// view fans out to WebSocket subscribers and the persistence queue.
//
// Telemetry is the single source of truth for device state: command
// acknowledgments settle dispatches but never write here. A device's
// post-command state is whatever the next snapshot reports.
package telemetry
