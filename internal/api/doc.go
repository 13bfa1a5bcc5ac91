// Package api implements the HTTP REST API and WebSocket server for
// FleetGlass Core.
//
// This package provides:
//   - REST endpoints for the live snapshot, toggle and batch-toggle
//     dispatch, operation lookups, and history queries
//   - WebSocket hub pushing merged snapshots and operation updates
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Prometheus exposition on /metrics
//
// # Architecture
//
// The server sits between dashboards and the telemetry/command layers.
// Toggles flow from the API through the command dispatcher onto the
// MQTT fabric; device state flows back through telemetry ingest, and
// every merged snapshot is broadcast to connected WebSocket clients.
// The HTTP surface never mutates device state directly - it only
// dispatches commands and reads stores.
//
// # Conflict Policy
//
// A single toggle targeting a device that a still-processing batch
// operation includes is rejected with 409. Interleaved single toggles
// on the same device are allowed; correlation is by command id, so
// they settle independently.
//
// # Graceful Degradation
//
// The server operates without MQTT - reads, history, and WebSocket
// connections work, only dispatch fails with 503. This enables testing
// and partial operation.
package api
