// Package command implements asynchronous device command dispatch over
// the MQTT fabric.
//
// The Dispatcher publishes toggle commands and tracks each one as a
// pending entry until it settles exactly once: by a device
// acknowledgment (matched by the Correlator), by its acknowledgment
// timer, or by a transport failure at publish time. The
// BatchCoordinator fans a multi-device toggle out through the same
// dispatcher under a shared batch id and aggregates per-device results
// into an Operation record.
//
// The package owns correlation and settlement only. Device state is
// never mutated here - acknowledgments report outcomes, and the
// telemetry store remains the single source of truth for what a device
// is actually doing. Conflict policy (rejecting a toggle while a batch
// is still processing) is decided by callers against the operation
// ledger.
package command
