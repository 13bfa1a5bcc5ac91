// Package metrics exposes Prometheus instrumentation for FleetGlass Core.
//
// Collectors live on a private registry served at /metrics. Call sites
// reference metrics by name constants; unknown names are no-ops so
// instrumentation never panics a hot path.
package metrics
