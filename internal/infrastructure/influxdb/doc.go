// Package influxdb provides InfluxDB connectivity for FleetGlass Core.
//
// It wraps the official influxdb-client-go v2 library with FleetGlass-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package mirrors time-series data into InfluxDB:
//   - Numeric device readings from telemetry snapshots
//   - System health samples (cpu, memory, storage)
//
// The primary store remains SQLite; InfluxDB mirroring is optional and
// enabled via configuration.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "fleetglass",
//	    Bucket:  "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteDeviceValue("temp-sensor-01", "temperature", "°C", 21.5, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
package influxdb
