package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceValue writes a single device reading to InfluxDB.
//
// This mirrors the numeric values persisted to SQLite so dashboards can
// query long-range series without hitting the primary store. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "temp-sensor-01")
//   - deviceType: Device category (e.g., "temperature", "humidity")
//   - unit: Unit of measure (e.g., "°C", "%")
//   - value: The numeric value to record
//   - timestamp: When the reading was taken
//
// Example:
//
//	client.WriteDeviceValue("temp-sensor-01", "temperature", "°C", 21.5, time.Now())
func (c *Client) WriteDeviceValue(deviceID, deviceType, unit string, value float64, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_values",
		map[string]string{
			"device_id": deviceID,
			"type":      deviceType,
			"unit":      unit,
		},
		map[string]interface{}{
			"value": value,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteSystemMetrics writes a system health sample to InfluxDB.
//
// Parameters:
//   - cpu: CPU utilisation percentage
//   - memory: Memory utilisation percentage
//   - storage: Storage utilisation percentage
//   - network: Network state label (e.g., "connected")
//   - timestamp: When the sample was taken
func (c *Client) WriteSystemMetrics(cpu, memory, storage float64, network string, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"system_metrics",
		map[string]string{
			"network": network,
		},
		map[string]interface{}{
			"cpu":     cpu,
			"memory":  memory,
			"storage": storage,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
