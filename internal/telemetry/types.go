package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DeviceStatus is the reported operational state of a device.
type DeviceStatus string

// Device statuses carried on the telemetry channel.
const (
	StatusOnline     DeviceStatus = "online"
	StatusOffline    DeviceStatus = "offline"
	StatusError      DeviceStatus = "error"
	StatusRestarting DeviceStatus = "restarting"
)

// ValidStatus reports whether s is a recognised device status.
func ValidStatus(s DeviceStatus) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusError, StatusRestarting:
		return true
	}
	return false
}

// Value is a device reading. Peers emit either JSON numbers or numeric
// strings (readings formatted with fixed precision), so decoding accepts
// both forms. A nil *Value means the device has no reading (offline).
type Value float64

// UnmarshalJSON decodes a JSON number or a quoted numeric string.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("telemetry: empty value")
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("telemetry: decoding value string: %w", err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("telemetry: parsing value %q: %w", s, err)
		}
		*v = Value(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("telemetry: decoding value: %w", err)
	}
	*v = Value(f)
	return nil
}

// Float64 returns the underlying numeric value.
func (v Value) Float64() float64 {
	return float64(v)
}

// NewValue returns a *Value for literal use in tests and merges.
func NewValue(f float64) *Value {
	v := Value(f)
	return &v
}

// Device is one entry in the live snapshot.
type Device struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Type   string       `json:"type"`
	Unit   string       `json:"unit"`
	Status DeviceStatus `json:"status"`

	// Value is nil when the device has no reading. Offline devices
	// always carry a nil value.
	Value *Value `json:"value"`

	// LastUpdated is the wire timestamp of the snapshot that last
	// touched this device, in Unix epoch milliseconds.
	LastUpdated int64 `json:"lastUpdated"`

	// IsRegistered marks devices known to the durable registry.
	IsRegistered bool `json:"isRegistered"`
}

// SystemMetrics is the fleet-wide health sample carried in each snapshot.
type SystemMetrics struct {
	CPU       float64 `json:"cpu"`
	Memory    float64 `json:"memory"`
	Storage   float64 `json:"storage"`
	Network   string  `json:"network"`
	Timestamp int64   `json:"timestamp"`
}

// Snapshot is the merged device/system state at a point in time.
type Snapshot struct {
	Timestamp int64         `json:"timestamp"`
	Devices   []Device      `json:"devices"`
	System    SystemMetrics `json:"system"`
}

// RegisteredDevice is a registry row loaded from the durable store.
type RegisteredDevice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Unit     string `json:"unit"`
	LastSeen int64  `json:"lastSeen"`
}

// wireSnapshot is the payload published on the telemetry data topic.
type wireSnapshot struct {
	Timestamp int64        `json:"timestamp"`
	Devices   []wireDevice `json:"devices"`
	System    wireSystem   `json:"system"`
}

type wireDevice struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Type   string       `json:"type"`
	Unit   string       `json:"unit"`
	Status DeviceStatus `json:"status"`
	Value  *Value       `json:"value"`
}

type wireSystem struct {
	CPU     float64 `json:"cpu"`
	Memory  float64 `json:"memory"`
	Storage float64 `json:"storage"`
	Network string  `json:"network"`
}
