package mqtt

import "fmt"

// Topic prefixes for the FleetGlass MQTT fabric.
//
// All topics live under a single root: fleetglass/{category}/{channel}.
// Telemetry peers publish merged snapshots on the telemetry channel;
// Core and peers exchange command traffic on the commands channels.
const (
	// TopicPrefixRoot is the base for all FleetGlass topics.
	TopicPrefixRoot = "fleetglass"

	// TopicPrefixTelemetry is the base for telemetry topics.
	TopicPrefixTelemetry = "fleetglass/telemetry"

	// TopicPrefixCommands is the base for command topics.
	TopicPrefixCommands = "fleetglass/commands"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "fleetglass/system"
)

// Topics provides builders for FleetGlass MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.TelemetryData() // "fleetglass/telemetry/data"
type Topics struct{}

// TelemetryData returns the topic carrying merged telemetry snapshots.
//
// Example: fleetglass/telemetry/data
func (Topics) TelemetryData() string {
	return fmt.Sprintf("%s/data", TopicPrefixTelemetry)
}

// CommandIssue returns the topic commands are dispatched on.
//
// Example: fleetglass/commands/issue
func (Topics) CommandIssue() string {
	return fmt.Sprintf("%s/issue", TopicPrefixCommands)
}

// CommandResponse returns the topic devices acknowledge commands on.
//
// Example: fleetglass/commands/response
func (Topics) CommandResponse() string {
	return fmt.Sprintf("%s/response", TopicPrefixCommands)
}

// CommandBatchResponse returns the topic batch outcomes are published on.
//
// Example: fleetglass/commands/batch-response
func (Topics) CommandBatchResponse() string {
	return fmt.Sprintf("%s/batch-response", TopicPrefixCommands)
}

// SystemStatus returns the system status topic (online/offline, LWT).
//
// Example: fleetglass/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching all command traffic.
//
// Pattern: fleetglass/commands/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/+", TopicPrefixCommands)
}

// AllTopics returns a pattern matching all FleetGlass topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: fleetglass/#
func (Topics) AllTopics() string {
	return TopicPrefixRoot + "/#"
}
