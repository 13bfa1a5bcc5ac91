// Package mqtt provides MQTT client connectivity for FleetGlass Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// FleetGlass uses MQTT as the fabric connecting Core to telemetry peers
// and device simulators. The broker decouples Core from peer
// implementations.
//
//	FleetGlass Core ↔ MQTT Broker ↔ Telemetry Peers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to telemetry snapshots
//	err = client.Subscribe(mqtt.Topics{}.TelemetryData(), 1,
//	    func(topic string, payload []byte) error {
//	        return ingestor.Handle(payload)
//	    })
//
//	// Publish a command
//	client.Publish(mqtt.Topics{}.CommandIssue(), cmdJSON, 1, false)
package mqtt
