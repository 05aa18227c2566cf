// Package mqtt provides the broker transport for AquaSentinel Core.
//
// This package manages:
//   - The single long-lived connection to the MQTT broker with auto-reconnect
//   - Wildcard subscriptions for device data, registration, and presence topics
//   - Message publishing, including the non-retained device command channel
//   - The in-memory device liveness table (last-seen per device)
//
// # Architecture
//
// The transport adapter is the only component with direct broker access.
// The registration state machine, presence poller, ingestion queue, and
// command dispatcher all communicate with the broker exclusively through
// this package's narrow surface (Publish, Subscribe, SendCommand).
//
//	Devices ↔ MQTT Broker ↔ Transport Adapter ↔ Core components
//
// # Failure semantics
//
// The initial Connect is retried a bounded number of times and then fails
// startup. After that, disconnects flip an internal connected flag that
// every publish/subscribe checks and short-circuits on (ErrNotConnected);
// reconnection is the transport's own responsibility and never crashes
// the process. Subscriptions are restored automatically on reconnect.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err) // startup-time connection failure is fatal
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.AllDeviceData(), 1,
//	    func(topic string, payload []byte) error {
//	        // hand off to the ingestion queue; never block here
//	        return nil
//	    })
//
//	client.SendCommand("aqs-0042", "go", nil)
package mqtt
