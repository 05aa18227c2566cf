package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "devices/aqs-0042/commands")
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Retained Messages:
//   - When true, broker stores the last message for each topic
//   - New subscribers immediately receive the retained message
//   - Never use for commands or queries - those are one-shot actions
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	// Check connection state
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Publish with timeout
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishJSON marshals v and publishes it to the given topic.
func (c *Client) PublishJSON(topic string, v any, qos byte, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	return c.Publish(topic, payload, qos, retained)
}

// SendCommand publishes a one-shot command to a device's command topic.
//
// Commands are never retained: they are actions, not configuration, and a
// device reconnecting later must not replay a stale command. The extra
// data fields are merged into the payload alongside the command name and
// timestamp.
//
// The boolean result reports whether the publish was attempted and handed
// to the broker - not whether the device received it. Delivery is not
// acknowledged at this layer.
//
// Parameters:
//   - deviceID: Target device
//   - command: Command name (e.g., "go", "wait", "deregister", "restart", "send_now")
//   - data: Optional extra payload fields (may be nil)
//
// Returns:
//   - bool: true if the publish was attempted, false if the client is
//     disconnected or the payload could not be built
func (c *Client) SendCommand(deviceID, command string, data map[string]any) bool {
	if deviceID == "" || command == "" {
		return false
	}
	if !c.IsConnected() {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("command dropped: broker disconnected",
				"device_id", deviceID,
				"command", command,
			)
		}
		return false
	}

	payload := map[string]any{
		"command":   command,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range data {
		if k == "command" || k == "timestamp" {
			continue
		}
		payload[k] = v
	}

	topic := Topics{}.DeviceCommands(deviceID)
	if err := c.PublishJSON(topic, payload, byte(c.cfg.QoS), false); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("command publish failed",
				"device_id", deviceID,
				"command", command,
				"error", err,
			)
		}
		// The publish was still attempted; the broker connection may have
		// dropped mid-flight. Callers treat this the same as success
		// because delivery is unacknowledged either way.
	}

	return true
}
