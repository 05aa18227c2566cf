package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aquasentinel/core/internal/device"
	"github.com/aquasentinel/core/internal/infrastructure/mqtt"
	"github.com/aquasentinel/core/internal/ingest"
)

// drainTimeout bounds command-drain work triggered by a presence report.
const drainTimeout = 30 * time.Second

// handleData forwards a devices/{id}/data message to the ingestion
// queue. Runs on the broker client's handler goroutine, so the only work
// done here is the hand-off; the payload is copied because the broker
// client may reuse its buffer.
func (s *Service) handleData(topic string, payload []byte) error {
	deviceID, ok := mqtt.DeviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected data topic %q", topic)
	}
	s.countMessage("data")

	return s.queue.Enqueue(context.Background(), ingest.Job{
		DeviceID:   deviceID,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: time.Now(),
	})
}

// handleRegistration feeds a devices/{id}/register message into the
// registration state machine.
func (s *Service) handleRegistration(topic string, payload []byte) error {
	deviceID, ok := mqtt.DeviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected registration topic %q", topic)
	}
	s.countMessage("register")

	var msg struct {
		DeviceID        string   `json:"deviceId"`
		FirmwareVersion string   `json:"firmwareVersion"`
		MACAddress      string   `json:"macAddress"`
		IPAddress       string   `json:"ipAddress"`
		Sensors         []string `json:"sensors"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding registration from %s: %w", deviceID, err)
	}
	if msg.DeviceID != "" && msg.DeviceID != deviceID {
		s.logger.Warn("registration payload device id disagrees with topic",
			"topic_device_id", deviceID,
			"payload_device_id", msg.DeviceID,
		)
	}

	return s.registrar.HandleRegistration(context.Background(), deviceID, device.RegistrationInfo{
		FirmwareVersion: msg.FirmwareVersion,
		MACAddress:      msg.MACAddress,
		IPAddress:       msg.IPAddress,
		Sensors:         msg.Sensors,
	})
}

// handlePresenceResponse feeds a presence/response message into the
// active poll cycle and triggers delivery of any queued commands.
func (s *Service) handlePresenceResponse(topic string, payload []byte) error {
	s.countMessage("presence_response")

	var msg struct {
		Response string `json:"response"`
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding presence response: %w", err)
	}
	if msg.DeviceID == "" {
		return fmt.Errorf("presence response missing device id")
	}

	s.poller.HandleResponse(msg.DeviceID)
	s.drainAsync(msg.DeviceID)
	return nil
}

// handlePresenceAnnouncement reacts to a devices/{id}/presence message.
// The announcement is informational: it never writes device status on
// its own, but it does mean the device is listening, so any queued
// commands are delivered.
func (s *Service) handlePresenceAnnouncement(topic string, payload []byte) error {
	deviceID, ok := mqtt.DeviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected presence topic %q", topic)
	}
	s.countMessage("presence_announce")

	s.drainAsync(deviceID)
	return nil
}

// drainAsync delivers a device's queued commands off the handler
// goroutine; draining paces commands with sleeps and must not stall
// message delivery.
//
// Drains are single-flight per device: overlapping presence reports for
// one device run one drain, so paced commands are never double-sent.
// A report arriving while a drain is active is dropped; anything it
// would have delivered stays queued for the device's next report. The
// gate also rejects drains once shutdown has begun.
func (s *Service) drainAsync(deviceID string) {
	s.drainMu.Lock()
	if !s.drainAllowed || s.draining[deviceID] {
		s.drainMu.Unlock()
		return
	}
	s.draining[deviceID] = true
	s.drainWG.Add(1)
	s.drainMu.Unlock()

	go func() {
		defer func() {
			s.drainMu.Lock()
			delete(s.draining, deviceID)
			s.drainMu.Unlock()
			s.drainWG.Done()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()

		if err := s.dispatcher.Drain(ctx, deviceID); err != nil {
			s.logger.Warn("command drain incomplete",
				"device_id", deviceID,
				"error", err,
			)
		}
	}()
}

func (s *Service) countMessage(class string) {
	if s.metrics != nil {
		s.metrics.MessagesReceived.WithLabelValues(class).Inc()
	}
}
