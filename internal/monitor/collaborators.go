package monitor

import (
	"context"
	"time"

	"github.com/aquasentinel/core/internal/alerting"
	"github.com/aquasentinel/core/internal/device"
	"github.com/aquasentinel/core/internal/ingest"
	"github.com/aquasentinel/core/internal/presence"
)

// The functions in this file are the surface consumed by the HTTP layer
// and other in-process collaborators. They delegate to the owning
// component; no collaborator reaches into component internals.

// ProcessSensorData ingests a sensor payload exactly as if it had
// arrived on the device's data topic.
func (s *Service) ProcessSensorData(ctx context.Context, deviceID string, payload []byte) error {
	return s.queue.Enqueue(ctx, ingest.Job{
		DeviceID:   deviceID,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: time.Now(),
	})
}

// ApproveDevice approves a pending device and tells it to start sending.
func (s *Service) ApproveDevice(ctx context.Context, deviceID string) error {
	return s.registrar.Approve(ctx, deviceID)
}

// DeregisterDevice revokes a device's approval. With purge=true the
// device and its alert history are removed entirely. Queued commands
// are dropped either way; a deregistered device must not receive a
// stale backlog if it later reappears.
func (s *Service) DeregisterDevice(ctx context.Context, deviceID string, purge bool) error {
	if err := s.registrar.Deregister(ctx, deviceID, purge); err != nil {
		return err
	}
	return s.dispatcher.CancelPending(ctx, deviceID)
}

// SendCommand delivers a command to a device, queuing it if the device
// is unreachable.
func (s *Service) SendCommand(ctx context.Context, deviceID, cmd string, data map[string]any) error {
	return s.dispatcher.Send(ctx, deviceID, cmd, data)
}

// QueryPresence broadcasts an on-demand who-is-online query and returns
// the devices that answered within the timeout.
func (s *Service) QueryPresence(ctx context.Context, timeout time.Duration) ([]string, error) {
	return s.poller.QueryPresence(ctx, timeout)
}

// HealthStatus reports the presence poller's health snapshot.
func (s *Service) HealthStatus() presence.Health {
	return s.poller.Health()
}

// Devices lists all known devices.
func (s *Service) Devices(ctx context.Context) ([]device.Device, error) {
	return s.devices.List(ctx)
}

// Device retrieves one device.
func (s *Service) Device(ctx context.Context, deviceID string) (*device.Device, error) {
	return s.devices.GetByID(ctx, deviceID)
}

// ActiveAlerts lists unresolved alerts, most recent first.
func (s *Service) ActiveAlerts(ctx context.Context) ([]alerting.Alert, error) {
	return s.alerts.ListActive(ctx)
}

// DeadLetters returns ingestion jobs that exhausted their retries.
func (s *Service) DeadLetters() []ingest.DeadLetter {
	return s.processor.DeadLetters()
}

// QueueDepth reports the number of buffered ingestion jobs.
func (s *Service) QueueDepth() int {
	return s.queue.Depth()
}

// Connected reports whether the broker connection is up.
func (s *Service) Connected() bool {
	return s.broker.IsConnected()
}

// LastActivity reports when any message last arrived from a device,
// per the broker client's in-memory liveness table. Unlike a device's
// persisted LastSeen, this counts every message class, accepted or not.
func (s *Service) LastActivity(deviceID string) (time.Time, bool) {
	return s.broker.Liveness().LastSeen(deviceID)
}

// Activity returns a copy of the per-device last-message table.
func (s *Service) Activity() map[string]time.Time {
	return s.broker.Liveness().Snapshot()
}

// RecentlyActive lists devices with broker traffic at or after cutoff.
func (s *Service) RecentlyActive(cutoff time.Time) []string {
	return s.broker.Liveness().ActiveSince(cutoff)
}
