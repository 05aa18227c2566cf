package command

import (
	"context"
	"fmt"
	"time"

	"github.com/aquasentinel/core/internal/device"
	"github.com/aquasentinel/core/internal/infrastructure/config"
	"github.com/aquasentinel/core/internal/infrastructure/logging"
	"github.com/aquasentinel/core/internal/infrastructure/metrics"
)

// DeviceLookup resolves a device's current reachability status.
type DeviceLookup interface {
	GetByID(ctx context.Context, id string) (*device.Device, error)
}

// Transport publishes commands to the broker.
type Transport interface {
	IsConnected() bool
	SendCommand(deviceID, cmd string, data map[string]any) bool
}

// Dispatcher delivers commands to devices, deferring delivery for
// devices that are currently unreachable.
//
// Immediate delivery is attempted when the device is online and the
// broker connection is up; otherwise the command is stored with a
// bounded retention. When the device next reports presence, Drain
// delivers the backlog in enqueue order and clears it.
type Dispatcher struct {
	store      Store
	devices    DeviceLookup
	transport  Transport
	drainDelay time.Duration
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewDispatcher creates a Dispatcher.
//
// Parameters:
//   - cfg: drain pacing
//   - m: may be nil when metrics are disabled
func NewDispatcher(cfg config.CommandConfig, store Store, devices DeviceLookup, transport Transport, logger *logging.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:      store,
		devices:    devices,
		transport:  transport,
		drainDelay: time.Duration(cfg.DrainDelayMs) * time.Millisecond,
		logger:     logger,
		metrics:    m,
	}
}

// Send delivers a command to a device, or queues it when the device is
// unreachable. Delivery is fire-and-forget at this layer: a true publish
// attempt counts as delivered even though receipt is not acknowledged.
func (d *Dispatcher) Send(ctx context.Context, deviceID, cmd string, data map[string]any) error {
	if deviceID == "" || cmd == "" {
		return fmt.Errorf("sending command: device id and command required")
	}

	dev, err := d.devices.GetByID(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("sending %s to %s: %w", cmd, deviceID, err)
	}

	if dev.Status == device.StatusOnline && d.transport.IsConnected() {
		if d.transport.SendCommand(deviceID, cmd, data) {
			if d.metrics != nil {
				d.metrics.CommandsDelivered.Inc()
			}
			d.logger.Info("command delivered", "device_id", deviceID, "command", cmd)
			return nil
		}
	}

	if err := d.store.Enqueue(ctx, deviceID, cmd, data); err != nil {
		return fmt.Errorf("queuing %s for %s: %w", cmd, deviceID, err)
	}
	if d.metrics != nil {
		d.metrics.CommandsQueued.Inc()
	}
	d.logger.Info("device unreachable, command queued",
		"device_id", deviceID,
		"command", cmd,
	)
	return nil
}

// Drain delivers a device's queued commands in enqueue order, pacing
// them with a small delay so firmware is not flooded. Called when the
// device reports presence.
//
// Each command is removed by row id immediately after its publish:
// a command enqueued by a concurrent Send while the drain is running
// stays queued for the next presence report, and commands already
// delivered are never redelivered if the drain aborts partway.
//
// If the broker connection drops mid-drain, the remaining commands stay
// queued for the next presence report.
func (d *Dispatcher) Drain(ctx context.Context, deviceID string) error {
	pending, err := d.store.Pending(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("draining commands for %s: %w", deviceID, err)
	}
	if len(pending) == 0 {
		return nil
	}

	d.logger.Info("draining queued commands",
		"device_id", deviceID,
		"count", len(pending),
	)

	for i, pc := range pending {
		if !d.transport.IsConnected() {
			return fmt.Errorf("draining commands for %s: %w (%d delivered, %d kept)",
				deviceID, ErrTransportOffline, i, len(pending)-i)
		}
		if i > 0 && d.drainDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.drainDelay):
			}
		}

		d.transport.SendCommand(deviceID, pc.Command, pc.Payload)
		if d.metrics != nil {
			d.metrics.CommandsDelivered.Inc()
		}
		if err := d.store.Remove(ctx, pc.ID); err != nil {
			return fmt.Errorf("retiring delivered command %d for %s: %w",
				pc.ID, deviceID, err)
		}
	}
	return nil
}

// CancelPending drops a device's queued commands without delivering
// them. Called when the device is deregistered.
func (d *Dispatcher) CancelPending(ctx context.Context, deviceID string) error {
	if err := d.store.Clear(ctx, deviceID); err != nil {
		return fmt.Errorf("cancelling pending commands for %s: %w", deviceID, err)
	}
	return nil
}

// PurgeExpired removes commands past the retention window across all
// devices. Run periodically by the owning service.
func (d *Dispatcher) PurgeExpired(ctx context.Context) error {
	purged, err := d.store.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if purged > 0 {
		d.logger.Info("purged expired pending commands", "count", purged)
	}
	return nil
}
