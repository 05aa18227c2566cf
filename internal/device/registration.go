package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquasentinel/core/internal/infrastructure/logging"
)

// defaultReplyTTL is how long a "go" reply to a registered device's
// heartbeat suppresses further replies.
const defaultReplyTTL = 5 * time.Minute

// CommandSender publishes a command to a device's command topic.
// Satisfied by the broker transport client. The boolean reports whether
// the publish was attempted, not whether the device received it.
type CommandSender interface {
	SendCommand(deviceID, command string, data map[string]any) bool
}

// Registrar drives the device registration lifecycle: auto-provisioning
// unknown devices, replying to registration heartbeats, and applying the
// administrative approve and deregister actions.
//
// The lifecycle is unregistered → pending → registered, with registered →
// pending possible via Deregister. Reachability (online/offline) is owned
// by the presence poller and is orthogonal to this workflow.
type Registrar struct {
	repo    Repository
	sender  CommandSender
	replies *dedupCache
	logger  *logging.Logger
}

// NewRegistrar creates a Registrar.
//
// Parameters:
//   - repo: device persistence
//   - sender: transport used to reply with wait/go/deregister commands
//   - logger: structured logger; nil falls back to the default
func NewRegistrar(repo Repository, sender CommandSender, logger *logging.Logger) *Registrar {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registrar{
		repo:    repo,
		sender:  sender,
		replies: newDedupCache(defaultReplyTTL),
		logger:  logger,
	}
}

// HandleRegistration processes an inbound registration message.
//
// Unknown devices are created in the pending state and told to wait.
// Pending devices get their metadata refreshed and another wait. Approved
// devices get their last-seen refreshed and a "go" reply, suppressed for
// repeats within a short window because firmware heartbeats this message.
func (r *Registrar) HandleRegistration(ctx context.Context, deviceID string, info RegistrationInfo) error {
	if deviceID == "" {
		return fmt.Errorf("handling registration: empty device id")
	}

	dev, err := r.repo.GetByID(ctx, deviceID)
	if errors.Is(err, ErrDeviceNotFound) {
		return r.provision(ctx, deviceID, info)
	}
	if err != nil {
		return fmt.Errorf("handling registration for %s: %w", deviceID, err)
	}

	if err := r.repo.UpdateMetadata(ctx, deviceID, info); err != nil {
		return fmt.Errorf("refreshing metadata for %s: %w", deviceID, err)
	}
	if err := r.repo.TouchLastSeen(ctx, deviceID, time.Now()); err != nil {
		return fmt.Errorf("refreshing last seen for %s: %w", deviceID, err)
	}

	if !dev.IsRegistered {
		r.sender.SendCommand(deviceID, CommandWait, nil)
		r.logger.Info("registration heartbeat from pending device", "device_id", deviceID)
		return nil
	}

	if r.replies.shouldSend(deviceID) {
		r.sender.SendCommand(deviceID, CommandGo, nil)
		r.logger.Info("acknowledged registered device", "device_id", deviceID)
	}
	return nil
}

// provision creates an unknown device in the pending state and tells its
// firmware to hold off sending data.
func (r *Registrar) provision(ctx context.Context, deviceID string, info RegistrationInfo) error {
	dev := &Device{
		ID:                 deviceID,
		Status:             StatusOffline,
		RegistrationStatus: RegistrationPending,
	}
	if info.FirmwareVersion != "" {
		dev.FirmwareVersion = &info.FirmwareVersion
	}
	if info.MACAddress != "" {
		dev.MACAddress = &info.MACAddress
	}
	if info.IPAddress != "" {
		dev.IPAddress = &info.IPAddress
	}
	dev.Sensors = info.Sensors

	now := time.Now().UTC()
	dev.LastSeen = &now

	if err := r.repo.Create(ctx, dev); err != nil {
		// Another handler may have provisioned it between lookup and insert.
		if errors.Is(err, ErrDeviceExists) {
			return r.HandleRegistration(ctx, deviceID, info)
		}
		return fmt.Errorf("provisioning device %s: %w", deviceID, err)
	}

	r.sender.SendCommand(deviceID, CommandWait, nil)
	r.logger.Info("provisioned new device pending approval",
		"device_id", deviceID,
		"firmware_version", info.FirmwareVersion,
	)
	return nil
}

// Approve marks a device as registered and tells its firmware to start
// sending data.
//
// Returns ErrDeviceNotFound if the device has never announced itself.
func (r *Registrar) Approve(ctx context.Context, deviceID string) error {
	if err := r.repo.SetRegistration(ctx, deviceID, true); err != nil {
		return fmt.Errorf("approving device %s: %w", deviceID, err)
	}

	// A fresh approval always gets an immediate go, bypassing the
	// heartbeat suppression window.
	r.replies.forget(deviceID)
	r.replies.shouldSend(deviceID)
	r.sender.SendCommand(deviceID, CommandGo, nil)

	r.logger.Info("approved device", "device_id", deviceID)
	return nil
}

// Deregister revokes a device's approval. The device is told to discard
// its stored approval first, while it may still be listening.
//
// With purge=false the device record reverts to pending and its readings
// and alerts are kept. With purge=true the device row is deleted and its
// alerts cascade away.
func (r *Registrar) Deregister(ctx context.Context, deviceID string, purge bool) error {
	if _, err := r.repo.GetByID(ctx, deviceID); err != nil {
		return fmt.Errorf("deregistering device %s: %w", deviceID, err)
	}

	r.sender.SendCommand(deviceID, CommandDeregister, nil)
	r.replies.forget(deviceID)

	if purge {
		if err := r.repo.Delete(ctx, deviceID); err != nil {
			return fmt.Errorf("purging device %s: %w", deviceID, err)
		}
		r.logger.Info("deregistered and purged device", "device_id", deviceID)
		return nil
	}

	if err := r.repo.SetRegistration(ctx, deviceID, false); err != nil {
		return fmt.Errorf("deregistering device %s: %w", deviceID, err)
	}
	r.logger.Info("deregistered device", "device_id", deviceID)
	return nil
}

// AuthorizeData gates the sensor ingestion path.
//
// Unknown devices are auto-provisioned in the pending state (and told to
// wait) so an administrator can see and approve them, but their data is
// still rejected. Returns the device on success.
//
// Returns:
//   - ErrDeviceNotRegistered if the device was unknown
//   - ErrDeviceNotApproved if the device is known but not approved
func (r *Registrar) AuthorizeData(ctx context.Context, deviceID string) (*Device, error) {
	dev, err := r.repo.GetByID(ctx, deviceID)
	if errors.Is(err, ErrDeviceNotFound) {
		if perr := r.provision(ctx, deviceID, RegistrationInfo{}); perr != nil {
			r.logger.Warn("auto-provisioning from sensor data failed",
				"device_id", deviceID, "error", perr)
		}
		return nil, ErrDeviceNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("authorizing data for %s: %w", deviceID, err)
	}

	if !dev.IsRegistered {
		return nil, ErrDeviceNotApproved
	}
	return dev, nil
}
