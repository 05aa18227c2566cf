// Package device implements the device registry and registration lifecycle
// for AquaSentinel Core.
//
// This package manages:
//   - Device persistence (SQLite-backed repository)
//   - The registration state machine: unregistered → pending → registered
//   - Auto-provisioning of unknown devices into the pending state
//   - The ingestion authorization gate (unapproved devices never get
//     readings attributed to them)
//   - Reply suppression for registration heartbeats
//
// Lifecycle:
//
// A device first appears when it publishes a registration message (or,
// degenerately, a sensor reading). It is created in the pending state and
// told to wait. An administrator approves it, which flips is_registered
// and publishes "go" so firmware starts transmitting. Deregistration
// reverses the approval and optionally purges the device and its history.
//
// Reachability (online/offline) is a separate axis owned by the presence
// package; this package only stores the status values it is handed.
//
// Usage:
//
//	repo := device.NewSQLiteRepository(db.DB)
//	reg := device.NewRegistrar(repo, mqttClient, logger)
//
//	// Inbound devices/{id}/register message:
//	err := reg.HandleRegistration(ctx, deviceID, info)
//
//	// Ingestion gate:
//	dev, err := reg.AuthorizeData(ctx, deviceID)
//	if errors.Is(err, device.ErrDeviceNotApproved) { ... }
package device
