package device

import "errors"

// Domain-specific errors for device operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrDeviceNotRegistered is returned when sensor data arrives for a
	// device that has never registered. No reading is created.
	ErrDeviceNotRegistered = errors.New("device: not registered")

	// ErrDeviceNotApproved is returned when sensor data arrives for a
	// device that registered but has not been approved. No reading is created.
	ErrDeviceNotApproved = errors.New("device: registration not approved")
)
