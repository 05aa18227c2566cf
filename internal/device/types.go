package device

import "time"

// Status is a device's reachability state, owned by the presence poller.
type Status string

const (
	// StatusOnline means the device answered the most recent presence query
	// (or has been passively heard from since).
	StatusOnline Status = "online"

	// StatusOffline means the device failed the most recent presence query.
	StatusOffline Status = "offline"
)

// RegistrationStatus is a device's position in the approval workflow.
// It is orthogonal to Status: a registered device can be offline and a
// pending device can be online.
type RegistrationStatus string

const (
	// RegistrationPending means the device has announced itself but has not
	// been approved. Its sensor data is rejected.
	RegistrationPending RegistrationStatus = "pending"

	// RegistrationRegistered means an administrator approved the device.
	RegistrationRegistered RegistrationStatus = "registered"
)

// Device represents a remote water-quality sensing unit.
// This matches the devices table in migrations.
type Device struct {
	// ID is the externally assigned unique device identifier.
	ID string `json:"id"`

	// Status reflects reachability per the presence poller.
	Status Status `json:"status"`

	// RegistrationStatus tracks the approval workflow.
	RegistrationStatus RegistrationStatus `json:"registration_status"`

	// IsRegistered gates the ingestion path. Kept distinct from Status:
	// an unapproved device may be online yet must never have readings
	// attributed to it.
	IsRegistered bool `json:"is_registered"`

	// LastSeen is the most recent persisted activity timestamp.
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Network and firmware metadata, reported at registration.
	FirmwareVersion *string  `json:"firmware_version,omitempty"`
	MACAddress      *string  `json:"mac_address,omitempty"`
	IPAddress       *string  `json:"ip_address,omitempty"`
	Sensors         []string `json:"sensors,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RegistrationInfo carries the metadata a device reports when registering.
// All fields are optional; an empty value leaves the stored field untouched.
type RegistrationInfo struct {
	FirmwareVersion string   `json:"firmwareVersion,omitempty"`
	MACAddress      string   `json:"macAddress,omitempty"`
	IPAddress       string   `json:"ipAddress,omitempty"`
	Sensors         []string `json:"sensors,omitempty"`
}

// Commands the server sends on devices/{id}/commands.
const (
	// CommandGo tells firmware to start (or resume) sending sensor data.
	CommandGo = "go"

	// CommandWait tells firmware to hold off sending data until approved.
	CommandWait = "wait"

	// CommandDeregister tells firmware its stored approval is revoked.
	CommandDeregister = "deregister"

	// CommandRestart asks the device to reboot.
	CommandRestart = "restart"

	// CommandSendNow asks the device for an immediate reading.
	CommandSendNow = "send_now"
)
