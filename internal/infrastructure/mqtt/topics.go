package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout for the device wire protocol.
//
// Inbound (device → server):
//
//	devices/{id}/data      sensor readings
//	devices/{id}/register  registration requests
//	devices/{id}/presence  presence announcements (informational)
//	presence/response      replies to presence queries
//
// Outbound (server → device):
//
//	devices/{id}/commands  one-shot commands, never retained
//	presence/query         broadcast "who is online"
const (
	// TopicPrefixDevices is the base for all per-device topics.
	TopicPrefixDevices = "devices"

	// TopicPresenceQuery is the broadcast topic for presence queries.
	TopicPresenceQuery = "presence/query"

	// TopicPresenceResponse is the shared topic devices answer presence queries on.
	TopicPresenceResponse = "presence/response"
)

// Topics provides builders for AquaSentinel MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceData returns the sensor reading topic for a device.
//
// Example: devices/aqs-0042/data
func (Topics) DeviceData(deviceID string) string {
	return fmt.Sprintf("%s/%s/data", TopicPrefixDevices, deviceID)
}

// DeviceRegister returns the registration topic for a device.
//
// Example: devices/aqs-0042/register
func (Topics) DeviceRegister(deviceID string) string {
	return fmt.Sprintf("%s/%s/register", TopicPrefixDevices, deviceID)
}

// DeviceCommands returns the command topic for a device.
// Messages on this topic are one-shot actions and must not be retained.
//
// Example: devices/aqs-0042/commands
func (Topics) DeviceCommands(deviceID string) string {
	return fmt.Sprintf("%s/%s/commands", TopicPrefixDevices, deviceID)
}

// DevicePresence returns the presence announcement topic for a device.
//
// Example: devices/aqs-0042/presence
func (Topics) DevicePresence(deviceID string) string {
	return fmt.Sprintf("%s/%s/presence", TopicPrefixDevices, deviceID)
}

// AllDeviceData returns a pattern matching all device sensor readings.
//
// Pattern: devices/+/data
func (Topics) AllDeviceData() string {
	return TopicPrefixDevices + "/+/data"
}

// AllDeviceRegistrations returns a pattern matching all registration requests.
//
// Pattern: devices/+/register
func (Topics) AllDeviceRegistrations() string {
	return TopicPrefixDevices + "/+/register"
}

// AllDevicePresence returns a pattern matching all presence announcements.
//
// Pattern: devices/+/presence
func (Topics) AllDevicePresence() string {
	return TopicPrefixDevices + "/+/presence"
}

// DeviceIDFromTopic extracts the device ID from a per-device topic.
//
// Returns the ID and true for topics of the form devices/{id}/{suffix},
// or "" and false for anything else (including the presence/* topics).
func DeviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefixDevices || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
