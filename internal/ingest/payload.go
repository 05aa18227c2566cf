package ingest

import (
	"encoding/json"
	"fmt"
	"time"
)

// sanityEpoch is the earliest device-reported timestamp accepted as
// plausible. Devices without a battery-backed clock boot at their
// firmware build epoch; anything earlier is garbage.
var sanityEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// maxClockSkew is how far into the future a device-reported timestamp
// may run before it is replaced with server time.
const maxClockSkew = 24 * time.Hour

// Reading is one decoded sensor message.
type Reading struct {
	DeviceID string

	// Params holds every numeric field of the payload except the
	// envelope fields (deviceId, timestamp).
	Params map[string]float64

	// Timestamp is the device-reported measurement time, or the server
	// receive time when the device value was missing or implausible.
	Timestamp time.Time

	// TimestampAdjusted is true when the device-reported timestamp was
	// discarded in favor of server time.
	TimestampAdjusted bool
}

// parseReading decodes a devices/{id}/data payload.
//
// The wire shape is {deviceId, <parameter>: number, ..., timestamp?}:
// parameters are open-ended, so every numeric field that is not part of
// the envelope becomes a parameter. The timestamp may be an RFC 3339
// string or a Unix epoch number (seconds or milliseconds).
func parseReading(deviceID string, payload []byte, receivedAt time.Time) (*Reading, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	reading := &Reading{
		DeviceID: deviceID,
		Params:   make(map[string]float64),
	}

	for name, raw := range fields {
		switch name {
		case "deviceId", "timestamp":
			continue
		}
		var value float64
		if err := json.Unmarshal(raw, &value); err != nil {
			// Non-numeric extras (units, labels) are ignored, not fatal.
			continue
		}
		reading.Params[name] = value
	}
	if len(reading.Params) == 0 {
		return nil, ErrNoParameters
	}

	ts, ok := parseTimestamp(fields["timestamp"])
	switch {
	case !ok:
		reading.Timestamp = receivedAt
		reading.TimestampAdjusted = len(fields["timestamp"]) > 0
	case ts.Before(sanityEpoch), ts.After(receivedAt.Add(maxClockSkew)):
		reading.Timestamp = receivedAt
		reading.TimestampAdjusted = true
	default:
		reading.Timestamp = ts
	}

	return reading, nil
}

// parseTimestamp accepts RFC 3339 strings and Unix epoch numbers.
func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
		return time.Time{}, false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		// Millisecond epochs are 13 digits for contemporary dates.
		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC(), true
		}
		return time.Unix(int64(n), 0).UTC(), true
	}
	return time.Time{}, false
}
