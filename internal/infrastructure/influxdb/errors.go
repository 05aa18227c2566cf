package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when InfluxDB is disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)
