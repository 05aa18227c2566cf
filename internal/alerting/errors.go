package alerting

import "errors"

// Domain-specific errors for alert operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlertNotFound is returned when an alert ID does not exist.
	ErrAlertNotFound = errors.New("alerting: alert not found")
)
