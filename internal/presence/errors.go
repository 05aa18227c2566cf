package presence

import "errors"

// Domain-specific errors for presence operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrPollInProgress is returned when a presence query is requested
	// while another collection cycle is already running. Only one cycle
	// may own the response correlation map at a time.
	ErrPollInProgress = errors.New("presence: poll cycle already in progress")

	// ErrTransportOffline is returned when a cycle cannot run because the
	// broker connection is down.
	ErrTransportOffline = errors.New("presence: transport disconnected")
)
