package command

import "errors"

// ErrTransportOffline is returned when a drain stops because the broker
// connection dropped. Undelivered commands stay queued.
var ErrTransportOffline = errors.New("command: transport disconnected")
