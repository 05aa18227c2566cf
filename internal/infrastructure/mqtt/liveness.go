package mqtt

import (
	"sync"
	"time"
)

// Liveness is an in-memory last-seen table for coarse device activity
// tracking. Every inbound message on a devices/{id}/... topic updates the
// table, regardless of message type. This is independent of the presence
// poll protocol: a device can be "recently seen" here yet fail a poll,
// and vice versa.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Liveness struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

// NewLiveness creates an empty liveness table.
func NewLiveness() *Liveness {
	return &Liveness{
		lastSeen: make(map[string]time.Time),
	}
}

// Touch records activity for a device at the given time.
func (l *Liveness) Touch(deviceID string, at time.Time) {
	l.mu.Lock()
	l.lastSeen[deviceID] = at
	l.mu.Unlock()
}

// LastSeen returns the most recent activity time for a device.
// The second return value is false if the device has never been seen.
func (l *Liveness) LastSeen(deviceID string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	at, ok := l.lastSeen[deviceID]
	return at, ok
}

// ActiveSince returns the IDs of devices seen at or after the cutoff.
func (l *Liveness) ActiveSince(cutoff time.Time) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var active []string
	for id, at := range l.lastSeen {
		if !at.Before(cutoff) {
			active = append(active, id)
		}
	}
	return active
}

// Snapshot returns a copy of the full last-seen table.
func (l *Liveness) Snapshot() map[string]time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := make(map[string]time.Time, len(l.lastSeen))
	for id, at := range l.lastSeen {
		snap[id] = at
	}
	return snap
}
