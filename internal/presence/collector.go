package presence

import (
	"sync"
	"time"
)

// collector is the response correlation map for one poll cycle at a time.
//
// A cycle begins with begin(cycleID), which claims the collector; inbound
// presence responses are handed to deliver() from the transport's handler
// goroutine; finish(cycleID) releases the collector and returns what was
// gathered. A response arriving when no cycle is active, or after the
// owning cycle finished, is dropped.
type collector struct {
	mu        sync.Mutex
	cycleID   string
	responses map[string]time.Time
}

func newCollector() *collector {
	return &collector{}
}

// begin claims the collector for a cycle. Returns ErrPollInProgress if
// another cycle is still active.
func (c *collector) begin(cycleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cycleID != "" {
		return ErrPollInProgress
	}
	c.cycleID = cycleID
	c.responses = make(map[string]time.Time)
	return nil
}

// deliver records a device's response into the active cycle. Reports
// whether the response was accepted.
func (c *collector) deliver(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cycleID == "" || deviceID == "" {
		return false
	}
	c.responses[deviceID] = time.Now()
	return true
}

// finish releases the collector and returns the gathered responses.
// A stale finish (cycle ID no longer active) returns nil.
func (c *collector) finish(cycleID string) map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cycleID != cycleID {
		return nil
	}
	gathered := c.responses
	c.cycleID = ""
	c.responses = nil
	return gathered
}
