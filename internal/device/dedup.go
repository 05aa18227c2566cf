package device

import (
	"sync"
	"time"
)

// dedupCache suppresses repeated command publishes to the same device
// within a TTL. Registered devices heartbeat their registration message;
// replying "go" to every heartbeat is redundant traffic, so the cache
// records when a device last got its reply and suppresses repeats until
// the TTL elapses.
type dedupCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func newDedupCache(ttl time.Duration) *dedupCache {
	return &dedupCache{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// shouldSend reports whether a command to the given device should be
// published now, and records the send when it is. Expired entries for
// other devices are pruned opportunistically.
func (c *dedupCache) shouldSend(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, id)
		}
	}

	if at, ok := c.seen[deviceID]; ok && now.Sub(at) < c.ttl {
		return false
	}
	c.seen[deviceID] = now
	return true
}

// forget clears the suppression entry for a device so its next
// registration message gets an immediate reply. Called on explicit
// reconnection events.
func (c *dedupCache) forget(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, deviceID)
}
