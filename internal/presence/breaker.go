package presence

import (
	"sync"
	"time"
)

// breaker guards the poll loop against repeated failures: after threshold
// consecutive failures, cycles are skipped until a backoff window elapses.
// The window doubles for each failure past the threshold, capped at max.
//
// Only the poller mutates the breaker; the mutex exists so health
// snapshots can be read from other goroutines.
type breaker struct {
	mu        sync.Mutex
	threshold int
	base      time.Duration
	max       time.Duration

	failures    int
	lastSuccess time.Time
	lastFailure time.Time
	now         func() time.Time
}

func newBreaker(threshold int, base, max time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		base:      base,
		max:       max,
		now:       time.Now,
	}
}

// open reports whether the failure threshold has been reached.
func (b *breaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.threshold
}

// shouldSkip reports whether the current cycle must be skipped: the
// breaker is open and the backoff window since the last failure has not
// yet elapsed.
func (b *breaker) shouldSkip() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return false
	}
	return b.now().Sub(b.lastFailure) < b.window()
}

// window computes the current backoff: base × 2^(failures−threshold),
// capped at max. Callers must hold mu.
func (b *breaker) window() time.Duration {
	w := b.base
	for i := b.threshold; i < b.failures; i++ {
		w *= 2
		if w >= b.max {
			return b.max
		}
	}
	if w > b.max {
		return b.max
	}
	return w
}

// recordSuccess resets the failure counter and stamps the last success.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.lastSuccess = b.now()
}

// recordFailure increments the failure counter.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
}

// snapshot returns the counters for health reporting.
func (b *breaker) snapshot() (open bool, failures int, lastSuccess time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.threshold, b.failures, b.lastSuccess
}
