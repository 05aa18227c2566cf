package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aquasentinel/core/internal/device"
	"github.com/aquasentinel/core/internal/infrastructure/config"
)

type fakeStore struct {
	mu      sync.Mutex
	ids     []string
	listErr error
	batches [][]string
}

func (f *fakeStore) ListRegisteredIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.ids...), nil
}

func (f *fakeStore) UpdateStatusBatch(ctx context.Context, ids []string, status device.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(ids) > 0 {
		f.batches = append(f.batches, append([]string(nil), ids...))
	}
	return nil
}

func (f *fakeStore) offlineBatches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

type fakeTransport struct {
	connected  bool
	publishErr error
	onPublish  func()
	published  int
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) PublishJSON(topic string, v any, qos byte, retained bool) error {
	f.published++
	if f.publishErr != nil {
		return f.publishErr
	}
	if f.onPublish != nil {
		f.onPublish()
	}
	return nil
}

func testPollerConfig() config.PresenceConfig {
	return config.PresenceConfig{
		Interval:     60,
		PerDeviceMs:  1,
		MinTimeoutMs: 5,
		MaxTimeoutMs: 20,
		MaxFailures:  3,
		BackoffBase:  30,
		BackoffMax:   600,
	}
}

func newTestPoller(store *fakeStore, transport *fakeTransport) *Poller {
	return NewPoller(testPollerConfig(), "server-1", 1, store, transport, nil, nil)
}

func TestCycle_MarksNonRespondersOffline(t *testing.T) {
	store := &fakeStore{ids: []string{"a", "b", "c"}}
	transport := &fakeTransport{connected: true}
	p := newTestPoller(store, transport)

	// Devices a and b answer the broadcast; c stays silent.
	transport.onPublish = func() {
		p.HandleResponse("a")
		p.HandleResponse("b")
	}

	p.Cycle(context.Background())

	batches := store.offlineBatches()
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0] != "c" {
		t.Errorf("offline batches = %v, want [[c]]", batches)
	}
	if open, failures, _ := p.breaker.snapshot(); open || failures != 0 {
		t.Errorf("breaker after success: open=%v failures=%d", open, failures)
	}
}

func TestCycle_DisconnectedCountsAsFailure(t *testing.T) {
	store := &fakeStore{ids: []string{"a"}}
	transport := &fakeTransport{connected: false}
	p := newTestPoller(store, transport)

	p.Cycle(context.Background())

	if _, failures, _ := p.breaker.snapshot(); failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
	if transport.published != 0 {
		t.Error("broadcast attempted while disconnected")
	}
}

func TestCycle_BreakerSkipsAndRecovers(t *testing.T) {
	store := &fakeStore{ids: []string{"a"}}
	transport := &fakeTransport{connected: false}
	p := newTestPoller(store, transport)

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := base
	p.breaker.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		p.Cycle(context.Background())
	}
	if _, failures, _ := p.breaker.snapshot(); failures != 3 {
		t.Fatalf("failures = %d, want 3", failures)
	}

	// Inside the backoff window the cycle is skipped entirely: no list
	// call, no failure increment.
	p.Cycle(context.Background())
	if _, failures, _ := p.breaker.snapshot(); failures != 3 {
		t.Errorf("skipped cycle changed failure count to %d", failures)
	}

	// Past the window the poller tries again; with the transport back and
	// the device answering, one success fully resets the breaker.
	now = base.Add(31 * time.Second)
	transport.connected = true
	transport.onPublish = func() { p.HandleResponse("a") }

	p.Cycle(context.Background())

	open, failures, lastSuccess := p.breaker.snapshot()
	if open || failures != 0 {
		t.Errorf("breaker after recovery: open=%v failures=%d", open, failures)
	}
	if lastSuccess.IsZero() {
		t.Error("lastSuccess not recorded")
	}
}

func TestCycle_EmptyFleetIsSuccess(t *testing.T) {
	store := &fakeStore{}
	transport := &fakeTransport{connected: true}
	p := newTestPoller(store, transport)

	p.Cycle(context.Background())

	if transport.published != 0 {
		t.Error("broadcast sent with no registered devices")
	}
	if _, failures, _ := p.breaker.snapshot(); failures != 0 {
		t.Errorf("failures = %d, want 0", failures)
	}
}

func TestQueryPresence(t *testing.T) {
	store := &fakeStore{ids: []string{"a", "b", "c"}}
	transport := &fakeTransport{connected: true}
	p := newTestPoller(store, transport)

	transport.onPublish = func() {
		p.HandleResponse("b")
		p.HandleResponse("a")
	}

	online, err := p.QueryPresence(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("QueryPresence: %v", err)
	}
	if len(online) != 2 || online[0] != "a" || online[1] != "b" {
		t.Errorf("online = %v, want [a b]", online)
	}

	// No status writes on the on-demand path.
	if batches := store.offlineBatches(); len(batches) != 0 {
		t.Errorf("on-demand query wrote status batches: %v", batches)
	}
}

func TestQueryPresence_Disconnected(t *testing.T) {
	p := newTestPoller(&fakeStore{}, &fakeTransport{connected: false})

	_, err := p.QueryPresence(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, ErrTransportOffline) {
		t.Errorf("QueryPresence = %v, want ErrTransportOffline", err)
	}
}

func TestCollector_LateResponseIgnored(t *testing.T) {
	c := newCollector()

	if err := c.begin("cycle-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !c.deliver("a") {
		t.Error("in-window response rejected")
	}

	gathered := c.finish("cycle-1")
	if _, ok := gathered["a"]; !ok {
		t.Error("gathered responses missing a")
	}

	// The cycle is over; a straggler must be dropped.
	if c.deliver("b") {
		t.Error("late response accepted after finish")
	}
	if got := c.finish("cycle-1"); got != nil {
		t.Errorf("stale finish returned %v, want nil", got)
	}
}

func TestCollector_SingleOwner(t *testing.T) {
	c := newCollector()

	if err := c.begin("cycle-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := c.begin("cycle-2"); !errors.Is(err, ErrPollInProgress) {
		t.Errorf("second begin = %v, want ErrPollInProgress", err)
	}
}

func TestAdaptiveTimeout(t *testing.T) {
	p := NewPoller(config.PresenceConfig{
		PerDeviceMs:  200,
		MinTimeoutMs: 2000,
		MaxTimeoutMs: 15000,
	}, "server-1", 1, nil, nil, nil, nil)

	tests := []struct {
		devices int
		want    time.Duration
	}{
		{1, 2 * time.Second},    // clamped up to min
		{10, 2 * time.Second},   // exactly min
		{30, 6 * time.Second},   // proportional
		{200, 15 * time.Second}, // clamped down to max
	}
	for _, tt := range tests {
		if got := p.adaptiveTimeout(tt.devices); got != tt.want {
			t.Errorf("adaptiveTimeout(%d) = %v, want %v", tt.devices, got, tt.want)
		}
	}
}
