package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aquasentinel/core/internal/device"
	"github.com/aquasentinel/core/internal/infrastructure/config"
	"github.com/aquasentinel/core/internal/infrastructure/logging"
	"github.com/aquasentinel/core/internal/infrastructure/metrics"
	"github.com/aquasentinel/core/internal/infrastructure/mqtt"
)

// DeviceStore is the slice of device persistence the poller needs.
type DeviceStore interface {
	ListRegisteredIDs(ctx context.Context) ([]string, error)
	UpdateStatusBatch(ctx context.Context, ids []string, status device.Status) error
}

// Transport is the slice of the broker client the poller needs.
type Transport interface {
	IsConnected() bool
	PublishJSON(topic string, v any, qos byte, retained bool) error
}

// Health is the poller's externally visible health snapshot.
type Health struct {
	CircuitBreakerOpen  bool      `json:"circuit_breaker_open"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccessfulPoll  time.Time `json:"last_successful_poll"`
	Connected           bool      `json:"connected"`
}

// Poller periodically determines actual reachability of registered
// devices. Devices may go silent without a clean disconnect, so passive
// traffic alone cannot detect departures; the poller broadcasts a
// who-is-online query and treats non-responders as offline.
//
// The poller exclusively owns its circuit breaker and response collector.
// Other components feed it only through HandleResponse and read only
// through Health.
type Poller struct {
	cfg       config.PresenceConfig
	serverID  string
	qos       byte
	store     DeviceStore
	transport Transport
	logger    *logging.Logger
	metrics   *metrics.Metrics

	breaker   *breaker
	collector *collector
}

// NewPoller creates a Poller.
//
// Parameters:
//   - cfg: poll interval, adaptive timeout bounds, breaker settings
//   - serverID: identifies this server in the broadcast query payload
//   - qos: QoS level for the broadcast publish
//   - store: device persistence (registered IDs, status writes)
//   - transport: broker client
//   - m: may be nil when metrics are disabled
func NewPoller(cfg config.PresenceConfig, serverID string, qos byte, store DeviceStore, transport Transport, logger *logging.Logger, m *metrics.Metrics) *Poller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{
		cfg:       cfg,
		serverID:  serverID,
		qos:       qos,
		store:     store,
		transport: transport,
		logger:    logger,
		metrics:   m,
		breaker: newBreaker(
			cfg.MaxFailures,
			time.Duration(cfg.BackoffBase)*time.Second,
			time.Duration(cfg.BackoffMax)*time.Second,
		),
		collector: newCollector(),
	}
}

// Run executes poll cycles on the configured interval until ctx is
// cancelled. The first cycle runs after one full interval, giving
// devices time to reconnect after a server restart.
func (p *Poller) Run(ctx context.Context) {
	interval := time.Duration(p.cfg.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("presence poller started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("presence poller stopped")
			return
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Cycle runs one poll cycle: broadcast the query, collect responses for
// the adaptive timeout, and persist online→offline transitions in a
// single batch write. Failures feed the circuit breaker; they never
// propagate.
func (p *Poller) Cycle(ctx context.Context) {
	if p.breaker.shouldSkip() {
		p.countCycle("skipped")
		p.logger.Warn("skipping poll cycle, circuit breaker open")
		return
	}

	if err := p.poll(ctx); err != nil {
		p.breaker.recordFailure()
		p.countCycle("failure")
		_, failures, _ := p.breaker.snapshot()
		p.logger.Error("poll cycle failed",
			"error", err,
			"consecutive_failures", failures,
		)
	} else {
		p.breaker.recordSuccess()
		p.countCycle("success")
	}

	if p.metrics != nil {
		if open, _, _ := p.breaker.snapshot(); open {
			p.metrics.BreakerOpen.Set(1)
		} else {
			p.metrics.BreakerOpen.Set(0)
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	if !p.transport.IsConnected() {
		return ErrTransportOffline
	}

	ids, err := p.store.ListRegisteredIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing registered devices: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	responded, err := p.collect(ctx, p.adaptiveTimeout(len(ids)))
	if err != nil {
		return err
	}

	var offline []string
	online := 0
	for _, id := range ids {
		if _, ok := responded[id]; ok {
			online++
		} else {
			offline = append(offline, id)
		}
	}

	// Only the online→offline direction is written here. A device coming
	// back online already gets its status refreshed by its own traffic,
	// so writing it again per cycle would just amplify writes.
	if err := p.store.UpdateStatusBatch(ctx, offline, device.StatusOffline); err != nil {
		return fmt.Errorf("marking devices offline: %w", err)
	}

	if p.metrics != nil {
		p.metrics.DevicesOnline.Set(float64(online))
	}
	p.logger.Info("poll cycle complete",
		"registered", len(ids),
		"online", online,
		"offline", len(offline),
	)
	return nil
}

// collect claims the response collector, broadcasts the who-is-online
// query, and waits out the timeout. Responses delivered after finish are
// dropped by the collector.
func (p *Poller) collect(ctx context.Context, timeout time.Duration) (map[string]time.Time, error) {
	cycleID := uuid.NewString()
	if err := p.collector.begin(cycleID); err != nil {
		return nil, err
	}

	query := map[string]any{
		"query":     "who_is_online",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"serverId":  p.serverID,
	}
	if err := p.transport.PublishJSON(mqtt.TopicPresenceQuery, query, p.qos, false); err != nil {
		p.collector.finish(cycleID)
		return nil, fmt.Errorf("broadcasting presence query: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		p.collector.finish(cycleID)
		return nil, ctx.Err()
	case <-timer.C:
	}

	return p.collector.finish(cycleID), nil
}

// HandleResponse feeds an inbound presence/response message into the
// active cycle, if any. Safe to call from the transport's handler
// goroutine; responses outside a collection window are dropped.
func (p *Poller) HandleResponse(deviceID string) {
	p.collector.deliver(deviceID)
}

// QueryPresence runs an on-demand presence query outside the regular
// poll schedule and returns the IDs of devices that responded within
// the timeout, sorted. No status writes are performed.
//
// Returns ErrPollInProgress if a scheduled cycle is collecting.
func (p *Poller) QueryPresence(ctx context.Context, timeout time.Duration) ([]string, error) {
	if !p.transport.IsConnected() {
		return nil, ErrTransportOffline
	}

	responded, err := p.collect(ctx, timeout)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(responded))
	for id := range responded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Health returns the poller's health snapshot for the ops surface.
func (p *Poller) Health() Health {
	open, failures, lastSuccess := p.breaker.snapshot()
	return Health{
		CircuitBreakerOpen:  open,
		ConsecutiveFailures: failures,
		LastSuccessfulPoll:  lastSuccess,
		Connected:           p.transport.IsConnected(),
	}
}

// adaptiveTimeout scales the response-collection window with fleet size:
// clamp(n × perDeviceMs, min, max).
func (p *Poller) adaptiveTimeout(deviceCount int) time.Duration {
	ms := deviceCount * p.cfg.PerDeviceMs
	if ms < p.cfg.MinTimeoutMs {
		ms = p.cfg.MinTimeoutMs
	}
	if ms > p.cfg.MaxTimeoutMs {
		ms = p.cfg.MaxTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (p *Poller) countCycle(outcome string) {
	if p.metrics != nil {
		p.metrics.PollCycles.WithLabelValues(outcome).Inc()
	}
}
