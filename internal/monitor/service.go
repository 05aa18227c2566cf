package monitor

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/aquasentinel/core/internal/alerting"
	"github.com/aquasentinel/core/internal/command"
	"github.com/aquasentinel/core/internal/device"
	"github.com/aquasentinel/core/internal/infrastructure/config"
	"github.com/aquasentinel/core/internal/infrastructure/logging"
	"github.com/aquasentinel/core/internal/infrastructure/metrics"
	"github.com/aquasentinel/core/internal/infrastructure/mqtt"
	"github.com/aquasentinel/core/internal/ingest"
	"github.com/aquasentinel/core/internal/presence"
)

// commandSweepInterval is how often expired pending commands are purged.
const commandSweepInterval = time.Hour

// Broker is the slice of the transport client the service consumes.
// Satisfied by *mqtt.Client.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
	PublishJSON(topic string, v any, qos byte, retained bool) error
	SendCommand(deviceID, cmd string, data map[string]any) bool
	Liveness() *mqtt.Liveness
}

// Service is the device-monitoring core: it owns the registration state
// machine, the presence poller, the ingestion queue, the alert evaluator
// and the command dispatcher, and wires them to the broker transport.
//
// All mutable runtime state (liveness, breaker counters, response
// correlation, reply suppression) lives inside the components the
// service constructs; nothing is ambient.
type Service struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	broker  Broker
	topics  mqtt.Topics

	devices    *device.SQLiteRepository
	registrar  *device.Registrar
	alerts     *alerting.SQLiteRepository
	evaluator  *alerting.Evaluator
	processor  *ingest.Processor
	queue      ingest.Queue
	poller     *presence.Poller
	dispatcher *command.Dispatcher

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup

	// Drain goroutines have their own lifecycle: they are started from
	// broker handler goroutines, which keep running while Stop waits on
	// wg, so they must not share that WaitGroup. drainMu guards the
	// admission gate and the per-device single-flight set.
	drainMu      sync.Mutex
	drainAllowed bool
	draining     map[string]bool
	drainWG      sync.WaitGroup
}

// New wires the monitoring core.
//
// Parameters:
//   - db: open SQLite handle with migrations applied
//   - broker: connected transport client
//   - writer: time-series sink for readings, may be nil when disabled
//   - m: may be nil when metrics are disabled
func New(cfg *config.Config, db *sql.DB, broker Broker, writer ingest.ReadingWriter, logger *logging.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logging.Default()
	}

	devices := device.NewSQLiteRepository(db)
	registrar := device.NewRegistrar(devices, broker, logger.With("component", "registration"))

	alerts := alerting.NewSQLiteRepository(db)
	evaluator := alerting.NewEvaluator(alerts, cfg.Alerting,
		logger.With("component", "alerting"), m)

	processor := ingest.NewProcessor(cfg.Ingest, registrar, devices, writer,
		evaluator, logger.With("component", "ingest"), m)
	queue := ingest.NewQueue(cfg.Ingest, processor, logger.With("component", "ingest"), m)

	poller := presence.NewPoller(cfg.Presence, cfg.Server.ID, byte(cfg.MQTT.QoS),
		devices, broker, logger.With("component", "presence"), m)

	cmdStore := command.NewSQLiteStore(db, cfg.CommandRetention())
	dispatcher := command.NewDispatcher(cfg.Commands, cmdStore, devices, broker,
		logger.With("component", "command"), m)

	return &Service{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		broker:     broker,
		devices:    devices,
		registrar:  registrar,
		alerts:     alerts,
		evaluator:  evaluator,
		processor:  processor,
		queue:      queue,
		poller:     poller,
		dispatcher: dispatcher,
		draining:   make(map[string]bool),
	}
}

// Start subscribes to the device topics and launches the background
// workers (consumer pool, presence poller, command retention sweep).
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	qos := byte(s.cfg.MQTT.QoS)
	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{s.topics.AllDeviceData(), s.handleData},
		{s.topics.AllDeviceRegistrations(), s.handleRegistration},
		{s.topics.AllDevicePresence(), s.handlePresenceAnnouncement},
		{mqtt.TopicPresenceResponse, s.handlePresenceResponse},
	}
	for _, sub := range subscriptions {
		if err := s.broker.Subscribe(sub.topic, qos, sub.handler); err != nil {
			cancel()
			return err
		}
	}

	if wq, ok := s.queue.(*ingest.WorkerQueue); ok {
		wq.Start(runCtx)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.poller.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.runCommandSweep(runCtx)
	}()

	s.drainMu.Lock()
	s.drainAllowed = true
	s.drainMu.Unlock()

	s.started = true
	s.logger.Info("monitoring core started", "server_id", s.cfg.Server.ID)
	return nil
}

// Stop shuts the service down: background loops are cancelled, then the
// queue drains buffered jobs until ctx expires. Nothing is published
// during shutdown, so subscribers cannot mistake a dying server for a
// live status change. The broker and database handles belong to the
// caller and stay open until after Stop returns.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}

	// Close the drain gate before waiting: broker handlers stay live
	// until the caller disconnects the client, and a late presence
	// message must not add to drainWG while it is being waited on.
	s.drainMu.Lock()
	s.drainAllowed = false
	s.drainMu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.drainWG.Wait()

	if wq, ok := s.queue.(*ingest.WorkerQueue); ok {
		wq.Stop(ctx)
	}

	s.started = false
	s.logger.Info("monitoring core stopped")
}

// runCommandSweep periodically purges pending commands past retention.
func (s *Service) runCommandSweep(ctx context.Context) {
	ticker := time.NewTicker(commandSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.dispatcher.PurgeExpired(ctx); err != nil {
				s.logger.Error("command retention sweep failed", "error", err)
			}
		}
	}
}
