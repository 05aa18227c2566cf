package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aquasentinel/core/internal/alerting"
	"github.com/aquasentinel/core/internal/device"
	"github.com/aquasentinel/core/internal/infrastructure/config"
	"github.com/aquasentinel/core/internal/infrastructure/logging"
	"github.com/aquasentinel/core/internal/infrastructure/metrics"
	"github.com/aquasentinel/core/internal/ingest"
	"github.com/aquasentinel/core/internal/presence"
)

// Core is the monitoring surface the ops server reads from.
// Satisfied by *monitor.Service.
type Core interface {
	HealthStatus() presence.Health
	Connected() bool
	QueueDepth() int
	Devices(ctx context.Context) ([]device.Device, error)
	Device(ctx context.Context, deviceID string) (*device.Device, error)
	ActiveAlerts(ctx context.Context) ([]alerting.Alert, error)
	DeadLetters() []ingest.DeadLetter
	LastActivity(deviceID string) (time.Time, bool)
	Activity() map[string]time.Time
	RecentlyActive(cutoff time.Time) []string
}

// Deps holds the dependencies required by the ops server.
type Deps struct {
	Config  config.OpsConfig
	Logger  *logging.Logger
	Core    Core
	Metrics *metrics.Metrics
	Version string
}

// Server is the operational HTTP server: health probes, Prometheus
// exposition, and read-only fleet listings. It carries no write
// endpoints; administrative actions stay behind the full REST layer.
type Server struct {
	cfg     config.OpsConfig
	logger  *logging.Logger
	core    Core
	metrics *metrics.Metrics
	version string
	server  *http.Server
}

// New creates an ops server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Core == nil {
		return nil, fmt.Errorf("monitoring core is required")
	}

	s := &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		core:    deps.Core,
		metrics: deps.Metrics,
		version: deps.Version,
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", deps.Config.Host, deps.Config.Port),
		Handler:      s.buildRouter(),
		ReadTimeout:  deps.Config.GetReadTimeout(),
		WriteTimeout: deps.Config.GetWriteTimeout(),
		IdleTimeout:  deps.Config.GetIdleTimeout(),
	}
	return s, nil
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("ops server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server failed", "error", err)
		}
	}()
}

// Close shuts the server down, waiting for in-flight requests until ctx
// expires.
func (s *Server) Close(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
