package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aquasentinel/core/internal/device"
	"github.com/aquasentinel/core/internal/ingest"
)

// recentActivityWindow is the lookback for the readiness probe's count
// of devices with recent broker traffic.
const recentActivityWindow = 5 * time.Minute

// deviceView is a device record annotated with the broker-level
// last-activity time. Activity counts every inbound message from the
// device, accepted or not, so it can be fresher than the persisted
// LastSeen.
type deviceView struct {
	device.Device
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// handleHealthz is the liveness probe: the process is up.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// handleReadyz is the readiness probe: broker connected and presence
// circuit closed. Degraded state answers 503 with the same detail body
// so operators see why.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	health := s.core.HealthStatus()

	status := http.StatusOK
	if !health.Connected || health.CircuitBreakerOpen {
		status = http.StatusServiceUnavailable
	}

	recentlyActive := s.core.RecentlyActive(time.Now().Add(-recentActivityWindow))

	s.writeJSON(w, status, map[string]any{
		"connected":               health.Connected,
		"circuit_breaker_open":    health.CircuitBreakerOpen,
		"consecutive_failures":    health.ConsecutiveFailures,
		"last_successful_poll":    health.LastSuccessfulPoll,
		"ingest_queue_depth":      s.core.QueueDepth(),
		"recently_active_devices": len(recentlyActive),
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.core.Devices(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "listing devices failed")
		return
	}

	activity := s.core.Activity()
	views := make([]deviceView, len(devices))
	for i, dev := range devices {
		views[i] = deviceView{Device: dev}
		if at, ok := activity[dev.ID]; ok {
			views[i].LastActivity = &at
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.core.Device(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			s.writeError(w, http.StatusNotFound, "device not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "loading device failed")
		return
	}

	view := deviceView{Device: *dev}
	if at, ok := s.core.LastActivity(id); ok {
		view.LastActivity = &at
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.core.ActiveAlerts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "listing alerts failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters := s.core.DeadLetters()
	if letters == nil {
		letters = []ingest.DeadLetter{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"dead_letters": letters,
		"count":        len(letters),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
