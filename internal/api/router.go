package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)

	// Probes
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// Prometheus exposition
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// Read-only fleet views
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{id}", s.handleGetDevice)
		r.Get("/alerts", s.handleListAlerts)
		r.Get("/ingest/dead-letters", s.handleDeadLetters)
	})

	return r
}
