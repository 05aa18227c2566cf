// Package api provides the operational HTTP server for AquaSentinel
// Core: liveness and readiness probes, Prometheus metrics exposition,
// and read-only fleet listings for dashboards and debugging.
//
// Administrative writes (approve, deregister, send command, acknowledge
// alerts) are deliberately absent; those belong to the full REST layer
// that fronts this core.
//
// Endpoints:
//
//	GET /healthz                     — process liveness
//	GET /readyz                      — broker + presence breaker readiness
//	GET /metrics                     — Prometheus exposition
//	GET /api/v1/devices              — device registry listing
//	GET /api/v1/devices/{id}         — single device
//	GET /api/v1/alerts               — unresolved alerts
//	GET /api/v1/ingest/dead-letters  — jobs that exhausted retries
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start()
//	defer server.Close(ctx)
package api
