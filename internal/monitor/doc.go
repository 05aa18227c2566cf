// Package monitor assembles the device-monitoring core.
//
// The Service constructs and owns every stateful component — the
// registration state machine, the presence poller with its circuit
// breaker, the ingestion queue and its consumer pool, the alert
// evaluator and the command dispatcher — and wires the broker's wildcard
// subscriptions to them:
//
//	devices/+/data      → ingestion queue
//	devices/+/register  → registration state machine
//	devices/+/presence  → command drain (informational)
//	presence/response   → presence poller, command drain
//
// The Service also exposes the collaborator surface the HTTP layer
// consumes: ProcessSensorData, ApproveDevice, DeregisterDevice,
// SendCommand, QueryPresence, HealthStatus and the read-only listings.
//
// Lifecycle:
//
//	svc := monitor.New(cfg, db.DB, mqttClient, influx, logger, metrics)
//	if err := svc.Start(ctx); err != nil { ... }
//	defer svc.Stop(shutdownCtx)
package monitor
