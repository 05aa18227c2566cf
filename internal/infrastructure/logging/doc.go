// Package logging provides structured logging for AquaSentinel Core.
//
// Built on the standard library's log/slog, it adds:
//   - Configuration-driven format (JSON/text), level, and destination
//   - Default service and version fields on every record
//   - Component-scoped child loggers via With
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("broker connected", "host", cfg.MQTT.Broker.Host)
//
//	ingestLog := log.With("component", "ingest")
//	ingestLog.Warn("job retried", "device_id", id, "attempt", n)
package logging
