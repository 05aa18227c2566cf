// Package alerting converts sensor readings into deduplicated threshold
// alerts.
//
// Each parameter of a reading is compared against a static band with
// warning and critical bounds. A breach either creates a new alert or,
// when an unresolved alert for the same (device, parameter) pair exists
// inside the cooldown window, increments that alert's occurrence count.
// A device oscillating around a threshold therefore produces one alert
// with a growing count, not a notification storm, while the count still
// records how often the condition recurred.
//
// Concurrency: the ingestion pool evaluates readings in parallel, so the
// find-then-write sequence is serialized per (device, parameter) key to
// keep the at-most-one-unresolved-alert invariant.
//
// Usage:
//
//	repo := alerting.NewSQLiteRepository(db.DB)
//	eval := alerting.NewEvaluator(repo, cfg.Alerting, logger, metrics)
//
//	err := eval.Evaluate(ctx, deviceID, map[string]float64{"ph": 5.5}, at)
package alerting
