package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aquasentinel/core/internal/infrastructure/config"
	"github.com/aquasentinel/core/internal/infrastructure/logging"
	"github.com/aquasentinel/core/internal/infrastructure/metrics"
)

// Evaluator compares persisted readings against static threshold bands
// and creates or updates alerts.
//
// Deduplication invariant: at most one unresolved alert exists per
// (deviceID, parameter) pair inside the cooldown window. Repeat breaches
// inside the window increment the existing record's occurrence count; a
// breach after the window has elapsed resolves the stale record and
// creates a fresh one. The find-then-update-or-create sequence is a
// check-then-act race under the concurrent ingestion pool, so it is
// serialized per (deviceID, parameter) key.
type Evaluator struct {
	repo       Repository
	thresholds map[string]config.ThresholdBand
	cooldown   time.Duration
	logger     *logging.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEvaluator creates an Evaluator.
//
// Parameters:
//   - repo: alert persistence
//   - cfg: threshold bands and cooldown window
//   - m: may be nil when metrics are disabled
func NewEvaluator(repo Repository, cfg config.AlertingConfig, logger *logging.Logger, m *metrics.Metrics) *Evaluator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{
		repo:       repo,
		thresholds: cfg.Thresholds,
		cooldown:   time.Duration(cfg.CooldownSeconds) * time.Second,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Evaluate checks every parameter of a reading against its threshold
// band. Parameters without a configured band are ignored. Errors from
// individual parameters are joined so one bad write does not hide
// another breach.
func (e *Evaluator) Evaluate(ctx context.Context, deviceID string, params map[string]float64, at time.Time) error {
	var errs []error
	for param, value := range params {
		band, ok := e.thresholds[param]
		if !ok {
			continue
		}

		severity, threshold, breached := classify(value, band)
		if !breached {
			continue
		}

		if err := e.raise(ctx, deviceID, param, value, threshold, severity, at); err != nil {
			errs = append(errs, fmt.Errorf("raising %s alert for %s/%s: %w",
				severity, deviceID, param, err))
		}
	}
	return errors.Join(errs...)
}

// raise applies the cooldown logic for one breach, holding the pair's
// key lock across the find-then-write sequence.
func (e *Evaluator) raise(ctx context.Context, deviceID, param string, value, threshold float64, severity Severity, at time.Time) error {
	lock := e.keyLock(deviceID + "\x00" + param)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.repo.FindUnresolved(ctx, deviceID, param)
	switch {
	case err == nil:
		if e.now().Sub(existing.LastOccurrence) < e.cooldown {
			if err := e.repo.RecordOccurrence(ctx, existing.ID, value, at); err != nil {
				return err
			}
			if e.metrics != nil {
				e.metrics.AlertsUpdated.Inc()
			}
			e.logger.Debug("alert occurrence recorded",
				"device_id", deviceID,
				"parameter", param,
				"alert_id", existing.ID,
				"occurrence_count", existing.OccurrenceCount+1,
			)
			return nil
		}

		// Stale: the condition recurred after the window. Close the old
		// record so history stays readable and start a fresh count.
		if err := e.repo.Resolve(ctx, existing.ID); err != nil {
			return fmt.Errorf("resolving stale alert %s: %w", existing.ID, err)
		}

	case !errors.Is(err, ErrAlertNotFound):
		return err
	}

	alert := &Alert{
		DeviceID:        deviceID,
		Parameter:       param,
		Severity:        severity,
		Value:           value,
		Threshold:       threshold,
		Message:         breachMessage(param, value, threshold, severity),
		Status:          StatusActive,
		OccurrenceCount: 1,
		FirstOccurrence: at,
		LastOccurrence:  at,
		CurrentValue:    value,
	}
	if err := e.repo.Create(ctx, alert); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.AlertsCreated.Inc()
	}
	e.logger.Warn("alert created",
		"device_id", deviceID,
		"parameter", param,
		"severity", string(severity),
		"value", value,
		"threshold", threshold,
	)
	return nil
}

// keyLock returns the mutex serializing alert writes for one
// (deviceID, parameter) pair, creating it on first use.
func (e *Evaluator) keyLock(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	return lock
}

// classify determines breach severity for a value against a band.
// Returns the crossed threshold bound for the alert record.
func classify(value float64, band config.ThresholdBand) (Severity, float64, bool) {
	switch {
	case value < band.CriticalMin:
		return SeverityCritical, band.CriticalMin, true
	case value > band.CriticalMax:
		return SeverityCritical, band.CriticalMax, true
	case value < band.WarningMin:
		return SeverityWarning, band.WarningMin, true
	case value > band.WarningMax:
		return SeverityWarning, band.WarningMax, true
	default:
		return "", 0, false
	}
}

func breachMessage(param string, value, threshold float64, severity Severity) string {
	direction := "below"
	if value > threshold {
		direction = "above"
	}
	return fmt.Sprintf("%s value %.2f is %s the %s threshold %.2f",
		param, value, direction, severity, threshold)
}
