package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aquasentinel/core/internal/device"
	"github.com/aquasentinel/core/internal/infrastructure/config"
	"github.com/aquasentinel/core/internal/infrastructure/logging"
	"github.com/aquasentinel/core/internal/infrastructure/metrics"
)

// deadLetterCapacity bounds the in-memory buffer of jobs that exhausted
// their retries. Oldest entries are evicted first.
const deadLetterCapacity = 100

// Authorizer gates jobs on the registration workflow.
type Authorizer interface {
	AuthorizeData(ctx context.Context, deviceID string) (*device.Device, error)
}

// DeviceStore is the slice of device persistence the processor touches
// per accepted reading.
type DeviceStore interface {
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, id string, status device.Status) error
}

// ReadingWriter persists time-series reading data. May be nil when the
// time-series backend is disabled; readings then only update device
// state and feed alerting.
type ReadingWriter interface {
	WriteReading(deviceID string, params map[string]float64, timestamp, receivedAt time.Time)
}

// AlertEvaluator runs threshold evaluation for a persisted reading.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, deviceID string, params map[string]float64, at time.Time) error
}

// Job is one inbound sensor message awaiting processing.
type Job struct {
	DeviceID   string
	Payload    []byte
	ReceivedAt time.Time
}

// DeadLetter is a job that exhausted its retries, kept for inspection.
type DeadLetter struct {
	Job   Job
	Error string
	At    time.Time
}

// Processor executes the ingestion pipeline for one job: rate limit,
// decode, registration gate, timestamp validation, persistence, alert
// evaluation. Transient failures retry with exponential backoff;
// rejections (unregistered device, malformed payload) never retry.
//
// A circuit breaker wraps the persistence step so a struggling database
// sheds load quickly instead of holding every worker in retry loops.
type Processor struct {
	auth      Authorizer
	devices   DeviceStore
	writer    ReadingWriter
	evaluator AlertEvaluator
	logger    *logging.Logger
	metrics   *metrics.Metrics

	limiter      *rate.Limiter
	persistCB    *gobreaker.CircuitBreaker
	maxRetries   uint64
	retryInitial time.Duration

	mu          sync.Mutex
	deadLetters []DeadLetter
}

// NewProcessor creates a Processor.
//
// Parameters:
//   - cfg: retry bounds and the global rate limit
//   - writer: time-series sink, may be nil
//   - m: may be nil when metrics are disabled
func NewProcessor(cfg config.IngestConfig, auth Authorizer, devices DeviceStore, writer ReadingWriter, evaluator AlertEvaluator, logger *logging.Logger, m *metrics.Metrics) *Processor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{
		auth:      auth,
		devices:   devices,
		writer:    writer,
		evaluator: evaluator,
		logger:    logger,
		metrics:   m,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		persistCB: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "reading-persistence",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
		maxRetries:   uint64(cfg.MaxRetries),
		retryInitial: time.Duration(cfg.RetryInitialMs) * time.Millisecond,
	}
}

// Process runs the pipeline for one job. The returned error is for
// callers that process inline; queued callers rely on logging and the
// dead-letter buffer instead.
func (p *Processor) Process(ctx context.Context, job Job) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	reading, err := parseReading(job.DeviceID, job.Payload, job.ReceivedAt)
	if err != nil {
		p.countJob("rejected")
		p.logger.Warn("rejecting sensor message",
			"device_id", job.DeviceID,
			"error", err,
		)
		return err
	}
	if reading.TimestampAdjusted {
		p.logger.Warn("device-reported timestamp implausible, using server time",
			"device_id", job.DeviceID,
			"received_at", job.ReceivedAt,
		)
	}

	op := func() error {
		dev, err := p.auth.AuthorizeData(ctx, job.DeviceID)
		if err != nil {
			if errors.Is(err, device.ErrDeviceNotRegistered) || errors.Is(err, device.ErrDeviceNotApproved) {
				return backoff.Permanent(err)
			}
			return err
		}

		if _, err := p.persistCB.Execute(func() (any, error) {
			return nil, p.persist(ctx, dev, reading, job.ReceivedAt)
		}); err != nil {
			return err
		}

		return p.evaluator.Evaluate(ctx, job.DeviceID, reading.Params, reading.Timestamp)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.retryInitial

	notify := func(err error, next time.Duration) {
		p.countJob("retried")
		p.logger.Warn("ingestion attempt failed, retrying",
			"device_id", job.DeviceID,
			"error", err,
			"next_attempt_in", next.String(),
		)
	}

	err = backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(bo, p.maxRetries), ctx),
		notify)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotRegistered) || errors.Is(err, device.ErrDeviceNotApproved) {
			p.countJob("rejected")
			p.logger.Warn("rejecting data from unapproved device",
				"device_id", job.DeviceID,
				"error", err,
			)
			return err
		}

		p.deadLetter(job, err)
		p.countJob("dead_letter")
		p.logger.Error("ingestion job exhausted retries",
			"device_id", job.DeviceID,
			"error", err,
			"max_retries", p.maxRetries,
		)
		return err
	}

	p.countJob("processed")
	return nil
}

// persist updates device state and writes the time-series point. Runs
// inside the persistence circuit breaker.
func (p *Processor) persist(ctx context.Context, dev *device.Device, reading *Reading, receivedAt time.Time) error {
	if err := p.devices.TouchLastSeen(ctx, dev.ID, reading.Timestamp); err != nil {
		return fmt.Errorf("touching last seen: %w", err)
	}

	// Passive traffic brings a device back online; the poller only ever
	// writes the offline direction.
	if dev.Status != device.StatusOnline {
		if err := p.devices.UpdateStatus(ctx, dev.ID, device.StatusOnline); err != nil {
			return fmt.Errorf("marking device online: %w", err)
		}
		p.logger.Info("device back online", "device_id", dev.ID)
	}

	if p.writer != nil {
		p.writer.WriteReading(dev.ID, reading.Params, reading.Timestamp, receivedAt)
	}
	return nil
}

// deadLetter retains an exhausted job for offline inspection.
func (p *Processor) deadLetter(job Job, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deadLetters = append(p.deadLetters, DeadLetter{
		Job:   job,
		Error: err.Error(),
		At:    time.Now(),
	})
	if len(p.deadLetters) > deadLetterCapacity {
		p.deadLetters = p.deadLetters[len(p.deadLetters)-deadLetterCapacity:]
	}
}

// DeadLetters returns a copy of the retained failed jobs, oldest first.
func (p *Processor) DeadLetters() []DeadLetter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DeadLetter(nil), p.deadLetters...)
}

func (p *Processor) countJob(outcome string) {
	if p.metrics != nil {
		p.metrics.IngestJobs.WithLabelValues(outcome).Inc()
	}
}
