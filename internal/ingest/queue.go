package ingest

import (
	"context"
	"sync"

	"github.com/aquasentinel/core/internal/infrastructure/config"
	"github.com/aquasentinel/core/internal/infrastructure/logging"
	"github.com/aquasentinel/core/internal/infrastructure/metrics"
)

// Queue absorbs inbound sensor jobs so the broker client's handler
// goroutine never blocks on database work.
//
// Two implementations exist, selected at construction time: WorkerQueue
// buffers jobs for a bounded consumer pool, InlineQueue processes
// synchronously. Enqueue never loses a job: when the buffer is full the
// WorkerQueue degrades to inline processing for that job.
type Queue interface {
	// Enqueue accepts a job for processing. Blocking behavior depends on
	// the implementation; the job is processed either way.
	Enqueue(ctx context.Context, job Job) error

	// Depth reports how many jobs are currently buffered.
	Depth() int
}

// NewQueue selects the queue implementation for the given configuration:
// a WorkerQueue when a consumer pool is configured, otherwise an
// InlineQueue.
func NewQueue(cfg config.IngestConfig, processor *Processor, logger *logging.Logger, m *metrics.Metrics) Queue {
	if cfg.Workers <= 0 {
		return NewInlineQueue(processor, m)
	}
	return NewWorkerQueue(cfg, processor, logger, m)
}

// WorkerQueue is the buffered implementation: a bounded channel feeding
// a fixed pool of consumer goroutines.
type WorkerQueue struct {
	processor *Processor
	logger    *logging.Logger
	metrics   *metrics.Metrics
	jobs      chan Job
	workers   int

	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewWorkerQueue creates a WorkerQueue. Call Start before enqueuing.
func NewWorkerQueue(cfg config.IngestConfig, processor *Processor, logger *logging.Logger, m *metrics.Metrics) *WorkerQueue {
	if logger == nil {
		logger = logging.Default()
	}
	return &WorkerQueue{
		processor: processor,
		logger:    logger,
		metrics:   m,
		jobs:      make(chan Job, cfg.BufferSize),
		workers:   cfg.Workers,
	}
}

// Start launches the consumer pool. Workers run until Stop closes the
// job channel; ctx bounds the processing of individual jobs.
func (q *WorkerQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				q.trackDepth()
				// Errors are logged and dead-lettered by the processor.
				_ = q.processor.Process(ctx, job)
			}
		}()
	}
	q.logger.Info("ingestion queue started",
		"workers", q.workers,
		"buffer_size", cap(q.jobs),
	)
}

// Enqueue buffers a job for the consumer pool. When the buffer is full,
// or the queue has stopped, the job is processed inline instead so no
// message is lost; throughput degrades but correctness holds.
func (q *WorkerQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()

	if !stopped {
		select {
		case q.jobs <- job:
			q.trackDepth()
			return nil
		default:
		}
		q.logger.Warn("ingestion buffer full, processing inline",
			"device_id", job.DeviceID,
			"buffer_size", cap(q.jobs),
		)
	}

	if q.metrics != nil {
		q.metrics.IngestJobs.WithLabelValues("inline").Inc()
	}
	return q.processor.Process(ctx, job)
}

// Stop closes the queue and waits for buffered jobs to drain. If ctx
// expires first, remaining jobs are abandoned with a logged warning.
func (q *WorkerQueue) Stop(ctx context.Context) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.jobs)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("ingestion queue drained")
	case <-ctx.Done():
		q.logger.Warn("shutdown deadline reached, abandoning buffered jobs",
			"remaining", len(q.jobs),
		)
	}
}

// Depth reports the number of buffered jobs.
func (q *WorkerQueue) Depth() int {
	return len(q.jobs)
}

func (q *WorkerQueue) trackDepth() {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.jobs)))
	}
}

// InlineQueue processes every job synchronously on the caller's
// goroutine. Used when no consumer pool is configured and as the
// degraded path of the WorkerQueue.
type InlineQueue struct {
	processor *Processor
	metrics   *metrics.Metrics
}

// NewInlineQueue creates an InlineQueue.
func NewInlineQueue(processor *Processor, m *metrics.Metrics) *InlineQueue {
	return &InlineQueue{processor: processor, metrics: m}
}

// Enqueue processes the job before returning.
func (q *InlineQueue) Enqueue(ctx context.Context, job Job) error {
	if q.metrics != nil {
		q.metrics.IngestJobs.WithLabelValues("inline").Inc()
	}
	return q.processor.Process(ctx, job)
}

// Depth is always zero; nothing is ever buffered.
func (q *InlineQueue) Depth() int { return 0 }
