// Package ingest decouples inbound sensor messages from database writes
// and alert evaluation.
//
// The broker client's message handler runs on its I/O goroutine and must
// never block on persistence, so it hands each sensor message to a Queue
// and returns. A bounded worker pool consumes jobs and runs the pipeline:
//
//	rate limit → decode → registration gate → timestamp validation →
//	persistence → alert evaluation
//
// Failure handling:
//   - Malformed payloads and unapproved devices are rejected permanently.
//   - Transient failures (database contention, evaluator errors) retry
//     with exponential backoff up to a configured bound; jobs exhausting
//     retries land in a dead-letter buffer for inspection, never dropped
//     silently.
//   - A circuit breaker around the persistence step sheds load when the
//     database is struggling.
//   - A global rate limiter protects persistence from firmware that
//     transmits faster than expected.
//   - When the buffer is full, jobs are processed inline on the caller's
//     goroutine rather than lost.
//
// Usage:
//
//	proc := ingest.NewProcessor(cfg.Ingest, registrar, deviceRepo,
//	    influx, evaluator, logger, metrics)
//	queue := ingest.NewQueue(cfg.Ingest, proc, logger, metrics)
//	if wq, ok := queue.(*ingest.WorkerQueue); ok {
//	    wq.Start(ctx)
//	}
//
//	// Inbound devices/{id}/data message:
//	_ = queue.Enqueue(ctx, ingest.Job{DeviceID: id, Payload: payload, ReceivedAt: time.Now()})
package ingest
