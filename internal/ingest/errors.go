package ingest

import "errors"

// Domain-specific errors for ingestion operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedPayload is returned when a sensor message cannot be
	// decoded. Permanent: the job is rejected without retry.
	ErrMalformedPayload = errors.New("ingest: malformed sensor payload")

	// ErrNoParameters is returned when a sensor message decodes but
	// carries no numeric parameters. Permanent.
	ErrNoParameters = errors.New("ingest: payload has no numeric parameters")

	// ErrQueueStopped is returned when a job is enqueued after shutdown.
	ErrQueueStopped = errors.New("ingest: queue stopped")
)
