package flume

import "errors"

var (
	// Configuration errors. These are returned synchronously from the
	// offending call, before any job ever runs.
	ErrAdapterRequired      = errors.New("flume: adapter required")
	ErrQueueNotRegistered   = errors.New("flume: queue not registered")
	ErrInvalidConfiguration = errors.New("flume: invalid configuration")

	// Registration errors.
	ErrDuplicateJob    = errors.New("flume: job already registered")
	ErrHandlerRequired = errors.New("flume: job handler required")

	// Execution errors. Captured per job attempt and fed into the retry
	// pipeline rather than propagated to the caller.
	ErrValidationFailed = errors.New("flume: job input validation failed")
	ErrExecutionFailed  = errors.New("flume: job execution failed")
	ErrTimeout          = errors.New("flume: job timed out")

	// Worker errors.
	ErrWorkerFailed = errors.New("flume: worker failed")
	ErrWorkerClosed = errors.New("flume: worker closed")

	// Adapter errors. Surface as-is from Start, Enqueue, and management
	// operations; the engine never retries them silently.
	ErrAdapterConnection = errors.New("flume: adapter connection failed")
	ErrJobNotFound       = errors.New("flume: job not found")
	ErrJobAlreadyExists  = errors.New("flume: job already exists")
	ErrQueueNotFound     = errors.New("flume: queue not found")
	ErrWorkerNotFound    = errors.New("flume: worker not found")
	ErrDLQNotFound       = errors.New("flume: dlq entry not found")

	// Scope errors.
	ErrScopeAlreadyDefined = errors.New("flume: scope already defined")
)
