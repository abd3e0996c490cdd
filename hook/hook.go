// Package hook defines the lifecycle hook system. Hook implementations
// are notified of lifecycle events (job enqueued, active, completed,
// failed, etc.) and can react to them — telemetry, metrics, event
// routing.
//
// Each lifecycle hook is a separate interface so implementations opt in
// only to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

// Hook is the base interface all hook implementations must satisfy.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// JobEnqueued is called after a job is successfully enqueued or scheduled.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobActive is called when a worker begins executing a job.
type JobActive interface {
	OnJobActive(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (attempt ceiling
// reached — the final attempt).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRetryDelay time.Duration) error
}

// JobDLQ is called when a job is moved to the dead letter queue.
type JobDLQ interface {
	OnJobDLQ(ctx context.Context, j *job.Job, err error) error
}

// WorkerIdle is called when a worker drains its queues and goes idle.
type WorkerIdle interface {
	OnWorkerIdle(ctx context.Context, workerID id.WorkerID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
