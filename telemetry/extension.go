package telemetry

import (
	"context"
	"time"

	"github.com/flumeworks/flume/hook"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

// Compile-time interface checks.
var (
	_ hook.Hook         = (*Extension)(nil)
	_ hook.JobEnqueued  = (*Extension)(nil)
	_ hook.JobActive    = (*Extension)(nil)
	_ hook.JobCompleted = (*Extension)(nil)
	_ hook.JobFailed    = (*Extension)(nil)
	_ hook.JobRetrying  = (*Extension)(nil)
	_ hook.JobDLQ       = (*Extension)(nil)
	_ hook.WorkerIdle   = (*Extension)(nil)
	_ hook.Shutdown     = (*Extension)(nil)
)

// Extension forwards every lifecycle event to a Sink through Emit.
// Register it on the hook registry; a nil sink makes it inert, and sink
// failures never reach the job pipeline.
type Extension struct {
	sink Sink
}

// NewExtension creates a telemetry extension for the given sink.
// The sink may be nil.
func NewExtension(sink Sink) *Extension {
	return &Extension{sink: sink}
}

// Name implements hook.Hook.
func (e *Extension) Name() string { return "telemetry" }

func jobAttrs(j *job.Job) map[string]any {
	attrs := map[string]any{
		"job_id": j.ID.String(),
		"job":    j.Name,
		"queue":  j.Queue,
	}
	if j.ScopeType != "" {
		attrs["scope_type"] = j.ScopeType
		attrs["scope_id"] = j.ScopeID
	}
	return attrs
}

// OnJobEnqueued implements hook.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	Emit(ctx, e.sink, "job.enqueued", jobAttrs(j))
	return nil
}

// OnJobActive implements hook.JobActive.
func (e *Extension) OnJobActive(ctx context.Context, j *job.Job) error {
	Emit(ctx, e.sink, "job.active", jobAttrs(j))
	return nil
}

// OnJobCompleted implements hook.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	attrs := jobAttrs(j)
	attrs["elapsed_ms"] = elapsed.Milliseconds()
	Emit(ctx, e.sink, "job.completed", attrs)
	return nil
}

// OnJobFailed implements hook.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	attrs := jobAttrs(j)
	attrs["error"] = jobErr.Error()
	attrs["attempts"] = j.Attempts
	Emit(ctx, e.sink, "job.failed", attrs, LevelError)
	return nil
}

// OnJobRetrying implements hook.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRetryDelay time.Duration) error {
	attrs := jobAttrs(j)
	attrs["attempt"] = attempt
	attrs["next_retry_delay_ms"] = nextRetryDelay.Milliseconds()
	Emit(ctx, e.sink, "job.retrying", attrs)
	return nil
}

// OnJobDLQ implements hook.JobDLQ.
func (e *Extension) OnJobDLQ(ctx context.Context, j *job.Job, jobErr error) error {
	attrs := jobAttrs(j)
	attrs["error"] = jobErr.Error()
	Emit(ctx, e.sink, "job.dlq", attrs, LevelError)
	return nil
}

// OnWorkerIdle implements hook.WorkerIdle.
func (e *Extension) OnWorkerIdle(ctx context.Context, workerID id.WorkerID) error {
	Emit(ctx, e.sink, "worker.idle", map[string]any{"worker_id": workerID.String()})
	return nil
}

// OnShutdown implements hook.Shutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	Emit(ctx, e.sink, "worker.shutdown", nil)
	return nil
}
