package events

import (
	"context"
	"time"

	"github.com/flumeworks/flume/hook"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/scope"
)

// Compile-time interface checks.
var (
	_ hook.Hook        = (*Router)(nil)
	_ hook.JobEnqueued = (*Router)(nil)
	_ hook.JobActive   = (*Router)(nil)
	_ hook.JobCompleted = (*Router)(nil)
	_ hook.JobFailed   = (*Router)(nil)
	_ hook.JobRetrying = (*Router)(nil)
	_ hook.WorkerIdle  = (*Router)(nil)
)

// Name implements hook.Hook.
func (r *Router) Name() string { return "event-router" }

// jobScope converts a job's recorded tenant fields back to a scope entry.
// Returns nil when the job carries no scope.
func jobScope(j *job.Job) *scope.Entry {
	if j.ScopeType == "" && j.ScopeID == "" {
		return nil
	}
	return &scope.Entry{Type: j.ScopeType, ID: j.ScopeID}
}

func (r *Router) publishJobEvent(ctx context.Context, j *job.Job, event string, payload map[string]any) error {
	payload["jobId"] = j.ID.String()
	evt := NewJobEvent(j.Queue, j.Name, event, payload)
	return r.PublishJobsEvent(ctx, evt, jobScope(j))
}

// OnJobEnqueued implements hook.JobEnqueued.
func (r *Router) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return r.publishJobEvent(ctx, j, EventEnqueued, map[string]any{
		"queue": j.Queue,
	})
}

// OnJobActive implements hook.JobActive. The executor has already
// consumed the attempt when this fires, so Attempts is the current
// attempt number.
func (r *Router) OnJobActive(ctx context.Context, j *job.Job) error {
	return r.publishJobEvent(ctx, j, EventActive, map[string]any{
		"attempt": j.Attempts,
	})
}

// OnJobCompleted implements hook.JobCompleted.
func (r *Router) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return r.publishJobEvent(ctx, j, EventCompleted, map[string]any{
		"elapsedMs": elapsed.Milliseconds(),
	})
}

// OnJobFailed implements hook.JobFailed. Fired only on the final attempt.
func (r *Router) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return r.publishJobEvent(ctx, j, EventFailed, map[string]any{
		"error":          jobErr.Error(),
		"attempts":       j.Attempts,
		"isFinalAttempt": true,
	})
}

// OnJobRetrying implements hook.JobRetrying.
func (r *Router) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRetryDelay time.Duration) error {
	return r.publishJobEvent(ctx, j, EventRetrying, map[string]any{
		"attempt":        attempt,
		"nextRetryDelay": nextRetryDelay.Milliseconds(),
		"error":          j.LastError,
	})
}

// OnWorkerIdle implements hook.WorkerIdle. Worker events carry no queue
// or job name, so the type degrades to "::idle" variants under a worker
// pseudo-queue.
func (r *Router) OnWorkerIdle(ctx context.Context, workerID id.WorkerID) error {
	evt := NewJobEvent("worker", workerID.String(), EventIdle, nil)
	return r.PublishJobsEvent(ctx, evt, nil)
}
