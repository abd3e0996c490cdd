package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

// execute runs a single claimed job through the middleware chain and
// feeds the outcome into the retry pipeline.
func (h *Handle) execute(ctx context.Context, j *job.Job) {
	untrack := h.trackInflight(j.ID)
	defer untrack()

	def, ok := h.adapter.Registry().Get(j.Queue, j.Name)
	if !ok {
		// Definition vanished between enqueue and dispatch; there is no
		// handler to retry with.
		h.finishFailed(ctx, j, fmt.Errorf("%w: no definition for %s/%s", flume.ErrHandlerRequired, j.Queue, j.Name))
		return
	}

	// The attempt is consumed here, not at dequeue, so a rate-limit
	// requeue never burns the attempt budget.
	j.Attempts++
	if err := h.adapter.UpdateJob(ctx, j); err != nil {
		h.logger.Error("persist attempt failed",
			"job_id", j.ID.String(), "error", err)
	}

	h.hooks.EmitJobActive(ctx, j)
	if h.onActive != nil {
		h.onActive(ctx, j)
	}

	// The erased handler validates the payload itself; see
	// job.RegisterDefinition.
	start := time.Now()
	err := h.chain(ctx, j, func(hctx context.Context) error {
		return def.Handler(hctx, j.Payload)
	})
	elapsed := time.Since(start)
	h.totalDuration.Add(int64(elapsed))

	if err == nil {
		h.finishCompleted(ctx, j, elapsed)
		return
	}

	h.failed.Add(1)
	j.LastError = err.Error()
	if h.onFailure != nil {
		h.onFailure(ctx, j, err)
	}

	if j.Attempts < j.MaxAttempts {
		h.scheduleRetry(ctx, j)
		return
	}
	h.finishFailed(ctx, j, err)
}

// finishCompleted records a successful attempt and, for repeatable
// jobs, enqueues the next occurrence.
func (h *Handle) finishCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	h.processed.Add(1)

	now := time.Now().UTC()
	j.State = job.StateCompleted
	j.CompletedAt = &now
	j.LastError = ""
	if err := h.adapter.UpdateJob(ctx, j); err != nil {
		h.logger.Error("persist completion failed",
			"job_id", j.ID.String(), "error", err)
	}

	h.hooks.EmitJobCompleted(ctx, j, elapsed)
	if h.onSuccess != nil {
		h.onSuccess(ctx, j, elapsed)
	}

	if j.Repeat != "" {
		h.enqueueNextOccurrence(ctx, j, now)
	}
}

// scheduleRetry delays the job by the backoff strategy and returns it
// to the queue.
func (h *Handle) scheduleRetry(ctx context.Context, j *job.Job) {
	delay := h.backoff.Delay(j.Attempts)

	j.State = job.StateRetrying
	j.RunAt = time.Now().UTC().Add(delay)
	j.WorkerID = id.Nil
	j.StartedAt = nil
	j.HeartbeatAt = nil
	if err := h.adapter.UpdateJob(ctx, j); err != nil {
		h.logger.Error("persist retry failed",
			"job_id", j.ID.String(), "error", err)
		return
	}

	h.hooks.EmitJobRetrying(ctx, j, j.Attempts, delay)
}

// finishFailed records a terminally failed job and pushes it to the
// dead letter queue. Repeatable jobs still get their next occurrence:
// one bad run does not stop the schedule.
func (h *Handle) finishFailed(ctx context.Context, j *job.Job, jobErr error) {
	now := time.Now().UTC()
	j.State = job.StateFailed
	j.LastError = jobErr.Error()
	j.CompletedAt = &now
	if err := h.adapter.UpdateJob(ctx, j); err != nil {
		h.logger.Error("persist failure failed",
			"job_id", j.ID.String(), "error", err)
	}

	h.hooks.EmitJobFailed(ctx, j, jobErr)

	if err := h.dlq.Push(ctx, j, jobErr); err != nil {
		h.logger.Error("dlq push failed",
			"job_id", j.ID.String(), "error", err)
	} else {
		h.hooks.EmitJobDLQ(ctx, j, jobErr)
	}

	if j.Repeat != "" {
		h.enqueueNextOccurrence(ctx, j, now)
	}
}

// enqueueNextOccurrence schedules a fresh job for the next point in a
// repeat rule.
func (h *Handle) enqueueNextOccurrence(ctx context.Context, j *job.Job, after time.Time) {
	next, err := adapter.NextOccurrence(j.Repeat, after)
	if err != nil {
		h.logger.Error("repeat rule rejected",
			"job_id", j.ID.String(), "repeat", j.Repeat, "error", err)
		return
	}

	clone := &job.Job{
		Entity:      flume.NewEntity(),
		ID:          id.NewJobID(),
		Name:        j.Name,
		Queue:       j.Queue,
		Payload:     append([]byte(nil), j.Payload...),
		State:       job.StateDelayed,
		Priority:    j.Priority,
		MaxAttempts: j.MaxAttempts,
		ScopeType:   j.ScopeType,
		ScopeID:     j.ScopeID,
		RunAt:       next,
		Timeout:     j.Timeout,
		Repeat:      j.Repeat,
	}

	if err := h.adapter.EnqueueJob(ctx, clone); err != nil {
		h.logger.Error("repeat enqueue failed",
			"job_id", j.ID.String(), "error", err)
		return
	}
	h.hooks.EmitJobEnqueued(ctx, clone)
}
