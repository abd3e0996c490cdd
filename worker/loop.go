package worker

import (
	"context"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/queue"
)

// dispatchLoop polls the adapter for work and fans jobs out to executor
// goroutines, bounded by the concurrency semaphore and the rate limits.
func (h *Handle) dispatchLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	idle := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !h.IsRunning() {
			continue
		}

		free := cap(h.slots) - len(h.slots)
		if free == 0 {
			continue
		}

		jobs, err := h.adapter.DequeueJobs(ctx, h.id, h.queues, free)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Error("dequeue failed", "worker_id", h.id.String(), "error", err)
			continue
		}

		if len(jobs) == 0 {
			if !idle && len(h.slots) == 0 {
				idle = true
				h.hooks.EmitWorkerIdle(ctx, h.id)
				if h.onIdle != nil {
					h.onIdle(ctx, h.id)
				}
			}
			continue
		}
		idle = false

		for _, j := range jobs {
			resolved := h.resolveLimits(ctx, j)
			if delay, ok := h.limits.Acquire(resolved); !ok {
				h.requeueLimited(ctx, j, delay, resolved)
				continue
			}

			h.slots <- struct{}{}
			h.wg.Add(1)
			go func(j *job.Job) {
				defer h.wg.Done()
				defer func() { <-h.slots }()
				h.execute(ctx, j)
			}(j)
		}
	}
}

// resolveLimits picks the single governing limiter for a job following
// the precedence job > queue > worker.
func (h *Handle) resolveLimits(ctx context.Context, j *job.Job) *queue.Resolved {
	def, _ := h.adapter.Registry().Get(j.Queue, j.Name)

	var jobLimiter *flume.Limiter
	if def != nil {
		jobLimiter = def.Limiter
	}

	var queueLimiter *flume.Limiter
	if q, err := h.adapter.GetQueue(ctx, j.Queue); err == nil {
		queueLimiter = q.DefaultLimiter
	}

	return queue.Resolve(jobLimiter, j.Queue, j.Name, queueLimiter, h.limiter, h.id.String())
}

// requeueLimited puts a rate-limited job back as delayed until the
// limiter window admits it. Limited jobs are never dropped, and the
// blocked claim does not burn an attempt.
func (h *Handle) requeueLimited(ctx context.Context, j *job.Job, delay time.Duration, resolved *queue.Resolved) {
	j.State = job.StateDelayed
	j.RunAt = time.Now().UTC().Add(delay)
	j.WorkerID = id.Nil
	j.StartedAt = nil
	j.HeartbeatAt = nil

	if err := h.adapter.UpdateJob(ctx, j); err != nil {
		h.logger.Error("requeue of rate-limited job failed",
			"worker_id", h.id.String(), "job_id", j.ID.String(), "error", err)
		return
	}

	h.logger.Debug("job rate limited",
		"job_id", j.ID.String(),
		"limiter", resolved.Key,
		"source", string(resolved.Source),
		"retry_in", delay)
}

// heartbeatLoop refreshes the worker's registration and every in-flight
// job so the reaper on other workers leaves them alone.
func (h *Handle) heartbeatLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := h.adapter.WorkerHeartbeat(ctx, h.id); err != nil && ctx.Err() == nil {
			h.logger.Warn("worker heartbeat failed",
				"worker_id", h.id.String(), "error", err)
		}
		for _, jobID := range h.inflightIDs() {
			if err := h.adapter.HeartbeatJob(ctx, jobID, h.id); err != nil && ctx.Err() == nil {
				h.logger.Warn("job heartbeat failed",
					"job_id", jobID.String(), "error", err)
			}
		}
	}
}

// reapLoop periodically returns jobs abandoned by dead workers to the
// pending state.
func (h *Handle) reapLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.staleThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reaped, err := h.adapter.ReapStaleJobs(ctx, h.staleThreshold)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Error("reap failed", "worker_id", h.id.String(), "error", err)
			}
			continue
		}
		if len(reaped) > 0 {
			h.logger.Warn("reaped stale jobs",
				"worker_id", h.id.String(), "count", len(reaped))
		}
	}
}
