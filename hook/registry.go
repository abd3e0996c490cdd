package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

// Named entry types pair a hook implementation with the name captured at
// registration time. This avoids type-asserting back to Hook inside the
// emit methods.
type jobEnqueuedEntry struct {
	name string
	hook JobEnqueued
}

type jobActiveEntry struct {
	name string
	hook JobActive
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type jobDLQEntry struct {
	name string
	hook JobDLQ
}

type workerIdleEntry struct {
	name string
	hook WorkerIdle
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and dispatches lifecycle events to
// them. It type-caches hooks at registration time so emit calls iterate
// only over implementations of the relevant interface.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	jobEnqueued  []jobEnqueuedEntry
	jobActive    []jobActiveEntry
	jobCompleted []jobCompletedEntry
	jobFailed    []jobFailedEntry
	jobRetrying  []jobRetryingEntry
	jobDLQ       []jobDLQEntry
	workerIdle   []workerIdleEntry
	shutdown     []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable caches.
// Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if hk, ok := h.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, hk})
	}
	if hk, ok := h.(JobActive); ok {
		r.jobActive = append(r.jobActive, jobActiveEntry{name, hk})
	}
	if hk, ok := h.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, hk})
	}
	if hk, ok := h.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, hk})
	}
	if hk, ok := h.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, hk})
	}
	if hk, ok := h.(JobDLQ); ok {
		r.jobDLQ = append(r.jobDLQ, jobDLQEntry{name, hk})
	}
	if hk, ok := h.(WorkerIdle); ok {
		r.workerIdle = append(r.workerIdle, workerIdleEntry{name, hk})
	}
	if hk, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, hk})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// EmitJobEnqueued notifies all hooks that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobActive notifies all hooks that implement JobActive.
func (r *Registry) EmitJobActive(ctx context.Context, j *job.Job) {
	for _, e := range r.jobActive {
		if err := e.hook.OnJobActive(ctx, j); err != nil {
			r.logHookError("OnJobActive", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all hooks that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all hooks that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all hooks that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRetryDelay time.Duration) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, attempt, nextRetryDelay); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDLQ notifies all hooks that implement JobDLQ.
func (r *Registry) EmitJobDLQ(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobDLQ {
		if err := e.hook.OnJobDLQ(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobDLQ", e.name, err)
		}
	}
}

// EmitWorkerIdle notifies all hooks that implement WorkerIdle.
func (r *Registry) EmitWorkerIdle(ctx context.Context, workerID id.WorkerID) {
	for _, e := range r.workerIdle {
		if err := e.hook.OnWorkerIdle(ctx, workerID); err != nil {
			r.logHookError("OnWorkerIdle", e.name, err)
		}
	}
}

// EmitShutdown notifies all hooks that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hookName, implName string, err error) {
	r.logger.Warn("lifecycle hook error",
		slog.String("hook", hookName),
		slog.String("impl", implName),
		slog.String("error", err.Error()),
	)
}
