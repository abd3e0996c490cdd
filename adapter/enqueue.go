package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/events"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/scope"
)

// RegisterJob registers a typed job definition on the adapter's registry
// under the given queue. The queue comes into existence on first
// registration.
func RegisterJob[T any](a Adapter, queueName string, def *job.Definition[T]) error {
	return job.RegisterDefinition(a.Registry(), queueName, def)
}

// Enqueue marshals the payload and enqueues a job for immediate execution.
// The (queue, name) pair must be registered. Scope attached to the context
// is captured onto the job.
func Enqueue[T any](ctx context.Context, a Adapter, queueName, name string, payload T, opts ...job.Option) (*job.Job, error) {
	return Schedule(ctx, a, queueName, name, payload, ScheduleOpts{}, opts...)
}

// Schedule marshals the payload and enqueues a job per the schedule
// options: delayed by Delay, at an absolute At, and/or repeating on
// Every/Cron. Scope attached to the context is captured onto the job.
func Schedule[T any](ctx context.Context, a Adapter, queueName, name string, payload T, sched ScheduleOpts, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}
	return ScheduleRaw(ctx, a, queueName, name, data, sched, opts...)
}

// ScheduleRaw enqueues a job with a pre-serialized payload.
func ScheduleRaw(ctx context.Context, a Adapter, queueName, name string, payload []byte, sched ScheduleOpts, opts ...job.Option) (*job.Job, error) {
	reg := a.Registry()
	if !reg.HasQueue(queueName) {
		return nil, fmt.Errorf("%w: %q", flume.ErrQueueNotRegistered, queueName)
	}
	def, ok := reg.Get(queueName, name)
	if !ok {
		return nil, fmt.Errorf("%w: job %q not registered on queue %q", flume.ErrJobNotFound, name, queueName)
	}
	if err := sched.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	runAt, err := sched.FirstRun(now)
	if err != nil {
		return nil, err
	}

	// Definition options are the defaults; call-site options override.
	jobOpts := def.Opts
	for _, opt := range opts {
		opt(&jobOpts)
	}

	scopeType, scopeID := scope.Capture(ctx)

	j := &job.Job{
		Entity:      flume.NewEntity(),
		ID:          id.NewJobID(),
		Name:        name,
		Queue:       queueName,
		Payload:     payload,
		State:       job.StatePending,
		Priority:    jobOpts.Priority,
		MaxAttempts: jobOpts.MaxAttempts,
		Timeout:     jobOpts.Timeout,
		ScopeType:   scopeType,
		ScopeID:     scopeID,
		RunAt:       runAt,
		Repeat:      sched.Repeat(),
	}
	if runAt.After(now) {
		j.State = job.StateDelayed
	}

	if err := a.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}
	emitEnqueued(ctx, a, j)
	return j, nil
}

// emitEnqueued publishes the enqueued event for a freshly persisted job
// on the base and scope channels. Publish failures are logged, never
// propagated: the job is already stored.
func emitEnqueued(ctx context.Context, a Adapter, j *job.Job) {
	router := events.NewRouter(a, events.DefaultService, events.DefaultEnvironment)
	if err := router.OnJobEnqueued(ctx, j); err != nil {
		slog.Warn("flume: failed to publish enqueued event",
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue),
			slog.Any("error", err))
	}
}
