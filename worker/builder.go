// Package worker builds and runs queue consumers. A Builder accumulates
// configuration immutably and validates it at the offending call; Start
// produces a Handle, the live control surface over the dispatch loop.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/backoff"
	"github.com/flumeworks/flume/dlq"
	"github.com/flumeworks/flume/events"
	"github.com/flumeworks/flume/hook"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/queue"
	"github.com/flumeworks/flume/telemetry"
)

// Lifecycle callback types attached through the Builder. They observe a
// single worker's jobs; cross-cutting observers belong in hook.Hook
// implementations instead.
type (
	// ActiveFunc fires when an attempt begins.
	ActiveFunc func(ctx context.Context, j *job.Job)
	// SuccessFunc fires when an attempt completes successfully.
	SuccessFunc func(ctx context.Context, j *job.Job, elapsed time.Duration)
	// FailureFunc fires on every failed attempt, final or not.
	FailureFunc func(ctx context.Context, j *job.Job, err error)
	// IdleFunc fires when the worker transitions to having no work.
	IdleFunc func(ctx context.Context, workerID id.WorkerID)
)

// Defaults applied at Start when the Builder leaves them unset.
const (
	defaultPollInterval      = 250 * time.Millisecond
	defaultHeartbeatInterval = 15 * time.Second
	defaultStaleThreshold    = time.Minute
)

// Builder accumulates worker configuration. It is immutable: every
// mutator returns a new Builder, except AddQueue with an already-present
// queue, which returns the receiver itself. Builders are safe to share
// and reuse across goroutines.
type Builder struct {
	adapter adapter.Adapter

	queues      []string
	concurrency int
	limiter     *flume.Limiter

	onActive  ActiveFunc
	onSuccess SuccessFunc
	onFailure FailureFunc
	onIdle    IdleFunc

	hooks   []hook.Hook
	sink    telemetry.Sink
	backoff backoff.Strategy
	logger  *slog.Logger

	service     string
	environment string

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	staleThreshold    time.Duration
}

// NewBuilder creates a Builder bound to an adapter.
func NewBuilder(a adapter.Adapter) (*Builder, error) {
	if a == nil {
		return nil, flume.ErrAdapterRequired
	}
	return &Builder{
		adapter:           a,
		backoff:           backoff.DefaultStrategy(),
		logger:            slog.Default(),
		service:           events.DefaultService,
		environment:       events.DefaultEnvironment,
		pollInterval:      defaultPollInterval,
		heartbeatInterval: defaultHeartbeatInterval,
		staleThreshold:    defaultStaleThreshold,
	}, nil
}

// clone returns a shallow copy with its own queue and hook slices.
func (b *Builder) clone() *Builder {
	c := *b
	c.queues = slices.Clone(b.queues)
	c.hooks = slices.Clone(b.hooks)
	return &c
}

// AddQueue binds the worker to a queue. The queue must already be known
// to the adapter's registry. Adding a queue twice is an identity no-op:
// the second call returns the same Builder instance.
func (b *Builder) AddQueue(name string) (*Builder, error) {
	if !b.adapter.Registry().HasQueue(name) {
		return nil, fmt.Errorf("%w: %q", flume.ErrQueueNotRegistered, name)
	}
	if slices.Contains(b.queues, name) {
		return b, nil
	}
	c := b.clone()
	c.queues = append(c.queues, name)
	return c, nil
}

// WithConcurrency sets how many jobs may run simultaneously.
func (b *Builder) WithConcurrency(n int) (*Builder, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: concurrency must be positive, got %d", flume.ErrInvalidConfiguration, n)
	}
	c := b.clone()
	c.concurrency = n
	return c, nil
}

// WithLimiter sets the worker-level rate limiter. It applies across all
// jobs the worker processes unless a job or queue limiter takes
// precedence.
func (b *Builder) WithLimiter(lim flume.Limiter) (*Builder, error) {
	if err := lim.Validate(); err != nil {
		return nil, err
	}
	c := b.clone()
	c.limiter = &lim
	return c, nil
}

// OnActive attaches a callback fired when an attempt begins.
func (b *Builder) OnActive(fn ActiveFunc) *Builder {
	c := b.clone()
	c.onActive = fn
	return c
}

// OnSuccess attaches a callback fired on successful completion.
func (b *Builder) OnSuccess(fn SuccessFunc) *Builder {
	c := b.clone()
	c.onSuccess = fn
	return c
}

// OnFailure attaches a callback fired on every failed attempt.
func (b *Builder) OnFailure(fn FailureFunc) *Builder {
	c := b.clone()
	c.onFailure = fn
	return c
}

// OnIdle attaches a callback fired when the worker runs out of work.
func (b *Builder) OnIdle(fn IdleFunc) *Builder {
	c := b.clone()
	c.onIdle = fn
	return c
}

// WithHook registers an additional lifecycle hook.
func (b *Builder) WithHook(h hook.Hook) *Builder {
	c := b.clone()
	c.hooks = append(c.hooks, h)
	return c
}

// WithTelemetry attaches a telemetry sink. Sink failures never affect
// job outcomes.
func (b *Builder) WithTelemetry(sink telemetry.Sink) *Builder {
	c := b.clone()
	c.sink = sink
	return c
}

// WithBackoff sets the retry backoff strategy.
func (b *Builder) WithBackoff(s backoff.Strategy) *Builder {
	c := b.clone()
	c.backoff = s
	return c
}

// WithLogger sets the worker's logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	c := b.clone()
	c.logger = l
	return c
}

// WithEvents sets the service and environment names used to derive
// event channel names.
func (b *Builder) WithEvents(service, environment string) *Builder {
	c := b.clone()
	c.service = service
	c.environment = environment
	return c
}

// WithPollInterval sets how often the dispatch loop polls for work.
func (b *Builder) WithPollInterval(d time.Duration) (*Builder, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive, got %s", flume.ErrInvalidConfiguration, d)
	}
	c := b.clone()
	c.pollInterval = d
	return c, nil
}

// Start spawns the worker and returns its Handle. Concurrency defaults
// to 1 when unset; an empty queue set binds the worker to every
// registered queue.
func (b *Builder) Start(ctx context.Context) (*Handle, error) {
	concurrency := b.concurrency
	if concurrency == 0 {
		concurrency = 1
	}

	queues := slices.Clone(b.queues)
	if len(queues) == 0 {
		queues = b.adapter.Registry().Queues()
	}

	hooks := hook.NewRegistry(b.logger)
	hooks.Register(events.NewRouter(b.adapter, b.service, b.environment, events.WithLogger(b.logger)))
	if b.sink != nil {
		hooks.Register(telemetry.NewExtension(b.sink))
	}
	for _, h := range b.hooks {
		hooks.Register(h)
	}

	h := &Handle{
		id:          id.NewWorkerID(),
		queues:      queues,
		concurrency: concurrency,
		adapter:     b.adapter,
		limits:      queue.NewLimits(),
		limiter:     b.limiter,
		hooks:       hooks,
		backoff:     b.backoff,
		dlq:         dlq.NewService(b.adapter, b.adapter),
		logger:      b.logger,

		onActive:  b.onActive,
		onSuccess: b.onSuccess,
		onFailure: b.onFailure,
		onIdle:    b.onIdle,

		pollInterval:      b.pollInterval,
		heartbeatInterval: b.heartbeatInterval,
		staleThreshold:    b.staleThreshold,

		state:    StateIdle,
		slots:    make(chan struct{}, concurrency),
		inflight: make(map[id.JobID]struct{}),
	}
	h.chain = h.buildChain()

	if err := h.start(ctx); err != nil {
		return nil, err
	}
	return h, nil
}
