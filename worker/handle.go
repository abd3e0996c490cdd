package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/backoff"
	"github.com/flumeworks/flume/dlq"
	"github.com/flumeworks/flume/hook"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/middleware"
	"github.com/flumeworks/flume/queue"
)

// State is the worker handle's lifecycle state.
type State string

// Worker lifecycle states. Transitions:
// Idle → Starting → Running ⇄ Paused → Closed (terminal).
const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateClosed   State = "closed"
)

// Metrics is a point-in-time snapshot of a worker's counters.
type Metrics struct {
	// Processed counts successfully completed attempts.
	Processed int64
	// Failed counts failed attempts, including retried ones.
	Failed int64
	// AvgDuration is the mean attempt duration across all finished
	// attempts. Zero before the first attempt finishes.
	AvgDuration time.Duration
	// Concurrency is the configured bound. It reflects configuration
	// even before any job has run.
	Concurrency int
	// StartedAt is when Start transitioned the worker to running.
	StartedAt time.Time
}

// Handle is the live control surface over a running worker. All methods
// are safe for concurrent use.
type Handle struct {
	id          id.WorkerID
	queues      []string
	concurrency int

	adapter adapter.Adapter
	limits  *queue.Limits
	limiter *flume.Limiter
	hooks   *hook.Registry
	backoff backoff.Strategy
	chain   middleware.Middleware
	dlq     *dlq.Service
	logger  *slog.Logger

	onActive  ActiveFunc
	onSuccess SuccessFunc
	onFailure FailureFunc
	onIdle    IdleFunc

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	staleThreshold    time.Duration

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	inflight map[id.JobID]struct{}

	// slots is a counting semaphore bounding concurrent attempts.
	slots chan struct{}
	wg    sync.WaitGroup

	processed     atomic.Int64
	failed        atomic.Int64
	totalDuration atomic.Int64 // nanoseconds across finished attempts
	startedAt     time.Time
}

// buildChain assembles the execution middleware. Recover sits outermost
// so a panic anywhere inside still becomes an error.
func (h *Handle) buildChain() middleware.Middleware {
	return middleware.Chain(
		middleware.Recover(h.logger),
		middleware.Logging(h.logger),
		middleware.Metrics(),
		middleware.Tracing(),
		middleware.Scope(),
		middleware.Timeout(h.logger),
	)
}

// start registers the worker with the adapter and launches the dispatch,
// heartbeat, and reaper loops.
func (h *Handle) start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateIdle {
		return fmt.Errorf("%w: start from state %q", flume.ErrWorkerFailed, h.state)
	}
	h.state = StateStarting

	now := time.Now().UTC()
	rec := &adapter.Worker{
		ID:          h.id,
		Queues:      slices.Clone(h.queues),
		Concurrency: h.concurrency,
		State:       adapter.WorkerActive,
		LastSeen:    now,
		CreatedAt:   now,
	}
	if err := h.adapter.RegisterWorker(ctx, rec); err != nil {
		h.state = StateIdle
		return fmt.Errorf("%w: register: %v", flume.ErrWorkerFailed, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.startedAt = now
	h.state = StateRunning

	h.wg.Add(3)
	go h.dispatchLoop(loopCtx)
	go h.heartbeatLoop(loopCtx)
	go h.reapLoop(loopCtx)

	h.logger.Info("worker started",
		"worker_id", h.id.String(),
		"queues", h.queues,
		"concurrency", h.concurrency)
	return nil
}

// ID returns the worker's unique identifier.
func (h *Handle) ID() id.WorkerID { return h.id }

// Queues returns the queue set the worker consumes.
func (h *Handle) Queues() []string { return slices.Clone(h.queues) }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsRunning reports whether the worker is dispatching jobs.
func (h *Handle) IsRunning() bool { return h.State() == StateRunning }

// IsPaused reports whether the worker is paused.
func (h *Handle) IsPaused() bool { return h.State() == StatePaused }

// IsClosed reports whether the worker has been closed.
func (h *Handle) IsClosed() bool { return h.State() == StateClosed }

// Pause stops the worker from picking up new jobs. In-flight jobs
// complete normally. No-op unless running.
func (h *Handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateRunning {
		h.state = StatePaused
		h.logger.Info("worker paused", "worker_id", h.id.String())
	}
}

// Resume re-enables dispatch after a Pause. No-op unless paused.
func (h *Handle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StatePaused {
		h.state = StateRunning
		h.logger.Info("worker resumed", "worker_id", h.id.String())
	}
}

// Close stops the worker, waits for in-flight jobs to finish, emits the
// shutdown hooks, and deregisters the worker. Terminal and idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return nil
	}
	h.state = StateClosed
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()

	h.hooks.EmitShutdown(ctx)
	if err := h.adapter.DeregisterWorker(ctx, h.id); err != nil {
		h.logger.Warn("worker deregister failed",
			"worker_id", h.id.String(), "error", err)
	}

	h.logger.Info("worker closed", "worker_id", h.id.String())
	return nil
}

// Metrics returns a snapshot of the worker's counters.
func (h *Handle) Metrics() Metrics {
	processed := h.processed.Load()
	failed := h.failed.Load()

	var avg time.Duration
	if finished := processed + failed; finished > 0 {
		avg = time.Duration(h.totalDuration.Load() / finished)
	}

	h.mu.Lock()
	started := h.startedAt
	h.mu.Unlock()

	return Metrics{
		Processed:   processed,
		Failed:      failed,
		AvgDuration: avg,
		Concurrency: h.concurrency,
		StartedAt:   started,
	}
}

// trackInflight records a job as in flight for heartbeating; the
// returned func removes it.
func (h *Handle) trackInflight(jobID id.JobID) func() {
	h.mu.Lock()
	h.inflight[jobID] = struct{}{}
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.inflight, jobID)
		h.mu.Unlock()
	}
}

func (h *Handle) inflightIDs() []id.JobID {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]id.JobID, 0, len(h.inflight))
	for jobID := range h.inflight {
		ids = append(ids, jobID)
	}
	return ids
}
