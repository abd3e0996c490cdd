package worker_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/adapter/memory"
	"github.com/flumeworks/flume/backoff"
	"github.com/flumeworks/flume/dlq"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/worker"
)

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWorker(t *testing.T, b *worker.Builder) *worker.Handle {
	t.Helper()

	h, err := b.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestWorkerProcessesJobs(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	t.Cleanup(func() { mem.Close() })

	var handled atomic.Int64
	def := job.NewDefinition("send", func(_ context.Context, _ struct{}) error {
		handled.Add(1)
		return nil
	})
	if err := adapter.RegisterJob(mem, "email", def); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}

	ctx := context.Background()
	for range 3 {
		if _, err := adapter.Enqueue(ctx, mem, "email", "send", struct{}{}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	b, _ := worker.NewBuilder(mem)
	b, err := b.AddQueue("email")
	if err != nil {
		t.Fatalf("AddQueue: %v", err)
	}
	b, err = b.WithConcurrency(5)
	if err != nil {
		t.Fatalf("WithConcurrency: %v", err)
	}
	b, err = b.WithPollInterval(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("WithPollInterval: %v", err)
	}

	h := startWorker(t, b)

	if got := h.Metrics().Concurrency; got != 5 {
		t.Fatalf("Concurrency = %d, want 5", got)
	}
	if h.Metrics().StartedAt.IsZero() {
		t.Fatal("StartedAt should be set after Start")
	}

	waitFor(t, 3*time.Second, func() bool { return handled.Load() == 3 })
	waitFor(t, 3*time.Second, func() bool { return h.Metrics().Processed == 3 })

	m := h.Metrics()
	if m.Failed != 0 {
		t.Fatalf("Failed = %d, want 0", m.Failed)
	}

	jobs, err := mem.ListJobs(ctx, "email", job.StateCompleted, adapter.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("completed jobs = %d, want 3", len(jobs))
	}
	for _, j := range jobs {
		if j.Attempts != 1 {
			t.Errorf("job %s attempts = %d, want 1", j.ID, j.Attempts)
		}
		if j.CompletedAt == nil {
			t.Errorf("job %s missing CompletedAt", j.ID)
		}
	}
}

func TestHandleStateMachine(t *testing.T) {
	t.Parallel()

	mem := newAdapterWithQueue(t, "email", "send")

	b, _ := worker.NewBuilder(mem)
	b, _ = b.AddQueue("email")
	h := startWorker(t, b)

	if !h.IsRunning() || h.IsPaused() || h.IsClosed() {
		t.Fatalf("after start: running=%v paused=%v closed=%v", h.IsRunning(), h.IsPaused(), h.IsClosed())
	}
	// Default concurrency.
	if got := h.Metrics().Concurrency; got != 1 {
		t.Fatalf("Concurrency = %d, want 1", got)
	}

	h.Pause()
	if !h.IsPaused() || h.IsRunning() || h.IsClosed() {
		t.Fatalf("after pause: running=%v paused=%v closed=%v", h.IsRunning(), h.IsPaused(), h.IsClosed())
	}
	h.Pause() // no-op when already paused

	h.Resume()
	if !h.IsRunning() || h.IsPaused() {
		t.Fatal("resume should return to running")
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !h.IsClosed() || h.IsRunning() || h.IsPaused() {
		t.Fatalf("after close: running=%v paused=%v closed=%v", h.IsRunning(), h.IsPaused(), h.IsClosed())
	}

	// Terminal: pause/resume are no-ops, Close is idempotent.
	h.Pause()
	h.Resume()
	if !h.IsClosed() {
		t.Fatal("closed is terminal")
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPausedWorkerDoesNotDispatch(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	t.Cleanup(func() { mem.Close() })

	var handled atomic.Int64
	def := job.NewDefinition("send", func(_ context.Context, _ struct{}) error {
		handled.Add(1)
		return nil
	})
	if err := adapter.RegisterJob(mem, "email", def); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}

	b, _ := worker.NewBuilder(mem)
	b, _ = b.AddQueue("email")
	b, _ = b.WithPollInterval(10 * time.Millisecond)
	h := startWorker(t, b)

	h.Pause()

	ctx := context.Background()
	if _, err := adapter.Enqueue(ctx, mem, "email", "send", struct{}{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if handled.Load() != 0 {
		t.Fatal("paused worker should not pick up jobs")
	}

	h.Resume()
	waitFor(t, 3*time.Second, func() bool { return handled.Load() == 1 })
}

func TestRetryThenDLQ(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	t.Cleanup(func() { mem.Close() })

	var attempts atomic.Int64
	def := job.NewDefinition("flaky", func(_ context.Context, _ struct{}) error {
		attempts.Add(1)
		return errors.New("smtp unavailable")
	})
	if err := adapter.RegisterJob(mem, "email", def); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}

	ctx := context.Background()
	enq, err := adapter.Enqueue(ctx, mem, "email", "flaky", struct{}{}, job.WithMaxAttempts(2))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var failures atomic.Int64
	b, _ := worker.NewBuilder(mem)
	b, _ = b.AddQueue("email")
	b, _ = b.WithPollInterval(10 * time.Millisecond)
	b = b.WithBackoff(backoff.NewConstant(time.Millisecond)).
		OnFailure(func(_ context.Context, _ *job.Job, _ error) {
			failures.Add(1)
		})
	h := startWorker(t, b)

	waitFor(t, 5*time.Second, func() bool {
		n, cErr := mem.CountDLQ(ctx)
		return cErr == nil && n == 1
	})

	if got := attempts.Load(); got != 2 {
		t.Fatalf("handler ran %d times, want 2", got)
	}
	if got := failures.Load(); got != 2 {
		t.Fatalf("OnFailure fired %d times, want 2", got)
	}

	j, err := mem.GetJob(ctx, enq.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.State != job.StateFailed {
		t.Fatalf("state = %q, want failed", j.State)
	}
	if j.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", j.Attempts)
	}
	if j.LastError == "" {
		t.Fatal("LastError should record the handler error")
	}

	entries, err := mem.ListDLQ(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dlq entries = %d, want 1", len(entries))
	}
	if entries[0].JobID != enq.ID || entries[0].Queue != "email" {
		t.Fatalf("dlq entry = %+v", entries[0])
	}

	if got := h.Metrics().Failed; got != 2 {
		t.Fatalf("Metrics.Failed = %d, want 2", got)
	}
}

func TestValidatorRejectionRetriesToDLQ(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	t.Cleanup(func() { mem.Close() })

	var handled atomic.Int64
	def := job.NewDefinition("strict", func(_ context.Context, _ struct{}) error {
		handled.Add(1)
		return nil
	}).WithValidator(job.ValidatorFunc(func(_ []byte) error {
		return errors.New("schema mismatch")
	}))
	if err := adapter.RegisterJob(mem, "email", def); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}

	ctx := context.Background()
	if _, err := adapter.Enqueue(ctx, mem, "email", "strict", struct{}{}, job.WithMaxAttempts(1)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	b, _ := worker.NewBuilder(mem)
	b, _ = b.AddQueue("email")
	b, _ = b.WithPollInterval(10 * time.Millisecond)
	startWorker(t, b)

	waitFor(t, 5*time.Second, func() bool {
		n, cErr := mem.CountDLQ(ctx)
		return cErr == nil && n == 1
	})

	if handled.Load() != 0 {
		t.Fatal("handler must not run when validation fails")
	}

	entries, err := mem.ListDLQ(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if !strings.Contains(entries[0].Error, "validation failed") {
		t.Fatalf("dlq error = %q, want a validation failure", entries[0].Error)
	}
}

func TestValidatorRunsOncePerAttempt(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	t.Cleanup(func() { mem.Close() })

	var validations, handled atomic.Int64
	def := job.NewDefinition("checked", func(_ context.Context, _ struct{}) error {
		handled.Add(1)
		return nil
	}).WithValidator(job.ValidatorFunc(func(_ []byte) error {
		validations.Add(1)
		return nil
	}))
	if err := adapter.RegisterJob(mem, "email", def); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}

	ctx := context.Background()
	if _, err := adapter.Enqueue(ctx, mem, "email", "checked", struct{}{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	b, _ := worker.NewBuilder(mem)
	b, _ = b.AddQueue("email")
	b, _ = b.WithPollInterval(10 * time.Millisecond)
	startWorker(t, b)

	waitFor(t, 3*time.Second, func() bool { return handled.Load() == 1 })

	if got := validations.Load(); got != 1 {
		t.Fatalf("validator ran %d times for one attempt, want 1", got)
	}
}

func TestWorkerLimiterThrottlesDispatch(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	t.Cleanup(func() { mem.Close() })

	var handled atomic.Int64
	def := job.NewDefinition("notify", func(_ context.Context, _ struct{}) error {
		handled.Add(1)
		return nil
	})
	if err := adapter.RegisterJob(mem, "push", def); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}

	ctx := context.Background()
	for range 2 {
		if _, err := adapter.Enqueue(ctx, mem, "push", "notify", struct{}{}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	b, _ := worker.NewBuilder(mem)
	b, _ = b.AddQueue("push")
	b, _ = b.WithConcurrency(5)
	b, _ = b.WithLimiter(flume.Limiter{Max: 1, Duration: 500 * time.Millisecond})
	b, _ = b.WithPollInterval(10 * time.Millisecond)
	startWorker(t, b)

	waitFor(t, 3*time.Second, func() bool { return handled.Load() == 1 })

	// The second job must be held back until the window refills.
	time.Sleep(150 * time.Millisecond)
	if got := handled.Load(); got != 1 {
		t.Fatalf("handled = %d inside the limiter window, want 1", got)
	}

	// Never dropped: it runs once the window admits it.
	waitFor(t, 5*time.Second, func() bool { return handled.Load() == 2 })
}

func TestRepeatableJobReenqueues(t *testing.T) {
	t.Parallel()

	mem := memory.New()
	t.Cleanup(func() { mem.Close() })

	var runs atomic.Int64
	def := job.NewDefinition("tick", func(_ context.Context, _ struct{}) error {
		runs.Add(1)
		return nil
	})
	if err := adapter.RegisterJob(mem, "clock", def); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}

	ctx := context.Background()
	sched := adapter.ScheduleOpts{Every: 50 * time.Millisecond}
	if _, err := adapter.Schedule(ctx, mem, "clock", "tick", struct{}{}, sched); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	b, _ := worker.NewBuilder(mem)
	b, _ = b.AddQueue("clock")
	b, _ = b.WithPollInterval(10 * time.Millisecond)
	startWorker(t, b)

	waitFor(t, 5*time.Second, func() bool { return runs.Load() >= 2 })
}

func TestIdleCallbackFires(t *testing.T) {
	t.Parallel()

	mem := newAdapterWithQueue(t, "email", "send")

	var idle atomic.Int64
	b, _ := worker.NewBuilder(mem)
	b, _ = b.AddQueue("email")
	b, _ = b.WithPollInterval(10 * time.Millisecond)
	b = b.OnIdle(func(_ context.Context, _ id.WorkerID) {
		idle.Add(1)
	})
	startWorker(t, b)

	waitFor(t, 3*time.Second, func() bool { return idle.Load() >= 1 })
}
