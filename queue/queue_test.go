package queue_test

import (
	"testing"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/queue"
)

func TestCleanCriteriaMatches(t *testing.T) {
	now := time.Now()

	mk := func(state job.State, age time.Duration) *job.Job {
		j := &job.Job{State: state}
		j.UpdatedAt = now.Add(-age)
		return j
	}

	tests := []struct {
		name     string
		criteria queue.CleanCriteria
		job      *job.Job
		want     bool
	}{
		{"empty state matches completed", queue.CleanCriteria{}, mk(job.StateCompleted, time.Hour), true},
		{"empty state matches failed", queue.CleanCriteria{}, mk(job.StateFailed, time.Hour), true},
		{"empty state matches cancelled", queue.CleanCriteria{}, mk(job.StateCancelled, time.Hour), true},
		{"empty state skips pending", queue.CleanCriteria{}, mk(job.StatePending, time.Hour), false},
		{"empty state skips active", queue.CleanCriteria{}, mk(job.StateActive, time.Hour), false},
		{"explicit state matches", queue.CleanCriteria{State: job.StateFailed}, mk(job.StateFailed, 0), true},
		{"explicit state mismatches", queue.CleanCriteria{State: job.StateFailed}, mk(job.StateCompleted, 0), false},
		{"explicit non-terminal state", queue.CleanCriteria{State: job.StateDelayed}, mk(job.StateDelayed, 0), true},
		{"older than satisfied", queue.CleanCriteria{OlderThan: time.Minute}, mk(job.StateCompleted, 2 * time.Minute), true},
		{"older than too recent", queue.CleanCriteria{OlderThan: time.Hour}, mk(job.StateCompleted, time.Minute), false},
		{"zero older than ignores age", queue.CleanCriteria{}, mk(job.StateCompleted, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.criteria.Matches(tt.job, now); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	jobLim := &flume.Limiter{Max: 1, Duration: time.Second}
	queueLim := &flume.Limiter{Max: 5, Duration: time.Second}
	workerLim := &flume.Limiter{Max: 10, Duration: time.Second}

	t.Run("job level wins over all", func(t *testing.T) {
		r := queue.Resolve(jobLim, "emails", "send-welcome", queueLim, workerLim, "w1")
		if r == nil {
			t.Fatal("expected a resolved limiter")
		}
		if r.Source != queue.SourceJob {
			t.Errorf("Source = %q, want %q", r.Source, queue.SourceJob)
		}
		if r.Key != "job:emails/send-welcome" {
			t.Errorf("Key = %q", r.Key)
		}
		if r.Limiter.Max != 1 {
			t.Errorf("Limiter.Max = %d, want 1", r.Limiter.Max)
		}
	})

	t.Run("queue level wins over worker", func(t *testing.T) {
		r := queue.Resolve(nil, "emails", "send-welcome", queueLim, workerLim, "w1")
		if r == nil {
			t.Fatal("expected a resolved limiter")
		}
		if r.Source != queue.SourceQueue {
			t.Errorf("Source = %q, want %q", r.Source, queue.SourceQueue)
		}
		if r.Key != "queue:emails" {
			t.Errorf("Key = %q", r.Key)
		}
	})

	t.Run("worker level as fallback", func(t *testing.T) {
		r := queue.Resolve(nil, "emails", "send-welcome", nil, workerLim, "w1")
		if r == nil {
			t.Fatal("expected a resolved limiter")
		}
		if r.Source != queue.SourceWorker {
			t.Errorf("Source = %q, want %q", r.Source, queue.SourceWorker)
		}
		if r.Key != "worker:w1" {
			t.Errorf("Key = %q", r.Key)
		}
	})

	t.Run("no limiter anywhere", func(t *testing.T) {
		if r := queue.Resolve(nil, "emails", "send-welcome", nil, nil, "w1"); r != nil {
			t.Errorf("Resolve() = %+v, want nil", r)
		}
	})
}

func TestLimitsAcquire(t *testing.T) {
	t.Run("nil resolved always admits", func(t *testing.T) {
		l := queue.NewLimits()
		for i := 0; i < 100; i++ {
			if delay, ok := l.Acquire(nil); !ok || delay != 0 {
				t.Fatalf("Acquire(nil) = (%v, %v), want (0, true)", delay, ok)
			}
		}
	})

	t.Run("window admits up to max then blocks", func(t *testing.T) {
		l := queue.NewLimits()
		r := &queue.Resolved{
			Key:     "job:q/j",
			Source:  queue.SourceJob,
			Limiter: flume.Limiter{Max: 3, Duration: time.Hour},
		}

		for i := 0; i < 3; i++ {
			if delay, ok := l.Acquire(r); !ok {
				t.Fatalf("acquire %d: blocked with delay %v, want admitted", i, delay)
			}
		}

		delay, ok := l.Acquire(r)
		if ok {
			t.Fatal("fourth acquire admitted, want blocked")
		}
		if delay <= 0 {
			t.Errorf("blocked acquire returned delay %v, want positive", delay)
		}
	})

	t.Run("distinct keys do not share windows", func(t *testing.T) {
		l := queue.NewLimits()
		lim := flume.Limiter{Max: 1, Duration: time.Hour}
		a := &queue.Resolved{Key: "job:q/a", Source: queue.SourceJob, Limiter: lim}
		b := &queue.Resolved{Key: "job:q/b", Source: queue.SourceJob, Limiter: lim}

		if _, ok := l.Acquire(a); !ok {
			t.Fatal("first acquire on a blocked")
		}
		if _, ok := l.Acquire(b); !ok {
			t.Fatal("first acquire on b blocked despite separate key")
		}
		if _, ok := l.Acquire(a); ok {
			t.Fatal("second acquire on a admitted, want blocked")
		}
	})

	t.Run("shared key shares the window", func(t *testing.T) {
		l := queue.NewLimits()
		lim := flume.Limiter{Max: 2, Duration: time.Hour}
		first := &queue.Resolved{Key: "queue:emails", Source: queue.SourceQueue, Limiter: lim}
		second := &queue.Resolved{Key: "queue:emails", Source: queue.SourceQueue, Limiter: lim}

		if _, ok := l.Acquire(first); !ok {
			t.Fatal("first acquire blocked")
		}
		if _, ok := l.Acquire(second); !ok {
			t.Fatal("second acquire blocked")
		}
		if _, ok := l.Acquire(first); ok {
			t.Fatal("third acquire admitted, want blocked")
		}
	})

	t.Run("blocked acquire does not consume a token", func(t *testing.T) {
		l := queue.NewLimits()
		r := &queue.Resolved{
			Key:     "job:q/tight",
			Source:  queue.SourceJob,
			Limiter: flume.Limiter{Max: 1, Duration: 50 * time.Millisecond},
		}

		if _, ok := l.Acquire(r); !ok {
			t.Fatal("first acquire blocked")
		}
		if _, ok := l.Acquire(r); ok {
			t.Fatal("second acquire admitted, want blocked")
		}

		// The cancelled reservation must not push the refill out; one
		// window later a slot opens again.
		time.Sleep(75 * time.Millisecond)
		if delay, ok := l.Acquire(r); !ok {
			t.Fatalf("acquire after refill blocked with delay %v", delay)
		}
	})
}
