package queue

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flumeworks/flume"
)

// Source identifies which level a governing limiter came from.
// Precedence, highest first: job > queue > worker.
type Source string

const (
	SourceJob    Source = "job"
	SourceQueue  Source = "queue"
	SourceWorker Source = "worker"
)

// Resolved is the single limiter that governs dispatch for a job, after
// precedence resolution. Key identifies the shared token bucket: all
// jobs governed by the same source share one window.
type Resolved struct {
	Key     string
	Source  Source
	Limiter flume.Limiter
}

// Resolve picks the highest-precedence limiter among the job definition's,
// the queue's default, and the worker's. Returns nil when no limiter
// applies. Lower-precedence limiters are ignored entirely — they do not
// stack.
func Resolve(jobLimiter *flume.Limiter, queueName, jobName string, queueLimiter *flume.Limiter, workerLimiter *flume.Limiter, workerKey string) *Resolved {
	switch {
	case jobLimiter != nil:
		return &Resolved{Key: "job:" + queueName + "/" + jobName, Source: SourceJob, Limiter: *jobLimiter}
	case queueLimiter != nil:
		return &Resolved{Key: "queue:" + queueName, Source: SourceQueue, Limiter: *queueLimiter}
	case workerLimiter != nil:
		return &Resolved{Key: "worker:" + workerKey, Source: SourceWorker, Limiter: *workerLimiter}
	default:
		return nil
	}
}

// Limits tracks one token bucket per limiter key. It is safe for
// concurrent use and shared by all consumer goroutines of a worker.
type Limits struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLimits creates an empty limit tracker.
func NewLimits() *Limits {
	return &Limits{buckets: make(map[string]*rate.Limiter)}
}

// bucket returns (creating if needed) the token bucket for a key.
// A Limiter{Max, Duration} maps to a bucket refilling Max tokens per
// Duration with burst Max, so at most Max dispatches fit in any window.
func (l *Limits) bucket(key string, lim flume.Limiter) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(lim.Duration/time.Duration(lim.Max)), lim.Max)
		l.buckets[key] = b
	}
	return b
}

// Acquire attempts to take a dispatch slot for the resolved limiter.
// On success it returns (0, true). When the window is exhausted it
// returns (delay, false) without consuming a token; the caller re-queues
// the job as delayed by roughly that long. Jobs are never dropped.
func (l *Limits) Acquire(r *Resolved) (time.Duration, bool) {
	if r == nil {
		return 0, true
	}

	b := l.bucket(r.Key, r.Limiter)
	res := b.Reserve()
	if !res.OK() {
		// Burst misconfigured below 1; treat as a full-window wait.
		return r.Limiter.Duration, false
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return delay, false
	}
	return 0, true
}
