// Package adapter defines the queue backend contract. An Adapter owns
// persistence for jobs, queues, workers, and the dead letter queue, plus
// the event transport. Backends: Memory and Redis.
package adapter

import (
	"context"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/dlq"
	"github.com/flumeworks/flume/events"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/queue"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// JobStore is the job persistence contract.
type JobStore interface {
	// EnqueueJob persists a new job. Jobs with RunAt in the future are
	// stored delayed; everything else is stored pending.
	EnqueueJob(ctx context.Context, j *job.Job) error

	// DequeueJobs atomically claims up to limit due jobs from the given
	// queues, sets them active, and returns them. A non-positive limit
	// claims every due job. Paused queues are skipped. Jobs are ordered
	// by priority (descending) then RunAt (ascending). Due delayed jobs
	// are promoted as part of the claim.
	DequeueJobs(ctx context.Context, workerID id.WorkerID, queues []string, limit int) ([]*job.Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *job.Job) error

	// RemoveJob deletes a job by ID.
	RemoveJob(ctx context.Context, jobID id.JobID) error

	// RetryJob resets a failed or cancelled job to pending with a zero
	// attempt count, runnable immediately.
	RetryJob(ctx context.Context, jobID id.JobID) error

	// PromoteJob moves a delayed job to pending, runnable immediately.
	PromoteJob(ctx context.Context, jobID id.JobID) error

	// RetryJobs, RemoveJobs, and PromoteJobs are the batch variants.
	// The first error encountered is returned.
	RetryJobs(ctx context.Context, jobIDs []id.JobID) error
	RemoveJobs(ctx context.Context, jobIDs []id.JobID) error
	PromoteJobs(ctx context.Context, jobIDs []id.JobID) error

	// ListJobs returns jobs in a queue matching the given state.
	// An empty state matches all states.
	ListJobs(ctx context.Context, queueName string, state job.State, opts ListOpts) ([]*job.Job, error)

	// AddJobLog appends a log line to a job's execution log.
	AddJobLog(ctx context.Context, jobID id.JobID, message string) error

	// GetJobLogs returns a job's log lines in append order.
	GetJobLogs(ctx context.Context, jobID id.JobID) ([]job.LogLine, error)

	// HeartbeatJob updates the heartbeat timestamp for an active job,
	// indicating the worker is still alive.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// ReapStaleJobs moves active jobs whose last heartbeat is older than
	// the threshold back to pending and returns them.
	ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error)
}

// QueueStore is the queue management contract.
type QueueStore interface {
	// ListQueues returns every known queue.
	ListQueues(ctx context.Context) ([]*queue.Queue, error)

	// GetQueue retrieves a queue by name with its current state.
	GetQueue(ctx context.Context, name string) (*queue.Queue, error)

	// CountQueueJobs returns per-state job counts for a queue.
	CountQueueJobs(ctx context.Context, name string) (queue.Counts, error)

	// PauseQueue stops new dispatch from the queue. In-flight jobs are
	// not affected.
	PauseQueue(ctx context.Context, name string) error

	// ResumeQueue re-enables dispatch from a paused queue.
	ResumeQueue(ctx context.Context, name string) error

	// SetQueueLimiter sets (or clears, with nil) the queue's default
	// rate limiter. Job-level limiters still take precedence.
	SetQueueLimiter(ctx context.Context, name string, lim *flume.Limiter) error

	// CleanQueue removes jobs matching the criteria. Returns the number
	// of jobs removed.
	CleanQueue(ctx context.Context, name string, criteria queue.CleanCriteria) (int64, error)

	// DrainQueue removes all pending and delayed jobs from a queue.
	// Active jobs are not affected. Returns the number of jobs removed.
	DrainQueue(ctx context.Context, name string) (int64, error)
}

// EventBus is the event transport contract. PublishEvent satisfies
// events.Publisher so a Router can publish through any adapter.
type EventBus interface {
	// PublishEvent delivers an event to a named channel.
	PublishEvent(ctx context.Context, channel string, evt events.JobEvent) error

	// Subscribe returns a channel receiving events published to the named
	// channel from this point on, and a cancel function that releases the
	// subscription. Events on one channel are delivered in publish order.
	Subscribe(ctx context.Context, channel string) (<-chan events.JobEvent, func(), error)
}

// WorkerState describes a registered worker's liveness.
type WorkerState string

const (
	WorkerActive  WorkerState = "active"
	WorkerStopped WorkerState = "stopped"
)

// Worker is the adapter-side registration record for a running worker.
type Worker struct {
	ID          id.WorkerID `json:"id"`
	Queues      []string    `json:"queues"`
	Concurrency int         `json:"concurrency"`
	State       WorkerState `json:"state"`
	LastSeen    time.Time   `json:"last_seen"`
	CreatedAt   time.Time   `json:"created_at"`
}

// WorkerStore is the worker registration contract.
type WorkerStore interface {
	// RegisterWorker records a worker and its configuration.
	RegisterWorker(ctx context.Context, w *Worker) error

	// WorkerHeartbeat refreshes a worker's LastSeen timestamp.
	WorkerHeartbeat(ctx context.Context, workerID id.WorkerID) error

	// DeregisterWorker marks a worker stopped.
	DeregisterWorker(ctx context.Context, workerID id.WorkerID) error

	// ListWorkers returns every registered worker.
	ListWorkers(ctx context.Context) ([]*Worker, error)
}

// Adapter is the aggregate backend contract. A single backend (memory,
// redis) implements all of it. The registry of job definitions lives on
// the adapter so enqueue and dequeue share one source of truth.
type Adapter interface {
	JobStore
	QueueStore
	EventBus
	WorkerStore
	dlq.Store

	// Registry returns the job definition registry backing this adapter.
	Registry() *job.Registry

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
