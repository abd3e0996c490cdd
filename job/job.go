package job

import (
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be picked up by a worker.
	StatePending State = "pending"
	// StateDelayed means the job is scheduled for a future RunAt.
	StateDelayed State = "delayed"
	// StateActive means a worker is currently executing the job.
	StateActive State = "active"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job failed and will not be retried.
	StateFailed State = "failed"
	// StateRetrying means the job failed but is scheduled for retry.
	StateRetrying State = "retrying"
	// StateCancelled means the job was explicitly removed.
	StateCancelled State = "cancelled"
)

// Job represents a unit of work to be processed by a worker.
type Job struct {
	flume.Entity

	ID          id.JobID      `json:"id"`
	Name        string        `json:"name"`
	Queue       string        `json:"queue"`
	Payload     []byte        `json:"payload"`
	State       State         `json:"state"`
	Priority    int           `json:"priority"`
	MaxAttempts int           `json:"max_attempts"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	ScopeType   string        `json:"scope_type,omitempty"`
	ScopeID     string        `json:"scope_id,omitempty"`
	WorkerID    id.WorkerID   `json:"worker_id,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time    `json:"heartbeat_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`

	// Repeat is an optional repetition rule. When non-empty, a terminal
	// run re-enqueues the next occurrence ("@every 5m" or a cron
	// expression such as "0 3 * * *").
	Repeat string `json:"repeat,omitempty"`
}

// LogLine is a single per-job log entry appended during execution.
type LogLine struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Terminal reports whether the job's state admits no further transitions
// besides an explicit retry or removal.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}
