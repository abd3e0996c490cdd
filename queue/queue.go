// Package queue defines the queue entity, management criteria, and the
// rate-limit precedence machinery shared by workers.
package queue

import (
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/job"
)

// Queue is a named channel of pending jobs. Queues come into existence
// when the first job definition is registered under their name.
type Queue struct {
	flume.Entity

	Name   string `json:"name"`
	Paused bool   `json:"paused"`

	// DefaultLimiter applies to every job in the queue unless the job
	// definition carries its own limiter.
	DefaultLimiter *flume.Limiter `json:"default_limiter,omitempty"`
}

// Counts summarizes jobs per state for a queue.
type Counts struct {
	Pending   int64 `json:"pending"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Retrying  int64 `json:"retrying"`
}

// CleanCriteria selects jobs for bulk removal from a queue.
type CleanCriteria struct {
	// State restricts cleaning to one state. Empty means every
	// terminal state (completed, failed, cancelled).
	State job.State

	// OlderThan keeps jobs whose last update is within the window.
	// Zero cleans regardless of age.
	OlderThan time.Duration

	// Limit caps how many jobs are removed. Zero means no cap.
	Limit int
}

// Matches reports whether a job satisfies the criteria at the given time.
func (c CleanCriteria) Matches(j *job.Job, now time.Time) bool {
	if c.State != "" {
		if j.State != c.State {
			return false
		}
	} else if !j.State.Terminal() {
		return false
	}
	if c.OlderThan > 0 && j.UpdatedAt.After(now.Add(-c.OlderThan)) {
		return false
	}
	return true
}
