package dlq

import (
	"context"
	"time"

	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

// Enqueuer is the narrow slice of the backend needed to replay entries.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, j *job.Job) error
}

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store Store
	jobs  Enqueuer
}

// NewService creates a DLQ service.
func NewService(store Store, jobs Enqueuer) *Service {
	return &Service{store: store, jobs: jobs}
}

// Push builds a DLQ Entry from a failed job and persists it.
// The error string is captured from the original handler error.
func (s *Service) Push(ctx context.Context, j *job.Job, jobErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:          id.NewDLQID(),
		JobID:       j.ID,
		JobName:     j.Name,
		Queue:       j.Queue,
		Payload:     j.Payload,
		Error:       jobErr.Error(),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		ScopeType:   j.ScopeType,
		ScopeID:     j.ScopeID,
		FailedAt:    now,
		CreatedAt:   now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// DLQStore exposes the underlying store for list/get/purge/count access.
func (s *Service) DLQStore() Store {
	return s.store
}
