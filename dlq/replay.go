package dlq

import (
	"context"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

// Replay re-enqueues a DLQ entry as a new pending job and marks the
// entry as replayed. The new job gets a fresh ID, a zero attempt count,
// and runs immediately.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	j := &job.Job{
		Entity:      flume.NewEntity(),
		ID:          id.NewJobID(),
		Name:        entry.JobName,
		Queue:       entry.Queue,
		Payload:     entry.Payload,
		State:       job.StatePending,
		MaxAttempts: entry.MaxAttempts,
		ScopeType:   entry.ScopeType,
		ScopeID:     entry.ScopeID,
		RunAt:       now,
	}

	if err := s.jobs.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		// The job is already enqueued at this point; return it together
		// with the mark failure so the caller can reconcile the entry.
		return j, err
	}

	return j, nil
}
