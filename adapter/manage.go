package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

// GetJobState returns just a job's lifecycle state.
func GetJobState(ctx context.Context, a Adapter, jobID id.JobID) (job.State, error) {
	j, err := a.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return j.State, nil
}

// CancelJob moves a waiting job (pending, delayed, retrying) to the
// terminal cancelled state. Active jobs cannot be cancelled — Close on
// the worker is the only way to interrupt a running handler — and
// terminal jobs stay as they are.
func CancelJob(ctx context.Context, a Adapter, jobID id.JobID) error {
	j, err := a.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch j.State {
	case job.StatePending, job.StateDelayed, job.StateRetrying:
	default:
		return fmt.Errorf("%w: cannot cancel job in state %q", flume.ErrInvalidConfiguration, j.State)
	}

	now := time.Now().UTC()
	j.State = job.StateCancelled
	j.CompletedAt = &now
	return a.UpdateJob(ctx, j)
}
