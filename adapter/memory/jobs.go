package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

// EnqueueJob persists a new job. Jobs with RunAt in the future keep their
// delayed state; everything else is stored pending.
func (m *Memory) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return flume.ErrJobAlreadyExists
	}

	m.ensureQueueLocked(j.Queue)
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// DequeueJobs atomically claims up to limit due jobs from the given
// queues, sets them active, and returns them. A non-positive limit
// claims every due job. Paused queues are skipped.
func (m *Memory) DequeueJobs(_ context.Context, workerID id.WorkerID, queues []string, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	// Collect candidates, promoting due delayed jobs in the same pass.
	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		switch j.State {
		case job.StatePending, job.StateRetrying, job.StateDelayed:
		default:
			continue
		}
		if !j.RunAt.IsZero() && j.RunAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		if q, ok := m.queues[j.Queue]; ok && q.Paused {
			continue
		}
		candidates = append(candidates, j)
	}

	// Sort: priority DESC, RunAt ASC.
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		j.State = job.StateActive
		j.WorkerID = workerID
		n := now
		j.StartedAt = &n
		j.HeartbeatAt = &n
		// Return a copy so callers can mutate without racing with the store.
		cp := *j
		result[i] = &cp
	}

	return result, nil
}

// GetJob retrieves a job by ID.
func (m *Memory) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, flume.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Memory) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return flume.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = &cp
	return nil
}

// RemoveJob deletes a job and its logs by ID.
func (m *Memory) RemoveJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeJobLocked(jobID)
}

func (m *Memory) removeJobLocked(jobID id.JobID) error {
	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return flume.ErrJobNotFound
	}
	delete(m.jobs, key)
	delete(m.logs, key)
	return nil
}

// RetryJob resets a failed or cancelled job to pending with a zero
// attempt count, runnable immediately.
func (m *Memory) RetryJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryJobLocked(jobID)
}

func (m *Memory) retryJobLocked(jobID id.JobID) error {
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return flume.ErrJobNotFound
	}
	if !j.State.Terminal() {
		return fmt.Errorf("%w: cannot retry job in state %q", flume.ErrInvalidConfiguration, j.State)
	}
	now := time.Now().UTC()
	j.State = job.StatePending
	j.Attempts = 0
	j.LastError = ""
	j.RunAt = now
	j.StartedAt = nil
	j.CompletedAt = nil
	j.HeartbeatAt = nil
	j.UpdatedAt = now
	return nil
}

// PromoteJob moves a delayed job to pending, runnable immediately.
func (m *Memory) PromoteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promoteJobLocked(jobID)
}

func (m *Memory) promoteJobLocked(jobID id.JobID) error {
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return flume.ErrJobNotFound
	}
	if j.State != job.StateDelayed {
		return fmt.Errorf("%w: cannot promote job in state %q", flume.ErrInvalidConfiguration, j.State)
	}
	now := time.Now().UTC()
	j.State = job.StatePending
	j.RunAt = now
	j.UpdatedAt = now
	return nil
}

// RetryJobs is the batch variant of RetryJob. The first error wins.
func (m *Memory) RetryJobs(_ context.Context, jobIDs []id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, jobID := range jobIDs {
		if err := m.retryJobLocked(jobID); err != nil {
			return err
		}
	}
	return nil
}

// RemoveJobs is the batch variant of RemoveJob. The first error wins.
func (m *Memory) RemoveJobs(_ context.Context, jobIDs []id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, jobID := range jobIDs {
		if err := m.removeJobLocked(jobID); err != nil {
			return err
		}
	}
	return nil
}

// PromoteJobs is the batch variant of PromoteJob. The first error wins.
func (m *Memory) PromoteJobs(_ context.Context, jobIDs []id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, jobID := range jobIDs {
		if err := m.promoteJobLocked(jobID); err != nil {
			return err
		}
	}
	return nil
}

// ListJobs returns jobs in a queue matching the given state. An empty
// state matches all states.
func (m *Memory) ListJobs(_ context.Context, queueName string, state job.State, opts adapter.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if queueName != "" && j.Queue != queueName {
			continue
		}
		if state != "" && j.State != state {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// AddJobLog appends a log line to a job's execution log.
func (m *Memory) AddJobLog(_ context.Context, jobID id.JobID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return flume.ErrJobNotFound
	}
	m.logs[key] = append(m.logs[key], job.LogLine{Message: message, At: time.Now().UTC()})
	return nil
}

// GetJobLogs returns a job's log lines in append order.
func (m *Memory) GetJobLogs(_ context.Context, jobID id.JobID) ([]job.LogLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return nil, flume.ErrJobNotFound
	}
	lines := make([]job.LogLine, len(m.logs[key]))
	copy(lines, m.logs[key])
	return lines, nil
}

// HeartbeatJob updates the heartbeat timestamp for an active job.
func (m *Memory) HeartbeatJob(_ context.Context, jobID id.JobID, _ id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return flume.ErrJobNotFound
	}
	now := time.Now().UTC()
	j.HeartbeatAt = &now
	return nil
}

// ReapStaleJobs moves active jobs whose last heartbeat is older than the
// threshold back to pending and returns them.
func (m *Memory) ReapStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-threshold)
	var stale []*job.Job
	for _, j := range m.jobs {
		if j.State != job.StateActive {
			continue
		}
		if j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			j.State = job.StatePending
			j.WorkerID = id.WorkerID{}
			j.StartedAt = nil
			j.HeartbeatAt = nil
			j.RunAt = now
			j.UpdatedAt = now
			cp := *j
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}
