package memory

import (
	"context"
	"sort"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/queue"
)

// ListQueues returns every known queue, sorted by name. Queues exist
// once a definition is registered on them or a job has been enqueued.
func (m *Memory) ListQueues(_ context.Context) ([]*queue.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Materialize records for registered queues that have no jobs yet.
	for _, name := range m.registry.Queues() {
		m.ensureQueueLocked(name)
	}

	result := make([]*queue.Queue, 0, len(m.queues))
	for _, q := range m.queues {
		cp := *q
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].Name < result[k].Name
	})
	return result, nil
}

// GetQueue retrieves a queue by name.
func (m *Memory) GetQueue(_ context.Context, name string) (*queue.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[name]; ok {
		cp := *q
		return &cp, nil
	}
	if m.registry.HasQueue(name) {
		cp := *m.ensureQueueLocked(name)
		return &cp, nil
	}
	return nil, flume.ErrQueueNotFound
}

// CountQueueJobs returns per-state job counts for a queue.
func (m *Memory) CountQueueJobs(_ context.Context, name string) (queue.Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.queues[name]; !ok && !m.registry.HasQueue(name) {
		return queue.Counts{}, flume.ErrQueueNotFound
	}

	var c queue.Counts
	for _, j := range m.jobs {
		if j.Queue != name {
			continue
		}
		switch j.State {
		case job.StatePending:
			c.Pending++
		case job.StateDelayed:
			c.Delayed++
		case job.StateActive:
			c.Active++
		case job.StateCompleted:
			c.Completed++
		case job.StateFailed:
			c.Failed++
		case job.StateRetrying:
			c.Retrying++
		}
	}
	return c, nil
}

// PauseQueue stops new dispatch from the queue. In-flight jobs finish.
func (m *Memory) PauseQueue(_ context.Context, name string) error {
	return m.setPaused(name, true)
}

// ResumeQueue re-enables dispatch from a paused queue.
func (m *Memory) ResumeQueue(_ context.Context, name string) error {
	return m.setPaused(name, false)
}

func (m *Memory) setPaused(name string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[name]; !ok && !m.registry.HasQueue(name) {
		return flume.ErrQueueNotFound
	}
	q := m.ensureQueueLocked(name)
	q.Paused = paused
	q.Touch()
	return nil
}

// SetQueueLimiter sets (or clears, with nil) the queue's default limiter.
func (m *Memory) SetQueueLimiter(_ context.Context, name string, lim *flume.Limiter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[name]; !ok && !m.registry.HasQueue(name) {
		return flume.ErrQueueNotFound
	}
	if lim != nil {
		if err := lim.Validate(); err != nil {
			return err
		}
		cp := *lim
		lim = &cp
	}
	q := m.ensureQueueLocked(name)
	q.DefaultLimiter = lim
	q.Touch()
	return nil
}

// CleanQueue removes jobs matching the criteria.
func (m *Memory) CleanQueue(_ context.Context, name string, criteria queue.CleanCriteria) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[name]; !ok && !m.registry.HasQueue(name) {
		return 0, flume.ErrQueueNotFound
	}

	now := time.Now().UTC()
	var removed int64
	for key, j := range m.jobs {
		if j.Queue != name {
			continue
		}
		if !criteria.Matches(j, now) {
			continue
		}
		delete(m.jobs, key)
		delete(m.logs, key)
		removed++
		if criteria.Limit > 0 && removed >= int64(criteria.Limit) {
			break
		}
	}
	return removed, nil
}

// DrainQueue removes all pending and delayed jobs from a queue. Active
// jobs are not affected.
func (m *Memory) DrainQueue(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[name]; !ok && !m.registry.HasQueue(name) {
		return 0, flume.ErrQueueNotFound
	}

	var removed int64
	for key, j := range m.jobs {
		if j.Queue != name {
			continue
		}
		if j.State != job.StatePending && j.State != job.StateDelayed && j.State != job.StateRetrying {
			continue
		}
		delete(m.jobs, key)
		delete(m.logs, key)
		removed++
	}
	return removed, nil
}
