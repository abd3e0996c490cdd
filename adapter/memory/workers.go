package memory

import (
	"context"
	"sort"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/id"
)

// RegisterWorker records a worker and its configuration.
func (m *Memory) RegisterWorker(_ context.Context, w *adapter.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *w
	cp.Queues = append([]string(nil), w.Queues...)
	m.workers[w.ID.String()] = &cp
	return nil
}

// WorkerHeartbeat refreshes a worker's LastSeen timestamp.
func (m *Memory) WorkerHeartbeat(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return flume.ErrWorkerNotFound
	}
	w.LastSeen = time.Now().UTC()
	return nil
}

// DeregisterWorker marks a worker stopped.
func (m *Memory) DeregisterWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return flume.ErrWorkerNotFound
	}
	w.State = adapter.WorkerStopped
	w.LastSeen = time.Now().UTC()
	return nil
}

// ListWorkers returns every registered worker, oldest first.
func (m *Memory) ListWorkers(_ context.Context) ([]*adapter.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*adapter.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		cp := *w
		cp.Queues = append([]string(nil), w.Queues...)
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}
