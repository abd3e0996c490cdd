// Package memory provides a fully in-memory Adapter. Safe for concurrent
// access. Intended for unit testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/dlq"
	"github.com/flumeworks/flume/events"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/queue"
)

// Ensure Memory implements the full contract at compile time.
var _ adapter.Adapter = (*Memory)(nil)

// subscriberBuffer is the per-subscription channel capacity. A slow
// consumer that falls this far behind starts losing events.
const subscriberBuffer = 128

type subscriber struct {
	id int
	ch chan events.JobEvent
}

// Memory is the in-memory reference adapter.
type Memory struct {
	mu sync.RWMutex

	registry *job.Registry

	jobs    map[string]*job.Job
	logs    map[string][]job.LogLine
	queues  map[string]*queue.Queue
	dlqs    map[string]*dlq.Entry
	workers map[string]*adapter.Worker

	subMu   sync.Mutex
	subs    map[string][]*subscriber
	nextSub int

	closed bool
}

// New returns a new empty Memory adapter.
func New() *Memory {
	return &Memory{
		registry: job.NewRegistry(),
		jobs:     make(map[string]*job.Job),
		logs:     make(map[string][]job.LogLine),
		queues:   make(map[string]*queue.Queue),
		dlqs:     make(map[string]*dlq.Entry),
		workers:  make(map[string]*adapter.Worker),
		subs:     make(map[string][]*subscriber),
	}
}

// Registry returns the job definition registry backing this adapter.
func (m *Memory) Registry() *job.Registry { return m.registry }

// Ping always succeeds for the memory adapter.
func (m *Memory) Ping(_ context.Context) error { return nil }

// Close releases all subscriptions. Further publishes are dropped.
func (m *Memory) Close() error {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for _, subs := range m.subs {
		for _, s := range subs {
			close(s.ch)
		}
	}
	m.subs = make(map[string][]*subscriber)
	return nil
}

// ensureQueueLocked materializes the queue record for a name. Callers
// must hold m.mu.
func (m *Memory) ensureQueueLocked(name string) *queue.Queue {
	q, ok := m.queues[name]
	if !ok {
		q = &queue.Queue{Entity: flume.NewEntity(), Name: name}
		m.queues[name] = q
	}
	return q
}
