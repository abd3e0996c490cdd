package memory

import (
	"context"
	"sort"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/dlq"
	"github.com/flumeworks/flume/id"
)

// PushDLQ adds a failed job entry to the dead letter queue.
func (m *Memory) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest first.
func (m *Memory) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.Before(result[k].FailedAt)
	})

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

// GetDLQ retrieves a DLQ entry by ID.
func (m *Memory) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, flume.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (m *Memory) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return flume.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (m *Memory) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (m *Memory) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.dlqs)), nil
}
