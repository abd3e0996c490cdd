package dlq

import (
	"context"
	"time"

	"github.com/flumeworks/flume/id"
)

// ListOpts narrows and pages a dead-letter listing. The zero value
// lists every entry across all queues.
type ListOpts struct {
	// Limit caps the number of entries returned; non-positive means
	// unbounded.
	Limit int
	// Offset skips that many entries, oldest failure first.
	Offset int
	// Queue restricts the listing to entries whose job ran on the named
	// queue; empty matches every queue.
	Queue string
}

// Store is the dead-letter persistence an adapter provides. Both the
// memory and Redis adapters satisfy it; Service layers retries and
// replay orchestration on top.
type Store interface {
	// PushDLQ records a job that exhausted its attempts, together with
	// its final error.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ pages through recorded entries per opts.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ looks up a single entry. Unknown IDs are an error.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// ReplayDLQ marks an entry replayed. It does not touch the job
	// itself; Service.Replay re-enqueues before calling this.
	ReplayDLQ(ctx context.Context, entryID id.DLQID) error

	// PurgeDLQ drops entries whose failure predates the cutoff and
	// reports how many were dropped.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ reports how many entries are currently recorded.
	CountDLQ(ctx context.Context) (int64, error)
}
