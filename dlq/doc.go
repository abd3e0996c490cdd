// Package dlq provides the dead letter queue for jobs that have exhausted
// their attempt budget. It supports inspection, replay, and purging.
//
// When a job fails on its final attempt, the executor calls [Service.Push]
// to move it into the DLQ. The original payload, error message, and attempt
// counts are preserved for debugging.
//
// # Entry
//
// A [Entry] captures:
//   - JobID / JobName / Queue: original job identity
//   - Payload: the raw payload at time of failure
//   - Error: the final error message
//   - Attempts / MaxAttempts: exhausted attempt budget
//   - FailedAt: when the terminal failure occurred
//   - ReplayedAt: set when the entry is replayed (nil if not yet replayed)
//
// # Service
//
// [Service] wraps the DLQ store with high-level operations:
//
//	svc := dlq.NewService(store, backend)
//
//	// Push is called automatically by the executor on terminal failure.
//	svc.Push(ctx, failedJob, err)
//
//	// Access the underlying store for list/get/purge/count.
//	svc.DLQStore().ListDLQ(ctx, dlq.ListOpts{Limit: 50})
//
// # Replay
//
// Replaying an entry re-enqueues the original job with the same payload.
// Replay sets ReplayedAt on the DLQ entry.
package dlq
