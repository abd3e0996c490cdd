// Package job defines the job entity, state machine, typed definitions,
// and the (queue, name)-keyed registry.
//
// # Job Entity
//
// A [Job] represents a unit of work. It embeds [flume.Entity] for
// timestamps, carries a typed payload (JSON), and progresses through a
// state machine:
//
//	pending → active → completed
//	pending → active → retrying → active → ...
//	pending → active → failed (→ dlq)
//	delayed → pending → ...
//	pending → cancelled
//
// Fields of note:
//   - Queue: which queue the job belongs to
//   - Priority: higher values are dequeued first
//   - MaxAttempts / Attempts: controls the retry budget
//   - RunAt: earliest time the job may be dequeued
//   - Timeout: per-job execution deadline (zero = unlimited)
//   - Repeat: optional "@every ..." or cron repetition rule
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The payload is JSON-serialized
// at enqueue time and deserialized before the handler runs:
//
//	var SendEmail = job.NewDefinition("send",
//	    func(ctx context.Context, input EmailInput) error {
//	        return mailer.Send(input.To, input.Subject, input.Body)
//	    },
//	)
//
// # Registry
//
// [Registry] maps (queue, name) pairs to type-erased [Erased] definitions
// with explicit duplicate detection. The registry is owned by the adapter;
// register definitions at startup through adapter.Register:
//
//	adapter.Register(a, "email", SendEmail)
package job
