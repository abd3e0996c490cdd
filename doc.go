// Package flume provides a backend-agnostic background-job execution
// engine. Applications register job handlers under named queues on an
// adapter, enqueue work, and run workers that pull and execute jobs with
// bounded concurrency, rate limiting, retries, and multi-tenant event
// scoping.
//
// Flume is designed as a library, not a service. Import it, pick an
// adapter, register jobs as ordinary Go functions, and start a worker:
//
//	a := memory.New()
//	if err := adapter.RegisterJob(a, "email", job.NewDefinition("send", sendEmail)); err != nil {
//	    return err
//	}
//
//	b, err := worker.NewBuilder(a)
//	if err != nil {
//	    return err
//	}
//	b, err = b.AddQueue("email")
//	if err != nil {
//	    return err
//	}
//	b, err = b.WithConcurrency(5)
//	if err != nil {
//	    return err
//	}
//	h, err := b.Start(ctx)
//
// # Architecture
//
// The adapter owns persistence, dispatch, queue/job management, and event
// publication; a single backend implements the whole adapter.Adapter
// contract (reference in-memory and Redis-backed implementations ship
// under adapter/memory and adapter/redis). Workers are pure consumers:
// the immutable worker.Builder validates configuration up front and
// Start returns a worker.Handle, the live control surface
// (pause/resume/close plus metrics).
//
// Lifecycle events flow two ways: the hook registry fans them out to
// in-process extensions (telemetry, metrics), and the events.Router
// publishes them to the adapter's channels, tenant-scoped when a
// scope.Entry is attached.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package flume
