// Package observability provides an OpenTelemetry lifecycle-metrics
// extension. It implements the hook interfaces and counts every job
// lifecycle event, labeled by queue and job name, so dashboards can
// track throughput, failure, and retry rates without touching handlers.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/flumeworks/flume/hook"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

// meterName is the instrumentation scope name for flume metrics.
const meterName = "github.com/flumeworks/flume"

// Compile-time interface checks.
var (
	_ hook.Hook         = (*MetricsExtension)(nil)
	_ hook.JobEnqueued  = (*MetricsExtension)(nil)
	_ hook.JobActive    = (*MetricsExtension)(nil)
	_ hook.JobCompleted = (*MetricsExtension)(nil)
	_ hook.JobFailed    = (*MetricsExtension)(nil)
	_ hook.JobRetrying  = (*MetricsExtension)(nil)
	_ hook.JobDLQ       = (*MetricsExtension)(nil)
	_ hook.WorkerIdle   = (*MetricsExtension)(nil)
)

// MetricsExtension counts lifecycle events through OTel instruments.
// Register it on a worker builder with WithHook.
type MetricsExtension struct {
	enqueued  metric.Int64Counter
	active    metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	dlq       metric.Int64Counter
	idle      metric.Int64Counter
}

// NewMetricsExtension builds the extension against the global OTel
// MeterProvider. Without a configured provider the instruments are
// noops and every hook becomes a pass-through.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter builds the extension against an explicit
// meter, used in tests with the SDK's manual reader.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name,
			metric.WithDescription(desc),
			metric.WithUnit("{event}"))
		if err != nil {
			c, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(name) //nolint:errcheck // noop counter creation cannot fail
		}
		return c
	}

	return &MetricsExtension{
		enqueued:  counter("flume.jobs.enqueued", "Jobs accepted onto a queue."),
		active:    counter("flume.jobs.active", "Job attempts started."),
		completed: counter("flume.jobs.completed", "Jobs finished successfully."),
		failed:    counter("flume.jobs.failed", "Jobs failed terminally."),
		retried:   counter("flume.jobs.retried", "Job attempts scheduled for retry."),
		dlq:       counter("flume.jobs.dlq", "Jobs moved to the dead letter queue."),
		idle:      counter("flume.workers.idle", "Worker idle transitions."),
	}
}

// Name implements hook.Hook.
func (m *MetricsExtension) Name() string { return "otel-metrics" }

func jobAttrs(j *job.Job) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("queue", j.Queue),
		attribute.String("job_name", j.Name),
	)
}

// OnJobEnqueued implements hook.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.enqueued.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobActive implements hook.JobActive.
func (m *MetricsExtension) OnJobActive(ctx context.Context, j *job.Job) error {
	m.active.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements hook.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.completed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements hook.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.failed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobRetrying implements hook.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Duration) error {
	m.retried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobDLQ implements hook.JobDLQ.
func (m *MetricsExtension) OnJobDLQ(ctx context.Context, j *job.Job, _ error) error {
	m.dlq.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnWorkerIdle implements hook.WorkerIdle.
func (m *MetricsExtension) OnWorkerIdle(ctx context.Context, workerID id.WorkerID) error {
	m.idle.Add(ctx, 1, metric.WithAttributes(
		attribute.String("worker_id", workerID.String()),
	))
	return nil
}
