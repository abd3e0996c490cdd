package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flumeworks/flume/job"
)

// tracerName is the instrumentation scope name for flume tracing.
const tracerName = "github.com/flumeworks/flume"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: flume.job.id, flume.job.name, flume.queue,
// flume.attempt, flume.scope.type, flume.scope.id.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "flume.job.execute",
			trace.WithAttributes(
				attribute.String("flume.job.id", j.ID.String()),
				attribute.String("flume.job.name", j.Name),
				attribute.String("flume.queue", j.Queue),
				attribute.Int("flume.attempt", j.Attempts),
				attribute.String("flume.scope.type", j.ScopeType),
				attribute.String("flume.scope.id", j.ScopeID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
