// Package telemetry provides the fire-and-forget side channel for
// lifecycle events. A Sink is an external observer (console exporter,
// OTLP bridge, chat webhook); Emit guarantees that nothing a sink does —
// including panicking — ever affects job processing.
package telemetry

import "context"

// Level classifies a telemetry envelope.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Envelope is the payload handed to a Sink. It is ephemeral: Flume never
// persists it.
type Envelope struct {
	// Attributes are flat primitive key/values describing the event.
	Attributes map[string]any

	// Level is "info" or "error".
	Level Level
}

// Sink receives telemetry envelopes. Implementations may block or panic;
// callers go through Emit, which tolerates both. Emit is invoked inline
// on the worker path, so slow sinks should buffer internally.
type Sink interface {
	Emit(ctx context.Context, eventName string, env Envelope)
}

// Emit forwards an event to the sink, swallowing every failure.
// A nil sink is a no-op. A panicking sink is recovered and discarded —
// job processing must never be affected by telemetry failures.
func Emit(ctx context.Context, sink Sink, eventName string, attributes map[string]any, level ...Level) {
	if sink == nil {
		return
	}

	lvl := LevelInfo
	if len(level) > 0 {
		lvl = level[0]
	}

	defer func() {
		_ = recover()
	}()
	sink.Emit(ctx, eventName, Envelope{Attributes: attributes, Level: lvl})
}
