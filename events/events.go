// Package events computes lifecycle event types and channel names, and
// routes job events to the adapter's channels.
//
// Every event goes to the base channel for its environment and service.
// When a tenant scope is attached, the identical event is additionally
// published to a scope channel, after the base publish has completed —
// scope-channel subscribers never observe an event the base channel has
// not yet delivered.
package events

import (
	"context"
	"time"
)

// Lifecycle event names used in job event types.
const (
	EventEnqueued  = "enqueued"
	EventActive    = "active"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventRetrying  = "retrying"
	EventIdle      = "idle"
	EventPaused    = "paused"
	EventResumed   = "resumed"
	EventDrained   = "drained"
)

// DefaultPrefix is the channel namespace prefix used when none is configured.
const DefaultPrefix = "flume"

// Default service and environment names used to derive channel names
// when the caller does not configure their own. Enqueuers and workers
// that share these defaults share channels.
const (
	DefaultService     = "app"
	DefaultEnvironment = "production"
)

// JobEvent is an immutable value published to event channels.
type JobEvent struct {
	// Type is "<queue>:<jobName>:<eventName>".
	Type string `json:"type"`

	// Timestamp is the emission time in RFC 3339 form.
	Timestamp string `json:"timestamp"`

	// Payload carries event-specific attributes.
	Payload map[string]any `json:"payload,omitempty"`
}

// NewJobEvent builds a JobEvent stamped with the current time.
func NewJobEvent(queue, jobName, event string, payload map[string]any) JobEvent {
	return JobEvent{
		Type:      JobEventType(queue, jobName, event),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
}

// JobEventType builds the event type string "<queue>:<jobName>:<event>".
// Pure string construction: empty components yield "::", not an error —
// callers are responsible for supplying valid names.
func JobEventType(queue, jobName, event string) string {
	return queue + ":" + jobName + ":" + event
}

// BaseChannel returns the channel every event is published to:
// "<prefix>:events:<environment>:<service>".
func BaseChannel(prefix, environment, service string) string {
	return prefix + ":events:" + environment + ":" + service
}

// Publisher delivers an event to a named channel. Adapters implement it.
// Delivery is at-least-once; ordering within a single channel is
// preserved.
type Publisher interface {
	PublishEvent(ctx context.Context, channel string, evt JobEvent) error
}
