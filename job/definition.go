package job

import (
	"context"

	"github.com/flumeworks/flume"
)

// Validator checks a raw job payload before the handler runs.
// A rejection fails the attempt with flume.ErrValidationFailed.
type Validator interface {
	Validate(payload []byte) error
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(payload []byte) error

// Validate implements Validator.
func (f ValidatorFunc) Validate(payload []byte) error { return f(payload) }

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable). Definitions are
// created once at registration time and never mutated afterwards.
type Definition[T any] struct {
	// Name is the identifier for this job type, unique within its queue.
	Name string

	// Handler is the function that processes the job payload.
	Handler func(ctx context.Context, payload T) error

	// Validator optionally checks the raw payload before unmarshalling.
	Validator Validator

	// Limiter optionally rate-limits dispatch of this job type. It takes
	// precedence over queue-level and worker-level limiters.
	Limiter *flume.Limiter

	// Opts configures retries, priority, and timeout.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// WithValidator attaches a payload validator to the definition.
func (d *Definition[T]) WithValidator(v Validator) *Definition[T] {
	d.Validator = v
	return d
}

// WithLimiter attaches a job-level rate limiter to the definition.
// Invalid limiters are rejected at registration, not at dispatch.
func (d *Definition[T]) WithLimiter(l flume.Limiter) *Definition[T] {
	d.Limiter = &l
	return d
}
