package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/flumeworks/flume"
)

// HandlerFunc is a type-erased job handler that accepts raw JSON payload.
// The typed Definition[T] is converted to a HandlerFunc at registration
// time by closing over JSON unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Erased is the registry's type-erased view of a registered definition.
// It is immutable after registration.
type Erased struct {
	Queue     string
	Name      string
	Handler   HandlerFunc
	Validator Validator
	Limiter   *flume.Limiter
	Opts      Options
}

// key builds the registry map key for a (queue, name) pair.
func key(queue, name string) string {
	return queue + "/" + name
}

// Registry maps (queue, job name) pairs to type-erased definitions.
// It is the source of truth for "is this queue/job known" and is safe
// for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Erased
	queues      map[string]struct{}
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*Erased),
		queues:      make(map[string]struct{}),
	}
}

// RegisterDefinition registers a typed job definition under a queue. The
// generic handler is wrapped in a closure that JSON-unmarshals the payload
// into T before calling the typed handler; a configured Validator runs
// first and rejects the attempt with flume.ErrValidationFailed.
//
// Fails with flume.ErrDuplicateJob when (queue, name) is already taken,
// with flume.ErrHandlerRequired when the definition has no handler, and
// with flume.ErrInvalidConfiguration when its limiter is malformed.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, queue string, def *Definition[T]) error {
	if def.Handler == nil {
		return fmt.Errorf("%w: job %q on queue %q", flume.ErrHandlerRequired, def.Name, queue)
	}
	if def.Limiter != nil {
		if err := def.Limiter.Validate(); err != nil {
			return fmt.Errorf("job %q on queue %q: %w", def.Name, queue, err)
		}
	}

	validator := def.Validator
	typed := def.Handler
	handler := func(ctx context.Context, payload []byte) error {
		if validator != nil {
			if err := validator.Validate(payload); err != nil {
				return fmt.Errorf("%w: job %q: %v", flume.ErrValidationFailed, def.Name, err)
			}
		}
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return fmt.Errorf("%w: unmarshal payload for job %q: %v", flume.ErrValidationFailed, def.Name, err)
			}
		}
		return typed(ctx, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(queue, def.Name)
	if _, exists := r.definitions[k]; exists {
		return fmt.Errorf("%w: %q on queue %q", flume.ErrDuplicateJob, def.Name, queue)
	}
	r.definitions[k] = &Erased{
		Queue:     queue,
		Name:      def.Name,
		Handler:   handler,
		Validator: validator,
		Limiter:   def.Limiter,
		Opts:      def.Opts,
	}
	r.queues[queue] = struct{}{}
	return nil
}

// Get returns the definition for the given queue and job name.
// Returns false if nothing is registered under that pair.
func (r *Registry) Get(queue, name string) (*Erased, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.definitions[key(queue, name)]
	return d, ok
}

// HasQueue reports whether any job has been registered under the queue.
func (r *Registry) HasQueue(queue string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.queues[queue]
	return ok
}

// Queues returns all queue names with at least one registered job.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.queues))
	for q := range r.queues {
		out = append(out, q)
	}
	return out
}

// Names returns all registered job names for a queue.
func (r *Registry) Names(queue string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, d := range r.definitions {
		if d.Queue == queue {
			names = append(names, d.Name)
		}
	}
	return names
}
