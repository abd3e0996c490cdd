package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flumeworks/flume/scope"
)

// Router publishes job events to one or two channels depending on tenant
// scope. It is safe for concurrent use: all state is set at construction.
type Router struct {
	publisher   Publisher
	prefix      string
	service     string
	environment string
	logger      *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithPrefix overrides the channel namespace prefix.
func WithPrefix(prefix string) RouterOption {
	return func(r *Router) { r.prefix = prefix }
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a Router publishing through the given Publisher for
// a service in an environment (e.g. "billing", "production").
func NewRouter(p Publisher, service, environment string, opts ...RouterOption) *Router {
	r := &Router{
		publisher:   p,
		prefix:      DefaultPrefix,
		service:     service,
		environment: environment,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BaseChannel returns the router's base channel name.
func (r *Router) BaseChannel() string {
	return BaseChannel(r.prefix, r.environment, r.service)
}

// ScopeChannel returns the scope channel name for a tenant entry:
// "<base>:scope:<type>:<id>".
func (r *Router) ScopeChannel(e scope.Entry) string {
	return fmt.Sprintf("%s:scope:%s:%s", r.BaseChannel(), e.Type, e.ID)
}

// PublishJobsEvent publishes evt to the base channel and, when sc is
// non-nil and carries tenant information, additionally to the scope
// channel. The publishes are sequential: the scope publish begins only
// after the base publish has returned. Do not parallelize this — the
// base-before-scope ordering is a contract subscribers rely on.
//
// No scope means exactly one publish call; a scope means exactly two.
func (r *Router) PublishJobsEvent(ctx context.Context, evt JobEvent, sc *scope.Entry) error {
	channels := []string{r.BaseChannel()}
	if sc != nil && !sc.IsZero() {
		channels = append(channels, r.ScopeChannel(*sc))
	}

	for _, ch := range channels {
		if err := r.publisher.PublishEvent(ctx, ch, evt); err != nil {
			return fmt.Errorf("publish %q to %q: %w", evt.Type, ch, err)
		}
	}
	return nil
}
