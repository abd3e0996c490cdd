package middleware

import (
	"context"

	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/scope"
)

// Scope returns middleware that restores the scope captured at enqueue
// time from the job's ScopeType/ScopeID fields into the context. This
// ensures handlers see the same scope.Entry as the original caller.
func Scope() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx = scope.Restore(ctx, j.ScopeType, j.ScopeID)
		return next(ctx)
	}
}
