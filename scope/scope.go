// Package scope provides the multi-tenant tag attached to jobs and
// events, plus helpers to carry it through context.Context.
//
// A scope is an optional (type, id) pair — "organization org_123",
// "user usr_9" — recorded at enqueue time and restored into the handler
// context, so downstream code and event routing see the same tenant as
// the original caller.
package scope

import (
	"context"

	"github.com/flumeworks/flume"
)

// Entry is a tenant tag attached to enqueue and event operations.
type Entry struct {
	// Type names the tenant dimension, e.g. "organization" or "user".
	Type string `json:"type"`

	// ID identifies the tenant within its dimension.
	ID string `json:"id"`
}

// IsZero reports whether the entry carries no tenant information.
func (e Entry) IsZero() bool {
	return e.Type == "" && e.ID == ""
}

type ctxKey struct{}

// Attach returns a context carrying the given scope entry.
// Attaching over a context that already carries a scope fails with
// flume.ErrScopeAlreadyDefined — a scope is set once per call chain.
func Attach(ctx context.Context, e Entry) (context.Context, error) {
	if _, ok := From(ctx); ok {
		return ctx, flume.ErrScopeAlreadyDefined
	}
	return context.WithValue(ctx, ctxKey{}, e), nil
}

// From extracts the scope entry from the context.
// The second return is false when no scope is present.
func From(ctx context.Context) (Entry, bool) {
	e, ok := ctx.Value(ctxKey{}).(Entry)
	return e, ok
}

// Capture extracts the scope type and id from the context.
// Returns empty strings if no scope is present.
func Capture(ctx context.Context) (scopeType, scopeID string) {
	e, ok := From(ctx)
	if !ok {
		return "", ""
	}
	return e.Type, e.ID
}

// Restore attaches a scope to the context from raw type and id values.
// If both are empty, the context is returned unchanged (no-op). Unlike
// Attach, Restore overwrites silently: it is used when rehydrating a
// job's recorded scope on the worker side, where the incoming context
// is always scope-free.
func Restore(ctx context.Context, scopeType, scopeID string) context.Context {
	if scopeType == "" && scopeID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, Entry{Type: scopeType, ID: scopeID})
}
