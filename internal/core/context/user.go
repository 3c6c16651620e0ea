// Package context carries per-request values used across layers.
package context

import (
	"context"
)

// UserContext identifies the acting user for audit stamping.
// Authentication itself is handled outside this service; consumers pass
// the user identity through a trusted header.
type UserContext struct {
	UserID string
}

// TraceContext correlates log lines and spans belonging to one request.
// The HTTP layer fills it from the incoming headers, generating ids when
// the caller sent none.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type (
	userContextKey  struct{}
	traceContextKey struct{}
)

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context or nil.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns the acting user id or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context or nil.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}
