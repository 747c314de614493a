// Package requestcontext carries request-scoped values (request id, request time)
// through context.Context so every layer reads the same values for one request.
package requestcontext

import (
	"context"
	"time"

	"credreg/pkg/domain"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithRequestID stores the request id on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id, or "" outside an HTTP request.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTime pins "now" for everything downstream of ctx.
// Services use it as their clock; tests use it to move time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to time.Now().
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

type callerKey struct{}

// WithCaller stores the authenticated caller resolved at the HTTP boundary.
func WithCaller(ctx context.Context, c domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// Caller returns the authenticated caller, or the zero Caller.
func Caller(ctx context.Context) domain.Caller {
	if c, ok := ctx.Value(callerKey{}).(domain.Caller); ok {
		return c
	}
	return domain.Caller{}
}
