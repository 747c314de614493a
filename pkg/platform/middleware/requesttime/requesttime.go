// Package requesttime captures one "now" per HTTP request so accreditation
// expiry checks, credential timestamps and audit events within a request agree.
package requesttime

import (
	"context"
	"net/http"
	"time"

	"credreg/pkg/requestcontext"
)

// Middleware pins the request start time on the context.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock is Middleware reading the time from now. Used by acceptance
// tests that need to move the registry clock past an accreditation expiry.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Now is shorthand for requestcontext.Now.
func Now(ctx context.Context) time.Time { return requestcontext.Now(ctx) }

// WithTime is shorthand for requestcontext.WithTime.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}
