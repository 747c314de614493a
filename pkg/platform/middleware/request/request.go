// Package request holds the HTTP middleware every registry route runs
// through: request ids, panic recovery, access logging, latency and body
// guards.
package request

import (
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"credreg/internal/platform/privacy"
	"credreg/pkg/requestcontext"
)

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-ID"

// MaxRequestIDLength bounds client-supplied request ids.
const MaxRequestIDLength = 128

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// RequestID reuses a well-formed client X-Request-ID, or mints a UUID when
// the header is missing or could pollute log lines.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(HeaderRequestID)
		if !acceptableRequestID(rid) {
			rid = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, rid)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), rid)))
	})
}

func acceptableRequestID(rid string) bool {
	return rid != "" && len(rid) <= MaxRequestIDLength && requestIDPattern.MatchString(rid)
}

// Recovery turns a handler panic into a 500 envelope. The ledger is left as
// the last committed transition because writes are atomic.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				ctx := r.Context()
				logger.ErrorContext(ctx, "panic recovered",
					"error", rec,
					"route", routePattern(r),
					"method", r.Method,
					"request_id", requestcontext.RequestID(ctx),
					"stack", string(debug.Stack()),
				)
				writeEnvelope(w, http.StatusInternalServerError, "internal_error", "")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Logger writes one access line per request. Paths can carry subject
// identities, so only the route pattern and a masked client network are
// logged. Successful probes and scrapes are skipped.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if isProbePath(r.URL.Path) && sw.status < http.StatusInternalServerError {
				return
			}
			ctx := r.Context()
			logger.InfoContext(ctx, "http request",
				"method", r.Method,
				"route", routePattern(r),
				"client", privacy.AnonymizeIP(r.RemoteAddr),
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestcontext.RequestID(ctx),
			)
		})
	}
}

// LatencyMiddleware observes latency labelled "METHOD pattern" so ids in the
// path stay out of label values.
func LatencyMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if m == nil {
				return
			}
			endpoint := routePattern(r)
			if endpoint != unmatchedRoute {
				endpoint = r.Method + " " + endpoint
			}
			m.ObserveEndpointLatency(endpoint, time.Since(start).Seconds())
		})
	}
}

const unmatchedRoute = "unmatched"

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}

func isProbePath(path string) bool {
	switch path {
	case "/health", "/health/live", "/health/ready", "/metrics":
		return true
	}
	return false
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
