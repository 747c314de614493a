// Package health serves the registry's liveness, readiness and status probes.
//
// Readiness distinguishes dependencies the registry cannot serve without
// (the ledger, the role directory) from ones it can run degraded on. A broker
// outage only delays the outbox relay, so Kafka is registered as optional.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"credreg/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

// CheckFunc returns nil while the dependency is usable.
type CheckFunc func(ctx context.Context) error

// HeightFunc reports the committed ledger height for the status probe.
type HeightFunc func(ctx context.Context) (uint64, error)

const checkTimeout = 2 * time.Second

type check struct {
	fn       CheckFunc
	required bool
}

type Handler struct {
	startTime   time.Time
	environment string
	height      HeightFunc

	mu     sync.RWMutex
	checks map[string]check
}

func New(environment string) *Handler {
	return &Handler{
		startTime:   time.Now(),
		environment: environment,
		checks:      make(map[string]check),
	}
}

// RegisterCheck adds a dependency the registry cannot serve without.
func (h *Handler) RegisterCheck(name string, fn CheckFunc) {
	h.register(name, check{fn: fn, required: true})
}

// RegisterOptional adds a dependency whose failure degrades but does not
// fail readiness.
func (h *Handler) RegisterOptional(name string, fn CheckFunc) {
	h.register(name, check{fn: fn})
}

// ReportHeight adds the ledger height to the status probe.
func (h *Handler) ReportHeight(fn HeightFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.height = fn
}

func (h *Handler) register(name string, c check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

// HandleLiveness answers 200 as long as the process serves HTTP.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

// ReadinessResponse status is "ready", "degraded" (an optional check is
// down) or "not_ready" (a required check is down, answered with 503).
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs every check concurrently, each under its own deadline.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	checks := make([]check, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		checks = append(checks, h.checks[name])
	}
	h.mu.RUnlock()

	errs := make([]error, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.fn(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(names))}
	for i, name := range names {
		if errs[i] == nil {
			resp.Checks[name] = "up"
			continue
		}
		resp.Checks[name] = "down: " + errs[i].Error()
		switch {
		case checks[i].required:
			resp.Status = "not_ready"
		case resp.Status == "ready":
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if resp.Status == "not_ready" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

type StatusResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Environment   string  `json:"environment"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	LedgerHeight  *uint64 `json:"ledger_height,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	h.mu.RLock()
	height := h.height
	h.mu.RUnlock()
	if height != nil {
		if n, err := height(r.Context()); err == nil {
			resp.LedgerHeight = &n
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
