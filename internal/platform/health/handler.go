// Package health serves liveness, readiness and status probes.
package health

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"mdlgate/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

// ErrDegraded marks a check that still serves traffic in a reduced mode,
// e.g. trust decisions made from a stale cache.
var ErrDegraded = errors.New("degraded")

// CheckFunc reports a dependency's health: nil, an error wrapping
// ErrDegraded, or any other error for "down".
type CheckFunc func(ctx context.Context) error

type Handler struct {
	startTime   time.Time
	environment string

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func New(environment string) *Handler {
	return &Handler{
		startTime:   time.Now(),
		environment: environment,
		checks:      make(map[string]CheckFunc),
	}
}

// RegisterCheck adds a named check used by readiness and status.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness returns 503 when any check is down. Degraded checks stay ready.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks, down, _ := h.run(r.Context())
	resp := ReadinessResponse{Status: "ready", Checks: checks}
	if down {
		resp.Status = "not_ready"
		httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type StatusResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Environment   string            `json:"environment"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Timestamp     string            `json:"timestamp"`
	Checks        map[string]string `json:"checks,omitempty"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	checks, down, degraded := h.run(r.Context())
	status := "healthy"
	switch {
	case down:
		status = "unhealthy"
	case degraded:
		status = "degraded"
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        status,
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Checks:        checks,
	})
}

func (h *Handler) run(ctx context.Context) (results map[string]string, down, degraded bool) {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	maps.Copy(checks, h.checks)
	h.mu.RUnlock()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results = make(map[string]string, len(checks))
	for _, name := range names {
		err := checks[name](ctx)
		switch {
		case err == nil:
			results[name] = "up"
		case errors.Is(err, ErrDegraded):
			results[name] = "degraded: " + err.Error()
			degraded = true
		default:
			results[name] = "down: " + err.Error()
			down = true
		}
	}
	return results, down, degraded
}
