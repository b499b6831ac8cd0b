package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-jose/go-jose/v3"
	"github.com/prometheus/client_golang/prometheus"

	"mdlgate/internal/platform/device"
	"mdlgate/internal/platform/metrics"
	"mdlgate/pkg/platform/httputil"
	"mdlgate/pkg/platform/middleware/request"
	"mdlgate/pkg/platform/validation"
)

// Registrar is implemented by every bounded-context handler.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries the process-level pieces the router exposes
// directly.
type RouterConfig struct {
	// JWKS is served at /.well-known/jwks.json.
	JWKS jose.JSONWebKeySet
	// Registry is served at /metrics; nil disables the endpoint.
	Registry *prometheus.Registry
	// RequestMetrics records per-endpoint latency when set.
	RequestMetrics *request.Metrics
	// MaxBodyBytes caps request bodies; zero uses validation.MaxBodySize.
	MaxBodyBytes int64
	// RateLimit, when set, runs after the access log so rejections are logged.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter wires the middleware stack and every handler. The transport
// layer holds no business logic.
func NewRouter(logger *slog.Logger, cfg RouterConfig, handlers ...Registrar) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = validation.MaxBodySize
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(request.RequestTime)
	r.Use(request.ClientMetadata)
	r.Use(request.Device(device.Describe))
	r.Use(request.Logger(logger))
	if cfg.RateLimit != nil {
		r.Use(cfg.RateLimit)
	}
	r.Use(request.ContentTypeJSON)
	r.Use(request.BodyLimit(cfg.MaxBodyBytes))
	r.Use(request.Latency(cfg.RequestMetrics))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})

	jwks := cfg.JWKS
	r.Get("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, jwks)
	})
	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Registry))
	}

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}
