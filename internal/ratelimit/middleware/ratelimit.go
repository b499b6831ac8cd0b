package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mdlgate/internal/ratelimit/models"
	"mdlgate/pkg/platform/httputil"
	"mdlgate/pkg/requestcontext"
)

// Limiter consumes one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit models.Limit, now time.Time) (*models.RateLimitResult, error)
}

type Metrics struct {
	Rejected *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Rejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mdlgate_rate_limited_requests_total",
			Help: "Requests rejected by the per-IP rate limiter",
		}, []string{"class"}),
	}
}

func (m *Metrics) incRejected(class models.EndpointClass) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(string(class)).Inc()
}

type Middleware struct {
	limiter Limiter
	limits  map[models.EndpointClass]models.Limit
	logger  *slog.Logger
	metrics *Metrics
}

func New(limiter Limiter, limits map[models.EndpointClass]models.Limit, logger *slog.Logger, metrics *Metrics) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{limiter: limiter, limits: limits, logger: logger, metrics: metrics}
}

// RateLimit limits classified routes per client IP. Requires the
// ClientMetadata and RequestTime middlewares to run first. A limiter error
// lets the request through.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class, ok := models.ClassForPath(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		limit, ok := m.limits[class]
		if !ok || limit.RequestsPerWindow <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := string(class) + ":" + requestcontext.ClientIP(ctx)
		result, err := m.limiter.Allow(ctx, key, limit, requestcontext.Now(ctx))
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check rate limit",
				"error", err,
				"class", class,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			m.metrics.incRejected(class)
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"class", class,
				"request_id", requestcontext.RequestID(ctx),
			)
			writeRateLimitExceeded(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:            "rate_limit_exceeded",
		ErrorDescription: "too many requests from this address, try again later",
		RetryAfter:       result.RetryAfter,
	})
}
