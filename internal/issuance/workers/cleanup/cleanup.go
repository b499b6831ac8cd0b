package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mdlgate/internal/issuance/metrics"
)

// Store is a session table that can drop expired entries.
type Store interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Count() int
}

// Target is one session table swept on every run. Gauge, when set,
// receives the number of sessions left after the sweep.
type Target struct {
	Kind  string
	Store Store
	Gauge func(n int)
}

// Result maps target kind to deleted sessions.
type Result map[string]int

// CleanupService periodically removes expired verification and issuance
// sessions so the in-memory tables stay bounded.
type CleanupService struct {
	targets  []Target
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type CleanupOption func(*CleanupService)

// WithCleanupInterval overrides the cleanup interval when greater than zero.
func WithCleanupInterval(interval time.Duration) CleanupOption {
	return func(s *CleanupService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithCleanupLogger(logger *slog.Logger) CleanupOption {
	return func(s *CleanupService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCleanupMetrics(m *metrics.Metrics) CleanupOption {
	return func(s *CleanupService) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CleanupOption {
	return func(s *CleanupService) {
		if now != nil {
			s.now = now
		}
	}
}

func New(targets []Target, opts ...CleanupOption) (*CleanupService, error) {
	if len(targets) == 0 {
		return nil, errors.New("at least one cleanup target is required")
	}
	for _, t := range targets {
		if t.Kind == "" || t.Store == nil {
			return nil, fmt.Errorf("cleanup target %q needs a kind and a store", t.Kind)
		}
	}
	svc := &CleanupService{
		targets:  targets,
		interval: time.Minute,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs cleanup periodically until ctx is cancelled.
func (s *CleanupService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "session cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce sweeps every target once. A failing target does not stop the
// others; errors are joined.
func (s *CleanupService) RunOnce(ctx context.Context) (Result, error) {
	now := s.now()
	res := make(Result, len(s.targets))
	var errs []error

	for _, t := range s.targets {
		deleted, err := t.Store.DeleteExpired(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep expired %s entries: %w", t.Kind, err))
			continue
		}
		res[t.Kind] = deleted
		s.metrics.AddSwept(t.Kind, deleted)
		if t.Gauge != nil {
			t.Gauge(t.Store.Count())
		}
		if deleted > 0 {
			s.logger.DebugContext(ctx, "expired entries removed", "kind", t.Kind, "deleted", deleted)
		}
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}
