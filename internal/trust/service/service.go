package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"mdlgate/internal/platform/tracer"
	"mdlgate/internal/trust/metrics"
	"mdlgate/internal/trust/models"
	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/audit"
	"mdlgate/pkg/platform/sentinel"
	psync "mdlgate/pkg/platform/sync"
	"mdlgate/pkg/requestcontext"
)

const (
	defaultTTL          = 24 * time.Hour
	defaultRetryBackoff = 30 * time.Second
	rootFetchLimit      = 4
	refreshKey          = "trust-list"
)

// Service is the trust store. It caches the trust list for a TTL, falls
// back to the last good copy when a refresh fails, and is the only place
// where issuer pinning decisions are made.
type Service struct {
	source       Source
	cache        Cache
	roots        RootSource
	accepted     []string
	ttl          time.Duration
	retryBackoff time.Duration
	requireRoots bool

	current     atomic.Pointer[entry]
	lastFailure atomic.Int64
	group       singleflight.Group

	rootLocks *psync.KeyedMutex
	rootsMu   sync.RWMutex
	rootTable map[string]rootEntry

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	auditor *audit.Logger
}

// entry is one loaded trust list. Never mutated after construction.
type entry struct {
	records   map[string]models.Record
	fetchedAt time.Time
	version   string
}

type rootEntry struct {
	root      models.Root
	checkedAt time.Time
}

type Option func(*Service)

// WithCache persists refreshed lists and serves as the stale fallback.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRootSource enables per-jurisdiction root certificate downloads.
func WithRootSource(r RootSource) Option {
	return func(s *Service) { s.roots = r }
}

// WithRequireRoots rejects issuers whose jurisdiction root is unavailable.
func WithRequireRoots(require bool) Option {
	return func(s *Service) { s.requireRoots = require }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRetryBackoff bounds how often a failing source is retried while a
// stale copy is being served. Zero retries on every call.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.retryBackoff = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithAuditLogger(a *audit.Logger) Option {
	return func(s *Service) { s.auditor = a }
}

// New creates the trust store for the given allow-list.
func New(source Source, accepted []string, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, errors.New("trust source is required")
	}
	codes, err := normalizeAccepted(accepted)
	if err != nil {
		return nil, err
	}
	s := &Service{
		source:       source,
		accepted:     codes,
		ttl:          defaultTTL,
		retryBackoff: defaultRetryBackoff,
		rootLocks:    psync.NewKeyedMutex(),
		rootTable:    make(map[string]rootEntry),
		logger:       slog.Default(),
		tracer:       tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func normalizeAccepted(accepted []string) ([]string, error) {
	codes := make([]string, 0, len(accepted))
	for _, code := range accepted {
		code = strings.ToUpper(strings.TrimSpace(code))
		if !isJurisdictionCode(code) {
			return nil, fmt.Errorf("invalid accepted jurisdiction %q", code)
		}
		if !slices.Contains(codes, code) {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return nil, errors.New("at least one accepted jurisdiction is required")
	}
	return codes, nil
}

func isJurisdictionCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Fetch returns the current trust snapshot. A fresh cache is returned as is;
// otherwise the list is refreshed from the source. When the refresh fails any
// cached copy is served with Stale set. Without any copy the error carries
// CodeTrustUnavailable. force discards the in-memory copy first but still
// falls back to the on-disk one.
func (s *Service) Fetch(ctx context.Context, force bool) (*models.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTrustFetch, tracer.Bool(tracer.AttrForce, force))
	snap, err := s.fetch(ctx, force)
	if snap != nil {
		span.SetAttributes(tracer.Bool(tracer.AttrStale, snap.Stale))
		if snap.Stale {
			span.AddEvent(tracer.EventStaleFallback)
		}
	}
	span.End(err)
	return snap, err
}

func (s *Service) fetch(ctx context.Context, force bool) (*models.Snapshot, error) {
	now := requestcontext.Now(ctx)
	if force {
		s.current.Store(nil)
		s.lastFailure.Store(0)
	}

	cur := s.current.Load()
	if cur == nil && !force {
		cur = s.loadFromDisk(ctx)
	}
	if cur != nil && s.fresh(cur, now) {
		return s.view(cur, false, now), nil
	}
	if cur != nil && s.inBackoff(now) {
		s.metrics.IncrementStaleFallback()
		return s.view(cur, true, now), nil
	}

	refreshed, err := s.refresh(ctx)
	if err == nil {
		return s.view(refreshed, false, now), nil
	}

	if cur == nil && force {
		cur = s.loadFromDisk(ctx)
	}
	if cur == nil {
		s.logger.ErrorContext(ctx, "trust list unavailable and no cached copy",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeTrustUnavailable, "trust list unavailable and no cached copy")
	}
	s.noteStale(ctx, cur, err)
	return s.view(cur, true, now), nil
}

func (s *Service) fresh(e *entry, now time.Time) bool {
	return now.Sub(e.fetchedAt) < s.ttl
}

func (s *Service) inBackoff(now time.Time) bool {
	last := s.lastFailure.Load()
	if last == 0 {
		return false
	}
	return now.Sub(time.Unix(0, last)) < s.retryBackoff
}

func (s *Service) view(e *entry, stale bool, now time.Time) *models.Snapshot {
	s.metrics.SetCacheAge(now.Sub(e.fetchedAt))
	return &models.Snapshot{
		Records:   e.records,
		Roots:     s.rootsView(),
		FetchedAt: e.fetchedAt,
		Version:   e.version,
		Stale:     stale,
	}
}

// refresh coalesces concurrent refreshes into one source call. The shared
// call is detached from the caller so an abandoned request does not cancel
// it for everyone else.
func (s *Service) refresh(ctx context.Context) (*entry, error) {
	ch := s.group.DoChan(refreshKey, func() (any, error) {
		return s.doRefresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) doRefresh(ctx context.Context) (*entry, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTrustRefresh)
	start := time.Now()
	e, err := s.refreshOnce(ctx)
	s.metrics.ObserveRefreshDuration(time.Since(start))
	s.metrics.IncrementRefresh(err == nil)
	span.End(err)
	return e, err
}

func (s *Service) refreshOnce(ctx context.Context) (*entry, error) {
	now := requestcontext.Now(ctx)
	list, err := s.source.FetchTrustList(ctx)
	if err != nil {
		s.lastFailure.Store(now.UnixNano())
		return nil, err
	}

	e := &entry{
		records:   s.acceptRecords(ctx, list.Jurisdictions),
		fetchedAt: now,
		version:   list.Version,
	}
	s.current.Store(e)
	s.lastFailure.Store(0)
	s.persist(ctx, e)

	if s.roots != nil {
		s.refreshRoots(ctx)
	}
	s.auditor.Log(ctx, audit.ActionTrustRefreshed, e.version, "refreshed", "",
		"jurisdictions", len(e.records),
	)
	return e, nil
}

// acceptRecords validates each record. Invalid or duplicate records are
// dropped with a warning; the rest of the list stays usable.
func (s *Service) acceptRecords(ctx context.Context, records []models.Record) map[string]models.Record {
	out := make(map[string]models.Record, len(records))
	for _, r := range records {
		r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
		if err := r.Validate(); err != nil {
			s.metrics.IncrementInvalidRecord()
			s.logger.WarnContext(ctx, "rejecting invalid trust record",
				"jurisdiction", r.Code,
				"error", err,
			)
			continue
		}
		if _, dup := out[r.Code]; dup {
			s.metrics.IncrementInvalidRecord()
			s.logger.WarnContext(ctx, "rejecting duplicate trust record", "jurisdiction", r.Code)
			continue
		}
		out[r.Code] = r
	}
	return out
}

func (s *Service) persist(ctx context.Context, e *entry) {
	if s.cache == nil {
		return
	}
	file := &models.CacheFile{
		Version:       e.version,
		FetchedAt:     e.fetchedAt,
		Jurisdictions: sortedRecords(e.records),
	}
	if err := s.cache.Save(ctx, file); err != nil {
		s.logger.WarnContext(ctx, "failed to persist trust cache", "error", err)
	}
}

func sortedRecords(records map[string]models.Record) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.Record) int { return strings.Compare(a.Code, b.Code) })
	return out
}

// loadFromDisk installs the on-disk copy when nothing is in memory yet.
func (s *Service) loadFromDisk(ctx context.Context) *entry {
	if s.cache == nil {
		return nil
	}
	file, err := s.cache.Load(ctx)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "ignoring unreadable trust cache", "error", err)
		}
		return nil
	}
	e := &entry{
		records:   s.acceptRecords(ctx, file.Jurisdictions),
		fetchedAt: file.FetchedAt,
		version:   file.Version,
	}
	if !s.current.CompareAndSwap(nil, e) {
		return s.current.Load()
	}
	s.logger.InfoContext(ctx, "loaded trust cache from disk",
		"version", e.version,
		"fetched_at", e.fetchedAt,
	)
	return e
}

func (s *Service) noteStale(ctx context.Context, e *entry, cause error) {
	s.metrics.IncrementStaleFallback()
	s.logger.WarnContext(ctx, "trust refresh failed; serving stale cache",
		"error", cause,
		"version", e.version,
		"fetched_at", e.fetchedAt,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.auditor.Log(ctx, audit.ActionTrustStaleFallback, e.version, "stale", cause.Error())
}

// Status reports whether a snapshot is loaded and whether it is past its TTL.
func (s *Service) Status(now time.Time) (loaded, stale bool) {
	cur := s.current.Load()
	if cur == nil {
		return false, false
	}
	return true, !s.fresh(cur, now)
}

// AcceptedJurisdictions returns the configured allow-list.
func (s *Service) AcceptedJurisdictions() []string {
	return slices.Clone(s.accepted)
}

// IsAccepted reports whether code is on the allow-list. Matching is
// case-insensitive but the code must be exactly two letters.
func (s *Service) IsAccepted(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !isJurisdictionCode(code) {
		return false
	}
	return slices.Contains(s.accepted, code)
}

// CertificatesFor returns the certificates published for a jurisdiction.
func (s *Service) CertificatesFor(ctx context.Context, code string) ([]models.Certificate, error) {
	snap, err := s.Fetch(ctx, false)
	if err != nil {
		return nil, err
	}
	rec, ok := snap.Record(code)
	if !ok {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeTrustFailure,
			fmt.Sprintf("unknown jurisdiction %q", strings.ToUpper(code)))
	}
	return slices.Clone(rec.Certificates), nil
}
