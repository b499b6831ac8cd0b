package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mdlgate/internal/platform/tracer"
	"mdlgate/internal/presentation/envelope"
	"mdlgate/internal/presentation/metrics"
	"mdlgate/internal/presentation/models"
	"mdlgate/internal/presentation/verifier"
	"mdlgate/internal/transcript"
	id "mdlgate/pkg/domain"
	"mdlgate/pkg/platform/audit"
	"mdlgate/pkg/platform/sentinel"
	"mdlgate/pkg/requestcontext"
	"mdlgate/pkg/secrets"
)

const defaultSessionTTL = 10 * time.Minute

// Config holds verification policy.
type Config struct {
	Mode models.VerificationMode
	// Origin is the audience bound into the transcript when the envelope
	// names none.
	Origin string
	// SessionTTL bounds how long a verification can back an issuance.
	SessionTTL time.Duration
}

// Service verifies presentations. Verify never returns an error: every
// failure is a VerificationResult with Valid=false and an error kind.
type Service struct {
	opener   Opener
	remote   RemoteVerifier
	sessions SessionStore
	trust    TrustStore
	cfg      Config

	newNonce func() (string, error)

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	auditor *audit.Logger
}

type Option func(*Service)

// WithTrustStore enables issuer pinning of remote results.
func WithTrustStore(t TrustStore) Option {
	return func(s *Service) { s.trust = t }
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

// WithNonceSource replaces the generator used for missing nonces in
// allow_mock mode.
func WithNonceSource(fn func() (string, error)) Option {
	return func(s *Service) { s.newNonce = fn }
}

func New(opener Opener, remote RemoteVerifier, sessions SessionStore, cfg Config, opts ...Option) (*Service, error) {
	if opener == nil || remote == nil || sessions == nil {
		return nil, errors.New("opener, remote verifier and session store are required")
	}
	if cfg.Mode == "" {
		cfg.Mode = models.ModeStrict
	}
	if cfg.Mode != models.ModeStrict && cfg.Mode != models.ModeAllowMock {
		return nil, fmt.Errorf("unknown verification mode %q", cfg.Mode)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	s := &Service{
		opener:   opener,
		remote:   remote,
		sessions: sessions,
		cfg:      cfg,
		newNonce: secrets.Generate,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Verify decrypts and checks one presentation and records the outcome in
// the session registry under a fresh session id.
func (s *Service) Verify(ctx context.Context, req models.VerifyRequest) *models.VerificationResult {
	ctx, span := s.tracer.Start(ctx, tracer.SpanPresentationVerify, tracer.String(tracer.AttrMode, string(s.cfg.Mode)))

	res := s.verify(ctx, req)
	res.SessionID = id.NewVerificationSessionID()
	s.remember(ctx, res)
	s.observe(ctx, res)

	span.SetAttributes(
		tracer.Bool(tracer.AttrValid, res.Valid),
		tracer.Bool(tracer.AttrMock, res.Mock),
		tracer.Bool(tracer.AttrStale, res.Stale),
	)
	if res.Error != "" {
		span.SetAttributes(tracer.String(tracer.AttrErrorKind, string(res.Error)))
	}
	span.End(nil)
	return res
}

// Session returns a recorded verification, or sentinel.ErrNotFound.
func (s *Service) Session(ctx context.Context, sessionID id.VerificationSessionID) (*models.Session, error) {
	return s.sessions.Find(ctx, sessionID, requestcontext.Now(ctx))
}

func (s *Service) verify(ctx context.Context, req models.VerifyRequest) *models.VerificationResult {
	payload, err := s.opener.Open(req.Envelope)
	if err != nil {
		if errors.Is(err, envelope.ErrMissingPresentation) || errors.Is(err, envelope.ErrMalformedPayload) {
			return failure(models.ErrMissingPresentation, "decrypted response carries no presentation")
		}
		return failure(models.ErrDecryptionFailed, "response could not be decrypted")
	}

	t, fail := s.bind(ctx, req, payload)
	if fail != nil {
		return fail
	}

	remoteRes, err := s.remote.Verify(ctx, payload.VPToken, t)
	if err != nil {
		return s.remoteFailure(ctx, err)
	}
	if !remoteRes.Valid {
		return failure(models.ErrVerificationRejected, "presentation did not verify")
	}

	res := &models.VerificationResult{
		Valid:      true,
		Predicates: models.Minimize(remoteRes.Predicates, remoteRes.Issuer),
		Issuer:     remoteRes.Issuer,
	}
	return s.pinIssuer(ctx, res, remoteRes)
}

// bind builds and validates the session transcript. The nonce comes from
// the envelope, then the request. A missing nonce is a caller error in
// strict mode; allow_mock generates one and says so in the log.
func (s *Service) bind(ctx context.Context, req models.VerifyRequest, p *envelope.Payload) (transcript.Transcript, *models.VerificationResult) {
	nonce := firstNonEmpty(p.Nonce, req.ExpectedNonce)
	if nonce == "" {
		if s.cfg.Mode == models.ModeStrict {
			return transcript.Transcript{}, failure(models.ErrMissingNonce, "no nonce in response or request")
		}
		generated, err := s.newNonce()
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to generate nonce", "error", err)
			return transcript.Transcript{}, failure(models.ErrMissingNonce, "no nonce in response or request")
		}
		nonce = generated
		s.logger.WarnContext(ctx, "presentation carried no nonce; generated one",
			"nonce_generated", true,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	audience := firstNonEmpty(p.Audience, req.Audience, s.cfg.Origin)
	responseURI := firstNonEmpty(p.ResponseURI, req.ResponseURI)

	t := transcript.Build(nonce, audience, responseURI)
	if err := transcript.Validate(t); err != nil {
		return transcript.Transcript{}, failure(models.ErrMalformedTranscript, "session transcript is malformed")
	}
	return t, nil
}

// remoteFailure maps a remote verifier error. Only an unreachable verifier
// may be replaced by a synthetic result, and only in allow_mock mode.
func (s *Service) remoteFailure(ctx context.Context, err error) *models.VerificationResult {
	switch {
	case errors.Is(err, sentinel.ErrRejected):
		return failure(models.ErrVerificationRejected, "verifier rejected the presentation")
	case errors.Is(err, sentinel.ErrUnavailable):
		if s.cfg.Mode == models.ModeAllowMock {
			s.logger.WarnContext(ctx, "remote verifier unavailable; returning synthetic result",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			return syntheticResult()
		}
		s.logger.ErrorContext(ctx, "remote verifier unavailable",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return failure(models.ErrVerifierUnavailable, "remote verifier unavailable")
	default:
		s.logger.ErrorContext(ctx, "remote verifier call failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return failure(models.ErrVerifierUnavailable, "remote verifier returned an unusable response")
	}
}

// pinIssuer applies the trust store decision to a successful remote result.
// Without a kid only the jurisdiction allow-list can be checked.
func (s *Service) pinIssuer(ctx context.Context, res *models.VerificationResult, remoteRes *verifier.Result) *models.VerificationResult {
	if s.trust == nil || remoteRes.Issuer == "" {
		return res
	}
	if remoteRes.KeyID == "" {
		if !s.trust.IsAccepted(res.Predicates.IssuerJurisdiction()) {
			return failure(models.ErrUntrustedIssuer, "issuer jurisdiction is not accepted")
		}
		return res
	}

	decision, err := s.trust.VerifyIssuer(ctx, remoteRes.Issuer, remoteRes.KeyID)
	if err != nil {
		return failure(models.ErrTrustUnavailable, "trust list unavailable")
	}
	if !decision.Accepted {
		out := failure(models.ErrUntrustedIssuer, "issuer rejected: "+decision.Reason)
		out.Stale = decision.Stale
		return out
	}
	res.Stale = decision.Stale
	return res
}

func (s *Service) remember(ctx context.Context, res *models.VerificationResult) {
	now := requestcontext.Now(ctx)
	err := s.sessions.Save(ctx, &models.Session{
		ID:         res.SessionID,
		Valid:      res.Valid,
		Mock:       res.Mock,
		Predicates: res.Predicates,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record verification session",
			"error", err,
			"session_id", res.SessionID.String(),
		)
	}
}

func syntheticResult() *models.VerificationResult {
	return &models.VerificationResult{
		Valid:      true,
		Predicates: models.Minimize(map[string]any{"age_over_18": true, "age_over_21": true}, ""),
		Mock:       true,
		Reason:     "synthetic result: remote verifier unavailable",
	}
}

func failure(kind models.ErrorKind, reason string) *models.VerificationResult {
	return &models.VerificationResult{Valid: false, Error: kind, Reason: reason}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
