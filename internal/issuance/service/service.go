package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mdlgate/internal/issuance/metrics"
	"mdlgate/internal/issuance/models"
	"mdlgate/internal/platform/tracer"
	id "mdlgate/pkg/domain"
	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/audit"
	"mdlgate/pkg/platform/sentinel"
	"mdlgate/pkg/requestcontext"
	"mdlgate/pkg/secrets"
)

const (
	defaultSessionTTL = 10 * time.Minute
	tokenTypeBearer   = "Bearer"
)

// Service runs the authorization code → access token → credential flow.
type Service struct {
	store       Store
	credentials CredentialIssuer
	registry    VerificationRegistry
	sessionTTL  time.Duration
	audience    string

	newSecret func() (string, error)

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	auditor *audit.Logger
}

type Option func(*Service)

// WithVerificationRegistry requires a successful, unexpired verification
// before a code is issued.
func WithVerificationRegistry(r VerificationRegistry) Option {
	return func(s *Service) { s.registry = r }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithProofAudience requires holder proofs to carry aud.
func WithProofAudience(aud string) Option {
	return func(s *Service) { s.audience = aud }
}

// WithSecretSource replaces the code and token generator. Tests only.
func WithSecretSource(fn func() (string, error)) Option {
	return func(s *Service) { s.newSecret = fn }
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

func New(store Store, credentials CredentialIssuer, opts ...Option) (*Service, error) {
	if store == nil || credentials == nil {
		return nil, errors.New("issuance store and credential issuer are required")
	}
	s := &Service{
		store:       store,
		credentials: credentials,
		sessionTTL:  defaultSessionTTL,
		newSecret:   secrets.Generate,
		logger:      slog.Default(),
		tracer:      tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SessionTTL is the lifetime of an issuance session.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Authorize opens an issuance session bound to holder key and returns its
// authorization code.
func (s *Service) Authorize(ctx context.Context, req *models.AuthorizeRequest) (*models.AuthorizeResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.reject(ctx, stepAuthorize, dErrors.CodeOf(err), "invalid_request")
		return nil, err
	}
	thumbprint, err := holderThumbprint(req.HolderPublicKey)
	if err != nil {
		s.reject(ctx, stepAuthorize, dErrors.CodeInvalidRequest, "invalid_holder_key")
		return nil, err
	}

	predicates, err := s.verifiedPredicates(ctx, req.VerificationSessionID)
	if err != nil {
		return nil, err
	}

	code, err := s.newSecret()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate authorization code")
	}
	now := requestcontext.Now(ctx)
	session := &models.Session{
		ID:                    uuid.NewString(),
		AuthCode:              code,
		HolderKey:             req.HolderPublicKey,
		HolderThumbprint:      thumbprint,
		VerificationSessionID: req.VerificationSessionID,
		Predicates:            predicates,
		State:                 models.StateAuthorized,
		CreatedAt:             now,
		ExpiresAt:             now.Add(s.sessionTTL),
	}
	if err := s.store.Create(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			s.reject(ctx, stepAuthorize, dErrors.CodeInvalidGrant, "verification_bound_to_other_holder")
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidGrant, "verification session is bound to another holder key")
		}
		return nil, s.translate(ctx, stepAuthorize, err, nil, "failed to create issuance session")
	}

	s.metrics.IncrementAuthorizations()
	s.auditor.Log(ctx, audit.ActionCodeIssued, session.ID, "issued", "",
		"verification_session_id", session.VerificationSessionID,
		"code", secrets.Fingerprint(code),
	)
	return &models.AuthorizeResult{Code: code, ExpiresIn: int(s.sessionTTL.Seconds())}, nil
}

// verifiedPredicates checks the verification registry. Without one the
// verification id is recorded as given and predicates are unknown.
func (s *Service) verifiedPredicates(ctx context.Context, raw string) (map[string]bool, error) {
	if s.registry == nil {
		return nil, nil
	}
	sessionID, err := id.ParseVerificationSessionID(raw)
	if err != nil {
		s.reject(ctx, stepAuthorize, dErrors.CodeInvalidRequest, "malformed_verification_session")
		return nil, err
	}
	verification, err := s.registry.Verification(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.reject(ctx, stepAuthorize, dErrors.CodeInvalidGrant, "verification_not_found")
			return nil, dErrors.New(dErrors.CodeInvalidGrant, "verification session not found or expired")
		}
		return nil, s.translate(ctx, stepAuthorize, err, nil, "verification lookup failed")
	}
	if !verification.Valid {
		s.reject(ctx, stepAuthorize, dErrors.CodeInvalidGrant, "verification_failed")
		return nil, dErrors.New(dErrors.CodeInvalidGrant, "verification session did not succeed")
	}
	if verification.Mock {
		s.reject(ctx, stepAuthorize, dErrors.CodeInvalidGrant, "mock_verification")
		return nil, dErrors.New(dErrors.CodeInvalidGrant, "mock verification results cannot back a credential")
	}
	return verification.Predicates, nil
}

// Token exchanges an authorization code for an access token. A code
// exchanges exactly once.
func (s *Service) Token(ctx context.Context, req *models.TokenRequest) (*models.TokenResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.reject(ctx, stepToken, dErrors.CodeOf(err), "invalid_request")
		return nil, err
	}

	accessToken, err := s.newSecret()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate access token")
	}
	ctx, span := s.tracer.Start(ctx, tracer.SpanIssuanceToken)
	now := requestcontext.Now(ctx)
	session, err := s.store.ExchangeCode(ctx, req.Code, accessToken, now)
	span.End(err)
	if err != nil {
		return nil, s.translate(ctx, stepToken, err, codeErrorMappings, "invalid authorization code")
	}

	s.metrics.IncrementTokens()
	s.auditor.Log(ctx, audit.ActionTokenIssued, session.ID, "issued", "",
		"token", secrets.Fingerprint(accessToken),
	)
	return &models.TokenResult{
		AccessToken: accessToken,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int(session.ExpiresAt.Sub(now).Seconds()),
	}, nil
}

// Credential redeems an access token for a derived credential. The token
// is single use.
func (s *Service) Credential(ctx context.Context, accessToken string, req *models.CredentialRequest) (*models.CredentialResult, error) {
	if accessToken == "" {
		s.reject(ctx, stepCredential, dErrors.CodeInvalidToken, "missing_token")
		return nil, dErrors.New(dErrors.CodeInvalidToken, "bearer access token is required")
	}
	if req == nil {
		req = &models.CredentialRequest{}
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.reject(ctx, stepCredential, dErrors.CodeOf(err), string(dErrors.CodeOf(err)))
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanIssuanceRedeem)
	var result *models.CredentialResult
	session, err := s.store.RedeemToken(ctx, accessToken, requestcontext.Now(ctx), func(session *models.Session) error {
		if req.Proof != nil && req.Proof.JWT != "" {
			if err := s.verifyProof(ctx, req.Proof.JWT, session.HolderKey); err != nil {
				return err
			}
		}
		issued, err := s.credentials.Issue(ctx, session.HolderKey, session.VerificationSessionID, session.Predicates)
		if err != nil {
			return err
		}
		result = &models.CredentialResult{
			Credential: issued.Credential.String(),
			Format:     string(id.FormatSDJWT),
			ExpiresAt:  issued.ExpiresAt,
		}
		return nil
	})
	span.End(err)
	if err != nil {
		return nil, s.translate(ctx, stepCredential, err, tokenErrorMappings, "invalid access token")
	}

	s.metrics.IncrementCredentials()
	s.logger.InfoContext(ctx, "issuance session completed",
		"issuance_session_id", session.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}
