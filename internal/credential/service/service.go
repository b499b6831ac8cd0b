package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Signer CredentialVerifier

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"mdlgate/internal/credential/metrics"
	"mdlgate/internal/credential/sdjwt"
	"mdlgate/internal/platform/tracer"
	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/audit"
	"mdlgate/pkg/requestcontext"
)

// Signer issues signed credentials.
type Signer interface {
	Issue(ctx context.Context, req sdjwt.IssueRequest) (*sdjwt.Issued, error)
}

// CredentialVerifier checks presented credentials.
type CredentialVerifier interface {
	Verify(ctx context.Context, raw string) (*sdjwt.Verified, error)
}

// Service applies the claim policy and records issuance and verification
// of derived credentials.
type Service struct {
	signer   Signer
	verifier CredentialVerifier
	mode     ClaimsMode

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	auditor *audit.Logger
}

type Option func(*Service)

func WithClaimsMode(mode ClaimsMode) Option {
	return func(s *Service) { s.mode = mode }
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

func New(signer Signer, verifier CredentialVerifier, opts ...Option) (*Service, error) {
	if signer == nil || verifier == nil {
		return nil, errors.New("credential signer and verifier are required")
	}
	s := &Service{
		signer:   signer,
		verifier: verifier,
		mode:     ClaimsMinimal,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a credential for holderKey whose claims derive from the
// predicates of the verification named by subject.
func (s *Service) Issue(ctx context.Context, holderKey json.RawMessage, subject string, predicates map[string]bool) (*sdjwt.Issued, error) {
	claims := ClaimsFromPredicates(predicates, s.mode)
	ctx, span := s.tracer.Start(ctx, tracer.SpanCredentialIssue, tracer.Int64(tracer.AttrDisclosures, int64(len(claims))))

	issued, err := s.signer.Issue(ctx, sdjwt.IssueRequest{
		HolderKey: holderKey,
		Subject:   subject,
		Claims:    claims,
	})
	span.End(err)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementIssued(len(issued.Credential.Disclosures))
	s.logger.InfoContext(ctx, "derived credential issued",
		"credential_id", issued.ID,
		"disclosures", len(issued.Credential.Disclosures),
		"claims_mode", string(s.mode),
		"expires_at", issued.ExpiresAt,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.auditor.Log(ctx, audit.ActionCredentialIssued, subject, "issued", "", "credential_id", issued.ID)
	return issued, nil
}

// Verify checks a presented credential and returns the revealed claims.
func (s *Service) Verify(ctx context.Context, raw string) (*sdjwt.Verified, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCredentialVerify)
	verified, err := s.verifier.Verify(ctx, raw)
	span.End(err)
	if err != nil {
		code := dErrors.CodeOf(err)
		s.metrics.IncrementVerification(string(code))
		s.logger.WarnContext(ctx, "derived credential rejected",
			"error_code", string(code),
			"request_id", requestcontext.RequestID(ctx),
		)
		s.auditor.Log(ctx, audit.ActionCredentialVerified, "", "rejected", string(code))
		return nil, err
	}

	s.metrics.IncrementVerification("valid")
	s.logger.InfoContext(ctx, "derived credential verified",
		"disclosed", len(verified.Claims),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.auditor.Log(ctx, audit.ActionCredentialVerified, verified.Subject, "accepted", "")
	return verified, nil
}
