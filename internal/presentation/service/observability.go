package service

import (
	"context"

	"mdlgate/internal/presentation/models"
	"mdlgate/pkg/platform/audit"
	"mdlgate/pkg/requestcontext"
)

// observe records the outcome of a verification. Only the outcome, flags
// and predicate count are logged, never predicate values.
func (s *Service) observe(ctx context.Context, res *models.VerificationResult) {
	outcome := "valid"
	decision := "accepted"
	if !res.Valid {
		outcome = string(res.Error)
		decision = "rejected"
	}
	s.metrics.IncrementVerification(outcome)
	if res.Mock {
		s.metrics.IncrementMock()
	}

	attrs := []any{
		"session_id", res.SessionID.String(),
		"valid", res.Valid,
		"mock", res.Mock,
		"stale", res.Stale,
		"predicates", res.Predicates.Len(),
		"request_id", requestcontext.RequestID(ctx),
	}
	if label := requestcontext.DeviceLabel(ctx); label != "" {
		attrs = append(attrs, "device", label)
	}
	if res.Error != "" {
		attrs = append(attrs, "error_kind", string(res.Error))
		s.logger.WarnContext(ctx, "presentation verification failed", attrs...)
	} else {
		s.logger.InfoContext(ctx, "presentation verified", attrs...)
	}

	s.auditor.Log(ctx, audit.ActionPresentationVerified, res.SessionID.String(), decision, string(res.Error),
		"mock", res.Mock,
		"stale", res.Stale,
	)
}
