package service

import (
	"context"

	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/audit"
	"mdlgate/pkg/requestcontext"
)

func (s *Service) reject(ctx context.Context, step string, code dErrors.Code, reason string) {
	s.metrics.IncrementRejection(step, string(code))
	s.logger.WarnContext(ctx, "issuance request rejected",
		"step", step,
		"error_code", string(code),
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.auditor.Log(ctx, audit.ActionIssuanceRejected, "", "rejected", reason, "step", step)
}
