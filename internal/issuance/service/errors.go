package service

import (
	"context"
	"errors"

	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/sentinel"
)

// Store errors are translated here, once, into OAuth error codes.

type storeErrorMapping struct {
	sentinel  error
	code      dErrors.Code
	logReason string
}

// First match wins.
var (
	codeErrorMappings = []storeErrorMapping{
		{sentinel.ErrNotFound, dErrors.CodeInvalidGrant, "code_not_found"},
		{sentinel.ErrExpired, dErrors.CodeInvalidGrant, "code_expired"},
		{sentinel.ErrAlreadyUsed, dErrors.CodeInvalidGrant, "code_already_used"},
	}
	tokenErrorMappings = []storeErrorMapping{
		{sentinel.ErrNotFound, dErrors.CodeInvalidToken, "token_not_found"},
		{sentinel.ErrExpired, dErrors.CodeInvalidToken, "token_expired"},
		{sentinel.ErrAlreadyUsed, dErrors.CodeInvalidToken, "token_already_used"},
	}
)

const (
	stepAuthorize  = "authorize"
	stepToken      = "token"
	stepCredential = "credential"
)

// translate maps a store error for step. Domain errors pass through.
func (s *Service) translate(ctx context.Context, step string, err error, mappings []storeErrorMapping, message string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		s.reject(ctx, step, de.Code, string(de.Code))
		return err
	}
	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			s.reject(ctx, step, m.code, m.logReason)
			return dErrors.Wrap(err, m.code, message)
		}
	}
	s.logger.ErrorContext(ctx, "issuance store failure", "step", step, "error", err)
	s.reject(ctx, step, dErrors.CodeInternal, "internal_error")
	return dErrors.Wrap(err, dErrors.CodeInternal, "issuance failed")
}
