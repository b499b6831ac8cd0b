// Package domain provides type-safe identifiers shared across bounded contexts.
package domain

import (
	"github.com/google/uuid"

	dErrors "mdlgate/pkg/domain-errors"
)

// VerificationSessionID identifies one presentation verification. Issuance
// refers back to it, so it crosses the presentation/issuance boundary.
type VerificationSessionID uuid.UUID

// NewVerificationSessionID returns a fresh random id.
func NewVerificationSessionID() VerificationSessionID {
	return VerificationSessionID(uuid.New())
}

// ParseVerificationSessionID parses a session id received at a trust boundary.
func ParseVerificationSessionID(s string) (VerificationSessionID, error) {
	if s == "" {
		return VerificationSessionID{}, dErrors.New(dErrors.CodeInvalidRequest, "verification session id cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return VerificationSessionID{}, dErrors.New(dErrors.CodeInvalidRequest, "invalid verification session id format")
	}
	return VerificationSessionID(id), nil
}

func (id VerificationSessionID) String() string { return uuid.UUID(id).String() }

func (id VerificationSessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id VerificationSessionID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
