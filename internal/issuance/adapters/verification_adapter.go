package adapters

import (
	"context"

	verificationcontracts "mdlgate/contracts/verification"
	presentation "mdlgate/internal/presentation/models"
	id "mdlgate/pkg/domain"
)

// SessionFinder is the presentation service's session lookup.
type SessionFinder interface {
	Session(ctx context.Context, sessionID id.VerificationSessionID) (*presentation.Session, error)
}

// VerificationAdapter lets issuance read verification sessions in process,
// mapped to the contract type so issuance never sees presentation models.
type VerificationAdapter struct {
	sessions SessionFinder
}

func NewVerificationAdapter(sessions SessionFinder) *VerificationAdapter {
	return &VerificationAdapter{sessions: sessions}
}

// Verification returns the outcome of a verification session. Lookup errors,
// including sentinel.ErrNotFound, pass through unchanged.
func (a *VerificationAdapter) Verification(ctx context.Context, sessionID id.VerificationSessionID) (*verificationcontracts.Outcome, error) {
	session, err := a.sessions.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &verificationcontracts.Outcome{
		SessionID:          session.ID.String(),
		Valid:              session.Valid,
		Mock:               session.Mock,
		Predicates:         session.Predicates.Flags(),
		IssuerJurisdiction: session.Predicates.IssuerJurisdiction(),
		ExpiresAt:          session.ExpiresAt,
	}, nil
}
