package service

import (
	"context"
	"encoding/json"
	"time"

	verificationcontracts "mdlgate/contracts/verification"
	"mdlgate/internal/credential/sdjwt"
	"mdlgate/internal/issuance/models"
	id "mdlgate/pkg/domain"
)

// Store holds issuance sessions.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	ExchangeCode(ctx context.Context, code, accessToken string, now time.Time) (*models.Session, error)
	RedeemToken(ctx context.Context, accessToken string, now time.Time, issue func(*models.Session) error) (*models.Session, error)
}

// VerificationRegistry looks up prior presentation verifications.
type VerificationRegistry interface {
	Verification(ctx context.Context, sessionID id.VerificationSessionID) (*verificationcontracts.Outcome, error)
}

// CredentialIssuer signs the derived credential.
type CredentialIssuer interface {
	Issue(ctx context.Context, holderKey json.RawMessage, subject string, predicates map[string]bool) (*sdjwt.Issued, error)
}
