package service

import (
	"context"
	"time"

	"mdlgate/internal/presentation/envelope"
	"mdlgate/internal/presentation/models"
	"mdlgate/internal/presentation/verifier"
	"mdlgate/internal/transcript"
	trust "mdlgate/internal/trust/models"
	id "mdlgate/pkg/domain"
)

// Opener decrypts an envelope and extracts its payload.
type Opener interface {
	Open(compact string) (*envelope.Payload, error)
}

// RemoteVerifier checks the presentation proof.
type RemoteVerifier interface {
	Verify(ctx context.Context, token string, t transcript.Transcript) (*verifier.Result, error)
}

// TrustStore pins the issuer named by the remote verifier.
type TrustStore interface {
	VerifyIssuer(ctx context.Context, issuerLabel, kid string) (trust.IssuerDecision, error)
	IsAccepted(code string) bool
}

// SessionStore is the verification session registry.
type SessionStore interface {
	Save(ctx context.Context, session *models.Session) error
	Find(ctx context.Context, sessionID id.VerificationSessionID, now time.Time) (*models.Session, error)
}
