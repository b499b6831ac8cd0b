package models

import (
	"encoding/json"
	"maps"
	"strings"
	"time"

	id "mdlgate/pkg/domain"
	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/validation"
)

// State is the issuance session lifecycle position.
type State string

const (
	StateAuthorized       State = "authorized"
	StateTokenIssued      State = "token_issued"
	StateCredentialIssued State = "credential_issued"
	// StateExpired is never stored; StateAt derives it from ExpiresAt.
	StateExpired State = "expired"
)

// Session is one authorization code → access token → credential flow.
// The authorization code and, once issued, the access token both resolve
// to the same Session. HolderThumbprint is the RFC 7638 thumbprint of
// HolderKey.
type Session struct {
	ID                    string
	AuthCode              string
	AccessToken           string
	HolderKey             json.RawMessage
	HolderThumbprint      string
	VerificationSessionID string
	// Predicates are the verified booleans, or nil when no verification
	// registry backs the flow.
	Predicates map[string]bool
	State      State
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsExpired reports whether the session is past its deadline.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// StateAt returns the effective state at now. Expiry is absorbing for
// every state except credential_issued.
func (s *Session) StateAt(now time.Time) State {
	if s.State != StateCredentialIssued && s.IsExpired(now) {
		return StateExpired
	}
	return s.State
}

// Clone returns a deep copy safe to hand outside the store.
func (s *Session) Clone() *Session {
	cp := *s
	cp.HolderKey = append(json.RawMessage(nil), s.HolderKey...)
	cp.Predicates = maps.Clone(s.Predicates)
	return &cp
}

// AuthorizeRequest is the body of POST /authorize.
type AuthorizeRequest struct {
	VerificationSessionID string          `json:"verification_session_id" validate:"required,notblank"`
	HolderPublicKey       json.RawMessage `json:"holder_public_key"`
}

func (r *AuthorizeRequest) Normalize() {
	r.VerificationSessionID = strings.TrimSpace(r.VerificationSessionID)
}

func (r *AuthorizeRequest) Validate() error {
	if len(r.HolderPublicKey) == 0 || string(r.HolderPublicKey) == "null" {
		return dErrors.New(dErrors.CodeInvalidRequest, "holder_public_key is required")
	}
	if len(r.VerificationSessionID) > validation.MaxCodeLength {
		return dErrors.New(dErrors.CodeInvalidRequest, "verification_session_id is too long")
	}
	if err := validation.Validate(r); err != nil {
		return dErrors.New(dErrors.CodeInvalidRequest, err.Error())
	}
	return nil
}

type AuthorizeResult struct {
	Code      string `json:"code"`
	ExpiresIn int    `json:"expires_in"`
}

// TokenRequest is the body of POST /token.
type TokenRequest struct {
	GrantType string `json:"grant_type"`
	Code      string `json:"code"`
}

func (r *TokenRequest) Normalize() {
	r.GrantType = strings.TrimSpace(r.GrantType)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *TokenRequest) Validate() error {
	if r.GrantType == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "grant_type is required")
	}
	if !id.GrantType(r.GrantType).IsValid() {
		return dErrors.New(dErrors.CodeUnsupportedGrantType, "unsupported grant_type")
	}
	if r.Code == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "code is required")
	}
	if len(r.Code) > validation.MaxCodeLength {
		return dErrors.New(dErrors.CodeInvalidGrant, "invalid authorization code")
	}
	return nil
}

type TokenResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Proof is the holder proof of possession. Both proof_type and type are
// accepted as the type field.
type Proof struct {
	ProofType string `json:"proof_type,omitempty"`
	Type      string `json:"type,omitempty"`
	JWT       string `json:"jwt,omitempty"`
}

// Kind returns the declared proof type, or "".
func (p *Proof) Kind() string {
	if p == nil {
		return ""
	}
	if p.ProofType != "" {
		return p.ProofType
	}
	return p.Type
}

// CredentialRequest is the body of POST /credential.
type CredentialRequest struct {
	Format string `json:"format,omitempty"`
	Proof  *Proof `json:"proof,omitempty"`
}

func (r *CredentialRequest) Normalize() {
	r.Format = strings.TrimSpace(r.Format)
	if r.Proof != nil {
		r.Proof.ProofType = strings.TrimSpace(r.Proof.ProofType)
		r.Proof.Type = strings.TrimSpace(r.Proof.Type)
		r.Proof.JWT = strings.TrimSpace(r.Proof.JWT)
	}
}

func (r *CredentialRequest) Validate() error {
	if r.Format != "" && id.CredentialFormat(r.Format) != id.FormatSDJWT {
		return dErrors.New(dErrors.CodeUnsupportedCredentialFormat, "only vc+sd-jwt is supported")
	}
	if kind := r.Proof.Kind(); kind != "" && kind != id.ProofTypeJWT {
		return dErrors.New(dErrors.CodeInvalidProof, "only jwt proofs are supported")
	}
	return nil
}

type CredentialResult struct {
	Credential string    `json:"credential"`
	Format     string    `json:"format"`
	ExpiresAt  time.Time `json:"expires_at"`
}
