package models

import (
	"strings"
	"time"

	"mdlgate/internal/credential/sdjwt"
	"mdlgate/pkg/platform/validation"
)

// VerifyCredentialRequest is the body of POST /credential/verify.
type VerifyCredentialRequest struct {
	Credential string `json:"credential" validate:"required,notblank"`
}

func (r *VerifyCredentialRequest) Normalize() {
	r.Credential = strings.TrimSpace(r.Credential)
}

func (r *VerifyCredentialRequest) Validate() error {
	if err := validation.CheckStringLength("credential", r.Credential, validation.MaxCredentialLength); err != nil {
		return err
	}
	return validation.Validate(r)
}

// VerifyCredentialResult lists the disclosed claims of a valid credential.
type VerifyCredentialResult struct {
	Valid     bool           `json:"valid"`
	Type      string         `json:"vct"`
	Issuer    string         `json:"issuer"`
	Subject   string         `json:"subject,omitempty"`
	Claims    map[string]any `json:"claims"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func NewVerifyCredentialResult(v *sdjwt.Verified) *VerifyCredentialResult {
	claims := v.Claims
	if claims == nil {
		claims = map[string]any{}
	}
	return &VerifyCredentialResult{
		Valid:     true,
		Type:      v.Type,
		Issuer:    v.Issuer,
		Subject:   v.Subject,
		Claims:    claims,
		IssuedAt:  v.IssuedAt,
		ExpiresAt: v.ExpiresAt,
	}
}
