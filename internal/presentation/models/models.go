package models

import (
	"fmt"
	"strings"
	"time"

	id "mdlgate/pkg/domain"
	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/validation"
)

// VerificationMode controls what happens when the remote verifier cannot be
// reached. It is always configured explicitly.
type VerificationMode string

const (
	ModeStrict    VerificationMode = "strict"
	ModeAllowMock VerificationMode = "allow_mock"
)

// ParseMode parses a configured mode. Empty means strict.
func ParseMode(s string) (VerificationMode, error) {
	switch VerificationMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeAllowMock:
		return ModeAllowMock, nil
	default:
		return "", fmt.Errorf("unknown verification mode %q", s)
	}
}

// ErrorKind names why a verification failed. Kinds are stable strings shown
// to callers.
type ErrorKind string

const (
	ErrDecryptionFailed     ErrorKind = "DecryptionFailed"
	ErrMissingPresentation  ErrorKind = "MissingPresentation"
	ErrMissingNonce         ErrorKind = "MissingNonce"
	ErrMalformedTranscript  ErrorKind = "MalformedTranscript"
	ErrVerifierUnavailable  ErrorKind = "VerifierUnavailable"
	ErrVerificationRejected ErrorKind = "VerificationRejected"
	ErrUntrustedIssuer      ErrorKind = "UntrustedIssuer"
	ErrTrustUnavailable     ErrorKind = "TrustUnavailable"
)

// Code maps the kind onto the domain error taxonomy.
func (k ErrorKind) Code() dErrors.Code {
	switch k {
	case ErrDecryptionFailed:
		return dErrors.CodeCryptoFailure
	case ErrMissingPresentation, ErrMissingNonce, ErrMalformedTranscript:
		return dErrors.CodeMalformedInput
	case ErrVerifierUnavailable:
		return dErrors.CodeRemoteUnavailable
	case ErrVerificationRejected, ErrUntrustedIssuer:
		return dErrors.CodeTrustFailure
	case ErrTrustUnavailable:
		return dErrors.CodeTrustUnavailable
	default:
		return dErrors.CodeInternal
	}
}

// VerifyRequest is one presentation to verify.
type VerifyRequest struct {
	// Envelope is the compact JWE returned by the browser credential API.
	Envelope string
	// ExpectedNonce is used when the envelope carries no nonce.
	ExpectedNonce string
	// Audience overrides the configured origin.
	Audience    string
	ResponseURI string
}

// VerificationResult is the outcome of a verification. It never carries
// attribute values; Predicates enforces that by construction.
type VerificationResult struct {
	Valid      bool                     `json:"valid"`
	Predicates Predicates               `json:"predicates"`
	Issuer     string                   `json:"issuer,omitempty"`
	SessionID  id.VerificationSessionID `json:"sessionId"`
	Error      ErrorKind                `json:"error,omitempty"`
	Reason     string                   `json:"reason,omitempty"`
	Mock       bool                     `json:"mock"`
	Stale      bool                     `json:"stale"`
}

// Session is what the registry remembers about a verification so issuance
// can require a prior success.
type Session struct {
	ID         id.VerificationSessionID
	Valid      bool
	Mock       bool
	Predicates Predicates
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsExpired reports whether the session is past its deadline.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// VerifyRequestBody is the HTTP payload of POST /verify.
type VerifyRequestBody struct {
	Response    string `json:"response" validate:"required,notblank"`
	Nonce       string `json:"nonce,omitempty"`
	ResponseURI string `json:"response_uri,omitempty" validate:"omitempty,url"`
}

// Normalize trims whitespace around the caller-supplied strings.
func (b *VerifyRequestBody) Normalize() {
	b.Response = strings.TrimSpace(b.Response)
	b.Nonce = strings.TrimSpace(b.Nonce)
	b.ResponseURI = strings.TrimSpace(b.ResponseURI)
}

func (b *VerifyRequestBody) Validate() error {
	if err := validation.CheckStringLength("response", b.Response, validation.MaxEnvelopeLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("nonce", b.Nonce, validation.MaxNonceLength); err != nil {
		return err
	}
	return validation.Validate(b)
}
