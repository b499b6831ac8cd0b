package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
type Code string

const (
	CodeNotFound   Code = "not_found"
	CodeBadRequest Code = "bad_request"
	CodeValidation Code = "validation_failed"
	CodeInternal   Code = "internal_error"

	// Verification taxonomy. Every verification failure maps to exactly one of these.
	CodeMalformedInput    Code = "malformed_input"
	CodeCryptoFailure     Code = "crypto_failure"
	CodeTrustFailure      Code = "trust_failure"
	CodeTrustUnavailable  Code = "trust_unavailable"
	CodeRemoteUnavailable Code = "remote_unavailable"
	CodeCredentialExpired Code = "credential_expired"

	// OAuth 2.0 / OpenID4VCI error codes
	CodeInvalidRequest              Code = "invalid_request"
	CodeInvalidGrant                Code = "invalid_grant"
	CodeUnsupportedGrantType        Code = "unsupported_grant_type"
	CodeInvalidToken                Code = "invalid_token"
	CodeUnsupportedCredentialFormat Code = "unsupported_credential_format"
	CodeInvalidProof                Code = "invalid_proof"
)

// Error wraps domain or infrastructure failures with a stable code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by code so callers can compare against a bare &Error{Code: ...}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the domain code carried by err, or CodeInternal when err is
// not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
