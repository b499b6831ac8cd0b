package validation

import (
	"fmt"

	dErrors "mdlgate/pkg/domain-errors"
)

// MaxBodySize is the maximum allowed request body size. Encrypted
// presentations carry a whole mdoc, so this is larger than a plain JSON API needs.
const MaxBodySize = 512 * 1024

const (
	// MaxEnvelopeLength bounds the compact JWE handed to /verify.
	MaxEnvelopeLength = 400 * 1024

	// MaxNonceLength bounds caller-supplied nonces.
	MaxNonceLength = 512

	// MaxCodeLength bounds authorization codes and access tokens.
	MaxCodeLength = 256

	// MaxCredentialLength bounds a presented derived credential.
	MaxCredentialLength = 64 * 1024
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
