package sdjwt

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Disclosure is one selectively disclosable claim: [salt, name, value].
type Disclosure struct {
	Salt  string
	Name  string
	Value any
	// Encoded is the base64url (unpadded) form carried on the wire. The
	// digest is computed over exactly these bytes.
	Encoded string
}

// NewDisclosure encodes a claim with the given salt.
func NewDisclosure(salt []byte, name string, value any) (Disclosure, error) {
	if name == "" {
		return Disclosure{}, fmt.Errorf("disclosure claim name is empty")
	}
	encodedSalt := base64.RawURLEncoding.EncodeToString(salt)
	raw, err := json.Marshal([]any{encodedSalt, name, value})
	if err != nil {
		return Disclosure{}, fmt.Errorf("encode disclosure %q: %w", name, err)
	}
	return Disclosure{
		Salt:    encodedSalt,
		Name:    name,
		Value:   value,
		Encoded: base64.RawURLEncoding.EncodeToString(raw),
	}, nil
}

// ParseDisclosure decodes a wire disclosure. It fails on bad base64, bad
// JSON, or an array that is not [string, string, value].
func ParseDisclosure(encoded string) (Disclosure, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Disclosure{}, fmt.Errorf("disclosure is not base64url")
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return Disclosure{}, fmt.Errorf("disclosure is not a JSON array")
	}
	if len(parts) != 3 {
		return Disclosure{}, fmt.Errorf("disclosure has %d elements, want 3", len(parts))
	}
	var salt, name string
	if err := json.Unmarshal(parts[0], &salt); err != nil || salt == "" {
		return Disclosure{}, fmt.Errorf("disclosure salt must be a string")
	}
	if err := json.Unmarshal(parts[1], &name); err != nil || name == "" {
		return Disclosure{}, fmt.Errorf("disclosure claim name must be a string")
	}
	var value any
	if err := json.Unmarshal(parts[2], &value); err != nil {
		return Disclosure{}, fmt.Errorf("disclosure value is not JSON")
	}
	return Disclosure{Salt: salt, Name: name, Value: value, Encoded: encoded}, nil
}

// Digest is base64url(SHA-256(Encoded)).
func (d Disclosure) Digest() string {
	return digest(d.Encoded)
}

func digest(encoded string) string {
	sum := sha256.Sum256([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
