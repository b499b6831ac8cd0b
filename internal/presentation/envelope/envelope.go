// Package envelope opens the encrypted response returned by the browser
// credential API and extracts the presentation token from it.
package envelope

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v3"
)

var (
	// ErrDecryption is returned when the envelope cannot be parsed or opened.
	ErrDecryption = errors.New("envelope decryption failed")
	// ErrMissingPresentation is returned when the plaintext has no usable vp_token.
	ErrMissingPresentation = errors.New("envelope has no vp_token")
	// ErrMalformedPayload is returned when the plaintext is not a JSON object.
	ErrMalformedPayload = errors.New("envelope payload is not a JSON object")
)

// Payload is the decrypted response. Only the fields needed for
// verification are kept; the rest of the plaintext is discarded.
type Payload struct {
	VPToken     string
	Nonce       string
	Audience    string
	ResponseURI string
}

type Opener struct {
	key           *ecdsa.PrivateKey
	credentialKey string
}

// NewOpener creates an Opener for the reader key. credentialKey names the
// credential query id whose presentation should be used when vp_token is an
// object; when empty or absent the first key is used.
func NewOpener(key *ecdsa.PrivateKey, credentialKey string) *Opener {
	return &Opener{key: key, credentialKey: credentialKey}
}

// Open decrypts a compact JWE and extracts the payload.
func (o *Opener) Open(compact string) (*Payload, error) {
	plaintext, err := o.Decrypt(compact)
	if err != nil {
		return nil, err
	}
	return Parse(plaintext, o.credentialKey)
}

// Decrypt returns the JWE plaintext. Errors from go-jose are not exposed to
// callers since they can describe the ciphertext.
func (o *Opener) Decrypt(compact string) ([]byte, error) {
	if o.key == nil {
		return nil, fmt.Errorf("%w: no reader key", ErrDecryption)
	}
	obj, err := jose.ParseEncrypted(strings.TrimSpace(compact))
	if err != nil {
		return nil, fmt.Errorf("%w: parse", ErrDecryption)
	}
	plaintext, err := obj.Decrypt(o.key)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt", ErrDecryption)
	}
	return plaintext, nil
}

type rawPayload struct {
	VPToken     json.RawMessage `json:"vp_token"`
	Nonce       string          `json:"nonce"`
	Audience    string          `json:"aud"`
	ResponseURI string          `json:"response_uri"`
}

// Parse extracts the payload from decrypted plaintext. vp_token may be a
// string, or an object mapping credential ids to a string or a list of
// strings.
func Parse(plaintext []byte, credentialKey string) (*Payload, error) {
	var raw rawPayload
	if err := json.Unmarshal(plaintext, &raw); err != nil {
		return nil, ErrMalformedPayload
	}
	token, err := extractToken(raw.VPToken, credentialKey)
	if err != nil {
		return nil, err
	}
	return &Payload{
		VPToken:     token,
		Nonce:       raw.Nonce,
		Audience:    raw.Audience,
		ResponseURI: raw.ResponseURI,
	}, nil
}

func extractToken(raw json.RawMessage, credentialKey string) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrMissingPresentation
	}

	switch raw[0] {
	case '"':
		return tokenFromValue(raw)
	case '{':
		value, err := credentialEntry(raw, credentialKey)
		if err != nil {
			return "", err
		}
		return tokenFromValue(value)
	default:
		return "", ErrMissingPresentation
	}
}

// credentialEntry returns the named entry of the vp_token object, or the
// first entry in document order.
func credentialEntry(raw json.RawMessage, credentialKey string) (json.RawMessage, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
		return nil, ErrMissingPresentation
	}
	if v, ok := entries[credentialKey]; ok && credentialKey != "" {
		return v, nil
	}
	first, err := firstKey(raw)
	if err != nil {
		return nil, ErrMissingPresentation
	}
	return entries[first], nil
}

func firstKey(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return "", err
	}
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", errors.New("object key expected")
	}
	return key, nil
}

func tokenFromValue(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return "", ErrMissingPresentation
		}
		return single, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, s := range list {
			if strings.TrimSpace(s) != "" {
				return s, nil
			}
		}
	}
	return "", ErrMissingPresentation
}
