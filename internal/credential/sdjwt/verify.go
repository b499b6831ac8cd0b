package sdjwt

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/requestcontext"
)

// Verified is what a credential reveals after verification.
type Verified struct {
	// Claims holds only disclosures whose digest the envelope signs.
	Claims    map[string]any
	Holder    json.RawMessage
	Issuer    string
	Subject   string
	Type      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier checks credentials against the issuer public key.
type Verifier struct {
	key *ecdsa.PublicKey
}

func NewVerifier(key *ecdsa.PublicKey) *Verifier {
	return &Verifier{key: key}
}

// Parse splits a wire credential and decodes its disclosures without
// checking the signature.
func Parse(raw string) (*Credential, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, separator)
	if len(parts) < 2 || parts[0] == "" {
		return nil, dErrors.New(dErrors.CodeMalformedInput, "credential must be <jwt>~<disclosure>~...~")
	}
	if parts[len(parts)-1] != "" {
		return nil, dErrors.New(dErrors.CodeMalformedInput, "credential must end with a trailing ~")
	}

	cred := &Credential{Envelope: parts[0]}
	for _, encoded := range parts[1 : len(parts)-1] {
		d, err := ParseDisclosure(encoded)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeMalformedInput, "malformed disclosure")
		}
		cred.Disclosures = append(cred.Disclosures, d)
	}
	return cred, nil
}

// Verify checks the signature and expiry, then reveals the disclosures the
// envelope addresses. Unaddressed disclosures are skipped; a disclosure
// presented twice is malformed. exp is compared to the request time with no
// leeway.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Verified, error) {
	cred, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	claims := new(Claims)
	_, err = jwt.ParseWithClaims(cred.Envelope, claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, dErrors.New(dErrors.CodeMalformedInput, "credential envelope is malformed")
		}
		return nil, dErrors.New(dErrors.CodeCryptoFailure, "invalid credential signature")
	}

	now := requestcontext.Now(ctx)
	if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(now) {
		return nil, dErrors.New(dErrors.CodeCredentialExpired, "credential expired")
	}
	if claims.DigestAlg != HashAlgorithm {
		return nil, dErrors.New(dErrors.CodeMalformedInput, "unsupported _sd_alg")
	}

	signed := make(map[string]struct{}, len(claims.Digests))
	for _, d := range claims.Digests {
		signed[d] = struct{}{}
	}

	revealed := make(map[string]any, len(cred.Disclosures))
	seen := make(map[string]struct{}, len(cred.Disclosures))
	for _, d := range cred.Disclosures {
		sum := d.Digest()
		if _, dup := seen[sum]; dup {
			return nil, dErrors.New(dErrors.CodeMalformedInput, "disclosure presented more than once")
		}
		seen[sum] = struct{}{}
		if _, ok := signed[sum]; !ok {
			continue
		}
		if _, dup := revealed[d.Name]; dup {
			return nil, dErrors.New(dErrors.CodeMalformedInput, "claim disclosed more than once")
		}
		revealed[d.Name] = d.Value
	}

	out := &Verified{
		Claims:  revealed,
		Holder:  claims.Confirmation.JWK,
		Issuer:  claims.Issuer,
		Subject: claims.Subject,
		Type:    claims.Type,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	out.ExpiresAt = claims.ExpiresAt.Time
	return out, nil
}

// Present keeps only the disclosures whose claim names are listed. The
// signed envelope is unchanged, so the result still verifies.
func Present(raw string, keep ...string) (string, error) {
	cred, err := Parse(raw)
	if err != nil {
		return "", err
	}
	wanted := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		wanted[name] = struct{}{}
	}
	kept := cred.Disclosures[:0]
	for _, d := range cred.Disclosures {
		if _, ok := wanted[d.Name]; ok {
			kept = append(kept, d)
		}
	}
	cred.Disclosures = kept
	return cred.String(), nil
}
