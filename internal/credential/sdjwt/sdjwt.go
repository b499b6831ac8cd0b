// Package sdjwt issues and verifies selective-disclosure credentials: an
// ES256-signed envelope followed by salted disclosures, joined by "~" with a
// trailing "~".
package sdjwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/requestcontext"
)

const (
	// CredentialType is the fixed vct of every issued credential.
	CredentialType = "urn:mdlgate:credential:age-verification:1"
	// HashAlgorithm names the disclosure digest algorithm in _sd_alg.
	HashAlgorithm = "sha-256"
	// MediaType is the JOSE typ header.
	MediaType = "vc+sd-jwt"
	// DefaultTTL is the credential lifetime.
	DefaultTTL = 24 * time.Hour

	separator = "~"
	saltSize  = 16
)

// Claims is the signed envelope.
type Claims struct {
	Type         string       `json:"vct"`
	Digests      []string     `json:"_sd"`
	DigestAlg    string       `json:"_sd_alg"`
	Confirmation Confirmation `json:"cnf"`
	jwt.RegisteredClaims
}

// Confirmation binds the credential to the holder key.
type Confirmation struct {
	JWK json.RawMessage `json:"jwk"`
}

// Claim is a name/value pair to disclose. Order is preserved in _sd.
type Claim struct {
	Name  string
	Value any
}

// IssueRequest describes one credential.
type IssueRequest struct {
	// HolderKey is the holder's public JWK.
	HolderKey json.RawMessage
	// Subject is the verification session the credential derives from.
	Subject string
	Claims  []Claim
}

// Credential is an issued or parsed credential.
type Credential struct {
	Envelope    string
	Disclosures []Disclosure
}

// String renders the wire format <jwt>~<d1>~...~<dn>~.
func (c *Credential) String() string {
	var b strings.Builder
	b.WriteString(c.Envelope)
	b.WriteString(separator)
	for _, d := range c.Disclosures {
		b.WriteString(d.Encoded)
		b.WriteString(separator)
	}
	return b.String()
}

// Issued is a freshly signed credential plus its validity window.
type Issued struct {
	Credential *Credential
	ID         string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Issuer signs credentials with the issuer key.
type Issuer struct {
	key     *ecdsa.PrivateKey
	keyID   string
	issuer  string
	ttl     time.Duration
	newSalt func() ([]byte, error)
}

type IssuerOption func(*Issuer)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithKeyID sets the kid header so verifiers can pick the key from the JWKS.
func WithKeyID(kid string) IssuerOption {
	return func(i *Issuer) { i.keyID = kid }
}

// WithSaltSource replaces the random salt generator. Tests only.
func WithSaltSource(fn func() ([]byte, error)) IssuerOption {
	return func(i *Issuer) { i.newSalt = fn }
}

func NewIssuer(key *ecdsa.PrivateKey, issuerURL string, opts ...IssuerOption) (*Issuer, error) {
	if key == nil {
		return nil, errors.New("issuer signing key is required")
	}
	if issuerURL == "" {
		return nil, errors.New("issuer identifier is required")
	}
	i := &Issuer{
		key:     key,
		issuer:  issuerURL,
		ttl:     DefaultTTL,
		newSalt: randomSalt,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// PublicKey returns the verification key.
func (i *Issuer) PublicKey() *ecdsa.PublicKey {
	return &i.key.PublicKey
}

// TTL returns the configured credential lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue builds one disclosure per claim and signs the envelope. iat is the
// request time; exp is iat plus the TTL.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	if err := validateHolderKey(req.HolderKey); err != nil {
		return nil, err
	}
	if len(req.Claims) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "credential needs at least one claim")
	}

	disclosures := make([]Disclosure, 0, len(req.Claims))
	digests := make([]string, 0, len(req.Claims))
	for _, c := range req.Claims {
		salt, err := i.newSalt()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate salt")
		}
		d, err := NewDisclosure(salt, c.Name, c.Value)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode disclosure")
		}
		disclosures = append(disclosures, d)
		digests = append(digests, d.Digest())
	}

	now := requestcontext.Now(ctx).Truncate(time.Second)
	exp := now.Add(i.ttl)
	jti := uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, Claims{
		Type:         CredentialType,
		Digests:      digests,
		DigestAlg:    HashAlgorithm,
		Confirmation: Confirmation{JWK: req.HolderKey},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   req.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	})
	token.Header["typ"] = MediaType
	if i.keyID != "" {
		token.Header["kid"] = i.keyID
	}
	signed, err := token.SignedString(i.key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign credential")
	}
	return &Issued{
		Credential: &Credential{Envelope: signed, Disclosures: disclosures},
		ID:         jti,
		IssuedAt:   now,
		ExpiresAt:  exp,
	}, nil
}

// validateHolderKey accepts a public JWK only. A private key here would be
// embedded in the credential.
func validateHolderKey(raw json.RawMessage) error {
	if len(raw) == 0 {
		return dErrors.New(dErrors.CodeInvalidRequest, "holder public key is required")
	}
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return dErrors.New(dErrors.CodeInvalidRequest, "holder public key is not a valid JWK")
	}
	if !jwk.Valid() || !jwk.IsPublic() {
		return dErrors.New(dErrors.CodeInvalidRequest, "holder key must be a public JWK")
	}
	return nil
}

func randomSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}
