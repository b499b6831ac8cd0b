package service

import (
	"context"
	"crypto"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"

	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/requestcontext"
)

// Algorithms accepted on holder proofs.
var proofAlgorithms = []string{
	jwt.SigningMethodES256.Alg(),
	jwt.SigningMethodES384.Alg(),
	jwt.SigningMethodEdDSA.Alg(),
}

func parseHolderKey(raw json.RawMessage) (*jose.JSONWebKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "holder_public_key is not a valid JWK")
	}
	if !jwk.Valid() || !jwk.IsPublic() {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "holder_public_key must be a public JWK")
	}
	return &jwk, nil
}

// holderThumbprint returns the RFC 7638 SHA-256 thumbprint of a public
// holder JWK, base64url encoded.
func holderThumbprint(raw json.RawMessage) (string, error) {
	jwk, err := parseHolderKey(raw)
	if err != nil {
		return "", err
	}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidRequest, "holder_public_key cannot be thumbprinted")
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

// verifyProof checks that the holder proof JWT is signed by the key bound
// at authorization. iat and exp are checked when present.
func (s *Service) verifyProof(ctx context.Context, proof string, holderKey json.RawMessage) error {
	jwk, err := parseHolderKey(holderKey)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidProof, "bound holder key is unusable")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(proofAlgorithms),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithTimeFunc(func() time.Time { return requestcontext.Now(ctx) }),
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	_, err = jwt.Parse(proof, func(*jwt.Token) (any, error) {
		return jwk.Key, nil
	}, opts...)
	if err != nil {
		s.logger.WarnContext(ctx, "holder proof rejected",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.New(dErrors.CodeInvalidProof, "proof is not a valid JWT signed by the holder key")
	}
	return nil
}
