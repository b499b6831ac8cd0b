package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/require"
)

// FixedNow is the reference instant used by time-sensitive tests.
var FixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

// NewP256Key generates a fresh P-256 key or fails the test.
func NewP256Key(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

// PublicJWK returns the public half of key as a JWK object.
func PublicJWK(t testing.TB, key *ecdsa.PrivateKey) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(jose.JSONWebKey{Key: &key.PublicKey, Algorithm: string(jose.ES256), Use: "sig"})
	require.NoError(t, err)
	return raw
}

// EncryptForReader builds a compact ECDH-ES/A256GCM JWE addressed to reader,
// the way a wallet answers a browser credential request.
func EncryptForReader(t testing.TB, reader *ecdsa.PrivateKey, payload any) string {
	t.Helper()
	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.ECDH_ES, Key: &reader.PublicKey}, nil)
	require.NoError(t, err)
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	obj, err := enc.Encrypt(body)
	require.NoError(t, err)
	compact, err := obj.CompactSerialize()
	require.NoError(t, err)
	return compact
}
