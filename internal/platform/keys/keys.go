// Package keys loads the reader (decryption) and issuer (signing) P-256 keys.
package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	_ "crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-jose/go-jose/v3"
)

// Purpose distinguishes the two process keys.
type Purpose string

const (
	PurposeReader Purpose = "reader"
	PurposeIssuer Purpose = "issuer"
)

// Key is a loaded private key plus its stable key id (RFC 7638 thumbprint).
type Key struct {
	Purpose Purpose
	Private *ecdsa.PrivateKey
	KeyID   string
}

// PublicJWK returns the public JWK with alg/use set for the key's purpose.
func (k Key) PublicJWK() jose.JSONWebKey {
	jwk := jose.JSONWebKey{Key: &k.Private.PublicKey, KeyID: k.KeyID}
	switch k.Purpose {
	case PurposeReader:
		jwk.Algorithm = string(jose.ECDH_ES)
		jwk.Use = "enc"
	default:
		jwk.Algorithm = string(jose.ES256)
		jwk.Use = "sig"
	}
	return jwk
}

// Loader resolves keys from an inline PEM, then <dir>/<purpose>.pem, and
// finally generates and persists a new key.
type Loader struct {
	dir    string
	logger *slog.Logger
}

func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, logger: logger}
}

// Load returns the key for purpose. inlinePEM, when set, wins and is never written to disk.
func (l *Loader) Load(ctx context.Context, purpose Purpose, inlinePEM string) (Key, error) {
	if inlinePEM != "" {
		priv, err := ParsePrivateKeyPEM([]byte(inlinePEM))
		if err != nil {
			return Key{}, fmt.Errorf("%s key from environment: %w", purpose, err)
		}
		return newKey(purpose, priv)
	}

	path := filepath.Join(l.dir, string(purpose)+".pem")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		priv, err := ParsePrivateKeyPEM(data)
		if err != nil {
			return Key{}, fmt.Errorf("%s key %s: %w", purpose, path, err)
		}
		return newKey(purpose, priv)
	case !errors.Is(err, os.ErrNotExist):
		return Key{}, fmt.Errorf("read %s key: %w", purpose, err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Key{}, fmt.Errorf("generate %s key: %w", purpose, err)
	}
	if err := writePrivateKeyPEM(path, priv); err != nil {
		return Key{}, err
	}
	l.logger.WarnContext(ctx, "generated new signing material on local disk; not suitable for production",
		"purpose", string(purpose),
		"path", path,
	)
	return newKey(purpose, priv)
}

// ParsePrivateKeyPEM accepts PKCS#8 or SEC1 encoded P-256 keys.
func ParsePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	var priv *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		priv = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ec, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("PKCS#8 key is not an EC key")
		}
		priv = ec
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
	if priv.Curve != elliptic.P256() {
		return nil, errors.New("key must be on curve P-256")
	}
	return priv, nil
}

// EncodePrivateKeyPEM encodes priv as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func writePrivateKeyPEM(path string, priv *ecdsa.PrivateKey) error {
	data, err := EncodePrivateKeyPEM(priv)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("persist key: %w", err)
	}
	return nil
}

func newKey(purpose Purpose, priv *ecdsa.PrivateKey) (Key, error) {
	jwk := jose.JSONWebKey{Key: &priv.PublicKey}
	thumb, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return Key{}, fmt.Errorf("thumbprint %s key: %w", purpose, err)
	}
	return Key{
		Purpose: purpose,
		Private: priv,
		KeyID:   base64.RawURLEncoding.EncodeToString(thumb),
	}, nil
}

// JWKS publishes the public halves of keys.
func JWKS(keys ...Key) jose.JSONWebKeySet {
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, k := range keys {
		set.Keys = append(set.Keys, k.PublicJWK())
	}
	return set
}
