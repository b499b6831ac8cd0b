package source

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdlgate/pkg/platform/remote"
	"mdlgate/pkg/platform/sentinel"
)

func rootPEM(t *testing.T, isCA bool, notAfter time.Time) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test IACA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              notAfter,
		IsCA:                  isCA,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

type memRootCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memRootCache) LoadRoot(_ context.Context, code string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.data[code]; ok {
		return d, nil
	}
	return nil, sentinel.ErrNotFound
}

func (m *memRootCache) SaveRoot(_ context.Context, code string, pemData []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[code] = pemData
	return nil
}

func TestHTTPSourceFetchTrustList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"3","jurisdictions":[{"code":"US","name":"United States","issuer":"US-AAMVA",
			"certificates":[{"kid":"us-1","type":"EC","alg":"ES256","publicKey":"pk","validFrom":"2026-01-01T00:00:00Z","validUntil":"2027-01-01T00:00:00Z"}]}]}`))
	}))
	defer srv.Close()

	list, err := NewHTTPSource(srv.URL).FetchTrustList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3", list.Version)
	require.Len(t, list.Jurisdictions, 1)
	assert.Equal(t, "US-AAMVA", list.Jurisdictions[0].IssuerLabel)
	assert.Equal(t, "us-1", list.Jurisdictions[0].Certificates[0].KeyID)
}

func TestHTTPSourceFailures(t *testing.T) {
	t.Run("server error is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		_, err := NewHTTPSource(srv.URL).FetchTrustList(context.Background())
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("garbage body is bad data", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}))
		defer srv.Close()
		_, err := NewHTTPSource(srv.URL).FetchTrustList(context.Background())
		var re *remote.Error
		require.True(t, errors.As(err, &re))
		assert.Equal(t, remote.CategoryBadData, re.Category)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := NewHTTPSource(srv.URL, WithTimeout(20*time.Millisecond)).FetchTrustList(context.Background())
		var re *remote.Error
		require.True(t, errors.As(err, &re))
		assert.Equal(t, remote.CategoryTimeout, re.Category)
	})

	t.Run("no endpoint", func(t *testing.T) {
		_, err := NewHTTPSource("").FetchTrustList(context.Background())
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}

func TestRootFetcher(t *testing.T) {
	good := rootPEM(t, true, time.Now().Add(24*time.Hour))
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		switch r.URL.Path {
		case "/US.pem":
			_, _ = w.Write(good)
		case "/CA.pem":
			_, _ = w.Write(rootPEM(t, false, time.Now().Add(time.Hour)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cache := &memRootCache{data: map[string][]byte{}}
	fetcher := NewRootFetcher(srv.URL+"/", cache)
	ctx := context.Background()

	cert, err := fetcher.FetchRoot(ctx, "us")
	require.NoError(t, err)
	assert.Equal(t, "Test IACA", cert.Subject.CommonName)
	assert.Equal(t, good, cache.data["US"], "successful download is cached")

	t.Run("non CA root is rejected", func(t *testing.T) {
		_, err := fetcher.FetchRoot(ctx, "CA")
		assert.Error(t, err)
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := fetcher.FetchRoot(ctx, "MX")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("falls back to cached copy", func(t *testing.T) {
		fail.Store(true)
		defer fail.Store(false)
		cert, err := fetcher.FetchRoot(ctx, "US")
		require.NoError(t, err)
		assert.NotNil(t, cert)
	})
}

func TestParseRootPEM(t *testing.T) {
	_, err := ParseRootPEM([]byte("nothing"), time.Now())
	assert.Error(t, err)

	expired := rootPEM(t, true, time.Now().Add(time.Minute))
	_, err = ParseRootPEM(expired, time.Now().Add(time.Hour))
	assert.ErrorContains(t, err, "validity")
}
