package source

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"mdlgate/pkg/platform/remote"
)

// RootCache persists raw root PEMs between runs.
type RootCache interface {
	LoadRoot(ctx context.Context, code string) ([]byte, error)
	SaveRoot(ctx context.Context, code string, pemData []byte) error
}

// RootFetcher retrieves per-jurisdiction root certificates from
// GET {endpoint}/{code}.pem, falling back to the local copy.
type RootFetcher struct {
	endpoint string
	cache    RootCache
	now      func() time.Time
	options
}

func NewRootFetcher(endpoint string, cache RootCache, opts ...Option) *RootFetcher {
	return &RootFetcher{
		endpoint: strings.TrimSpace(endpoint),
		cache:    cache,
		now:      time.Now,
		options:  buildOptions(opts),
	}
}

// FetchRoot returns the parsed root for code. A successful download
// refreshes the local copy; a failed one falls back to it.
func (f *RootFetcher) FetchRoot(ctx context.Context, code string) (*x509.Certificate, error) {
	code = strings.ToUpper(code)

	fetchErr := f.errNoEndpoint()
	if fetchErr == nil {
		cert, raw, err := f.download(ctx, code)
		if err == nil {
			if f.cache != nil {
				// a failed write only costs us the offline fallback
				_ = f.cache.SaveRoot(ctx, code, raw)
			}
			return cert, nil
		}
		fetchErr = err
	}

	if f.cache == nil {
		return nil, fetchErr
	}
	raw, err := f.cache.LoadRoot(ctx, code)
	if err != nil {
		return nil, errors.Join(fetchErr, err)
	}
	cert, err := ParseRootPEM(raw, f.now())
	if err != nil {
		return nil, errors.Join(fetchErr, err)
	}
	return cert, nil
}

func (f *RootFetcher) errNoEndpoint() error {
	if f.endpoint == "" {
		return remote.New(remote.CategoryOutage, sourceRoot, "no root endpoint configured", nil)
	}
	return nil
}

func (f *RootFetcher) download(ctx context.Context, code string) (*x509.Certificate, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	raw, err := get(ctx, f.client, sourceRoot, joinURL(f.endpoint, code+".pem"), "application/x-pem-file", maxRootBytes)
	if err != nil {
		return nil, nil, err
	}
	cert, err := ParseRootPEM(raw, f.now())
	if err != nil {
		return nil, nil, remote.New(remote.CategoryBadData, sourceRoot, "invalid root certificate for "+code, err)
	}
	return cert, raw, nil
}

// ParseRootPEM decodes the first CERTIFICATE block and checks it is a CA
// certificate valid at now.
func ParseRootPEM(data []byte, now time.Time) (*x509.Certificate, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, errors.New("no CERTIFICATE block found")
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse root: %w", err)
		}
		if !cert.IsCA {
			return nil, errors.New("root is not a CA certificate")
		}
		if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			return nil, errors.New("root certificate outside its validity period")
		}
		return cert, nil
	}
}
