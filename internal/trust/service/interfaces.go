package service

import (
	"context"
	"crypto/x509"

	"mdlgate/internal/trust/models"
)

// Source fetches the published trust list.
type Source interface {
	FetchTrustList(ctx context.Context) (*models.TrustList, error)
}

// Cache persists the last good trust list between restarts.
type Cache interface {
	Load(ctx context.Context) (*models.CacheFile, error)
	Save(ctx context.Context, file *models.CacheFile) error
}

// RootSource fetches per-jurisdiction root certificates.
type RootSource interface {
	FetchRoot(ctx context.Context, code string) (*x509.Certificate, error)
}
