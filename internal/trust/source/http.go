package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mdlgate/internal/trust/models"
	"mdlgate/pkg/platform/remote"
)

const (
	sourceTrustList = "trust-list"
	sourceRoot      = "trust-root"

	maxTrustListBytes = 4 << 20
	maxRootBytes      = 64 << 10
)

type options struct {
	client  remote.HTTPDoer
	timeout time.Duration
}

// Option configures the HTTP sources.
type Option func(*options)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c remote.HTTPDoer) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithTimeout bounds each request. Default is 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: o.timeout}
	}
	return o
}

// HTTPSource fetches the trust list document.
type HTTPSource struct {
	endpoint string
	options
}

func NewHTTPSource(endpoint string, opts ...Option) *HTTPSource {
	return &HTTPSource{endpoint: strings.TrimSpace(endpoint), options: buildOptions(opts)}
}

// FetchTrustList performs GET {endpoint} and decodes the document.
func (s *HTTPSource) FetchTrustList(ctx context.Context) (*models.TrustList, error) {
	if s.endpoint == "" {
		return nil, remote.New(remote.CategoryOutage, sourceTrustList, "no trust endpoint configured", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := get(ctx, s.client, sourceTrustList, s.endpoint, "application/json", maxTrustListBytes)
	if err != nil {
		return nil, err
	}

	var list models.TrustList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, remote.New(remote.CategoryBadData, sourceTrustList, "invalid trust list document", err)
	}
	if list.Jurisdictions == nil {
		return nil, remote.New(remote.CategoryBadData, sourceTrustList, "trust list has no jurisdictions field", nil)
	}
	return &list, nil
}

func get(ctx context.Context, client remote.HTTPDoer, source, url, accept string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, remote.New(remote.CategoryInternal, source, "failed to create request", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, remote.TransportError(ctx, source, err)
	}
	defer resp.Body.Close()

	body, err := remote.ReadBody(source, resp.Body, limit)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remote.StatusError(source, resp.StatusCode, nil)
	}
	return body, nil
}

func joinURL(base, name string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), name)
}
