// Package remote normalizes failures of outbound HTTP dependencies (remote
// verifier, trust list, root certificates) into one taxonomy.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"mdlgate/pkg/platform/sentinel"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Category is the normalized failure class.
type Category string

const (
	CategoryTimeout  Category = "timeout"
	CategoryOutage   Category = "outage"
	CategoryBadData  Category = "bad_data"
	CategoryRejected Category = "rejected"
	CategoryNotFound Category = "not_found"
	CategoryInternal Category = "internal"
)

// Error is a classified dependency failure. It matches the sentinel for its
// category under errors.Is, so services never inspect categories directly.
type Error struct {
	Category   Category
	Source     string
	Message    string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Source, e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Source, e.Category, e.Message)
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Err != nil {
		out = append(out, e.Err)
	}
	if s := sentinelFor(e.Category); s != nil {
		out = append(out, s)
	}
	return out
}

// Retryable reports whether another attempt might succeed.
func (e *Error) Retryable() bool {
	return e.Category == CategoryTimeout || e.Category == CategoryOutage
}

func sentinelFor(c Category) error {
	switch c {
	case CategoryTimeout, CategoryOutage:
		return sentinel.ErrUnavailable
	case CategoryRejected:
		return sentinel.ErrRejected
	case CategoryNotFound:
		return sentinel.ErrNotFound
	case CategoryBadData:
		return sentinel.ErrInvalidInput
	default:
		return nil
	}
}

// New builds a classified error.
func New(category Category, source, message string, err error) *Error {
	return &Error{Category: category, Source: source, Message: message, Err: err}
}

// TransportError classifies an error returned by HTTPDoer.Do.
func TransportError(ctx context.Context, source string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return New(CategoryTimeout, source, "request timeout", err)
	}
	return New(CategoryOutage, source, "request failed", err)
}

// StatusError classifies a non-2xx response. 5xx/429 are outages, 404 is
// not found, anything else is a rejection carrying the body.
func StatusError(source string, status int, body []byte) *Error {
	var e *Error
	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		e = New(CategoryOutage, source, fmt.Sprintf("upstream status %d", status), nil)
	case status == http.StatusNotFound:
		e = New(CategoryNotFound, source, "not found", nil)
	default:
		e = New(CategoryRejected, source, fmt.Sprintf("upstream status %d", status), nil)
	}
	e.StatusCode = status
	e.Body = body
	return e
}

// ReadBody reads at most limit bytes of an HTTP response body.
func ReadBody(source string, r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, New(CategoryBadData, source, "failed to read response", err)
	}
	if int64(len(data)) > limit {
		return nil, New(CategoryBadData, source, "response too large", nil)
	}
	return data, nil
}
