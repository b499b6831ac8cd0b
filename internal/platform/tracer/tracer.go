// Package tracer is a small tracing abstraction so services do not depend on
// OpenTelemetry directly. NoopTracer serves tests, OTelTracer production.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, marking it failed when err is non-nil.
	// Call exactly once.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key/value pair attached to spans. Never put credential
// attribute values in one.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanPresentationVerify = "presentation.verify"
	SpanRemoteVerify       = "presentation.remote_verify"
	SpanTrustFetch         = "trust.fetch"
	SpanTrustRefresh       = "trust.refresh"
	SpanRootFetch          = "trust.root_fetch"
	SpanCredentialIssue    = "issuance.credential"
	SpanCredentialVerify   = "credential.verify"
	SpanIssuanceToken      = "issuance.token"
	SpanIssuanceRedeem     = "issuance.redeem"
)

// Attribute keys.
const (
	AttrMode         = "verification.mode"
	AttrValid        = "verification.valid"
	AttrMock         = "verification.mock"
	AttrErrorKind    = "verification.error"
	AttrStale        = "trust.stale"
	AttrForce        = "trust.force"
	AttrJurisdiction = "trust.jurisdiction"
	AttrStatusCode   = "http.status_code"
	AttrDisclosures  = "credential.disclosures"
)

// Event names.
const (
	EventStaleFallback = "trust.stale_fallback"
	EventCircuitOpen   = "circuit.open"
)
