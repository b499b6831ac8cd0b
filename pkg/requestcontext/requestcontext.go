// Package requestcontext carries request-scoped values (id, time, client
// metadata, device context) through context.Context.
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey         struct{}
	timeKey              struct{}
	clientIPKey          struct{}
	userAgentKey         struct{}
	deviceFingerprintKey struct{}
	deviceLabelKey       struct{}
)

// WithRequestID stores the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id, or "" outside an HTTP request.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTime pins "now" for everything downstream. Workers, CLIs and tests
// use it to get consistent timestamps without the HTTP middleware.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}

// Now returns the request-scoped time, falling back to time.Now().
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithClientMetadata stores the caller's IP and User-Agent.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, ip)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey{}).(string)
	return v
}

func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey{}).(string)
	return v
}

// WithDevice stores the coarse device fingerprint and display label.
func WithDevice(ctx context.Context, fingerprint, label string) context.Context {
	ctx = context.WithValue(ctx, deviceFingerprintKey{}, fingerprint)
	return context.WithValue(ctx, deviceLabelKey{}, label)
}

func DeviceFingerprint(ctx context.Context) string {
	v, _ := ctx.Value(deviceFingerprintKey{}).(string)
	return v
}

func DeviceLabel(ctx context.Context) string {
	v, _ := ctx.Value(deviceLabelKey{}).(string)
	return v
}
