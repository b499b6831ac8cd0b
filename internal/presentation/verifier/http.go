// Package verifier is the HTTP adapter for the remote proof verifier.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mdlgate/internal/platform/tracer"
	"mdlgate/internal/presentation/metrics"
	"mdlgate/internal/transcript"
	"mdlgate/pkg/platform/circuit"
	"mdlgate/pkg/platform/remote"
)

const (
	sourceVerifier = "remote-verifier"
	maxResultBytes = 1 << 20
	defaultTimeout = 10 * time.Second
)

// ErrCircuitOpen marks calls short-circuited by the breaker.
var ErrCircuitOpen = errors.New("remote verifier circuit open")

// Result is the remote verifier's answer. Predicates may hold arbitrary
// JSON values; callers must minimize before exposing them.
type Result struct {
	Valid      bool           `json:"valid"`
	Predicates map[string]any `json:"predicates"`
	Issuer     string         `json:"issuer"`
	KeyID      string         `json:"kid,omitempty"`
}

type verifyRequest struct {
	Proof             string                `json:"proof"`
	SessionTranscript transcript.Transcript `json:"sessionTranscript"`
}

type rejectionBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPVerifier calls POST {endpoint}/verify. It makes exactly one attempt
// per call.
type HTTPVerifier struct {
	endpoint string
	client   remote.HTTPDoer
	timeout  time.Duration
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
}

type Option func(*HTTPVerifier)

func WithHTTPClient(c remote.HTTPDoer) Option {
	return func(v *HTTPVerifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithTimeout bounds each call. Default is 10s.
func WithTimeout(d time.Duration) Option {
	return func(v *HTTPVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(v *HTTPVerifier) { v.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *HTTPVerifier) { v.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *HTTPVerifier) { v.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(v *HTTPVerifier) { v.tracer = t }
}

func New(endpoint string, opts ...Option) *HTTPVerifier {
	v := &HTTPVerifier{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		timeout:  defaultTimeout,
		breaker:  circuit.New(sourceVerifier),
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.client == nil {
		v.client = &http.Client{}
	}
	return v
}

// Verify sends the presentation token and transcript to the remote
// verifier. Transport failures and timeouts come back as remote errors in
// the timeout/outage categories; a non-2xx answer with a body is a
// rejection. The call is detached from caller cancellation and bounded by
// the verifier's own timeout.
func (v *HTTPVerifier) Verify(ctx context.Context, token string, t transcript.Transcript) (*Result, error) {
	ctx, span := v.tracer.Start(ctx, tracer.SpanRemoteVerify)
	if !v.breaker.Allow() {
		span.AddEvent(tracer.EventCircuitOpen)
		err := remote.New(remote.CategoryOutage, sourceVerifier, "circuit open", ErrCircuitOpen)
		span.End(err)
		return nil, err
	}

	start := time.Now()
	res, status, err := v.call(ctx, token, t)
	v.record(ctx, err)
	v.metrics.ObserveRemoteLatency(resultLabel(err), time.Since(start))
	if status != 0 {
		span.SetAttributes(tracer.Int64(tracer.AttrStatusCode, int64(status)))
	}
	span.End(err)
	return res, err
}

func (v *HTTPVerifier) call(ctx context.Context, token string, t transcript.Transcript) (*Result, int, error) {
	if v.endpoint == "" {
		return nil, 0, remote.New(remote.CategoryOutage, sourceVerifier, "no verifier endpoint configured", nil)
	}
	payload, err := json.Marshal(verifyRequest{Proof: token, SessionTranscript: t})
	if err != nil {
		return nil, 0, remote.New(remote.CategoryInternal, sourceVerifier, "failed to encode request", err)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, v.endpoint+"/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, remote.New(remote.CategoryInternal, sourceVerifier, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, 0, remote.TransportError(callCtx, sourceVerifier, err)
	}
	defer resp.Body.Close()

	body, err := remote.ReadBody(sourceVerifier, resp.Body, maxResultBytes)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, classifyStatus(resp.StatusCode, body)
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, resp.StatusCode, remote.New(remote.CategoryBadData, sourceVerifier, "invalid verifier response", err)
	}
	return &res, resp.StatusCode, nil
}

// classifyStatus treats a 4xx answer that carries a body as the verifier's
// verdict. 5xx and 429 are outages whatever the body says, and empty error
// responses fall back to status-based classification.
func classifyStatus(status int, body []byte) error {
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return remote.StatusError(sourceVerifier, status, body)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return remote.StatusError(sourceVerifier, status, nil)
	}
	e := remote.New(remote.CategoryRejected, sourceVerifier, rejectionMessage(status, body), nil)
	e.StatusCode = status
	return e
}

func rejectionMessage(status int, body []byte) string {
	var rb rejectionBody
	if err := json.Unmarshal(body, &rb); err == nil {
		if rb.Message != "" {
			return rb.Message
		}
		if rb.Error != "" {
			return rb.Error
		}
	}
	return fmt.Sprintf("verifier rejected presentation (status %d)", status)
}

// record feeds the breaker. Only transport problems count as failures; a
// rejection proves the verifier is up.
func (v *HTTPVerifier) record(ctx context.Context, err error) {
	var re *remote.Error
	if err != nil && errors.As(err, &re) && re.Retryable() {
		if change := v.breaker.RecordFailure(); change.Opened {
			v.metrics.SetCircuitOpen(true)
			v.logger.WarnContext(ctx, "remote verifier circuit opened", "error", err)
		}
		return
	}
	if change := v.breaker.RecordSuccess(); change.Closed {
		v.metrics.SetCircuitOpen(false)
		v.logger.InfoContext(ctx, "remote verifier circuit closed")
	}
}

func resultLabel(err error) string {
	var re *remote.Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &re):
		return string(re.Category)
	default:
		return "error"
	}
}
