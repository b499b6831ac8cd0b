package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "mdlgate/pkg/domain-errors"
)

type tokenLikeRequest struct {
	Code       string `json:"code"`
	normalized bool
}

func (r *tokenLikeRequest) Normalize() {
	r.Code = strings.TrimSpace(r.Code)
	r.normalized = true
}

func (r *tokenLikeRequest) Validate() error {
	if r.Code == "" {
		return errors.New("code is required")
	}
	if r.Code == "grant" {
		return dErrors.New(dErrors.CodeUnsupportedGrantType, "unsupported grant")
	}
	return nil
}

func decode(t *testing.T, body string) (*tokenLikeRequest, *httptest.ResponseRecorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(body))
	got, ok := DecodeAndPrepare[tokenLikeRequest](w, req, logger, dErrors.CodeInvalidRequest)
	if ok {
		require.NotNil(t, got)
	}
	return got, w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("normalizes and validates", func(t *testing.T) {
		got, _ := decode(t, `{"code":"  abc  "}`)
		require.NotNil(t, got)
		assert.Equal(t, "abc", got.Code)
		assert.True(t, got.normalized)
	})

	t.Run("broken json uses fallback code", func(t *testing.T) {
		got, w := decode(t, `{nope`)
		assert.Nil(t, got)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_request", errorBody(t, w)["error"])
	})

	t.Run("plain validation error uses fallback code", func(t *testing.T) {
		_, w := decode(t, `{"code":"  "}`)
		body := errorBody(t, w)
		assert.Equal(t, "invalid_request", body["error"])
		assert.Equal(t, "code is required", body["error_description"])
	})

	t.Run("domain error keeps its code", func(t *testing.T) {
		_, w := decode(t, `{"code":"grant"}`)
		assert.Equal(t, "unsupported_grant_type", errorBody(t, w)["error"])
	})
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		code   dErrors.Code
		status int
		wire   string
	}{
		{dErrors.CodeMalformedInput, http.StatusBadRequest, "malformed_input"},
		{dErrors.CodeCryptoFailure, http.StatusUnprocessableEntity, "crypto_failure"},
		{dErrors.CodeTrustUnavailable, http.StatusServiceUnavailable, "trust_unavailable"},
		{dErrors.CodeInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{dErrors.CodeInvalidGrant, http.StatusBadRequest, "invalid_grant"},
		{dErrors.CodeValidation, http.StatusBadRequest, "validation_error"},
		{dErrors.CodeInternal, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(tc.code, "x"))
		assert.Equal(t, tc.status, w.Code, tc.code)
		assert.Equal(t, tc.wire, errorBody(t, w)["error"])
	}

	t.Run("bearer challenge on invalid token", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInvalidToken, "expired"))
		assert.Contains(t, w.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("leaky detail"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "leaky")
	})
}
