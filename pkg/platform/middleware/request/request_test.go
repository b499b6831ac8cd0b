package request

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdlgate/pkg/requestcontext"
)

func TestRequestID(t *testing.T) {
	capture := func(got *string) http.Handler {
		return RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*got = requestcontext.RequestID(r.Context())
		}))
	}

	t.Run("generates UUID when header missing", func(t *testing.T) {
		var id string
		w := httptest.NewRecorder()
		capture(&id).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify", nil))

		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Header().Get("X-Request-ID"))
	})

	t.Run("keeps a valid client id", func(t *testing.T) {
		var id string
		req := httptest.NewRequest(http.MethodGet, "/verify", nil)
		req.Header.Set("X-Request-ID", "trace.span_1234")
		capture(&id).ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "trace.span_1234", id)
	})

	t.Run("replaces unsafe ids", func(t *testing.T) {
		for _, bad := range []string{"has space", "valid\ninjected", `q"uote`, strings.Repeat("a", MaxRequestIDLength+1)} {
			var id string
			req := httptest.NewRequest(http.MethodGet, "/verify", nil)
			req.Header.Set("X-Request-ID", bad)
			capture(&id).ServeHTTP(httptest.NewRecorder(), req)
			assert.NotEqual(t, bad, id)
			assert.Len(t, id, 36)
		}
	})
}

func TestRequestTimeIsStableWithinRequest(t *testing.T) {
	var first, second time.Time
	h := RequestTime(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(5 * time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, first, second)
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verify", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestContentTypeJSON(t *testing.T) {
	ok := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := map[string]int{
		"application/json; charset=utf-8":   http.StatusNoContent,
		"application/x-www-form-urlencoded": http.StatusNoContent,
		"text/plain":                        http.StatusUnsupportedMediaType,
	}
	for ct, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader("{}"))
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		ok.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, ct)
	}
}

func TestBodyLimit(t *testing.T) {
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestClientMetadataAndDevice(t *testing.T) {
	var ip, fp, label string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		fp = requestcontext.DeviceFingerprint(r.Context())
		label = requestcontext.DeviceLabel(r.Context())
	})
	h := ClientMetadata(Device(func(ua string) (string, string) {
		return "fp:" + ua, "label"
	})(inner))

	req := httptest.NewRequest(http.MethodPost, "/verify", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("User-Agent", "test-agent")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "192.0.2.10", ip)
	assert.Equal(t, "fp:test-agent", fp)
	assert.Equal(t, "label", label)
}

func TestAnonymizeIP(t *testing.T) {
	assert.Equal(t, "192.0.2.0/24", anonymizeIP("192.0.2.77"))
	assert.Equal(t, "2001:db8:1::/48", anonymizeIP("2001:db8:1:2::1"))
	assert.Empty(t, anonymizeIP("not-an-ip"))
}
