package e2e

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"
)

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	HolderKey             *ecdsa.PrivateKey
	VerificationSessionID string
	AuthCode              string
	AccessToken           string
	Credential            string
}

// NewTestContext creates a new test context with a fresh holder key.
func NewTestContext() *TestContext {
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	holder, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}

	return &TestContext{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		HolderKey: holder,
	}
}

// POST makes a JSON POST request and stores the response
func (tc *TestContext) POST(path string, body any) error {
	return tc.POSTWithHeaders(path, body, nil)
}

// POSTWithHeaders makes a JSON POST request with optional headers
func (tc *TestContext) POSTWithHeaders(path string, body any, headers map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"
	return tc.do(http.MethodPost, path, bytes.NewReader(data), headers)
}

// POSTForm makes a form-encoded POST request
func (tc *TestContext) POSTForm(path, form string) error {
	return tc.do(http.MethodPost, path, strings.NewReader(form), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
}

// GET makes a GET request and stores the response
func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// GetResponseField extracts a top-level field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response: %s", field, tc.LastResponseBody)
	}
	return value, nil
}

// ReaderKey fetches the gateway's encryption key from its JWKS.
func (tc *TestContext) ReaderKey() (*ecdsa.PublicKey, error) {
	if err := tc.GET("/.well-known/jwks.json", nil); err != nil {
		return nil, err
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(tc.LastResponseBody, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	for _, k := range set.Keys {
		if k.Use != "enc" {
			continue
		}
		if pub, ok := k.Key.(*ecdsa.PublicKey); ok {
			return pub, nil
		}
	}
	return nil, fmt.Errorf("jwks has no encryption key")
}

// Seal encrypts payload to the reader key as a compact JWE.
func (tc *TestContext) Seal(payload any) (string, error) {
	reader, err := tc.ReaderKey()
	if err != nil {
		return "", err
	}
	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.ECDH_ES, Key: reader}, nil)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	obj, err := enc.Encrypt(body)
	if err != nil {
		return "", err
	}
	return obj.CompactSerialize()
}

// HolderJWK is the public half of the scenario's holder key.
func (tc *TestContext) HolderJWK() json.RawMessage {
	raw, err := jose.JSONWebKey{Key: &tc.HolderKey.PublicKey}.MarshalJSON()
	if err != nil {
		panic(err)
	}
	return raw
}

// Accessors for step packages.

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte { return tc.LastResponseBody }
func (tc *TestContext) GetHolderKey() *ecdsa.PrivateKey { return tc.HolderKey }
func (tc *TestContext) GetVerificationSessionID() string { return tc.VerificationSessionID }
func (tc *TestContext) GetAuthCode() string { return tc.AuthCode }
func (tc *TestContext) SetAuthCode(code string) { tc.AuthCode = code }
func (tc *TestContext) GetAccessToken() string { return tc.AccessToken }
func (tc *TestContext) SetAccessToken(token string) { tc.AccessToken = token }
func (tc *TestContext) GetCredential() string { return tc.Credential }
func (tc *TestContext) SetCredential(credential string) { tc.Credential = credential }
