package models

import "time"

// EndpointClass groups routes that share a per-IP limit.
type EndpointClass string

const (
	// ClassVerify covers presentation and credential verification.
	ClassVerify EndpointClass = "verify"
	// ClassIssuance covers /authorize, /token and /credential.
	ClassIssuance EndpointClass = "issuance"
)

func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassVerify, ClassIssuance:
		return true
	}
	return false
}

// ClassForPath maps a request path to its class. Paths outside every class
// are not limited.
func ClassForPath(path string) (EndpointClass, bool) {
	switch path {
	case "/verify", "/credential/verify":
		return ClassVerify, true
	case "/authorize", "/token", "/credential":
		return ClassIssuance, true
	}
	return "", false
}

// Limit is RequestsPerWindow over a sliding Window.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

type RateLimitExceededResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	RetryAfter       int    `json:"retry_after"`
}
