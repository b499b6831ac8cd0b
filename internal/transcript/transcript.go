// Package transcript builds and checks the session transcript that binds a
// browser credential API presentation to one verifier request:
//
//	[null, null, ["OpenID4VPDCAPIHandover", H(audience), H(nonce), H(responseUri) | null]]
//
// where H(x) is the standard-base64 (padded) SHA-256 of x.
package transcript

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	dErrors "mdlgate/pkg/domain-errors"
)

// HandoverName identifies the browser credential API handover.
const HandoverName = "OpenID4VPDCAPIHandover"

// ErrMalformed is wrapped by every shape or content violation.
var ErrMalformed = errors.New("malformed session transcript")

// Handover is the third transcript element.
type Handover struct {
	Name            string
	AudienceHash    string
	NonceHash       string
	ResponseURIHash *string
}

// Transcript is a session transcript. Device engagement and reader
// ephemeral key are always null for this handover and are not modelled.
type Transcript struct {
	Handover Handover
}

// Build derives the transcript for nonce and audience. An empty responseURI
// yields a null fourth handover element.
func Build(nonce, audience, responseURI string) Transcript {
	h := Handover{
		Name:         HandoverName,
		AudienceHash: Hash(audience),
		NonceHash:    Hash(nonce),
	}
	if responseURI != "" {
		v := Hash(responseURI)
		h.ResponseURIHash = &v
	}
	return Transcript{Handover: h}
}

// Hash is base64(SHA-256(utf8(s))) with padding.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Validate checks the handover content.
func Validate(t Transcript) error {
	h := t.Handover
	if h.Name != HandoverName {
		return malformed("unexpected handover name")
	}
	if !isDigest(h.AudienceHash) {
		return malformed("audience hash is not a SHA-256 digest")
	}
	if !isDigest(h.NonceHash) {
		return malformed("nonce hash is not a SHA-256 digest")
	}
	if h.ResponseURIHash != nil && !isDigest(*h.ResponseURIHash) {
		return malformed("response uri hash is not a SHA-256 digest")
	}
	return nil
}

// IsValid reports whether Validate passes.
func IsValid(t Transcript) bool {
	return Validate(t) == nil
}

// MarshalJSON emits the three-element array.
func (t Transcript) MarshalJSON() ([]byte, error) {
	handover := []any{t.Handover.Name, t.Handover.AudienceHash, t.Handover.NonceHash, nil}
	if t.Handover.ResponseURIHash != nil {
		handover[3] = *t.Handover.ResponseURIHash
	}
	return json.Marshal([]any{nil, nil, handover})
}

// UnmarshalJSON accepts exactly the shape MarshalJSON produces.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Parse decodes and validates an externally supplied transcript.
func Parse(data []byte) (Transcript, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return Transcript{}, malformed("transcript is not an array")
	}
	if len(outer) != 3 {
		return Transcript{}, malformed(fmt.Sprintf("transcript has %d elements, want 3", len(outer)))
	}
	if !isNull(outer[0]) || !isNull(outer[1]) {
		return Transcript{}, malformed("device engagement and reader key must be null")
	}

	var handover []json.RawMessage
	if err := json.Unmarshal(outer[2], &handover); err != nil || handover == nil {
		return Transcript{}, malformed("handover is not an array")
	}
	if len(handover) != 4 {
		return Transcript{}, malformed(fmt.Sprintf("handover has %d elements, want 4", len(handover)))
	}

	var t Transcript
	fields := []*string{&t.Handover.Name, &t.Handover.AudienceHash, &t.Handover.NonceHash}
	for i, dst := range fields {
		if err := json.Unmarshal(handover[i], dst); err != nil {
			return Transcript{}, malformed(fmt.Sprintf("handover element %d is not a string", i))
		}
	}
	if !isNull(handover[3]) {
		var v string
		if err := json.Unmarshal(handover[3], &v); err != nil {
			return Transcript{}, malformed("response uri hash is neither string nor null")
		}
		t.Handover.ResponseURIHash = &v
	}

	if err := Validate(t); err != nil {
		return Transcript{}, err
	}
	return t, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isDigest(s string) bool {
	raw, err := base64.StdEncoding.DecodeString(s)
	return err == nil && len(raw) == sha256.Size
}

func malformed(detail string) error {
	return &dErrors.Error{
		Code:    dErrors.CodeMalformedInput,
		Message: "malformed session transcript: " + detail,
		Err:     ErrMalformed,
	}
}
