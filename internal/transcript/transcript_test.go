package transcript

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "mdlgate/pkg/domain-errors"
)

type TranscriptSuite struct {
	suite.Suite
}

func TestTranscriptSuite(t *testing.T) {
	suite.Run(t, new(TranscriptSuite))
}

func (s *TranscriptSuite) TestBuildIsDeterministic() {
	a := Build("n-123", "https://rp.example", "https://rp.example/cb")
	b := Build("n-123", "https://rp.example", "https://rp.example/cb")
	s.Equal(a, b)

	rawA, err := json.Marshal(a)
	s.Require().NoError(err)
	rawB, err := json.Marshal(b)
	s.Require().NoError(err)
	s.Equal(rawA, rawB)
}

func (s *TranscriptSuite) TestWireShape() {
	t := Build("abc", "https://rp.example", "")
	raw, err := json.Marshal(t)
	s.Require().NoError(err)

	expected := `[null,null,["OpenID4VPDCAPIHandover","` + Hash("https://rp.example") + `","` + Hash("abc") + `",null]]`
	s.JSONEq(expected, string(raw))

	// SHA-256("abc") in standard base64
	s.Equal("ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=", Hash("abc"))
}

func (s *TranscriptSuite) TestRoundTrip() {
	for _, uri := range []string{"", "https://rp.example/response"} {
		orig := Build("nonce", "https://rp.example", uri)
		raw, err := json.Marshal(orig)
		s.Require().NoError(err)

		parsed, err := Parse(raw)
		s.Require().NoError(err)
		s.Equal(orig, parsed)
		s.True(IsValid(parsed))

		var viaUnmarshal Transcript
		s.Require().NoError(json.Unmarshal(raw, &viaUnmarshal))
		s.Equal(orig, viaUnmarshal)
	}
}

func (s *TranscriptSuite) TestCorruptionIsMalformed() {
	good := Hash("x")
	cases := map[string]string{
		"not json":            `nope`,
		"object":              `{"a":1}`,
		"two elements":        `[null,["OpenID4VPDCAPIHandover","` + good + `","` + good + `",null]]`,
		"four elements":       `[null,null,["OpenID4VPDCAPIHandover","` + good + `","` + good + `",null],null]`,
		"non-null engagement": `[{},null,["OpenID4VPDCAPIHandover","` + good + `","` + good + `",null]]`,
		"handover object":     `[null,null,{"name":"OpenID4VPDCAPIHandover"}]`,
		"handover null":       `[null,null,null]`,
		"short handover":      `[null,null,["OpenID4VPDCAPIHandover","` + good + `"]]`,
		"wrong name":          `[null,null,["OtherHandover","` + good + `","` + good + `",null]]`,
		"numeric hash":        `[null,null,["OpenID4VPDCAPIHandover",1,"` + good + `",null]]`,
		"truncated hash":      `[null,null,["OpenID4VPDCAPIHandover","AAAA","` + good + `",null]]`,
		"url-safe hash":       `[null,null,["OpenID4VPDCAPIHandover","` + good + `","not base64!",null]]`,
		"numeric response":    `[null,null,["OpenID4VPDCAPIHandover","` + good + `","` + good + `",7]]`,
	}
	for name, raw := range cases {
		s.Run(name, func() {
			_, err := Parse([]byte(raw))
			s.Require().Error(err)
			s.True(errors.Is(err, ErrMalformed))
			s.True(dErrors.HasCode(err, dErrors.CodeMalformedInput))
		})
	}
}

func TestValidateRejectsTamperedHandover(t *testing.T) {
	tr := Build("nonce", "aud", "")
	tr.Handover.NonceHash = "tampered"
	err := Validate(tr)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedInput))

	tr = Build("nonce", "aud", "uri")
	bad := "short"
	tr.Handover.ResponseURIHash = &bad
	assert.False(t, IsValid(tr))
}
