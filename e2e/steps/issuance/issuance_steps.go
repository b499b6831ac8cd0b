package issuance

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/golang-jwt/jwt/v5"
)

// TestContext is the part of the scenario context issuance steps need.
type TestContext interface {
	POST(path string, body any) error
	POSTWithHeaders(path string, body any, headers map[string]string) error
	POSTForm(path, form string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	HolderJWK() json.RawMessage
	GetHolderKey() *ecdsa.PrivateKey
	GetVerificationSessionID() string
	GetAuthCode() string
	SetAuthCode(code string)
	GetAccessToken() string
	SetAccessToken(token string)
	GetCredential() string
	SetCredential(credential string)
}

// RegisterSteps registers authorize/token/credential step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &issuanceSteps{tc: tc}

	ctx.Step(`^I authorize issuance for the verification session$`, steps.authorize)
	ctx.Step(`^I authorize issuance for session "([^"]*)"$`, steps.authorizeSession)
	ctx.Step(`^I exchange the authorization code$`, steps.exchangeCode)
	ctx.Step(`^I exchange the authorization code as a form$`, steps.exchangeCodeForm)
	ctx.Step(`^I request a credential with a holder proof$`, steps.requestCredentialWithProof)
	ctx.Step(`^I request a credential with a proof from another key$`, steps.requestCredentialWithForeignProof)
	ctx.Step(`^I request a credential in format "([^"]*)"$`, steps.requestCredentialInFormat)
	ctx.Step(`^I verify the issued credential$`, steps.verifyCredential)
	ctx.Step(`^I verify the issued credential disclosing only "([^"]*)"$`, steps.verifyPresented)
	ctx.Step(`^the credential should carry (\d+) disclosures$`, steps.credentialDisclosures)
	ctx.Step(`^the verified claims should be "([^"]*)"$`, steps.verifiedClaims)
}

type issuanceSteps struct {
	tc TestContext
}

func (s *issuanceSteps) authorize(ctx context.Context) error {
	return s.authorizeSession(ctx, s.tc.GetVerificationSessionID())
}

func (s *issuanceSteps) authorizeSession(_ context.Context, sessionID string) error {
	if err := s.tc.POST("/authorize", map[string]any{
		"verification_session_id": sessionID,
		"holder_public_key":       s.tc.HolderJWK(),
	}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == 200 {
		code, err := s.tc.GetResponseField("code")
		if err != nil {
			return err
		}
		s.tc.SetAuthCode(fmt.Sprint(code))
	}
	return nil
}

func (s *issuanceSteps) exchangeCode(context.Context) error {
	if err := s.tc.POST("/token", map[string]any{
		"grant_type": "authorization_code",
		"code":       s.tc.GetAuthCode(),
	}); err != nil {
		return err
	}
	return s.saveAccessToken()
}

func (s *issuanceSteps) exchangeCodeForm(context.Context) error {
	form := url.Values{"grant_type": {"authorization_code"}, "code": {s.tc.GetAuthCode()}}
	if err := s.tc.POSTForm("/token", form.Encode()); err != nil {
		return err
	}
	return s.saveAccessToken()
}

func (s *issuanceSteps) saveAccessToken() error {
	if s.tc.GetLastResponseStatus() != 200 {
		return nil
	}
	token, err := s.tc.GetResponseField("access_token")
	if err != nil {
		return err
	}
	s.tc.SetAccessToken(fmt.Sprint(token))
	return nil
}

func (s *issuanceSteps) requestCredentialWithProof(context.Context) error {
	proof, err := signProof(s.tc.GetHolderKey())
	if err != nil {
		return err
	}
	return s.requestCredential(map[string]any{
		"format": "vc+sd-jwt",
		"proof":  map[string]any{"proof_type": "jwt", "jwt": proof},
	})
}

func (s *issuanceSteps) requestCredentialWithForeignProof(context.Context) error {
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	proof, err := signProof(other)
	if err != nil {
		return err
	}
	return s.requestCredential(map[string]any{
		"proof": map[string]any{"proof_type": "jwt", "jwt": proof},
	})
}

func (s *issuanceSteps) requestCredentialInFormat(_ context.Context, format string) error {
	return s.requestCredential(map[string]any{"format": format})
}

func (s *issuanceSteps) requestCredential(body map[string]any) error {
	if err := s.tc.POSTWithHeaders("/credential", body, map[string]string{
		"Authorization": "Bearer " + s.tc.GetAccessToken(),
	}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == 200 {
		cred, err := s.tc.GetResponseField("credential")
		if err != nil {
			return err
		}
		s.tc.SetCredential(fmt.Sprint(cred))
	}
	return nil
}

func (s *issuanceSteps) verifyCredential(context.Context) error {
	return s.tc.POST("/credential/verify", map[string]any{"credential": s.tc.GetCredential()})
}

// verifyPresented drops every disclosure not named in keep before verifying.
func (s *issuanceSteps) verifyPresented(_ context.Context, keep string) error {
	parts := strings.Split(s.tc.GetCredential(), "~")
	if len(parts) < 2 {
		return fmt.Errorf("credential has no envelope")
	}
	wanted := map[string]bool{}
	for _, name := range strings.Split(keep, ",") {
		wanted[strings.TrimSpace(name)] = true
	}
	presented := parts[0] + "~"
	for _, d := range parts[1 : len(parts)-1] {
		name, err := disclosureName(d)
		if err != nil {
			return err
		}
		if wanted[name] {
			presented += d + "~"
		}
	}
	return s.tc.POST("/credential/verify", map[string]any{"credential": presented})
}

func (s *issuanceSteps) credentialDisclosures(_ context.Context, n int) error {
	parts := strings.Split(s.tc.GetCredential(), "~")
	if got := len(parts) - 2; got != n {
		return fmt.Errorf("expected %d disclosures, got %d", n, got)
	}
	return nil
}

func (s *issuanceSteps) verifiedClaims(_ context.Context, expected string) error {
	claims, err := s.tc.GetResponseField("claims")
	if err != nil {
		return err
	}
	m, ok := claims.(map[string]any)
	if !ok {
		return fmt.Errorf("claims is not an object: %v", claims)
	}
	var names []string
	for _, name := range strings.Split(expected, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		names = append(names, name)
		if _, ok := m[name]; !ok {
			return fmt.Errorf("claim %s missing from %v", name, m)
		}
	}
	if len(m) != len(names) {
		return fmt.Errorf("expected claims %v, got %v", names, m)
	}
	return nil
}

func signProof(key *ecdsa.PrivateKey) (string, error) {
	aud := os.Getenv("ISSUER_URL")
	if aud == "" {
		aud = "http://localhost:8080"
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Audience: jwt.ClaimStrings{aud},
		IssuedAt: jwt.NewNumericDate(time.Now()),
	})
	token.Header["typ"] = "openid4vci-proof+jwt"
	return token.SignedString(key)
}

func disclosureName(encoded string) (string, error) {
	raw, err := jwt.NewParser().DecodeSegment(encoded)
	if err != nil {
		return "", fmt.Errorf("decode disclosure: %w", err)
	}
	var arr []any
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) != 3 {
		return "", fmt.Errorf("malformed disclosure")
	}
	name, _ := arr[1].(string)
	return name, nil
}
