package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	verificationcontracts "mdlgate/contracts/verification"
	credentialmetrics "mdlgate/internal/credential/metrics"
	"mdlgate/internal/credential/sdjwt"
	credential "mdlgate/internal/credential/service"
	"mdlgate/internal/issuance/metrics"
	"mdlgate/internal/issuance/models"
	"mdlgate/internal/issuance/service/mocks"
	"mdlgate/internal/issuance/store"
	id "mdlgate/pkg/domain"
	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/audit"
	"mdlgate/pkg/platform/sentinel"
	"mdlgate/pkg/requestcontext"
	tu "mdlgate/pkg/testutil"
)

type IssuanceServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *store.InMemoryStore
	registry  *mocks.MockVerificationRegistry
	issuer    *sdjwt.Issuer
	verifier  *sdjwt.Verifier
	creds     *credential.Service
	metrics   *metrics.Metrics
	sink      *audit.MemorySink
	holder    *ecdsa.PrivateKey
	holderJWK json.RawMessage
	ctx       context.Context
}

func TestIssuanceServiceSuite(t *testing.T) {
	suite.Run(t, new(IssuanceServiceSuite))
}

func (s *IssuanceServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = store.NewInMemoryStore()
	s.registry = mocks.NewMockVerificationRegistry(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.sink = audit.NewMemorySink(20)
	s.holder = tu.NewP256Key(s.T())
	s.holderJWK = tu.PublicJWK(s.T(), s.holder)
	s.ctx = requestcontext.WithTime(context.Background(), tu.FixedNow)

	var err error
	s.issuer, err = sdjwt.NewIssuer(tu.NewP256Key(s.T()), "https://issuer.example")
	s.Require().NoError(err)
	s.verifier = sdjwt.NewVerifier(s.issuer.PublicKey())
	s.creds, err = credential.New(s.issuer, s.verifier,
		credential.WithMetrics(credentialmetrics.New(prometheus.NewRegistry())),
	)
	s.Require().NoError(err)
}

func (s *IssuanceServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *IssuanceServiceSuite) newService(issuer CredentialIssuer, opts ...Option) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []Option{
		WithLogger(logger),
		WithMetrics(s.metrics),
		WithAuditLogger(audit.NewLogger(logger, s.sink)),
	}
	svc, err := New(s.store, issuer, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func (s *IssuanceServiceSuite) authorize(svc *Service, sessionID string) string {
	res, err := svc.Authorize(s.ctx, &models.AuthorizeRequest{
		VerificationSessionID: sessionID,
		HolderPublicKey:       s.holderJWK,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(res.Code)
	return res.Code
}

func (s *IssuanceServiceSuite) token(svc *Service, code string) string {
	res, err := svc.Token(s.ctx, &models.TokenRequest{GrantType: "authorization_code", Code: code})
	s.Require().NoError(err)
	return res.AccessToken
}

func (s *IssuanceServiceSuite) proof(key *ecdsa.PrivateKey, claims jwt.RegisteredClaims) string {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	s.Require().NoError(err)
	return signed
}

func (s *IssuanceServiceSuite) TestEndToEnd() {
	svc := s.newService(s.creds)

	code := s.authorize(svc, "s1")
	tokenRes, err := svc.Token(s.ctx, &models.TokenRequest{GrantType: "authorization_code", Code: code})
	s.Require().NoError(err)
	s.Equal("Bearer", tokenRes.TokenType)
	s.Equal(600, tokenRes.ExpiresIn)

	res, err := svc.Credential(s.ctx, tokenRes.AccessToken, &models.CredentialRequest{Format: "vc+sd-jwt"})
	s.Require().NoError(err)
	s.Equal("vc+sd-jwt", res.Format)

	parts := strings.Split(res.Credential, "~")
	s.Require().Len(parts, 4, "envelope, two disclosures, trailing separator")

	verified, err := s.verifier.Verify(s.ctx, res.Credential)
	s.Require().NoError(err)
	s.Equal(map[string]any{"over21": true, "notExpired": true}, verified.Claims)
	s.Equal(int64(86400), verified.ExpiresAt.Unix()-verified.IssuedAt.Unix())
	s.Equal("s1", verified.Subject)
	s.JSONEq(string(s.holderJWK), string(verified.Holder))
	s.Equal(tu.FixedNow.Add(sdjwt.DefaultTTL), res.ExpiresAt)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Authorizations))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TokensIssued))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Credentials))

	var actions []audit.Action
	for _, e := range s.sink.Recent() {
		actions = append(actions, e.Action)
	}
	s.Equal([]audit.Action{audit.ActionCodeIssued, audit.ActionTokenIssued}, actions)
}

func (s *IssuanceServiceSuite) TestCodeExchangesOnce() {
	svc := s.newService(s.creds)
	code := s.authorize(svc, "s1")
	s.token(svc, code)

	_, err := svc.Token(s.ctx, &models.TokenRequest{GrantType: "authorization_code", Code: code})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidGrant), "got %v", err)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejections.WithLabelValues(stepToken, string(dErrors.CodeInvalidGrant))))

	events := s.sink.Recent()
	last := events[len(events)-1]
	s.Equal(audit.ActionIssuanceRejected, last.Action)
}

func (s *IssuanceServiceSuite) TestTokenRejections() {
	svc := s.newService(s.creds)
	code := s.authorize(svc, "s1")

	cases := []struct {
		name string
		req  *models.TokenRequest
		code dErrors.Code
	}{
		{"nil request", nil, dErrors.CodeInvalidRequest},
		{"missing grant type", &models.TokenRequest{Code: code}, dErrors.CodeInvalidRequest},
		{"unsupported grant type", &models.TokenRequest{GrantType: "client_credentials", Code: code}, dErrors.CodeUnsupportedGrantType},
		{"missing code", &models.TokenRequest{GrantType: "authorization_code"}, dErrors.CodeInvalidRequest},
		{"unknown code", &models.TokenRequest{GrantType: "authorization_code", Code: "nope"}, dErrors.CodeInvalidGrant},
		{"oversized code", &models.TokenRequest{GrantType: "authorization_code", Code: strings.Repeat("a", 4096)}, dErrors.CodeInvalidGrant},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := svc.Token(s.ctx, tc.req)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}

	s.Run("expired code", func() {
		late := requestcontext.WithTime(context.Background(), tu.FixedNow.Add(svc.SessionTTL()))
		_, err := svc.Token(late, &models.TokenRequest{GrantType: "authorization_code", Code: code})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidGrant), "got %v", err)
	})
}

func (s *IssuanceServiceSuite) TestSessionsAreIsolated() {
	svc := s.newService(s.creds)
	codeA := s.authorize(svc, "session-a")
	codeB := s.authorize(svc, "session-b")
	s.NotEqual(codeA, codeB)

	tokenA := s.token(svc, codeA)
	_, err := svc.Credential(s.ctx, tokenA, nil)
	s.Require().NoError(err)

	_, err = svc.Credential(s.ctx, tokenA, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken), "got %v", err)

	tokenB := s.token(svc, codeB)
	res, err := svc.Credential(s.ctx, tokenB, nil)
	s.Require().NoError(err)
	verified, err := s.verifier.Verify(s.ctx, res.Credential)
	s.Require().NoError(err)
	s.Equal("session-b", verified.Subject)
}

func (s *IssuanceServiceSuite) TestCredentialRejections() {
	svc := s.newService(s.creds)
	accessToken := s.token(svc, s.authorize(svc, "s1"))

	cases := []struct {
		name  string
		token string
		req   *models.CredentialRequest
		code  dErrors.Code
	}{
		{"missing token", "", nil, dErrors.CodeInvalidToken},
		{"unknown token", "nope", nil, dErrors.CodeInvalidToken},
		{"unsupported format", accessToken, &models.CredentialRequest{Format: "mso_mdoc"}, dErrors.CodeUnsupportedCredentialFormat},
		{"unsupported proof type", accessToken, &models.CredentialRequest{Proof: &models.Proof{ProofType: "cwt", JWT: "x"}}, dErrors.CodeInvalidProof},
		{"malformed proof", accessToken, &models.CredentialRequest{Proof: &models.Proof{Type: "jwt", JWT: "not-a-jwt"}}, dErrors.CodeInvalidProof},
		{"proof from another key", accessToken, &models.CredentialRequest{Proof: &models.Proof{
			ProofType: "jwt",
			JWT:       s.proof(tu.NewP256Key(s.T()), jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(tu.FixedNow)}),
		}}, dErrors.CodeInvalidProof},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := svc.Credential(s.ctx, tc.token, tc.req)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}

	s.Run("token survives failed attempts", func() {
		res, err := svc.Credential(s.ctx, accessToken, &models.CredentialRequest{Proof: &models.Proof{
			ProofType: "jwt",
			JWT:       s.proof(s.holder, jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(tu.FixedNow)}),
		}})
		s.Require().NoError(err)
		s.NotEmpty(res.Credential)
	})
}

func (s *IssuanceServiceSuite) TestProofAudience() {
	svc := s.newService(s.creds, WithProofAudience("https://issuer.example"))
	accessToken := s.token(svc, s.authorize(svc, "s1"))

	wrong := s.proof(s.holder, jwt.RegisteredClaims{
		Audience: jwt.ClaimStrings{"https://other.example"},
		IssuedAt: jwt.NewNumericDate(tu.FixedNow),
	})
	_, err := svc.Credential(s.ctx, accessToken, &models.CredentialRequest{Proof: &models.Proof{ProofType: "jwt", JWT: wrong}})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidProof), "got %v", err)

	future := s.proof(s.holder, jwt.RegisteredClaims{
		Audience: jwt.ClaimStrings{"https://issuer.example"},
		IssuedAt: jwt.NewNumericDate(tu.FixedNow.Add(time.Hour)),
	})
	_, err = svc.Credential(s.ctx, accessToken, &models.CredentialRequest{Proof: &models.Proof{ProofType: "jwt", JWT: future}})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidProof), "got %v", err)

	good := s.proof(s.holder, jwt.RegisteredClaims{
		Audience: jwt.ClaimStrings{"https://issuer.example"},
		IssuedAt: jwt.NewNumericDate(tu.FixedNow),
	})
	_, err = svc.Credential(s.ctx, accessToken, &models.CredentialRequest{Proof: &models.Proof{ProofType: "jwt", JWT: good}})
	s.Require().NoError(err)
}

func (s *IssuanceServiceSuite) TestAuthorizeRejections() {
	svc := s.newService(s.creds)

	cases := []struct {
		name string
		req  *models.AuthorizeRequest
	}{
		{"nil request", nil},
		{"missing session", &models.AuthorizeRequest{HolderPublicKey: s.holderJWK}},
		{"blank session", &models.AuthorizeRequest{VerificationSessionID: "   ", HolderPublicKey: s.holderJWK}},
		{"missing key", &models.AuthorizeRequest{VerificationSessionID: "s1"}},
		{"not a jwk", &models.AuthorizeRequest{VerificationSessionID: "s1", HolderPublicKey: json.RawMessage(`{"kty":"nope"}`)}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := svc.Authorize(s.ctx, tc.req)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequest), "got %v", err)
		})
	}
	s.Equal(0, s.store.Count())
}

func (s *IssuanceServiceSuite) TestVerificationRegistry() {
	svc := s.newService(s.creds, WithVerificationRegistry(s.registry))
	sessionID := id.NewVerificationSessionID()

	s.Run("malformed session id", func() {
		_, err := svc.Authorize(s.ctx, &models.AuthorizeRequest{VerificationSessionID: "s1", HolderPublicKey: s.holderJWK})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequest), "got %v", err)
	})

	s.Run("unknown verification", func() {
		s.registry.EXPECT().Verification(gomock.Any(), sessionID).Return(nil, sentinel.ErrNotFound)
		_, err := svc.Authorize(s.ctx, &models.AuthorizeRequest{VerificationSessionID: sessionID.String(), HolderPublicKey: s.holderJWK})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidGrant), "got %v", err)
	})

	s.Run("failed verification", func() {
		s.registry.EXPECT().Verification(gomock.Any(), sessionID).Return(&verificationcontracts.Outcome{SessionID: sessionID.String(), Valid: false}, nil)
		_, err := svc.Authorize(s.ctx, &models.AuthorizeRequest{VerificationSessionID: sessionID.String(), HolderPublicKey: s.holderJWK})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidGrant), "got %v", err)
	})

	s.Run("mock verification is refused", func() {
		s.registry.EXPECT().Verification(gomock.Any(), sessionID).Return(&verificationcontracts.Outcome{
			SessionID:  sessionID.String(),
			Valid:      true,
			Mock:       true,
			Predicates: map[string]bool{"over21": true},
			ExpiresAt:  tu.FixedNow.Add(time.Hour),
		}, nil)
		_, err := svc.Authorize(s.ctx, &models.AuthorizeRequest{VerificationSessionID: sessionID.String(), HolderPublicKey: s.holderJWK})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidGrant), "got %v", err)
		s.Equal(0, s.store.Count())
	})

	s.Run("registry failure", func() {
		s.registry.EXPECT().Verification(gomock.Any(), sessionID).Return(nil, errors.New("boom"))
		_, err := svc.Authorize(s.ctx, &models.AuthorizeRequest{VerificationSessionID: sessionID.String(), HolderPublicKey: s.holderJWK})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal), "got %v", err)
	})

	s.Run("verified predicates flow into the credential", func() {
		s.registry.EXPECT().Verification(gomock.Any(), sessionID).Return(&verificationcontracts.Outcome{
			SessionID:  sessionID.String(),
			Valid:      true,
			Predicates: map[string]bool{"over21": false, "over18": true, "notExpired": true},
			ExpiresAt:  tu.FixedNow.Add(time.Hour),
		}, nil)
		code := s.authorize(svc, sessionID.String())
		res, err := svc.Credential(s.ctx, s.token(svc, code), nil)
		s.Require().NoError(err)

		verified, err := s.verifier.Verify(s.ctx, res.Credential)
		s.Require().NoError(err)
		s.Equal(map[string]any{"over21": false, "notExpired": true}, verified.Claims)
		s.Equal(sessionID.String(), verified.Subject)
	})
}

func (s *IssuanceServiceSuite) TestVerificationBoundToFirstHolder() {
	svc := s.newService(s.creds)
	code := s.authorize(svc, "s1")

	other := tu.PublicJWK(s.T(), tu.NewP256Key(s.T()))
	_, err := svc.Authorize(s.ctx, &models.AuthorizeRequest{VerificationSessionID: "s1", HolderPublicKey: other})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidGrant), "got %v", err)
	s.Equal(1, s.store.Count())

	s.NotEqual(code, s.authorize(svc, "s1"))

	// The same key in a different JWK member order has the same thumbprint.
	var members map[string]any
	s.Require().NoError(json.Unmarshal(s.holderJWK, &members))
	reordered, err := json.Marshal(members)
	s.Require().NoError(err)
	_, err = svc.Authorize(s.ctx, &models.AuthorizeRequest{VerificationSessionID: "s1", HolderPublicKey: reordered})
	s.NoError(err)

	_, err = svc.Authorize(s.ctx, &models.AuthorizeRequest{VerificationSessionID: "s2", HolderPublicKey: other})
	s.NoError(err)
}

func (s *IssuanceServiceSuite) TestIssuerFailureKeepsToken() {
	issuer := mocks.NewMockCredentialIssuer(s.ctrl)
	svc := s.newService(issuer)
	accessToken := s.token(svc, s.authorize(svc, "s1"))

	issuer.EXPECT().Issue(gomock.Any(), gomock.Any(), "s1", gomock.Nil()).
		Return(nil, dErrors.New(dErrors.CodeInternal, "signer down"))
	_, err := svc.Credential(s.ctx, accessToken, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal), "got %v", err)

	issued, err := s.issuer.Issue(s.ctx, sdjwt.IssueRequest{
		HolderKey: s.holderJWK,
		Subject:   "s1",
		Claims:    credential.ClaimsFromPredicates(nil, credential.ClaimsMinimal),
	})
	s.Require().NoError(err)
	issuer.EXPECT().Issue(gomock.Any(), gomock.Any(), "s1", gomock.Nil()).Return(issued, nil)
	res, err := svc.Credential(s.ctx, accessToken, nil)
	s.Require().NoError(err)
	s.Equal(issued.Credential.String(), res.Credential)
}

func (s *IssuanceServiceSuite) TestStoreFailures() {
	st := mocks.NewMockStore(s.ctrl)
	svc, err := New(st, s.creds, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	st.EXPECT().Create(gomock.Any(), gomock.Any()).Return(fmt.Errorf("disk full"))
	_, err = svc.Authorize(s.ctx, &models.AuthorizeRequest{VerificationSessionID: "s1", HolderPublicKey: s.holderJWK})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal), "got %v", err)

	st.EXPECT().RedeemToken(gomock.Any(), "tok", tu.FixedNow, gomock.Any()).Return(nil, sentinel.ErrExpired)
	_, err = svc.Credential(s.ctx, "tok", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken), "got %v", err)
}

func (s *IssuanceServiceSuite) TestConcurrentRedemption() {
	svc := s.newService(s.creds)
	accessToken := s.token(svc, s.authorize(svc, "s1"))

	result := tu.RunConcurrent(20, func(int) error {
		_, err := svc.Credential(s.ctx, accessToken, nil)
		return err
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(19), result.AlreadyUsed)
}

func (s *IssuanceServiceSuite) TestNewRequiresDependencies() {
	_, err := New(nil, s.creds)
	s.Error(err)
	_, err = New(s.store, nil)
	s.Error(err)
}
