package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mdlgate/internal/issuance/handler/mocks"
	"mdlgate/internal/issuance/models"
	dErrors "mdlgate/pkg/domain-errors"
)

type IssuanceHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestIssuanceHandlerSuite(t *testing.T) {
	suite.Run(t, new(IssuanceHandlerSuite))
}

func (s *IssuanceHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *IssuanceHandlerSuite) do(path, contentType, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	s.router.ServeHTTP(w, req)
	var out map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func (s *IssuanceHandlerSuite) TestAuthorize() {
	s.Run("success", func() {
		s.service.EXPECT().Authorize(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, req *models.AuthorizeRequest) (*models.AuthorizeResult, error) {
				s.Equal("s1", req.VerificationSessionID)
				s.JSONEq(`{"kty":"EC","crv":"P-256","x":"x","y":"y"}`, string(req.HolderPublicKey))
				return &models.AuthorizeResult{Code: "code-1", ExpiresIn: 600}, nil
			})

		w, body := s.do("/authorize", "application/json",
			`{"verification_session_id":"s1","holder_public_key":{"kty":"EC","crv":"P-256","x":"x","y":"y"}}`, nil)
		s.Equal(http.StatusOK, w.Code)
		s.Equal("code-1", body["code"])
		s.Equal(float64(600), body["expires_in"])
		s.Equal("no-store", w.Header().Get("Cache-Control"))
	})

	s.Run("invalid json", func() {
		w, body := s.do("/authorize", "application/json", `{`, nil)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("invalid_request", body["error"])
	})

	s.Run("service rejection", func() {
		s.service.EXPECT().Authorize(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidGrant, "verification session not found or expired"))
		w, body := s.do("/authorize", "application/json", `{"verification_session_id":"s1"}`, nil)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("invalid_grant", body["error"])
	})
}

func (s *IssuanceHandlerSuite) TestToken() {
	want := &models.TokenRequest{GrantType: "authorization_code", Code: "code-1"}
	result := &models.TokenResult{AccessToken: "token-1", TokenType: "Bearer", ExpiresIn: 600}

	s.Run("json body", func() {
		s.service.EXPECT().Token(gomock.Any(), want).Return(result, nil)
		w, body := s.do("/token", "application/json", `{"grant_type":"authorization_code","code":"code-1"}`, nil)
		s.Equal(http.StatusOK, w.Code)
		s.Equal("token-1", body["access_token"])
		s.Equal("Bearer", body["token_type"])
	})

	s.Run("form body", func() {
		s.service.EXPECT().Token(gomock.Any(), want).Return(result, nil)
		form := url.Values{"grant_type": {"authorization_code"}, "code": {"code-1"}}
		w, body := s.do("/token", "application/x-www-form-urlencoded", form.Encode(), nil)
		s.Equal(http.StatusOK, w.Code)
		s.Equal("token-1", body["access_token"])
	})

	s.Run("reused code", func() {
		s.service.EXPECT().Token(gomock.Any(), want).
			Return(nil, dErrors.New(dErrors.CodeInvalidGrant, "invalid authorization code"))
		w, body := s.do("/token", "application/json", `{"grant_type":"authorization_code","code":"code-1"}`, nil)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("invalid_grant", body["error"])
	})

	s.Run("unsupported grant type", func() {
		s.service.EXPECT().Token(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnsupportedGrantType, "unsupported grant_type"))
		w, body := s.do("/token", "application/json", `{"grant_type":"password"}`, nil)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("unsupported_grant_type", body["error"])
	})
}

func (s *IssuanceHandlerSuite) TestCredential() {
	s.Run("success with empty body", func() {
		expires := time.Date(2026, 5, 5, 10, 30, 0, 0, time.UTC)
		s.service.EXPECT().Credential(gomock.Any(), "token-1", &models.CredentialRequest{}).
			Return(&models.CredentialResult{Credential: "a.b.c~d~e~", Format: "vc+sd-jwt", ExpiresAt: expires}, nil)

		w, body := s.do("/credential", "", "", map[string]string{"Authorization": "Bearer token-1"})
		s.Equal(http.StatusOK, w.Code)
		s.Equal("a.b.c~d~e~", body["credential"])
		s.Equal("vc+sd-jwt", body["format"])
	})

	s.Run("body with proof", func() {
		s.service.EXPECT().Credential(gomock.Any(), "token-1", &models.CredentialRequest{
			Format: "vc+sd-jwt",
			Proof:  &models.Proof{ProofType: "jwt", JWT: "p.q.r"},
		}).Return(&models.CredentialResult{Credential: "x~", Format: "vc+sd-jwt"}, nil)

		w, _ := s.do("/credential", "application/json",
			`{"format":"vc+sd-jwt","proof":{"proof_type":"jwt","jwt":"p.q.r"}}`,
			map[string]string{"Authorization": "Bearer token-1"})
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("missing or malformed authorization", func() {
		for _, header := range []string{"", "token-1", "Basic dXNlcjpwYXNz", "Bearer "} {
			headers := map[string]string{}
			if header != "" {
				headers["Authorization"] = header
			}
			w, body := s.do("/credential", "application/json", `{}`, headers)
			s.Equal(http.StatusUnauthorized, w.Code, header)
			s.Equal("invalid_token", body["error"])
			s.Contains(w.Header().Get("WWW-Authenticate"), "invalid_token")
		}
	})

	s.Run("used token", func() {
		s.service.EXPECT().Credential(gomock.Any(), "token-1", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidToken, "invalid access token"))
		w, body := s.do("/credential", "application/json", `{}`, map[string]string{"Authorization": "Bearer token-1"})
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Equal("invalid_token", body["error"])
	})

	s.Run("unsupported format", func() {
		s.service.EXPECT().Credential(gomock.Any(), "token-1", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnsupportedCredentialFormat, "only vc+sd-jwt is supported"))
		w, body := s.do("/credential", "application/json", `{"format":"jwt_vc"}`, map[string]string{"Authorization": "Bearer token-1"})
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("unsupported_credential_format", body["error"])
	})

	s.Run("internal failure", func() {
		s.service.EXPECT().Credential(gomock.Any(), "token-1", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInternal, "issuance failed"))
		w, body := s.do("/credential", "application/json", `{}`, map[string]string{"Authorization": "Bearer token-1"})
		s.Equal(http.StatusInternalServerError, w.Code)
		s.Equal("internal_error", body["error"])
	})
}
