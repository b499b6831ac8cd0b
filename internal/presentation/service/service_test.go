package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mdlgate/internal/presentation/envelope"
	"mdlgate/internal/presentation/metrics"
	"mdlgate/internal/presentation/models"
	"mdlgate/internal/presentation/service/mocks"
	"mdlgate/internal/presentation/store"
	"mdlgate/internal/presentation/verifier"
	"mdlgate/internal/transcript"
	trust "mdlgate/internal/trust/models"
	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/remote"
	"mdlgate/pkg/platform/sentinel"
	"mdlgate/pkg/requestcontext"
	tu "mdlgate/pkg/testutil"
)

const origin = "https://rp.example"

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	opener   *mocks.MockOpener
	remote   *mocks.MockRemoteVerifier
	trust    *mocks.MockTrustStore
	sessions *store.InMemoryStore
	metrics  *metrics.Metrics
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.opener = mocks.NewMockOpener(s.ctrl)
	s.remote = mocks.NewMockRemoteVerifier(s.ctrl)
	s.trust = mocks.NewMockTrustStore(s.ctrl)
	s.sessions = store.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.ctx = requestcontext.WithTime(context.Background(), tu.FixedNow)
}

func (s *ServiceSuite) newService(mode models.VerificationMode, opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithNonceSource(func() (string, error) { return "generated-nonce", nil }),
	}
	svc, err := New(s.opener, s.remote, s.sessions, Config{Mode: mode, Origin: origin}, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func outage() error {
	return remote.New(remote.CategoryOutage, "remote-verifier", "request failed", errors.New("connection refused"))
}

func (s *ServiceSuite) payload() *envelope.Payload {
	return &envelope.Payload{VPToken: "device-response", Nonce: "nonce-1"}
}

func (s *ServiceSuite) TestNew() {
	_, err := New(nil, s.remote, s.sessions, Config{})
	s.Error(err)

	_, err = New(s.opener, s.remote, s.sessions, Config{Mode: "sometimes"})
	s.Error(err)

	svc, err := New(s.opener, s.remote, s.sessions, Config{})
	s.Require().NoError(err)
	s.Equal(models.ModeStrict, svc.cfg.Mode)
}

func (s *ServiceSuite) TestEnvelopeFailures() {
	s.Run("missing vp_token never reaches the remote verifier", func() {
		s.opener.EXPECT().Open("jwe").Return(nil, envelope.ErrMissingPresentation)

		res := s.newService(models.ModeAllowMock).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.False(res.Valid)
		s.Equal(models.ErrMissingPresentation, res.Error)
		s.False(res.Mock)
	})

	s.Run("decryption failure", func() {
		s.opener.EXPECT().Open("jwe").Return(nil, envelope.ErrDecryption)

		res := s.newService(models.ModeStrict).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.False(res.Valid)
		s.Equal(models.ErrDecryptionFailed, res.Error)
		s.Equal(dErrors.CodeCryptoFailure, res.Error.Code())
	})
}

func (s *ServiceSuite) TestNonceHandling() {
	s.Run("strict mode rejects a missing nonce", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(&envelope.Payload{VPToken: "tok"}, nil)

		res := s.newService(models.ModeStrict).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.Equal(models.ErrMissingNonce, res.Error)
	})

	s.Run("request nonce and configured origin are bound", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(&envelope.Payload{VPToken: "tok"}, nil)
		s.remote.EXPECT().Verify(gomock.Any(), "tok", transcript.Build("expected", origin, "")).
			Return(&verifier.Result{Valid: true}, nil)

		res := s.newService(models.ModeStrict).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe", ExpectedNonce: "expected"})
		s.True(res.Valid)
	})

	s.Run("envelope values win over request values", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(&envelope.Payload{
			VPToken: "tok", Nonce: "env-nonce", Audience: "https://other.example", ResponseURI: "https://other.example/cb",
		}, nil)
		s.remote.EXPECT().Verify(gomock.Any(), "tok", transcript.Build("env-nonce", "https://other.example", "https://other.example/cb")).
			Return(&verifier.Result{Valid: true}, nil)

		res := s.newService(models.ModeStrict).Verify(s.ctx, models.VerifyRequest{
			Envelope: "jwe", ExpectedNonce: "req-nonce", Audience: "https://aud.example", ResponseURI: "https://aud.example/cb",
		})
		s.True(res.Valid)
	})

	s.Run("allow_mock generates a nonce", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(&envelope.Payload{VPToken: "tok"}, nil)
		s.remote.EXPECT().Verify(gomock.Any(), "tok", transcript.Build("generated-nonce", origin, "")).
			Return(&verifier.Result{Valid: true}, nil)

		res := s.newService(models.ModeAllowMock).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.True(res.Valid)
		s.False(res.Mock)
	})
}

func (s *ServiceSuite) TestRemoteOutcomes() {
	s.Run("strict mode fails closed when the verifier is down", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
		s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, outage())

		res := s.newService(models.ModeStrict).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.False(res.Valid)
		s.False(res.Mock)
		s.Equal(models.ErrVerifierUnavailable, res.Error)
	})

	s.Run("allow_mock returns a labeled synthetic result", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
		s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, remote.New(remote.CategoryTimeout, "remote-verifier", "request timeout", nil))

		res := s.newService(models.ModeAllowMock).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.True(res.Valid)
		s.True(res.Mock)
		over21, _ := res.Predicates.Bool("over21")
		s.True(over21)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.MockResults))
	})

	s.Run("rejection is never mocked", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
		s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, remote.New(remote.CategoryRejected, "remote-verifier", "bad proof", nil))

		res := s.newService(models.ModeAllowMock).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.False(res.Valid)
		s.False(res.Mock)
		s.Equal(models.ErrVerificationRejected, res.Error)
	})

	s.Run("unusable response is never mocked", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
		s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, remote.New(remote.CategoryBadData, "remote-verifier", "invalid verifier response", nil))

		res := s.newService(models.ModeAllowMock).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.False(res.Mock)
		s.Equal(models.ErrVerifierUnavailable, res.Error)
	})

	s.Run("valid=false is a rejection", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
		s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(&verifier.Result{Valid: false}, nil)

		res := s.newService(models.ModeStrict).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.Equal(models.ErrVerificationRejected, res.Error)
	})
}

func (s *ServiceSuite) TestMinimization() {
	s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
	s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(&verifier.Result{
		Valid: true,
		Predicates: map[string]any{
			"org.iso.18013.5.1.age_over_21": true,
			"birthDate":                     "1990-01-01",
			"family_name":                   "Mustermann",
			"age_in_years":                  float64(36),
		},
		Issuer: "US-CA-DMV",
	}, nil)

	res := s.newService(models.ModeStrict).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
	s.Require().True(res.Valid)
	s.Equal([]string{"notExpired", "over21"}, res.Predicates.Names())
	s.Equal("US", res.Predicates.IssuerJurisdiction())
	_, ok := res.Predicates.Bool("birthDate")
	s.False(ok)
}

func (s *ServiceSuite) TestIssuerPinning() {
	result := &verifier.Result{Valid: true, Issuer: "US-DMV", KeyID: "k1", Predicates: map[string]any{"age_over_21": true}}

	s.Run("accepted issuer with stale trust list", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
		s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(result, nil)
		s.trust.EXPECT().VerifyIssuer(gomock.Any(), "US-DMV", "k1").
			Return(trust.IssuerDecision{Accepted: true, Reason: trust.ReasonAccepted, Stale: true}, nil)

		res := s.newService(models.ModeStrict, WithTrustStore(s.trust)).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.True(res.Valid)
		s.True(res.Stale)
	})

	s.Run("rejected issuer", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
		s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(result, nil)
		s.trust.EXPECT().VerifyIssuer(gomock.Any(), "US-DMV", "k1").
			Return(trust.IssuerDecision{Reason: trust.ReasonUnknownKeyID}, nil)

		res := s.newService(models.ModeStrict, WithTrustStore(s.trust)).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.False(res.Valid)
		s.Equal(models.ErrUntrustedIssuer, res.Error)
		s.Contains(res.Reason, trust.ReasonUnknownKeyID)
		s.Zero(res.Predicates.Len())
	})

	s.Run("no trust list halts the flow", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
		s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(result, nil)
		s.trust.EXPECT().VerifyIssuer(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(trust.IssuerDecision{}, dErrors.New(dErrors.CodeTrustUnavailable, "trust list unavailable"))

		res := s.newService(models.ModeAllowMock, WithTrustStore(s.trust)).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.False(res.Valid)
		s.Equal(models.ErrTrustUnavailable, res.Error)
	})

	s.Run("issuer without kid is checked against the allow-list", func() {
		s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
		s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&verifier.Result{Valid: true, Issuer: "FR-ANTS"}, nil)
		s.trust.EXPECT().IsAccepted("FR").Return(false)

		res := s.newService(models.ModeStrict, WithTrustStore(s.trust)).Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
		s.Equal(models.ErrUntrustedIssuer, res.Error)
	})
}

func (s *ServiceSuite) TestSessionsAreRecorded() {
	svc := s.newService(models.ModeStrict)

	s.opener.EXPECT().Open("good").Return(s.payload(), nil)
	s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(&verifier.Result{Valid: true}, nil)
	ok := svc.Verify(s.ctx, models.VerifyRequest{Envelope: "good"})

	s.opener.EXPECT().Open("bad").Return(nil, envelope.ErrDecryption)
	bad := svc.Verify(s.ctx, models.VerifyRequest{Envelope: "bad"})

	s.NotEqual(ok.SessionID, bad.SessionID)
	s.False(ok.SessionID.IsNil())

	sess, err := svc.Session(s.ctx, ok.SessionID)
	s.Require().NoError(err)
	s.True(sess.Valid)
	s.Equal(tu.FixedNow.Add(defaultSessionTTL), sess.ExpiresAt)

	sess, err = svc.Session(s.ctx, bad.SessionID)
	s.Require().NoError(err)
	s.False(sess.Valid)

	_, err = svc.Session(requestcontext.WithTime(s.ctx, tu.FixedNow.Add(defaultSessionTTL)), ok.SessionID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestSessionSaveFailureStillReturnsResult() {
	sessions := mocks.NewMockSessionStore(s.ctrl)
	svc, err := New(s.opener, s.remote, sessions, Config{Origin: origin},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	s.opener.EXPECT().Open(gomock.Any()).Return(s.payload(), nil)
	s.remote.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(&verifier.Result{Valid: true}, nil)
	sessions.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("full"))

	res := svc.Verify(s.ctx, models.VerifyRequest{Envelope: "jwe"})
	s.True(res.Valid)
}

func (s *ServiceSuite) TestEndToEndWithRealEnvelope() {
	reader := tu.NewP256Key(s.T())
	svc, err := New(envelope.NewOpener(reader, ""), s.remote, s.sessions, Config{Origin: origin},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	compact := tu.EncryptForReader(s.T(), reader, map[string]any{
		"vp_token": map[string]any{"mdl": []string{"device-response"}},
		"nonce":    "n-42",
	})
	s.remote.EXPECT().Verify(gomock.Any(), "device-response", transcript.Build("n-42", origin, "")).
		Return(&verifier.Result{Valid: true, Predicates: map[string]any{"age_over_21": true}}, nil)

	res := svc.Verify(s.ctx, models.VerifyRequest{Envelope: compact})
	s.True(res.Valid)
	over21, _ := res.Predicates.Bool("over21")
	s.True(over21)
}
