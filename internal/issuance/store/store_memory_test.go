package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mdlgate/internal/issuance/models"
	"mdlgate/pkg/platform/sentinel"
	"mdlgate/pkg/testutil"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.now = testutil.FixedNow
}

func (s *InMemoryStoreSuite) create(code string) *models.Session {
	session := &models.Session{
		ID:                    "id-" + code,
		AuthCode:              code,
		HolderKey:             []byte(`{"kty":"EC"}`),
		VerificationSessionID: "vs-" + code,
		Predicates:            map[string]bool{"over21": true},
		State:                 models.StateAuthorized,
		CreatedAt:             s.now,
		ExpiresAt:             s.now.Add(10 * time.Minute),
	}
	s.Require().NoError(s.store.Create(s.ctx, session))
	return session
}

func (s *InMemoryStoreSuite) TestCodeExchangesOnce() {
	s.create("code-1")

	session, err := s.store.ExchangeCode(s.ctx, "code-1", "token-1", s.now)
	s.Require().NoError(err)
	s.Equal(models.StateTokenIssued, session.State)
	s.Equal("token-1", session.AccessToken)

	_, err = s.store.ExchangeCode(s.ctx, "code-1", "token-2", s.now)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	_, err = s.store.FindByToken(s.ctx, "token-2", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	found, err := s.store.FindByToken(s.ctx, "token-1", s.now)
	s.Require().NoError(err)
	s.Equal("vs-code-1", found.VerificationSessionID)
}

func (s *InMemoryStoreSuite) TestUnknownAndExpired() {
	s.create("code-1")

	_, err := s.store.ExchangeCode(s.ctx, "nope", "token-1", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.ExchangeCode(s.ctx, "code-1", "token-1", s.now.Add(10*time.Minute))
	s.ErrorIs(err, sentinel.ErrExpired)

	_, err = s.store.RedeemToken(s.ctx, "", s.now, func(*models.Session) error { return nil })
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestRedeemToken() {
	s.create("code-1")
	_, err := s.store.ExchangeCode(s.ctx, "code-1", "token-1", s.now)
	s.Require().NoError(err)

	s.Run("failed issue leaves the token usable", func() {
		_, err := s.store.RedeemToken(s.ctx, "token-1", s.now, func(*models.Session) error {
			return errors.New("signer down")
		})
		s.EqualError(err, "signer down")
	})

	s.Run("successful issue consumes the token", func() {
		var seen *models.Session
		session, err := s.store.RedeemToken(s.ctx, "token-1", s.now, func(sess *models.Session) error {
			seen = sess
			return nil
		})
		s.Require().NoError(err)
		s.Equal(models.StateCredentialIssued, session.State)
		s.Equal("vs-code-1", seen.VerificationSessionID)

		_, err = s.store.RedeemToken(s.ctx, "token-1", s.now, func(*models.Session) error { return nil })
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("expired token", func() {
		s.create("code-2")
		_, err := s.store.ExchangeCode(s.ctx, "code-2", "token-2", s.now)
		s.Require().NoError(err)

		_, err = s.store.RedeemToken(s.ctx, "token-2", s.now.Add(time.Hour), func(*models.Session) error { return nil })
		s.ErrorIs(err, sentinel.ErrExpired)
	})
}

func (s *InMemoryStoreSuite) TestConcurrentExchangeAndRedeem() {
	s.create("code-1")

	exchanged := testutil.RunConcurrent(50, func(i int) error {
		_, err := s.store.ExchangeCode(s.ctx, "code-1", fmt.Sprintf("token-%d", i), s.now)
		return err
	})
	s.Equal(int32(1), exchanged.Successes)
	s.Equal(int32(49), exchanged.AlreadyUsed)

	var token string
	for i := range 50 {
		if _, err := s.store.FindByToken(s.ctx, fmt.Sprintf("token-%d", i), s.now); err == nil {
			token = fmt.Sprintf("token-%d", i)
		}
	}
	s.Require().NotEmpty(token)

	var issued atomic.Int32
	redeemed := testutil.RunConcurrent(50, func(int) error {
		_, err := s.store.RedeemToken(s.ctx, token, s.now, func(*models.Session) error {
			issued.Add(1)
			return nil
		})
		return err
	})
	s.Equal(int32(1), redeemed.Successes)
	s.Equal(int32(49), redeemed.AlreadyUsed)
	s.Equal(int32(1), issued.Load())
}

func (s *InMemoryStoreSuite) TestReturnedSessionsAreCopies() {
	s.create("code-1")
	session, err := s.store.ExchangeCode(s.ctx, "code-1", "token-1", s.now)
	s.Require().NoError(err)
	session.Predicates["over21"] = false
	session.State = models.StateAuthorized

	found, err := s.store.FindByToken(s.ctx, "token-1", s.now)
	s.Require().NoError(err)
	s.True(found.Predicates["over21"])
	s.Equal(models.StateTokenIssued, found.State)
}

func (s *InMemoryStoreSuite) TestDeleteExpired() {
	s.create("code-1")
	_, err := s.store.ExchangeCode(s.ctx, "code-1", "token-1", s.now)
	s.Require().NoError(err)
	s.create("code-2")
	s.Require().NoError(s.store.Create(s.ctx, &models.Session{
		ID: "late", AuthCode: "code-3", State: models.StateAuthorized, ExpiresAt: s.now.Add(time.Hour),
	}))

	deleted, err := s.store.DeleteExpired(s.ctx, s.now.Add(10*time.Minute))
	s.Require().NoError(err)
	s.Equal(2, deleted)
	s.Equal(1, s.store.Count())

	_, err = s.store.FindByToken(s.ctx, "token-1", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.ExchangeCode(s.ctx, "code-1", "token-9", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestCodeCollision() {
	s.create("code-1")
	err := s.store.Create(s.ctx, &models.Session{ID: "other", AuthCode: "code-1"})
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *InMemoryStoreSuite) TestVerificationBoundToOneHolder() {
	bind := func(id, code, thumbprint string) error {
		return s.store.Create(s.ctx, &models.Session{
			ID:                    id,
			AuthCode:              code,
			HolderThumbprint:      thumbprint,
			VerificationSessionID: "vs-shared",
			State:                 models.StateAuthorized,
			CreatedAt:             s.now,
			ExpiresAt:             s.now.Add(10 * time.Minute),
		})
	}
	s.Require().NoError(bind("a", "code-a", "holder-1"))

	err := bind("b", "code-b", "holder-2")
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	_, err = s.store.ExchangeCode(s.ctx, "code-b", "token-b", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound, "rejected session must not be stored")

	s.Require().NoError(bind("c", "code-c", "holder-1"))
	s.Equal(2, s.store.Count())

	s.Run("binding is released once the sessions are purged", func() {
		_, err := s.store.DeleteExpired(s.ctx, s.now.Add(10*time.Minute))
		s.Require().NoError(err)
		s.NoError(bind("d", "code-d", "holder-2"))
	})
}
