package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	presentation "mdlgate/internal/presentation/models"
	"mdlgate/internal/presentation/store"
	id "mdlgate/pkg/domain"
	"mdlgate/pkg/platform/sentinel"
	"mdlgate/pkg/testutil"
)

type storeFinder struct{ store *store.InMemoryStore }

func (f storeFinder) Session(ctx context.Context, sessionID id.VerificationSessionID) (*presentation.Session, error) {
	return f.store.Find(ctx, sessionID, testutil.FixedNow)
}

func TestVerificationAdapter(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewInMemoryStore()
	sessionID := id.NewVerificationSessionID()
	require.NoError(t, sessions.Save(ctx, &presentation.Session{
		ID:    sessionID,
		Valid: true,
		Predicates: presentation.Minimize(map[string]any{
			"org.iso.18013.5.1.age_over_21": true,
			"birth_date":                    "1990-01-01",
		}, "US-DMV"),
		ExpiresAt: testutil.FixedNow.Add(time.Minute),
	}))
	adapter := NewVerificationAdapter(storeFinder{sessions})

	outcome, err := adapter.Verification(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID.String(), outcome.SessionID)
	assert.True(t, outcome.Valid)
	assert.False(t, outcome.Mock)
	assert.Equal(t, map[string]bool{"over21": true, "notExpired": true}, outcome.Predicates)
	assert.Equal(t, "US", outcome.IssuerJurisdiction)
	assert.Equal(t, testutil.FixedNow.Add(time.Minute), outcome.ExpiresAt)

	_, err = adapter.Verification(ctx, id.NewVerificationSessionID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
