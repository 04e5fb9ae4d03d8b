package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ispcompare/tariff-agent/internal/kvstore/memory"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestHolderRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	holder := New(store)

	token, err := holder.Token(ctx)
	require.NoError(t, err)
	require.Empty(t, token, "fresh holder should have no credential")

	require.NoError(t, holder.Set(ctx, "bearer-1"))
	token, err = holder.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "bearer-1", token)

	// The credential is write-through: a second holder over the same
	// store sees it.
	other := New(store)
	token, err = other.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "bearer-1", token)

	require.NoError(t, holder.Clear(ctx))
	token, err = holder.Token(ctx)
	require.NoError(t, err)
	require.Empty(t, token)

	raw, err := store.Get(ctx, "access_token")
	require.NoError(t, err)
	require.Nil(t, raw, "Clear must remove the durable entry")
}

func TestHolderExpiresAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	holder := New(memory.New())

	// No credential: zero time, never expired.
	exp, err := holder.ExpiresAt(ctx)
	require.NoError(t, err)
	require.True(t, exp.IsZero())

	deadline := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	require.NoError(t, holder.Set(ctx, signedToken(t, deadline)))

	exp, err = holder.ExpiresAt(ctx)
	require.NoError(t, err)
	require.True(t, exp.Equal(deadline), "expected %v, got %v", deadline, exp)

	expired, err := holder.Expired(ctx, deadline.Add(-time.Minute))
	require.NoError(t, err)
	require.False(t, expired)

	expired, err = holder.Expired(ctx, deadline.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, expired)
}

func TestHolderExpiresAtOpaqueToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	holder := New(memory.New())
	require.NoError(t, holder.Set(ctx, "not-a-jwt"))

	_, err := holder.ExpiresAt(ctx)
	require.Error(t, err, "opaque tokens carry no parsable claims")
}
