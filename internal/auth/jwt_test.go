package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/WatchParty/internal/auth"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := auth.NewJWTVerifier("secret", "watchparty")
	tok, err := v.Issue(domain.Identity{UserID: "u-1", Username: "alice", ProfilePicture: "https://img/a.png"}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u-1"), id.UserID)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, "https://img/a.png", id.ProfilePicture)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := auth.NewJWTVerifier("secret", "watchparty")
	ctx := context.Background()

	_, err := v.Verify(ctx, "")
	assert.ErrorIs(t, err, auth.ErrMissingToken)

	_, err = v.Verify(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	expired, err := v.Issue(domain.Identity{UserID: "u-1", Username: "alice"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, expired)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)

	other := auth.NewJWTVerifier("other-secret", "watchparty")
	forged, err := other.Issue(domain.Identity{UserID: "u-1", Username: "alice"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(ctx, forged)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	wrongIssuer, err := auth.NewJWTVerifier("secret", "someone-else").Issue(domain.Identity{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(ctx, wrongIssuer)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTVerifier_RequiresUserID(t *testing.T) {
	v := auth.NewJWTVerifier("secret", "")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{Username: "ghost"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
