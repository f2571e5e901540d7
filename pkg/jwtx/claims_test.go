package jwtx

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-the-servers-key"))
	require.NoError(t, err)
	return raw
}

func TestUnverifiedExpiry(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(20 * time.Minute).Truncate(time.Second)

	t.Run("reads exp without the signing key", func(t *testing.T) {
		raw := signedToken(t, jwt.RegisteredClaims{
			Subject:   "CHARACTER:EVE:90000001",
			ExpiresAt: jwt.NewNumericDate(exp),
		})

		got, err := UnverifiedExpiry(raw)
		require.NoError(t, err)
		require.True(t, got.Equal(exp))
	})

	t.Run("no exp claim", func(t *testing.T) {
		raw := signedToken(t, jwt.RegisteredClaims{Subject: "someone"})

		_, err := UnverifiedExpiry(raw)
		require.ErrorIs(t, err, ErrNoExpiry)
	})

	t.Run("opaque token", func(t *testing.T) {
		_, err := UnverifiedExpiry("c2ltcGxlLW9wYXF1ZS10b2tlbg")
		require.Error(t, err)
	})
}

func TestUnverifiedClaims(t *testing.T) {
	t.Parallel()

	raw := signedToken(t, jwt.RegisteredClaims{
		Issuer:  "login.eveonline.com",
		Subject: "CHARACTER:EVE:90000001",
	})

	claims, err := UnverifiedClaims(raw)
	require.NoError(t, err)
	require.Equal(t, "login.eveonline.com", claims.Issuer)
	require.Equal(t, "CHARACTER:EVE:90000001", claims.Subject)
}
