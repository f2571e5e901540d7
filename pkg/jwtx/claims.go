package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when a token parses but carries no exp claim.
var ErrNoExpiry = errors.New("jwtx: token has no expiry")

// UnverifiedClaims decodes the registered claims of a compact JWT without
// checking its signature. The launcher token is verified by the game servers,
// the client only reads it to learn how long it can be reused.
func UnverifiedClaims(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// UnverifiedExpiry returns the exp claim of a compact JWT.
func UnverifiedExpiry(raw string) (time.Time, error) {
	claims, err := UnverifiedClaims(raw)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}
