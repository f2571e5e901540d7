package sso

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPProvider produces the one-time code for the authenticator challenge.
type TOTPProvider interface {
	Code(secret string, at time.Time) (string, error)
}

// TOTPFunc adapts a plain function to TOTPProvider.
type TOTPFunc func(secret string, at time.Time) (string, error)

// Code implements TOTPProvider.
func (f TOTPFunc) Code(secret string, at time.Time) (string, error) {
	return f(secret, at)
}

// StandardTOTP generates RFC 6238 codes (SHA1, six digits, 30 second step)
// from a base32 secret, the same parameters authenticator apps use.
type StandardTOTP struct{}

// Code implements TOTPProvider.
func (StandardTOTP) Code(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(normalizeSecret(secret), at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTwoFactorSecret, err)
	}
	return code, nil
}

// normalizeSecret strips the grouping spaces and lowercase that secrets are
// often displayed with. Padding is left to the library.
func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.Join(strings.Fields(secret), ""))
}
