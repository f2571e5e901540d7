package sso

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel Errors
// ============================================================================

var (
	// ErrMissingCredentials is returned when the username or password is empty.
	ErrMissingCredentials = errors.New("sso: username and password are required")

	// ErrMissingCharacterName is returned when the SSO asks for a character name
	// and the credentials do not carry one.
	ErrMissingCharacterName = errors.New("sso: character name challenge received but no character name set")

	// ErrMissingTwoFactorSecret is returned when the SSO asks for an authenticator
	// code and the credentials do not carry a TOTP secret.
	ErrMissingTwoFactorSecret = errors.New("sso: authenticator challenge received but no 2FA secret set")

	// ErrInvalidTwoFactorSecret is returned when a code cannot be generated from the secret.
	ErrInvalidTwoFactorSecret = errors.New("sso: invalid 2FA secret")

	// ErrMissingEulaHash is returned when an EULA page does not carry the hidden eulaHash field.
	ErrMissingEulaHash = errors.New("sso: missing EULA hash")

	// ErrMissingVerificationToken is returned when the login page does not carry
	// the anti-forgery token required by the login form.
	ErrMissingVerificationToken = errors.New("sso: missing request verification token")

	// ErrUnrecognizedResponse is matched by every *UnrecognizedResponseError.
	ErrUnrecognizedResponse = errors.New("sso: unrecognized response")

	// ErrTransportTimeout is returned when a single request exceeds the configured timeout.
	ErrTransportTimeout = errors.New("sso: request timed out")

	// ErrTooManyRedirects is returned when a request redirects more than maxRedirects times.
	ErrTooManyRedirects = errors.New("sso: too many redirects")

	// ErrUnknownEnvironment is returned by LookupEnvironment for names it does not know.
	ErrUnknownEnvironment = errors.New("sso: unknown environment")
)

// ============================================================================
// UnrecognizedResponseError
// ============================================================================

// unrecognizedHint is shown to operators, the usual causes are bad credentials
// or a drifting clock when an authenticator is in use.
const unrecognizedHint = "no access token fragment found; make sure the login details are correct " +
	"and the system clock is correct when using an authenticator"

// UnrecognizedResponseError is returned when the SSO produced a page that matches
// no known challenge and the final URL carries no access token.
type UnrecognizedResponseError struct {
	// Stage is the flow stage the response was received in (e.g. "login", "token_exchange")
	Stage string

	// Reason optionally narrows down why the page was rejected
	Reason string

	// URL is the final URL after redirects
	URL string

	// Body is the raw page body, kept for diagnosis
	Body string
}

// Error implements the error interface.
func (e *UnrecognizedResponseError) Error() string {
	msg := fmt.Sprintf("sso: unrecognized response during %s", e.Stage)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg + ": " + unrecognizedHint
}

// Is lets errors.Is(err, ErrUnrecognizedResponse) match.
func (e *UnrecognizedResponseError) Is(target error) bool {
	return target == ErrUnrecognizedResponse
}
