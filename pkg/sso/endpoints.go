package sso

import (
	"fmt"
	"net/url"
	"strings"
)

// Environment describes one SSO deployment.
type Environment struct {
	// Name is the short name used in configuration ("tranquility", "singularity")
	Name string

	// BaseURL is the deployment root without a trailing slash
	BaseURL string

	// ClientID is the OAuth client the launcher authorizes as
	ClientID string

	// Scope is requested on the launcher redirect URI
	Scope string
}

var (
	// Tranquility is the production deployment.
	Tranquility = Environment{
		Name:     "tranquility",
		BaseURL:  "https://login.eveonline.com",
		ClientID: "eveLauncherTQ",
		Scope:    "eveClientToken",
	}

	// Singularity is the test server mirror.
	Singularity = Environment{
		Name:     "singularity",
		BaseURL:  "https://sisilogin.testeveonline.com",
		ClientID: "eveLauncherTQ",
		Scope:    "eveClientToken",
	}
)

// LookupEnvironment resolves a deployment by name. Matching is case-insensitive
// and accepts the common "tq" and "sisi" shorthands.
func LookupEnvironment(name string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tranquility", "tq":
		return Tranquility, nil
	case "singularity", "sisi":
		return Singularity, nil
	default:
		return Environment{}, fmt.Errorf("%w: %q", ErrUnknownEnvironment, name)
	}
}

// WithBaseURL returns a copy of the environment pointing at another root,
// keeping the client id and scope. Used for mirrors and test servers.
func (e Environment) WithBaseURL(baseURL string) Environment {
	e.BaseURL = strings.TrimSuffix(baseURL, "/")
	return e
}

// Endpoints builds the URLs of every step of the login flow.
type Endpoints struct {
	env Environment
}

// NewEndpoints returns the endpoint builder for an environment.
func NewEndpoints(env Environment) Endpoints {
	env.BaseURL = strings.TrimSuffix(env.BaseURL, "/")
	return Endpoints{env: env}
}

// BaseURL returns the deployment root.
func (e Endpoints) BaseURL() string {
	return e.env.BaseURL
}

// ReturnURL is the authorize path the SSO returns to once a login step succeeds.
//
// The outer parameters are not encoded. redirect_uri carries a nested URL with
// an encoded query of its own and the server expects it verbatim.
func (e Endpoints) ReturnURL() string {
	redirect := url.Values{}
	redirect.Set("client_id", e.env.ClientID)
	redirect.Set("scope", e.env.Scope)

	return "/oauth/authorize/?" + strings.Join([]string{
		"client_id=" + e.env.ClientID,
		"lang=en",
		"response_type=token",
		"redirect_uri=" + e.env.BaseURL + "/launcher?" + redirect.Encode(),
	}, "&")
}

// accountURL builds an /Account page URL carrying the encoded ReturnUrl.
func (e Endpoints) accountURL(path string) string {
	q := url.Values{}
	q.Set("ReturnUrl", e.ReturnURL())
	return e.env.BaseURL + path + "?" + q.Encode()
}

// LoginURL is both the login page and the login form target.
func (e Endpoints) LoginURL() string {
	return e.accountURL("/Account/LogOn")
}

// CharacterChallengeURL is the target of the character name form.
func (e Endpoints) CharacterChallengeURL() string {
	return e.accountURL("/Account/Challenge")
}

// AuthenticatorChallengeURL is the target of the two-factor code form.
func (e Endpoints) AuthenticatorChallengeURL() string {
	return e.accountURL("/Account/Authenticator")
}

// EulaURL is the target of the EULA acceptance form.
func (e Endpoints) EulaURL() string {
	return e.env.BaseURL + "/OAuth/Eula"
}

// EulaReturnURL is sent as returnUrl with the EULA acceptance.
func (e Endpoints) EulaReturnURL() string {
	return e.ReturnURL()
}

// TokenExchangeURL presents an access token to the launcher token endpoint.
func (e Endpoints) TokenExchangeURL(accessToken string) string {
	return e.env.BaseURL + "/launcher/token?accesstoken=" + accessToken
}
