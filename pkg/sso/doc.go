/*
Package sso logs accounts into the EVE Online single sign-on service the way the
game launcher does, by scraping the HTML login flow.

# Overview

There is no API for the launcher login. The SSO serves HTML pages and the flow
only completes by submitting the right forms in the right order:

  - GET the login page and read its anti-forgery token
  - POST the username, password and token
  - answer any challenge page the SSO inserts
  - follow redirects until one carries "#access_token=" in its fragment
  - present that token to the launcher token endpoint, whose redirect carries
    the token the game client accepts

A Client drives this for one deployment:

	client := sso.NewClient(sso.Tranquility)

	token, err := client.Login(ctx, sso.Credentials{
		Username:      "pilot",
		Password:      "hunter2",
		CharacterName: "Jita Trader",      // only needed if the SSO asks
		Secret:        "JBSWY3DPEHPK3PXP", // base32 TOTP secret, only needed if the SSO asks
	})

Authorize stops before the launcher exchange and returns the first token.

# Challenges

Pages are classified by literal markers (see Markers and DefaultMarkers):

  - character name: "please enter the name of one of the characters associated with your account"
  - authenticator: a form posting to /Account/Authenticator
  - EULA: a form posting to /oauth/eula, carrying a 32 character hash

When a page carries more than one marker the character name challenge wins,
then the authenticator, then the EULA. Each kind is answered at most once per
attempt. A challenge seen again means the answer was rejected and the attempt
fails with an UnrecognizedResponseError instead of looping.

# Sessions

Every Login call runs on a fresh Session with its own cookie jar. Attempts for
different accounts never share cookies, so one Client serves concurrent logins.
Each request is bounded by Client.RequestTimeout; an expired request fails with
ErrTransportTimeout while a cancelled parent context is returned as is.

# Error Handling

Missing inputs are reported before anything is sent for them:

	token, err := client.Login(ctx, creds)
	switch {
	case errors.Is(err, sso.ErrMissingCharacterName):
		// the SSO asked which character the account belongs to
	case errors.Is(err, sso.ErrMissingTwoFactorSecret):
		// the account has an authenticator attached
	case errors.Is(err, sso.ErrUnrecognizedResponse):
		var ur *sso.UnrecognizedResponseError
		errors.As(err, &ur) // ur.Stage, ur.URL and ur.Body describe the page
	}

# Logging

The logger is taken from the context (slogx.WithContext), falling back to
Client.Logger and then slog.Default. Every entry of an attempt carries its
attempt_id. Passwords, secrets and tokens are never logged; tokens appear only
as fingerprints and URLs without their query or fragment.
*/
package sso
