package sso

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// challengeHandler answers one kind of challenge page with a form submission.
type challengeHandler interface {
	// Kind is the challenge the handler answers.
	Kind() ChallengeKind

	// Respond submits the answer for the page body and returns the SSO's reply.
	Respond(ctx context.Context, a *attempt, body string) (*Response, error)
}

// defaultHandlers is every challenge the flow knows how to satisfy.
func defaultHandlers() []challengeHandler {
	return []challengeHandler{
		characterHandler{},
		authenticatorHandler{},
		eulaHandler{},
	}
}

// characterHandler answers the "which character is yours" prompt.
type characterHandler struct{}

func (characterHandler) Kind() ChallengeKind { return ChallengeCharacterName }

func (characterHandler) Respond(ctx context.Context, a *attempt, _ string) (*Response, error) {
	if a.creds.CharacterName == "" {
		return nil, ErrMissingCharacterName
	}
	a.logger.Info("character name required")

	return a.session.Send(ctx, http.MethodPost, a.endpoints.CharacterChallengeURL(), url.Values{
		"Challenge":                  {a.creds.CharacterName},
		"RememberCharacterChallenge": {"true"},
	})
}

// authenticatorHandler answers the two-factor page with a TOTP code.
type authenticatorHandler struct{}

func (authenticatorHandler) Kind() ChallengeKind { return ChallengeAuthenticator }

func (authenticatorHandler) Respond(ctx context.Context, a *attempt, _ string) (*Response, error) {
	if a.creds.Secret == "" {
		return nil, ErrMissingTwoFactorSecret
	}
	a.logger.Info("authenticator required")

	pin, err := a.totp.Code(a.creds.Secret, a.now())
	if err != nil {
		return nil, err
	}

	return a.session.Send(ctx, http.MethodPost, a.endpoints.AuthenticatorChallengeURL(), url.Values{
		"Challenge":         {pin},
		"RememberTwoFactor": {"true"},
		"command":           {"Continue"},
	})
}

// eulaHandler accepts the EULA version the page presents.
type eulaHandler struct{}

func (eulaHandler) Kind() ChallengeKind { return ChallengeEula }

func (eulaHandler) Respond(ctx context.Context, a *attempt, body string) (*Response, error) {
	hash, err := a.sniffer.EulaHash(body)
	if err != nil {
		return nil, err
	}
	a.logger.Info("eula acceptance required", slog.String("eula_hash", hash))

	return a.session.Send(ctx, http.MethodPost, a.endpoints.EulaURL(), url.Values{
		"eulaHash":  {hash},
		"returnUrl": {a.endpoints.EulaReturnURL()},
		"action":    {"Accept"},
	})
}
