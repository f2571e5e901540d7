package sso

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aussiebroadwan/evesso/pkg/cryptox"
	"github.com/aussiebroadwan/evesso/pkg/idx"
)

// State of a login attempt.
type State int

const (
	StateStart State = iota
	StateInitialSubmitted
	StateCharacterChallenge
	StateAuthenticatorChallenge
	StateEulaChallenge
	StateTokenExchanging
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateInitialSubmitted:
		return "initial_submitted"
	case StateCharacterChallenge:
		return "character_challenge"
	case StateAuthenticatorChallenge:
		return "authenticator_challenge"
	case StateEulaChallenge:
		return "eula_challenge"
	case StateTokenExchanging:
		return "token_exchanging"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// challengeState maps a challenge to the state resolving it.
func challengeState(kind ChallengeKind) State {
	switch kind {
	case ChallengeCharacterName:
		return StateCharacterChallenge
	case ChallengeAuthenticator:
		return StateAuthenticatorChallenge
	default:
		return StateEulaChallenge
	}
}

// attempt is the state of one login. It owns its Session for its whole
// lifetime and issues one request at a time.
type attempt struct {
	id        idx.ID
	creds     Credentials
	session   *Session
	endpoints Endpoints
	markers   Markers
	sniffer   *Sniffer
	totp      TOTPProvider
	now       func() time.Time
	handlers  map[ChallengeKind]challengeHandler
	logger    *slog.Logger
	observe   func(id idx.ID, s State)

	state State
}

func (a *attempt) transition(s State) {
	a.state = s
	a.logger.Debug("sso_state", slog.String("state", s.String()))
	if a.observe != nil {
		a.observe(a.id, s)
	}
}

func (a *attempt) accessToken(finalURL string) (string, bool) {
	return extractAfterMarker(finalURL, a.markers.AccessTokenKey)
}

// authorize runs the login form and every challenge the SSO inserts, and
// returns the access token of the final redirect.
func (a *attempt) authorize(ctx context.Context) (string, error) {
	a.transition(StateStart)

	page, err := a.session.Send(ctx, http.MethodGet, a.endpoints.LoginURL(), nil)
	if err != nil {
		return "", err
	}
	verification, err := a.sniffer.VerificationToken(page.Body)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("UserName", a.creds.Username)
	form.Set("Password", a.creds.Password)
	form.Set(a.markers.VerificationTokenField, verification)

	resp, err := a.session.Send(ctx, http.MethodPost, a.endpoints.LoginURL(), form)
	if err != nil {
		return "", err
	}
	a.transition(StateInitialSubmitted)

	return a.resolveChallenges(ctx, resp)
}

// resolveChallenges answers challenges until a response carries a token. Each
// kind is answered at most once; seeing it again means the answer was rejected.
func (a *attempt) resolveChallenges(ctx context.Context, resp *Response) (string, error) {
	stage := "login"
	answered := make(map[ChallengeKind]bool, len(a.handlers))

	for {
		if token, ok := a.accessToken(resp.FinalURL); ok {
			return token, nil
		}

		kind := a.sniffer.Classify(resp.Body)
		handler, known := a.handlers[kind]
		if kind == ChallengeNone || !known {
			return "", &UnrecognizedResponseError{Stage: stage, URL: resp.FinalURL, Body: resp.Body}
		}
		if answered[kind] {
			return "", &UnrecognizedResponseError{
				Stage:  stage,
				Reason: kind.String() + " challenge repeated",
				URL:    resp.FinalURL,
				Body:   resp.Body,
			}
		}
		answered[kind] = true

		a.transition(challengeState(kind))
		next, err := handler.Respond(ctx, a, resp.Body)
		if err != nil {
			return "", err
		}
		resp, stage = next, kind.String()
	}
}

// exchange presents the access token to the launcher endpoint and returns the
// token of the resulting redirect, which is the usable credential.
func (a *attempt) exchange(ctx context.Context, accessToken string) (string, error) {
	a.transition(StateTokenExchanging)

	resp, err := a.session.Send(ctx, http.MethodGet, a.endpoints.TokenExchangeURL(accessToken), nil)
	if err != nil {
		return "", err
	}
	token, ok := a.accessToken(resp.FinalURL)
	if !ok {
		return "", &UnrecognizedResponseError{Stage: "token_exchange", URL: resp.FinalURL, Body: resp.Body}
	}
	return token, nil
}

// finish records the outcome. It is called exactly once per attempt.
func (a *attempt) finish(token string, err error) {
	a.transition(StateDone)
	if err != nil {
		a.logger.Warn("sso login failed", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("sso login succeeded", slog.String("token_fp", cryptox.ShortFingerprint(token)))
}
