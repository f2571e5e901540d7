package sso

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/evesso/pkg/idx"
	"github.com/aussiebroadwan/evesso/pkg/slogx"
)

const (
	// DefaultRequestTimeout bounds every single exchange of a login attempt.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "evesso/1.0"
)

// Client logs accounts into an SSO deployment. A Client holds configuration
// only; every Login call runs on its own Session, so one Client may serve
// concurrent logins for different accounts.
type Client struct {
	// Environment is the deployment to log into
	Environment Environment

	// Markers are the literal strings SSO pages are recognised by
	Markers Markers

	// Transport performs the HTTP round trips. Default: http.DefaultTransport
	Transport http.RoundTripper

	// RequestTimeout bounds each request. Zero disables the per-request timeout.
	RequestTimeout time.Duration

	// UserAgent is sent with every request
	UserAgent string

	// TOTP generates authenticator codes. Default: StandardTOTP
	TOTP TOTPProvider

	// Now is the clock used for authenticator codes. Default: time.Now
	Now func() time.Time

	// Logger is used when the context carries no logger (see slogx.WithContext)
	Logger *slog.Logger

	// OnStateChange, when set, is called on every state transition of every attempt
	OnStateChange func(attemptID idx.ID, state State)
}

// NewClient creates a client for the given environment with default settings.
func NewClient(env Environment) *Client {
	return &Client{
		Environment:    env,
		Markers:        DefaultMarkers(),
		RequestTimeout: DefaultRequestTimeout,
		UserAgent:      DefaultUserAgent,
		TOTP:           StandardTOTP{},
		Now:            time.Now,
	}
}

// Login runs the full flow for one account and returns the launcher token:
// the login form, every challenge the SSO inserts, and the final token exchange.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	a, ctx, err := c.newAttempt(ctx, creds)
	if err != nil {
		return "", err
	}

	token, err := a.authorize(ctx)
	if err == nil {
		token, err = a.exchange(ctx, token)
	}
	a.finish(token, err)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Authorize runs the login form and challenges but stops before the token
// exchange, returning the access token of the authorize redirect.
func (c *Client) Authorize(ctx context.Context, creds Credentials) (string, error) {
	a, ctx, err := c.newAttempt(ctx, creds)
	if err != nil {
		return "", err
	}

	token, err := a.authorize(ctx)
	a.finish(token, err)
	if err != nil {
		return "", err
	}
	return token, nil
}

// newAttempt prepares a fresh Session and a logger tagged with the attempt id.
// The returned context carries that logger.
func (c *Client) newAttempt(ctx context.Context, creds Credentials) (*attempt, context.Context, error) {
	if err := creds.Validate(); err != nil {
		return nil, ctx, err
	}

	logger, ok := slogx.Lookup(ctx)
	if !ok {
		logger = c.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := idx.New()
	logger = logger.With(
		slog.String("attempt_id", id.String()),
		slog.String("environment", c.Environment.Name),
		slog.Any("account", creds),
	)
	ctx = slogx.WithContext(ctx, logger)

	session, err := newSession(c.Transport, c.RequestTimeout, c.UserAgent)
	if err != nil {
		return nil, ctx, err
	}

	markers := c.Markers
	if markers == (Markers{}) {
		markers = DefaultMarkers()
	}
	totp := c.TOTP
	if totp == nil {
		totp = StandardTOTP{}
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}

	handlers := make(map[ChallengeKind]challengeHandler)
	for _, h := range defaultHandlers() {
		handlers[h.Kind()] = h
	}

	return &attempt{
		id:        id,
		creds:     creds,
		session:   session,
		endpoints: NewEndpoints(c.Environment),
		markers:   markers,
		sniffer:   NewSniffer(markers),
		totp:      totp,
		now:       now,
		handlers:  handlers,
		logger:    logger,
		observe:   c.OnStateChange,
	}, ctx, nil
}
