package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aussiebroadwan/evesso/internal/tokencache"
	"github.com/aussiebroadwan/evesso/pkg/cryptox"
	"github.com/aussiebroadwan/evesso/pkg/httpx"
	"github.com/aussiebroadwan/evesso/pkg/slogx"
	"github.com/aussiebroadwan/evesso/pkg/sso"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// ErrLoginFailed is returned by Run when at least one account could not log in.
var ErrLoginFailed = errors.New("one or more logins failed")

// Result is the outcome of one account.
type Result struct {
	Username string
	Token    string
	Err      error
}

// Application logs a batch of accounts into one SSO deployment.
type Application struct {
	cfg    Config
	logger *slog.Logger
	out    io.Writer

	client *sso.Client
	cache  *tokencache.Cache
	group  singleflight.Group
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	env, err := cfg.Environment()
	if err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "evesso",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
		out:   cfg.Output,
		cache: tokencache.New(cfg.CacheTTL, 0),
	}
	if app.out == nil {
		app.out = os.Stdout
	}

	// Pace every hop of every login per host, then log it
	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	limit := httpx.DefaultLimit
	if cfg.RequestsPerSecond > 0 {
		limit = httpx.RateLimitConfig{
			RequestsPerWindow: cfg.RequestsPerSecond,
			Window:            time.Second,
			Burst:             cfg.Burst,
		}
	}
	transport = httpx.RateLimitedTransport(transport, limit, httpx.HostKeyExtractor)
	transport = slogx.Transport(transport, app.logger)

	app.client = sso.NewClient(env)
	app.client.Transport = transport
	app.client.RequestTimeout = cfg.RequestTimeout
	app.client.UserAgent = "evesso/" + BuildVersion
	app.client.Logger = app.logger

	app.logger.Debug("application initialised",
		"environment", env.Name,
		"base_url", env.BaseURL,
		"concurrency", cfg.Concurrency,
	)
	return app, nil
}

// Run logs in every configured account and prints the tokens. It returns
// ErrLoginFailed when any account failed; the others are still printed.
func (app *Application) Run(ctx context.Context) error {
	accounts, err := app.cfg.Accounts()
	if err != nil {
		return err
	}

	results := app.LoginAll(ctx, accounts)
	if err := app.write(results); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrLoginFailed, failed, len(results))
	}
	return nil
}

// LoginAll logs in each account on its own session, at most Concurrency at a
// time. Results are in input order and one failure does not stop the others.
func (app *Application) LoginAll(ctx context.Context, accounts []sso.Credentials) []Result {
	results := make([]Result, len(accounts))

	g := new(errgroup.Group)
	g.SetLimit(max(app.cfg.Concurrency, 1))
	for i, creds := range accounts {
		g.Go(func() error {
			results[i] = app.login(ctx, creds)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// login returns a cached token when one is still valid. Concurrent logins of
// the same username share one attempt.
func (app *Application) login(ctx context.Context, creds sso.Credentials) Result {
	res := Result{Username: creds.Username}
	if err := creds.Validate(); err != nil {
		res.Err = err
		return res
	}

	key := app.client.Environment.Name + "|" + app.client.Environment.BaseURL + "|" + creds.Username
	if token, ok := app.cache.Get(key); ok {
		app.logger.Debug("token cache hit", "username", creds.Username, "token_fp", cryptox.ShortFingerprint(token))
		res.Token = token
		return res
	}

	v, err, shared := app.group.Do(key, func() (any, error) {
		// an attempt that finished since the lookup above has filled the cache
		if token, ok := app.cache.Get(key); ok {
			return token, nil
		}
		token, err := app.client.Login(ctx, creds)
		if err != nil {
			return "", err
		}
		app.cache.Add(key, token)
		return token, nil
	})
	if shared {
		app.logger.Debug("login shared with a concurrent attempt", "username", creds.Username)
	}
	if err != nil {
		res.Err = err
		return res
	}
	res.Token = v.(string)
	return res
}

type jsonResult struct {
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
	Error    string `json:"error,omitempty"`
}

// write prints successful accounts as username<TAB>token lines, or every
// account as a JSON array. Failures are logged either way.
func (app *Application) write(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			app.logger.Error("login failed", "username", r.Username, "error", r.Err.Error())
		}
	}

	if app.cfg.JSON {
		out := make([]jsonResult, 0, len(results))
		for _, r := range results {
			jr := jsonResult{Username: r.Username, Token: r.Token}
			if r.Err != nil {
				jr.Error = r.Err.Error()
			}
			out = append(out, jr)
		}
		enc := json.NewEncoder(app.out)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if _, err := fmt.Fprintf(app.out, "%s\t%s\n", r.Username, r.Token); err != nil {
			return err
		}
	}
	return nil
}
