package sso

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/evesso/pkg/slogx"
	"golang.org/x/net/publicsuffix"
)

const (
	// maxRedirects bounds a single exchange. The login flow bounces through
	// authorize, the account pages and the launcher, so it needs more than a few.
	maxRedirects = 20

	// maxBodyBytes caps how much of a page is read into memory.
	maxBodyBytes = 4 << 20
)

// Response is the outcome of a single exchange after all redirects.
type Response struct {
	// StatusCode of the last response in the redirect chain
	StatusCode int

	// Body of the last response
	Body string

	// FinalURL is the URL of the last request, including the fragment of the
	// Location header that led there
	FinalURL string
}

// Session is the cookie-carrying transport of one login attempt. It must not be
// shared between attempts, the cookie state would interleave.
type Session struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
}

// newSession creates a Session with a fresh, empty cookie jar.
func newSession(transport http.RoundTripper, timeout time.Duration, userAgent string) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Session{
		http: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		timeout:   timeout,
		userAgent: userAgent,
	}, nil
}

// Cookies returns the cookies the session would send to rawURL.
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return s.http.Jar.Cookies(u)
}

// Send performs one exchange. A non-nil form is posted url-encoded. Statuses
// are not interpreted: the SSO answers challenges with ordinary pages, and the
// caller decides what a page means.
func (s *Session) Send(ctx context.Context, method, rawURL string, form url.Values) (*Response, error) {
	reqCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, s.wrapError(ctx, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, s.wrapError(ctx, fmt.Errorf("failed to read response body: %w", err))
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	slogx.FromContext(ctx).Debug("sso_exchange",
		"method", method,
		"url", stripQuery(rawURL),
		"final_url", stripQuery(finalURL),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(bodyBytes),
		FinalURL:   finalURL,
	}, nil
}

// wrapError maps an expired per-request deadline to ErrTransportTimeout. A
// cancelled or expired parent context is returned untouched.
func (s *Session) wrapError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w after %s: %w", ErrTransportTimeout, s.timeout, err)
	}
	return fmt.Errorf("failed to send request: %w", err)
}

// stripQuery drops the query and fragment so tokens never reach the logs.
func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i != -1 {
		return rawURL[:i]
	}
	return rawURL
}
