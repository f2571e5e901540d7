package slogx

import (
	"log/slog"
	"net/http"
	"time"
)

// Transport wraps an http.RoundTripper and logs every round trip, including
// each hop of a redirect chain, on the logger carried by the request context
// (falling back to base). Only scheme, host and path are logged: queries and
// fragments of the SSO flow carry tokens.
func Transport(next http.RoundTripper, base *slog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, base: base}
}

type loggingTransport struct {
	next http.RoundTripper
	base *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	logger, ok := Lookup(req.Context())
	if !ok {
		logger = t.base
	}
	if logger == nil {
		logger = slog.Default()
	}

	resp, err := t.next.RoundTrip(req)

	attrs := []any{
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		logger.Debug("http_round_trip", append(attrs, "error", err.Error())...)
		return resp, err
	}

	logger.Debug("http_round_trip", append(attrs,
		"status", resp.StatusCode,
		"redirect", resp.Header.Get("Location") != "",
	)...)
	return resp, nil
}
