package slogx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		require.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewHandler_Redacts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(Config{Output: &buf, Format: "json"}))
	logger.Info("login", "password", "hunter2", slog.Group("account", slog.String("secret", "JBSWY3DP"), slog.String("username", "pilot")))

	out := buf.String()
	require.NotContains(t, out, "hunter2")
	require.NotContains(t, out, "JBSWY3DP")
	require.Contains(t, out, "pilot")
	require.Contains(t, out, redactedValue)
}

func TestNewHandler_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(Config{Output: &buf, Format: "text", Level: "warn"}))
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "msg=shown")
	require.Contains(t, out, "k=v")
}

func TestContext(t *testing.T) {
	t.Parallel()

	_, ok := Lookup(context.Background())
	require.False(t, ok)
	require.Equal(t, slog.Default(), FromContext(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := WithContext(context.Background(), logger)

	got, ok := Lookup(ctx)
	require.True(t, ok)
	require.Same(t, logger, got)
	require.Same(t, logger, FromContext(ctx))

	_, ok = Lookup(WithContext(context.Background(), nil))
	require.False(t, ok)
}

func TestTransport(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/done#access_token=SECRET", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := &http.Client{Transport: Transport(nil, nil)}

	req, err := http.NewRequestWithContext(WithContext(context.Background(), logger), http.MethodGet, srv.URL+"/start?code=SECRET", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "one entry per redirect hop")

	var first struct {
		Msg      string `json:"msg"`
		Path     string `json:"path"`
		Status   int    `json:"status"`
		Redirect bool   `json:"redirect"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "http_round_trip", first.Msg)
	require.Equal(t, "/start", first.Path)
	require.Equal(t, http.StatusFound, first.Status)
	require.True(t, first.Redirect)

	require.NotContains(t, buf.String(), "SECRET")
}

func TestTransport_Error(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	failing := roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, io.ErrUnexpectedEOF })
	req := httptest.NewRequest(http.MethodGet, "https://sso.example.com/Account/LogOn", nil)

	_, err := Transport(failing, logger).RoundTrip(req)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Contains(t, buf.String(), io.ErrUnexpectedEOF.Error())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
