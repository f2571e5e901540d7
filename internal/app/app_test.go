package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/evesso/internal/ssotest"
	"github.com/aussiebroadwan/evesso/pkg/sso"
	"github.com/stretchr/testify/require"
)

func testConfig(srv *ssotest.Server, out io.Writer) Config {
	return Config{
		Server:            "tranquility",
		BaseURL:           srv.URL,
		RequestTimeout:    5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
		Concurrency:       4,
		CacheTTL:          time.Minute,
		LogLevel:          "debug",
		Output:            out,
		LogOutput:         io.Discard,
	}
}

func TestLoginAll(t *testing.T) {
	t.Parallel()

	srv := ssotest.NewServer(t, ssotest.Scenario{Username: "pilot", Password: "hunter2", Eula: true})
	app, err := New(testConfig(srv, io.Discard))
	require.NoError(t, err)

	results := app.LoginAll(context.Background(), []sso.Credentials{
		{Username: "intruder", Password: "wrong"},
		{Username: "pilot", Password: "hunter2"},
		{Username: "", Password: "x"},
	})
	require.Len(t, results, 3)

	// one failure does not stop the others, order follows the input
	require.ErrorIs(t, results[0].Err, sso.ErrUnrecognizedResponse)
	require.NoError(t, results[1].Err)
	require.Equal(t, srv.LauncherToken(), results[1].Token)
	require.ErrorIs(t, results[2].Err, sso.ErrMissingCredentials)
}

func TestLoginAll_ReusesTokens(t *testing.T) {
	t.Parallel()

	srv := ssotest.NewServer(t, ssotest.Scenario{Username: "pilot", Password: "hunter2"})
	app, err := New(testConfig(srv, io.Discard))
	require.NoError(t, err)

	account := sso.Credentials{Username: "pilot", Password: "hunter2"}

	t.Run("duplicates in one batch", func(t *testing.T) {
		results := app.LoginAll(context.Background(), []sso.Credentials{account, account, account})
		for _, r := range results {
			require.NoError(t, r.Err)
			require.Equal(t, srv.LauncherToken(), r.Token)
		}
		require.Equal(t, 1, srv.Count(http.MethodPost, "/Account/LogOn"))
	})

	t.Run("cached across batches", func(t *testing.T) {
		results := app.LoginAll(context.Background(), []sso.Credentials{account})
		require.NoError(t, results[0].Err)
		require.Equal(t, srv.LauncherToken(), results[0].Token)
		require.Equal(t, 1, srv.Count(http.MethodPost, "/Account/LogOn"))
	})
}

func TestRun_TextOutput(t *testing.T) {
	t.Parallel()

	srv := ssotest.NewServer(t, ssotest.Scenario{Username: "pilot", Password: "hunter2"})

	var out bytes.Buffer
	cfg := testConfig(srv, &out)
	cfg.Username = "pilot"
	cfg.Password = "hunter2"

	app, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, app.Run(context.Background()))
	require.Equal(t, "pilot\t"+srv.LauncherToken()+"\n", out.String())
}

func TestRun_JSONOutputWithFailure(t *testing.T) {
	t.Parallel()

	srv := ssotest.NewServer(t, ssotest.Scenario{Username: "pilot", Password: "hunter2", CharacterName: "Jita Trader"})

	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"accounts:",
		"  - username: pilot",
		"    password: hunter2",
		"    character: Jita Trader",
		"  - username: pilot2",
		"    password: hunter2",
		"",
	}, "\n")), 0o600))

	var out bytes.Buffer
	cfg := testConfig(srv, &out)
	cfg.AccountsFile = path
	cfg.JSON = true

	app, err := New(cfg)
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)

	var got []jsonResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, jsonResult{Username: "pilot", Token: srv.LauncherToken()}, got[0])
	require.Equal(t, "pilot2", got[1].Username)
	require.Empty(t, got[1].Token)
	require.NotEmpty(t, got[1].Error)
}

func TestRun_NoAccounts(t *testing.T) {
	t.Parallel()

	srv := ssotest.NewServer(t, ssotest.Scenario{})
	app, err := New(testConfig(srv, io.Discard))
	require.NoError(t, err)
	require.ErrorIs(t, app.Run(context.Background()), ErrNoAccounts)
	require.Empty(t, srv.Requests())
}

func TestNew_UnknownServer(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Server: "duality", LogOutput: io.Discard})
	require.ErrorIs(t, err, sso.ErrUnknownEnvironment)
}
