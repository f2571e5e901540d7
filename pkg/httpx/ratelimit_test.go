package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/evesso/pkg/httpx"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// countingTransport answers every request with 200 and counts them.
func countingTransport(n *atomic.Int32) http.RoundTripper {
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		n.Add(1)
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusOK)
		resp := rec.Result()
		resp.Request = r
		return resp, nil
	})
}

func get(t *testing.T, rt http.RoundTripper, ctx context.Context, rawURL string) error {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	if err == nil {
		_ = resp.Body.Close()
	}
	return err
}

func TestHostKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://Login.EveOnline.com/Account/LogOn", nil)
	require.Equal(t, "login.eveonline.com", httpx.HostKeyExtractor(req))
}

func TestRateLimitConfig_Limit(t *testing.T) {
	require.Equal(t, rate.Inf, httpx.RateLimitConfig{}.Limit())
	require.Equal(t, rate.Limit(5), httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Second}.Limit())
	require.Equal(t, rate.Limit(0.5), httpx.RateLimitConfig{RequestsPerWindow: 30, Window: time.Minute}.Limit())
}

func TestParseRateLimitFromEnv(t *testing.T) {
	t.Run("overrides set fields", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_REQUESTS", "10")
		t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "60")

		config := httpx.ParseRateLimitFromEnv("TEST", httpx.DefaultLimit)
		require.Equal(t, 10, config.RequestsPerWindow)
		require.Equal(t, time.Minute, config.Window)
		require.Equal(t, httpx.DefaultLimit.Burst, config.Burst)
	})

	t.Run("ignores invalid values", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_BURST", "-3")
		t.Setenv("RATELIMIT_TEST_REQUESTS", "many")

		config := httpx.ParseRateLimitFromEnv("TEST", httpx.DefaultLimit)
		require.Equal(t, httpx.DefaultLimit, config)
	})
}

func TestRateLimitedTransport(t *testing.T) {
	t.Run("burst passes without waiting", func(t *testing.T) {
		var n atomic.Int32
		rt := httpx.RateLimitedTransport(countingTransport(&n), httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             3,
		}, nil)

		start := time.Now()
		for range 3 {
			require.NoError(t, get(t, rt, context.Background(), "https://sso.example.com/"))
		}
		require.Less(t, time.Since(start), 500*time.Millisecond)
		require.EqualValues(t, 3, n.Load())
	})

	t.Run("waits for a token", func(t *testing.T) {
		var n atomic.Int32
		rt := httpx.RateLimitedTransport(countingTransport(&n), httpx.RateLimitConfig{
			RequestsPerWindow: 10,
			Window:            time.Second,
			Burst:             1,
		}, nil)

		start := time.Now()
		require.NoError(t, get(t, rt, context.Background(), "https://sso.example.com/"))
		require.NoError(t, get(t, rt, context.Background(), "https://sso.example.com/"))
		require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		require.EqualValues(t, 2, n.Load())
	})

	t.Run("gives up when the context ends", func(t *testing.T) {
		var n atomic.Int32
		rt := httpx.RateLimitedTransport(countingTransport(&n), httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		}, nil)

		require.NoError(t, get(t, rt, context.Background(), "https://sso.example.com/"))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := get(t, rt, ctx, "https://sso.example.com/")
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.EqualValues(t, 1, n.Load())
	})

	t.Run("hosts are paced separately", func(t *testing.T) {
		var n atomic.Int32
		rt := httpx.RateLimitedTransport(countingTransport(&n), httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		}, httpx.HostKeyExtractor)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, get(t, rt, ctx, "https://login.eveonline.com/"))
		require.NoError(t, get(t, rt, ctx, "https://sisilogin.testeveonline.com/"))
		require.EqualValues(t, 2, n.Load())
	})

	t.Run("zero config does not limit", func(t *testing.T) {
		var n atomic.Int32
		rt := httpx.RateLimitedTransport(countingTransport(&n), httpx.RateLimitConfig{}, nil)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for range 50 {
			require.NoError(t, get(t, rt, ctx, "https://sso.example.com/"))
		}
		require.EqualValues(t, 50, n.Load())
	})
}

func BenchmarkRateLimitedTransport(b *testing.B) {
	var n atomic.Int32
	rt := httpx.RateLimitedTransport(countingTransport(&n), httpx.RateLimitConfig{
		RequestsPerWindow: 1000000, // High limit so we don't hit it
		Window:            time.Second,
		Burst:             1000,
	}, nil)
	req := httptest.NewRequest(http.MethodGet, "https://sso.example.com/", nil)

	b.ResetTimer()
	for range b.N {
		resp, err := rt.RoundTrip(req)
		if err != nil {
			b.Fatal(err)
		}
		_ = resp.Body.Close()
	}
}
