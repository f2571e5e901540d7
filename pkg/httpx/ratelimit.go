package httpx

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/evesso/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// DefaultLimit paces requests to a single SSO host. A login is five to seven
// requests, so this lets a handful of accounts log in back to back without
// looking like a flood.
// Override with: RATELIMIT_SSO_REQUESTS, RATELIMIT_SSO_WINDOW_SEC, RATELIMIT_SSO_BURST
var DefaultLimit = RateLimitConfig{
	RequestsPerWindow: 5,
	Window:            time.Second,
	Burst:             5,
}

func init() {
	DefaultLimit = ParseRateLimitFromEnv("SSO", DefaultLimit)
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_SSO_REQUESTS, RATELIMIT_SSO_WINDOW_SEC, RATELIMIT_SSO_BURST
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	// Parse requests per window
	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	// Parse window duration in seconds
	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	// Parse burst size
	if val := os.Getenv("RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// Limit converts the config into a token rate. A zero window or request count
// means no limit.
func (c RateLimitConfig) Limit() rate.Limit {
	if c.RequestsPerWindow <= 0 || c.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// KeyExtractor picks the bucket a request is paced in.
type KeyExtractor func(*http.Request) string

// HostKeyExtractor paces per destination host.
func HostKeyExtractor(r *http.Request) string {
	return strings.ToLower(r.URL.Host)
}

// rateLimiter manages rate limiters for different keys
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	mu       sync.Mutex
	// Cleanup old limiters periodically
	lastCleanup time.Time
}

// getLimiter retrieves or creates a rate limiter for the given key
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	// Fast path: limiter already exists
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	// Slow path: create new limiter
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	actual, _ := rl.limiters.LoadOrStore(key, limiter)

	// Periodic cleanup to prevent memory leak
	rl.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup removes limiters that have refilled completely, they have not
// been used for a while.
func (rl *rateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Only cleanup once every 5 minutes
	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}

	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		limiter := value.(*rate.Limiter)
		if limiter.Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitedTransport returns a RoundTripper that waits for a token before
// every round trip. Redirect hops are round trips too, so a whole login chain
// is paced. Waiting honours the request context.
func RateLimitedTransport(next http.RoundTripper, config RateLimitConfig, keyExtractor KeyExtractor) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if keyExtractor == nil {
		keyExtractor = HostKeyExtractor
	}
	burst := max(config.Burst, 1)

	return &rateLimitedTransport{
		next: next,
		key:  keyExtractor,
		limiter: &rateLimiter{
			rate:        config.Limit(),
			burst:       burst,
			lastCleanup: time.Now(),
		},
	}
}

type rateLimitedTransport struct {
	next    http.RoundTripper
	key     KeyExtractor
	limiter *rateLimiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	key := t.key(req)

	reservation := t.limiter.getLimiter(key).Reserve()
	if !reservation.OK() {
		return nil, fmt.Errorf("rate limit: burst too small for key %q", key)
	}

	if delay := reservation.Delay(); delay > 0 {
		slogx.FromContext(ctx).Debug("rate limit: delaying request",
			"key", key,
			"delay_ms", delay.Milliseconds(),
		)

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			reservation.Cancel() // give the token back
			return nil, fmt.Errorf("rate limit wait: %w", ctx.Err())
		}
	}

	return t.next.RoundTrip(req)
}
