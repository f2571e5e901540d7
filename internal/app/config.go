package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/evesso/pkg/sso"
	"gopkg.in/yaml.v3"
)

// ErrNoAccounts is returned when neither an accounts file nor a username is configured.
var ErrNoAccounts = errors.New("no accounts configured")

type Config struct {
	Server  string // SSO deployment name (tranquility, singularity) (default: tranquility)
	BaseURL string // Optional: overrides the deployment root, e.g. for a mirror

	Username      string // Single account: username
	Password      string // Single account: password
	CharacterName string // Single account: answer to the character challenge
	TOTPSecret    string // Single account: base32 authenticator secret
	AccountsFile  string // Optional: YAML file listing accounts, takes precedence over the single account

	RequestTimeout    time.Duration // Timeout of each SSO request (default: 30s)
	RequestsPerSecond int           // Requests per second to one SSO host, zero falls back to httpx.DefaultLimit (default: 5)
	Burst             int           // Requests allowed back to back before pacing starts (default: 5)
	Concurrency       int           // Accounts logged in at once (default: 4)
	CacheTTL          time.Duration // Lifetime of a cached token that carries no expiry (default: 5m)

	JSON      bool   // Print results as a JSON array instead of username<TAB>token lines
	Env       string // Environment (dev, staging, prod) (default: prod)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)

	Output    io.Writer // Where results are printed (default: os.Stdout)
	LogOutput io.Writer // Where logs are written (default: os.Stderr)
}

func LoadConfig() Config {
	return Config{
		Server:            getEnvOrDefault("EVESSO_SERVER", sso.Tranquility.Name),
		BaseURL:           os.Getenv("EVESSO_BASE_URL"),
		Username:          os.Getenv("EVESSO_USERNAME"),
		Password:          os.Getenv("EVESSO_PASSWORD"),
		CharacterName:     os.Getenv("EVESSO_CHARACTER"),
		TOTPSecret:        os.Getenv("EVESSO_TOTP_SECRET"),
		AccountsFile:      os.Getenv("EVESSO_ACCOUNTS_FILE"),
		RequestTimeout:    getEnvDurationOrDefault("EVESSO_REQUEST_TIMEOUT", sso.DefaultRequestTimeout),
		RequestsPerSecond: getEnvIntOrDefault("EVESSO_REQUESTS_PER_SECOND", 5),
		Burst:             getEnvIntOrDefault("EVESSO_BURST", 5),
		Concurrency:       getEnvIntOrDefault("EVESSO_CONCURRENCY", 4),
		CacheTTL:          getEnvDurationOrDefault("EVESSO_CACHE_TTL", 5*time.Minute),
		Env:               getEnvOrDefault("ENV", "prod"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// Environment resolves the configured deployment, applying BaseURL.
func (c Config) Environment() (sso.Environment, error) {
	env, err := sso.LookupEnvironment(c.Server)
	if err != nil {
		return sso.Environment{}, err
	}
	if c.BaseURL != "" {
		env = env.WithBaseURL(c.BaseURL)
	}
	return env, nil
}

// Accounts returns the accounts to log in: the accounts file when one is
// configured, otherwise the single account from the environment.
func (c Config) Accounts() ([]sso.Credentials, error) {
	if c.AccountsFile != "" {
		return LoadAccounts(c.AccountsFile)
	}
	if c.Username == "" {
		return nil, ErrNoAccounts
	}
	return []sso.Credentials{{
		Username:      c.Username,
		Password:      c.Password,
		CharacterName: c.CharacterName,
		Secret:        c.TOTPSecret,
	}}, nil
}

type accountsFile struct {
	Accounts []sso.Credentials `yaml:"accounts"`
}

// LoadAccounts reads a YAML accounts file of the form
//
//	accounts:
//	  - username: pilot
//	    password: hunter2
//	    character: Jita Trader
//	    secret: JBSWY3DPEHPK3PXP
func LoadAccounts(path string) ([]sso.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var file accountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file %s: %w", path, err)
	}
	if len(file.Accounts) == 0 {
		return nil, fmt.Errorf("%w: %s lists no accounts", ErrNoAccounts, path)
	}
	return file.Accounts, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
