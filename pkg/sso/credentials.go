package sso

import (
	"log/slog"
	"strings"
)

// Credentials of one account. CharacterName and Secret are optional until the
// SSO asks for them; their absence at that point fails the attempt.
type Credentials struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`

	// CharacterName answers the character disambiguation challenge
	CharacterName string `yaml:"character" json:"character,omitempty"`

	// Secret is the base32 TOTP secret answering the authenticator challenge
	Secret string `yaml:"secret" json:"-"`
}

// Validate checks the fields every attempt needs.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// LogValue implements slog.LogValuer so credentials never log their secrets.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.Bool("has_character", c.CharacterName != ""),
		slog.Bool("has_secret", c.Secret != ""),
	)
}
