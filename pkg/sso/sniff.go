package sso

import (
	"regexp"
	"strings"
)

// ChallengeKind is the extra step the SSO demands before it issues a token.
type ChallengeKind int

const (
	ChallengeNone ChallengeKind = iota
	ChallengeCharacterName
	ChallengeAuthenticator
	ChallengeEula
)

func (k ChallengeKind) String() string {
	switch k {
	case ChallengeCharacterName:
		return "character_name"
	case ChallengeAuthenticator:
		return "authenticator"
	case ChallengeEula:
		return "eula"
	default:
		return "none"
	}
}

// eulaHashLength is the size of the hash carried by the EULA form.
const eulaHashLength = 32

// Markers is the table of literal strings the SSO pages are recognised by.
// Matching depends on the upstream wording, so the values are kept verbatim.
type Markers struct {
	// CharacterPrompt is the text of the character disambiguation page
	CharacterPrompt string

	// AuthenticatorAction is the form action of the two-factor page
	AuthenticatorAction string

	// EulaAction is the form action of the EULA page
	EulaAction string

	// EulaHashField precedes the 32 character EULA hash
	EulaHashField string

	// VerificationTokenField is the name of the anti-forgery hidden input on the login page
	VerificationTokenField string

	// AccessTokenKey is the URL fragment key carrying the access token
	AccessTokenKey string
}

// DefaultMarkers returns the markers used by the live deployments.
func DefaultMarkers() Markers {
	return Markers{
		CharacterPrompt:        "please enter the name of one of the characters associated with your account",
		AuthenticatorAction:    `action="/Account/Authenticator`,
		EulaAction:             `action="/oauth/eula"`,
		EulaHashField:          `name="eulaHash" type="hidden" value="`,
		VerificationTokenField: "__RequestVerificationToken",
		AccessTokenKey:         "#access_token=",
	}
}

// Sniffer classifies SSO pages. It holds no state beyond its compiled patterns
// and is safe for concurrent use.
type Sniffer struct {
	character     *regexp.Regexp
	authenticator *regexp.Regexp
	eula          *regexp.Regexp
	eulaHash      *regexp.Regexp
	verification  *regexp.Regexp
}

// NewSniffer compiles a Sniffer from a marker table.
func NewSniffer(m Markers) *Sniffer {
	field := regexp.QuoteMeta(m.VerificationTokenField)
	return &Sniffer{
		character:     caseInsensitive(m.CharacterPrompt),
		authenticator: caseInsensitive(m.AuthenticatorAction),
		eula:          caseInsensitive(m.EulaAction),
		eulaHash:      caseInsensitive(m.EulaHashField),
		// attribute order differs between page revisions, so the value may sit on either side of the name
		verification: regexp.MustCompile(`(?i)<input[^>]*name="` + field + `"[^>]*value="([^"]*)"|` +
			`<input[^>]*value="([^"]*)"[^>]*name="` + field + `"`),
	}
}

func caseInsensitive(literal string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(literal))
}

// Classify returns the challenge a page asks for. When a page carries more than
// one marker the order is CharacterName, Authenticator, Eula, which is the
// order the SSO issues them in.
func (s *Sniffer) Classify(body string) ChallengeKind {
	switch {
	case s.character.MatchString(body):
		return ChallengeCharacterName
	case s.authenticator.MatchString(body):
		return ChallengeAuthenticator
	case s.eula.MatchString(body):
		return ChallengeEula
	default:
		return ChallengeNone
	}
}

// EulaHash returns the 32 characters following the hidden eulaHash field.
func (s *Sniffer) EulaHash(body string) (string, error) {
	loc := s.eulaHash.FindStringIndex(body)
	if loc == nil {
		return "", ErrMissingEulaHash
	}
	rest := body[loc[1]:]
	if len(rest) < eulaHashLength {
		return "", ErrMissingEulaHash
	}
	return rest[:eulaHashLength], nil
}

// VerificationToken returns the anti-forgery token of the login form.
func (s *Sniffer) VerificationToken(body string) (string, error) {
	m := s.verification.FindStringSubmatch(body)
	if m == nil {
		return "", ErrMissingVerificationToken
	}
	token := m[1]
	if token == "" {
		token = m[2]
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrMissingVerificationToken
	}
	return token, nil
}

var defaultSniffer = NewSniffer(DefaultMarkers())

// Classify classifies a page using the default markers.
func Classify(body string) ChallengeKind {
	return defaultSniffer.Classify(body)
}

// ExtractEulaHash extracts the EULA hash using the default markers.
func ExtractEulaHash(body string) (string, error) {
	return defaultSniffer.EulaHash(body)
}

// ExtractVerificationToken extracts the login form token using the default markers.
func ExtractVerificationToken(body string) (string, error) {
	return defaultSniffer.VerificationToken(body)
}
