// Package ssotest runs an in-process stand-in for the SSO deployment. It
// serves the login page, the character, authenticator and EULA challenges and
// the launcher redirects, tracks progress per session cookie, and records
// every request for assertions.
package ssotest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/evesso/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// CookieName is the session cookie the fake deployment issues.
	CookieName = "sso_session"

	// DefaultEulaHash is the hash served on the EULA page unless overridden.
	DefaultEulaHash = "0123456789abcdef0123456789abcdef"

	clientID = "eveLauncherTQ"
)

// Scenario scripts what the deployment demands from an account.
type Scenario struct {
	Username string
	Password string

	// CharacterName, when set, makes the deployment ask for it after the login form
	CharacterName string

	// TOTPSecret, when set, makes the deployment ask for an authenticator code
	TOTPSecret string

	// Eula makes the deployment ask for EULA acceptance
	Eula     bool
	EulaHash string

	// OmitVerificationToken serves a login page without the anti-forgery input
	OmitVerificationToken bool

	// OmitEulaHash serves an EULA page without the hidden hash field
	OmitEulaHash bool

	// RejectExchange makes the launcher token endpoint answer with a plain page
	RejectExchange bool

	// LoginPageDelay stalls the login page, for timeout tests
	LoginPageDelay time.Duration

	// AccessToken is the token of the authorize redirect, LauncherToken the
	// token of the exchange redirect. Both are generated when empty.
	AccessToken   string
	LauncherToken string

	// Now is the clock authenticator codes are validated against
	Now func() time.Time
}

// Request is one recorded request.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Cookie string
}

type progress struct {
	verification  string
	loggedIn      bool
	characterDone bool
	authDone      bool
	eulaDone      bool
}

// Server is a running fake deployment.
type Server struct {
	*httptest.Server

	scenario Scenario

	mu       sync.Mutex
	sessions map[string]*progress
	requests []Request
}

// NewServer starts a fake deployment for the scenario and closes it when the test ends.
func NewServer(t testing.TB, sc Scenario) *Server {
	t.Helper()

	if sc.EulaHash == "" {
		sc.EulaHash = DefaultEulaHash
	}
	if sc.AccessToken == "" {
		sc.AccessToken = cryptox.MustGenerateToken(cryptox.TokenSize256)
	}
	if sc.LauncherToken == "" {
		sc.LauncherToken = cryptox.MustGenerateToken(cryptox.TokenSize256)
	}
	if sc.Now == nil {
		sc.Now = time.Now
	}

	s := &Server{
		scenario: sc,
		sessions: make(map[string]*progress),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /Account/LogOn", s.handleLoginPage)
	mux.HandleFunc("POST /Account/LogOn", s.handleLoginSubmit)
	mux.HandleFunc("POST /Account/Challenge", s.handleCharacter)
	mux.HandleFunc("POST /Account/Authenticator", s.handleAuthenticator)
	mux.HandleFunc("POST /OAuth/Eula", s.handleEula)
	mux.HandleFunc("GET /oauth/authorize/", s.handleAuthorize)
	mux.HandleFunc("GET /launcher", s.handleLauncher)
	mux.HandleFunc("GET /launcher/token", s.handleExchange)

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// AccessToken is the token of the authorize redirect.
func (s *Server) AccessToken() string { return s.scenario.AccessToken }

// LauncherToken is the token the exchange ends with.
func (s *Server) LauncherToken() string { return s.scenario.LauncherToken }

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests hit method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Sessions returns how many distinct session cookies were issued.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		rec := Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Form:   r.PostForm,
		}
		if c, err := r.Cookie(CookieName); err == nil {
			rec.Cookie = c.Value
		}

		s.mu.Lock()
		s.requests = append(s.requests, rec)
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// session returns the progress of the request's cookie, or nil.
func (s *Server) session(r *http.Request) *progress {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if d := s.scenario.LoginPageDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	id := cryptox.MustGenerateToken(cryptox.TokenSize128)
	p := &progress{verification: cryptox.MustGenerateToken(cryptox.TokenSize128)}
	s.mu.Lock()
	s.sessions[id] = p
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: id, Path: "/", HttpOnly: true})
	writePage(w, loginPage(r.URL.RawQuery, p.verification, s.scenario.OmitVerificationToken, ""))
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	p := s.session(r)
	if p == nil || r.PostForm.Get("__RequestVerificationToken") != p.verification {
		http.Error(w, "The anti-forgery token could not be decrypted.", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("UserName") != s.scenario.Username || r.PostForm.Get("Password") != s.scenario.Password {
		writePage(w, loginPage(r.URL.RawQuery, p.verification, false, "Invalid username / password"))
		return
	}

	s.mu.Lock()
	p.loggedIn = true
	s.mu.Unlock()
	s.next(w, r, p, r.URL.Query().Get("ReturnUrl"))
}

func (s *Server) handleCharacter(w http.ResponseWriter, r *http.Request) {
	p := s.session(r)
	if p == nil || !p.loggedIn {
		http.Redirect(w, r, "/Account/LogOn", http.StatusFound)
		return
	}
	if !strings.EqualFold(r.PostForm.Get("Challenge"), s.scenario.CharacterName) ||
		r.PostForm.Get("RememberCharacterChallenge") != "true" {
		writePage(w, characterPage(r.URL.RawQuery))
		return
	}

	s.mu.Lock()
	p.characterDone = true
	s.mu.Unlock()
	s.next(w, r, p, r.URL.Query().Get("ReturnUrl"))
}

func (s *Server) handleAuthenticator(w http.ResponseWriter, r *http.Request) {
	p := s.session(r)
	if p == nil || !p.loggedIn {
		http.Redirect(w, r, "/Account/LogOn", http.StatusFound)
		return
	}
	valid, _ := totp.ValidateCustom(r.PostForm.Get("Challenge"), s.scenario.TOTPSecret, s.scenario.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if !valid || r.PostForm.Get("RememberTwoFactor") != "true" || r.PostForm.Get("command") != "Continue" {
		writePage(w, authenticatorPage(r.URL.RawQuery))
		return
	}

	s.mu.Lock()
	p.authDone = true
	s.mu.Unlock()
	s.next(w, r, p, r.URL.Query().Get("ReturnUrl"))
}

func (s *Server) handleEula(w http.ResponseWriter, r *http.Request) {
	p := s.session(r)
	if p == nil || !p.loggedIn {
		http.Redirect(w, r, "/Account/LogOn", http.StatusFound)
		return
	}
	if r.PostForm.Get("eulaHash") != s.scenario.EulaHash || r.PostForm.Get("action") != "Accept" {
		writePage(w, eulaPage(s.scenario.EulaHash, false))
		return
	}

	s.mu.Lock()
	p.eulaDone = true
	s.mu.Unlock()
	s.next(w, r, p, r.PostForm.Get("returnUrl"))
}

// next serves the first outstanding challenge, or sends the browser back to
// the authorize endpoint once nothing is outstanding.
func (s *Server) next(w http.ResponseWriter, r *http.Request, p *progress, returnURL string) {
	s.mu.Lock()
	pending := s.pending(p)
	s.mu.Unlock()

	switch pending {
	case "character":
		writePage(w, characterPage(r.URL.RawQuery))
	case "authenticator":
		writePage(w, authenticatorPage(r.URL.RawQuery))
	case "eula":
		writePage(w, eulaPage(s.scenario.EulaHash, s.scenario.OmitEulaHash))
	default:
		if !strings.HasPrefix(returnURL, "/oauth/authorize/") {
			returnURL = "/oauth/authorize/"
		}
		http.Redirect(w, r, returnURL, http.StatusFound)
	}
}

func (s *Server) pending(p *progress) string {
	switch {
	case s.scenario.CharacterName != "" && !p.characterDone:
		return "character"
	case s.scenario.TOTPSecret != "" && !p.authDone:
		return "authenticator"
	case s.scenario.Eula && !p.eulaDone:
		return "eula"
	default:
		return ""
	}
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	p := s.session(r)
	s.mu.Lock()
	complete := p != nil && p.loggedIn && s.pending(p) == ""
	s.mu.Unlock()
	if !complete {
		http.Redirect(w, r, "/Account/LogOn?ReturnUrl="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		return
	}
	if r.URL.Query().Get("response_type") != "token" || r.URL.Query().Get("client_id") != clientID {
		http.Error(w, "invalid authorize request", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, launcherRedirect(s.scenario.AccessToken), http.StatusFound)
}

func (s *Server) handleLauncher(w http.ResponseWriter, r *http.Request) {
	writePage(w, "<html><body>Launching...</body></html>")
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	p := s.session(r)
	if s.scenario.RejectExchange || p == nil || r.URL.Query().Get("accesstoken") != s.scenario.AccessToken {
		writePage(w, "<html><body>Something went wrong.</body></html>")
		return
	}
	http.Redirect(w, r, launcherRedirect(s.scenario.LauncherToken), http.StatusFound)
}

func launcherRedirect(token string) string {
	return "/launcher?client_id=" + clientID + "#access_token=" + token + "&token_type=Bearer&expires_in=239"
}

func writePage(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, body)
}

func loginPage(rawQuery, verification string, omitToken bool, errorText string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, `<form action="/Account/LogOn?%s" method="post">`, html.EscapeString(rawQuery))
	if !omitToken {
		fmt.Fprintf(&b, `<input name="__RequestVerificationToken" type="hidden" value="%s" />`, verification)
	}
	if errorText != "" {
		fmt.Fprintf(&b, `<div class="validation-summary-errors">%s</div>`, errorText)
	}
	b.WriteString(`<input id="UserName" name="UserName" type="text" /><input id="Password" name="Password" type="password" />`)
	b.WriteString("</form></body></html>")
	return b.String()
}

func characterPage(rawQuery string) string {
	return fmt.Sprintf(`<html><body><form action="/Account/Challenge?%s" method="post">`+
		`<p>Please enter the name of one of the characters associated with your account.</p>`+
		`<input name="Challenge" type="text" /></form></body></html>`, html.EscapeString(rawQuery))
}

func authenticatorPage(rawQuery string) string {
	return fmt.Sprintf(`<html><body><form action="/Account/Authenticator?%s" method="post">`+
		`<p>Enter the code from your authenticator app.</p>`+
		`<input name="Challenge" type="text" /></form></body></html>`, html.EscapeString(rawQuery))
}

func eulaPage(hash string, omitHash bool) string {
	var b strings.Builder
	b.WriteString(`<html><body><form action="/oauth/eula" method="post">`)
	if !omitHash {
		fmt.Fprintf(&b, `<input name="eulaHash" type="hidden" value="%s" />`, hash)
	}
	b.WriteString(`<input name="returnUrl" type="hidden" value="/oauth/authorize/" />`)
	b.WriteString("<button name=\"action\" value=\"Accept\">Accept</button></form></body></html>")
	return b.String()
}
