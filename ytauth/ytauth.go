// Package ytauth manages the YouTube OAuth token: the consent web flow, the
// stored token file and the refresh-token fallback from the environment.
package ytauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"shorts-pipeline/config"
)

// Token sources, in precedence order
const (
	SourceFile = "token_file"
	SourceEnv  = "env_refresh_token"
	SourceNone = "none"
)

// ErrNotAuthorized means neither a stored token nor a refresh token exists
var ErrNotAuthorized = errors.New("youtube is not authorized: open /api/youtube/oauth/initiate or set YOUTUBE_REFRESH_TOKEN")

// Status is the typed authorization state
type Status struct {
	Authenticated bool      `json:"authenticated"`
	Configured    bool      `json:"configured"`
	Source        string    `json:"source"`
	Expiry        time.Time `json:"expiry,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// Manager owns the OAuth configuration and the token file
type Manager struct {
	conf         *oauth2.Config
	tokenPath    string
	refreshToken string
	mu           sync.Mutex
	log          zerolog.Logger
}

// Option tunes a Manager
type Option func(*Manager)

// WithEndpoint replaces the Google OAuth endpoint
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(m *Manager) { m.conf.Endpoint = e }
}

func NewManager(cfg config.OAuthConfig, secrets config.Secrets, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		conf: &oauth2.Config{
			ClientID:     secrets.YouTubeClientID,
			ClientSecret: secrets.YouTubeClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		tokenPath:    cfg.TokenPath,
		refreshToken: secrets.YouTubeRefreshToken,
		log:          log.With().Str("component", "ytauth").Logger(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Configured reports whether client credentials are present
func (m *Manager) Configured() bool {
	return m.conf.ClientID != "" && m.conf.ClientSecret != ""
}

// AuthCodeURL is the consent page. Offline access with forced consent so a
// refresh token is always returned.
func (m *Manager) AuthCodeURL(state string) string {
	return m.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it
func (m *Manager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if !m.Configured() {
		return nil, errors.New("YOUTUBE_CLIENT_ID or YOUTUBE_CLIENT_SECRET not set")
	}
	tok, err := m.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if err := m.save(tok); err != nil {
		return nil, err
	}
	m.log.Info().Time("expiry", tok.Expiry).Msg("✅ youtube authorized")
	return tok, nil
}

// TokenSource picks the stored token, else the environment refresh token.
// Refreshed tokens are written back to the token file.
func (m *Manager) TokenSource(ctx context.Context) (oauth2.TokenSource, string, error) {
	if !m.Configured() {
		return nil, SourceNone, errors.New("YOUTUBE_CLIENT_ID or YOUTUBE_CLIENT_SECRET not set")
	}
	if tok, err := m.load(); err == nil {
		src := m.conf.TokenSource(ctx, tok)
		return &savingSource{m: m, src: src, last: tok.AccessToken}, SourceFile, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		m.log.Warn().Err(err).Str("path", m.tokenPath).Msg("token file unreadable")
	}
	if m.refreshToken != "" {
		tok := &oauth2.Token{
			RefreshToken: m.refreshToken,
			Expiry:       time.Now().Add(-time.Hour), // force refresh
		}
		return &savingSource{m: m, src: m.conf.TokenSource(ctx, tok)}, SourceEnv, nil
	}
	return nil, SourceNone, ErrNotAuthorized
}

// HTTPClient returns a client that authorizes every request
func (m *Manager) HTTPClient(ctx context.Context) (*http.Client, error) {
	src, _, err := m.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, src), nil
}

// Status resolves a usable access token, refreshing when needed
func (m *Manager) Status(ctx context.Context) Status {
	st := Status{Configured: m.Configured(), Source: SourceNone}
	src, source, err := m.TokenSource(ctx)
	st.Source = source
	if err != nil {
		st.Detail = err.Error()
		return st
	}
	tok, err := src.Token()
	if err != nil {
		st.Detail = fmt.Sprintf("token refresh failed: %v", err)
		return st
	}
	st.Authenticated = tok.Valid()
	st.Expiry = tok.Expiry
	return st
}

// Clear removes the stored token. The environment refresh token, if any,
// still applies afterwards.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.tokenPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	m.log.Info().Msg("stored youtube token cleared")
	return nil
}

func (m *Manager) load() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := os.ReadFile(m.tokenPath)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds no token", m.tokenPath)
	}
	return &tok, nil
}

func (m *Manager) save(tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(m.tokenPath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.tokenPath, data, 0o600)
}

// savingSource persists tokens whenever the access token changes
type savingSource struct {
	m    *Manager
	src  oauth2.TokenSource
	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.m.save(tok); err != nil {
			s.m.log.Warn().Err(err).Msg("could not persist refreshed token")
		}
	}
	return tok, nil
}
