package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// TokenStore persists the editor's access token as a single flat file.
// Callers serialize access; only one pipeline runs at a time.
type TokenStore struct {
	path string
	log  zerolog.Logger
}

// NewTokenStore creates a store backed by path
func NewTokenStore(path string, log zerolog.Logger) *TokenStore {
	return &TokenStore{path: path, log: log.With().Str("component", "session").Logger()}
}

// Path of the token file
func (s *TokenStore) Path() string { return s.path }

// Load returns the stored token byte for byte. Missing, blank or unreadable
// files read as absent.
func (s *TokenStore) Load() (string, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("token file unreadable, treating as absent")
		}
		return "", false
	}
	token := string(data)
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

// Save overwrites the stored token verbatim, creating parent directories.
func (s *TokenStore) Save(token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("save token: empty token")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*")
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("save token: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("save token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	s.log.Info().Str("path", s.path).Msg("✅ session token saved")
	return nil
}

// Invalidate deletes the stored token. Deleting an absent token is not an error.
func (s *TokenStore) Invalidate() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("invalidate token: %w", err)
	}
	s.log.Info().Str("path", s.path).Msg("session token invalidated")
	return nil
}
