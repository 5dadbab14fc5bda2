// Package history remembers the most recent tip titles so the AI can be told
// what not to repeat.
package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Store is a bounded, file-backed list of titles, oldest first
type Store struct {
	path   string
	max    int
	mu     sync.Mutex
	titles []string
	log    zerolog.Logger
}

// Open loads path. A missing or corrupt file starts an empty history.
func Open(path string, max int, log zerolog.Logger) *Store {
	if max < 1 {
		max = 1
	}
	s := &Store{path: path, max: max, log: log.With().Str("component", "history").Logger()}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Info().Str("path", path).Msg("no title history yet")
	case err != nil:
		s.log.Warn().Err(err).Str("path", path).Msg("title history unreadable, starting empty")
	case len(strings.TrimSpace(string(data))) == 0:
	default:
		var titles []string
		if err := json.Unmarshal(data, &titles); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("title history corrupt, starting empty")
			break
		}
		s.titles = trim(titles, max)
		s.log.Info().Int("count", len(s.titles)).Msg("loaded title history")
	}
	return s
}

func trim(titles []string, max int) []string {
	if len(titles) > max {
		titles = titles[len(titles)-max:]
	}
	return slices.Clone(titles)
}

// Titles returns a copy of the remembered titles, oldest first
func (s *Store) Titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.titles)
}

// Add records title as the most recent. A title already present moves to the
// end instead of appearing twice.
func (s *Store) Add(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = slices.DeleteFunc(s.titles, func(t string) bool { return t == title })
	s.titles = trim(append(s.titles, title), s.max)
	return s.saveLocked()
}

// Clear forgets every title
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = nil
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	titles := s.titles
	if titles == nil {
		titles = []string{}
	}
	data, err := json.MarshalIndent(titles, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
