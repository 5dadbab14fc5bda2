package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *TokenStore {
	t.Helper()
	return NewTokenStore(filepath.Join(t.TempDir(), "nested", "dir", "token.txt"), zerolog.Nop())
}

func TestRoundTripAndInvalidate(t *testing.T) {
	s := newStore(t)

	_, ok := s.Load()
	assert.False(t, ok, "fresh store has no token")

	require.NoError(t, s.Save("eyJhbGciOiJIUzI1NiJ9.payload.sig"))
	got, ok := s.Load()
	require.True(t, ok)
	assert.Equal(t, "eyJhbGciOiJIUzI1NiJ9.payload.sig", got)

	require.NoError(t, s.Save("second"))
	got, _ = s.Load()
	assert.Equal(t, "second", got, "save overwrites")

	require.NoError(t, s.Invalidate())
	_, ok = s.Load()
	assert.False(t, ok)

	require.NoError(t, s.Invalidate(), "invalidating twice is fine")
}

func TestRoundTripKeepsSurroundingWhitespace(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("eyJabc.def \n"))
	got, ok := s.Load()
	require.True(t, ok)
	assert.Equal(t, "eyJabc.def \n", got)
}

func TestLoadTreatsBlankFileAsAbsent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("  \n"), 0600))

	_, ok := s.Load()
	assert.False(t, ok)
}

func TestLoadTreatsDirectoryAsAbsent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(s.Path(), 0755))

	_, ok := s.Load()
	assert.False(t, ok)
}

func TestSaveRejectsEmptyToken(t *testing.T) {
	s := newStore(t)
	assert.Error(t, s.Save("   "))
}
