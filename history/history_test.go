package history_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/history"
)

func TestAddBoundsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "recent_tip_titles.json")
	s := history.Open(path, 3, zerolog.Nop())
	assert.Empty(t, s.Titles())

	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Add(fmt.Sprintf("tip %d", i)))
	}
	assert.Equal(t, []string{"tip 2", "tip 3", "tip 4"}, s.Titles())

	reopened := history.Open(path, 3, zerolog.Nop())
	assert.Equal(t, s.Titles(), reopened.Titles())
}

func TestAddMovesDuplicateToEnd(t *testing.T) {
	s := history.Open(filepath.Join(t.TempDir(), "h.json"), 10, zerolog.Nop())
	require.NoError(t, s.Add("a"))
	require.NoError(t, s.Add("b"))
	require.NoError(t, s.Add(" a "))
	require.NoError(t, s.Add(""))
	assert.Equal(t, []string{"b", "a"}, s.Titles())
}

func TestOpenToleratesCorruptFileAndTrimsOversized(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	assert.Empty(t, history.Open(corrupt, 10, zerolog.Nop()).Titles())

	big := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(big, []byte(`["1","2","3","4"]`), 0o644))
	assert.Equal(t, []string{"3", "4"}, history.Open(big, 2, zerolog.Nop()).Titles())
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.json")
	s := history.Open(path, 10, zerolog.Nop())
	require.NoError(t, s.Add("a"))
	require.NoError(t, s.Clear())
	assert.Empty(t, s.Titles())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}
