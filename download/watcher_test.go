package download_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/config"
	"shorts-pipeline/download"
	"shorts-pipeline/failure"
)

func newWatcher(t *testing.T) (*download.Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default().Download
	cfg.Dir = dir
	cfg.PollInterval = 10 * time.Millisecond
	cfg.StableWindow = 50 * time.Millisecond
	return download.NewWatcher(cfg, zerolog.Nop()), dir
}

func write(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestAwaitIgnoresPreexistingFile(t *testing.T) {
	w, dir := newWatcher(t)
	write(t, filepath.Join(dir, "a.mp4"), 1024)

	before, err := w.Snapshot()
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "b.mp4"), make([]byte, 5<<20), 0o644)
	}()

	path, err := w.AwaitNewVideoFile(context.Background(), before, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Dir(), "b.mp4"), path)
	assert.True(t, filepath.IsAbs(path))
}

func TestSnapshotIsIdempotent(t *testing.T) {
	w, dir := newWatcher(t)
	write(t, filepath.Join(dir, "a.mp4"), 10)
	write(t, filepath.Join(dir, "notes.txt"), 10)

	first, err := w.Snapshot()
	require.NoError(t, err)
	second, err := w.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestSnapshotCreatesMissingDir(t *testing.T) {
	cfg := config.Default().Download
	cfg.Dir = filepath.Join(t.TempDir(), "nested", "downloads")
	w := download.NewWatcher(cfg, zerolog.Nop())

	snap, err := w.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap)
	assert.DirExists(t, cfg.Dir)
}

func TestGrowingFileIsNeverReturned(t *testing.T) {
	w, dir := newWatcher(t)
	before, err := w.Snapshot()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	path := filepath.Join(dir, "c.mp4")
	go func() {
		f, err := os.Create(path)
		if err != nil {
			return
		}
		defer f.Close()
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				_, _ = f.Write([]byte("frame"))
			}
		}
	}()

	_, err = w.AwaitNewVideoFile(context.Background(), before, 250*time.Millisecond)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindDownloadTimeout))
}

func TestPartialAndEmptyFilesAreIgnored(t *testing.T) {
	w, dir := newWatcher(t)
	before, err := w.Snapshot()
	require.NoError(t, err)

	write(t, filepath.Join(dir, "d.mp4.crdownload"), 2048)
	write(t, filepath.Join(dir, "e.mp4"), 0)
	write(t, filepath.Join(dir, "f.txt"), 2048)

	_, err = w.AwaitNewVideoFile(context.Background(), before, 200*time.Millisecond)
	assert.True(t, failure.Is(err, failure.KindDownloadTimeout))
}

func TestAwaitReturnsWhenPartialIsRenamed(t *testing.T) {
	w, dir := newWatcher(t)
	before, err := w.Snapshot()
	require.NoError(t, err)

	partial := filepath.Join(dir, "g.mp4.crdownload")
	write(t, partial, 4096)
	go func() {
		time.Sleep(40 * time.Millisecond)
		_ = os.Rename(partial, filepath.Join(dir, "g.mp4"))
	}()

	path, err := w.AwaitNewVideoFile(context.Background(), before, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "g.mp4", filepath.Base(path))
}

func TestAwaitHonorsCallerCancellation(t *testing.T) {
	w, _ := newWatcher(t)
	before, err := w.Snapshot()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.AwaitNewVideoFile(ctx, before, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, failure.Is(err, failure.KindDownloadTimeout))
}

func TestIsVideo(t *testing.T) {
	w, _ := newWatcher(t)
	assert.True(t, w.IsVideo("clip.MP4"))
	assert.True(t, w.IsVideo("clip.webm"))
	assert.False(t, w.IsVideo("clip.mp4.part"))
	assert.False(t, w.IsVideo("clip.tmp"))
	assert.False(t, w.IsVideo("clip.jpg"))
}
