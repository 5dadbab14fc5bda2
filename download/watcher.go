// Package download resolves the file a browser download produced.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"shorts-pipeline/config"
	"shorts-pipeline/failure"
)

// Snapshot is the set of file names present in the watched directory
type Snapshot map[string]struct{}

// Has reports whether name was present
func (s Snapshot) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Watcher watches one download directory
type Watcher struct {
	dir string
	cfg config.DownloadConfig
	log zerolog.Logger
}

type sample struct {
	size int64
	at   time.Time
}

func NewWatcher(cfg config.DownloadConfig, log zerolog.Logger) *Watcher {
	dir := cfg.Dir
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Watcher{
		dir: dir,
		cfg: cfg,
		log: log.With().Str("component", "download").Str("dir", dir).Logger(),
	}
}

// Dir is the absolute watched directory
func (w *Watcher) Dir() string { return w.dir }

// Snapshot lists the directory, creating it when missing. Taken before the
// download is triggered so unrelated files are never picked up.
func (w *Watcher) Snapshot() (Snapshot, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("list download dir: %w", err)
	}
	snap := make(Snapshot, len(entries))
	for _, e := range entries {
		snap[e.Name()] = struct{}{}
	}
	return snap, nil
}

// AwaitNewVideoFile returns the absolute path of the first file that is new
// since before, is a video, is not a partial download, and has kept the same
// non-zero size for the stability window.
func (w *Watcher) AwaitNewVideoFile(ctx context.Context, before Snapshot, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = w.cfg.Timeout
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		events chan fsnotify.Event
		errs   chan error
	)
	if fw, err := fsnotify.NewWatcher(); err != nil {
		w.log.Warn().Err(err).Msg("fsnotify unavailable, polling only")
	} else {
		defer fw.Close()
		if err := fw.Add(w.dir); err != nil {
			w.log.Warn().Err(err).Msg("cannot watch download dir, polling only")
		} else {
			events, errs = fw.Events, fw.Errors
		}
	}

	w.log.Info().Dur("timeout", timeout).Msg("waiting for downloaded video")
	return w.await(ctx, wctx, before, events, errs)
}

// await polls the directory on every tick and on every change event until a
// stable candidate appears or wctx ends. Watcher errors are drained so they
// never block event delivery.
func (w *Watcher) await(ctx, wctx context.Context, before Snapshot, events <-chan fsnotify.Event, errs <-chan error) (string, error) {
	poll := w.cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	seen := map[string]sample{}
	start := time.Now()
	for {
		path, err := w.scan(before, seen, time.Now())
		if err != nil {
			w.log.Warn().Err(err).Msg("scan failed")
		}
		if path != "" {
			w.log.Info().Str("file", filepath.Base(path)).Dur("took", time.Since(start)).Msg("✅ video downloaded")
			return path, nil
		}

		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", failure.DownloadTimeout(w.dir, wctx.Err())
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			w.log.Debug().Str("event", ev.Op.String()).Str("name", filepath.Base(ev.Name)).Msg("download dir changed")
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Debug().Err(err).Msg("fsnotify error")
		}
	}
}

// scan samples every candidate. A size differing from the previous sample
// restarts its stability window.
func (w *Watcher) scan(before Snapshot, seen map[string]sample, now time.Time) (string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || before.Has(e.Name()) || !w.IsVideo(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		info, err := os.Stat(filepath.Join(w.dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				delete(seen, name)
				continue
			}
			return "", err
		}
		size := info.Size()
		prev, ok := seen[name]
		if !ok || prev.size != size || size == 0 {
			seen[name] = sample{size: size, at: now}
			continue
		}
		if now.Sub(prev.at) >= w.cfg.StableWindow {
			return filepath.Join(w.dir, name), nil
		}
	}
	return "", nil
}

// IsVideo reports whether name has an allowed extension and no partial
// download suffix.
func (w *Watcher) IsVideo(name string) bool {
	lower := strings.ToLower(name)
	for _, suf := range w.cfg.PartialSuffixes {
		if strings.HasSuffix(lower, strings.ToLower(suf)) {
			return false
		}
	}
	return slices.Contains(w.cfg.Extensions, filepath.Ext(lower))
}
