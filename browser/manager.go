package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shorts-pipeline/async"
	"shorts-pipeline/failure"
)

// Launcher produces a ready page and the function that releases it
type Launcher interface {
	Launch(ctx context.Context) (Page, func(), error)
}

// Manager owns one browser session per pipeline invocation
type Manager struct {
	launcher Launcher
	grace    time.Duration
	log      zerolog.Logger
}

// NewManager wraps launcher. grace is the pause before teardown that lets
// in-flight network activity finish.
func NewManager(launcher Launcher, grace time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		launcher: launcher,
		grace:    grace,
		log:      log.With().Str("component", "browser").Logger(),
	}
}

// WithSession launches a browser, runs fn on it and always tears it down,
// whether fn returns, fails or panics. Launch failures are EnvironmentErrors
// and fn never runs.
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context, page Page) error) (err error) {
	page, release, lerr := m.launcher.Launch(ctx)
	if lerr == nil && page == nil {
		lerr = errNoPage
	}
	if lerr != nil {
		m.log.Error().Err(lerr).Msg("browser could not start")
		return failure.Environment(fmt.Errorf("launch browser: %w", lerr))
	}
	m.log.Info().Msg("browser session opened")

	defer func() {
		if m.grace > 0 {
			m.log.Debug().Dur("grace", m.grace).Msg("waiting before teardown")
			_ = Settle(context.WithoutCancel(ctx), m.grace)
		}
		if release != nil {
			release()
		}
		m.log.Info().Msg("browser session closed")
	}()
	defer async.Recover(m.log, "browser-session", func(perr error) { err = perr })

	return fn(ctx, page)
}
