package invideo

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"shorts-pipeline/browser"
	"shorts-pipeline/config"
	"shorts-pipeline/failure"
	"shorts-pipeline/types"
)

// Step names, as reported in StepTimeout errors
const (
	StepPromptInput        = "prompt-input"
	StepGenerate           = "generate"
	StepSettingsSurface    = "settings-surface"
	StepSettingsContinue   = "settings-continue"
	StepGenerationComplete = "generation-complete"
	StepDownloadButton     = "download-button"
	StepDownloadMenu       = "download-menu"
	StepDownloadDialog     = "download-dialog"
	StepDownloadContinue   = "download-continue"
)

// GenerationReport summarizes the settings surface
type GenerationReport struct {
	Selections []types.Selection
}

// DownloadReport summarizes the download dialog
type DownloadReport struct {
	DialogSelection string
}

// Generator drives prompt submission through to the download request
type Generator struct {
	cfg      config.InVideoConfig
	pick     func(n int) int
	observer func(types.Selection)
	log      zerolog.Logger
}

// GeneratorOption tunes a Generator
type GeneratorOption func(*Generator)

// WithPicker replaces the uniform random picker used for fallback options
func WithPicker(pick func(n int) int) GeneratorOption {
	return func(g *Generator) { g.pick = pick }
}

// WithSelectionObserver is told about every option group outcome
func WithSelectionObserver(fn func(types.Selection)) GeneratorOption {
	return func(g *Generator) { g.observer = fn }
}

func NewGenerator(cfg config.InVideoConfig, log zerolog.Logger, opts ...GeneratorOption) *Generator {
	g := &Generator{
		cfg:  cfg,
		pick: rand.IntN,
		log:  log.With().Str("component", "generate").Logger(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate runs steps 1 to 7: prompt, generate, settings, continue and the
// long wait for the download control. Steps are strictly sequential; the
// first one that misses its bound fails the run.
func (g *Generator) Generate(ctx context.Context, page browser.Page, prompt string) (*GenerationReport, error) {
	t := g.cfg.Timeouts
	sel := g.cfg.Selectors
	report := &GenerationReport{}

	if err := g.step(ctx, page, StepPromptInput, t.Interaction, func(ctx context.Context) error {
		if err := page.WaitVisible(ctx, sel.PromptInput); err != nil {
			return err
		}
		if err := page.Click(ctx, sel.PromptInput); err != nil {
			return err
		}
		// keystroke typing drops characters in this editor
		if err := page.SetValue(ctx, sel.PromptInput, prompt); err != nil {
			return err
		}
		return browser.Settle(ctx, t.PromptSettle)
	}); err != nil {
		return report, err
	}

	if err := g.step(ctx, page, StepGenerate, t.Interaction, func(ctx context.Context) error {
		if err := page.WaitClickable(ctx, sel.GenerateButton); err != nil {
			return err
		}
		return page.Click(ctx, sel.GenerateButton)
	}); err != nil {
		return report, err
	}

	if err := g.step(ctx, page, StepSettingsSurface, t.SettingsSurface, func(ctx context.Context) error {
		return page.WaitVisible(ctx, sel.SettingsIndicator)
	}); err != nil {
		return report, err
	}

	for _, grp := range []config.OptionGroupConfig{g.cfg.Audience, g.cfg.Style} {
		if grp.Name == "" {
			continue
		}
		s := g.selectOption(ctx, page, grp)
		report.Selections = append(report.Selections, s)
		if g.observer != nil {
			g.observer(s)
		}
	}

	if err := g.step(ctx, page, StepSettingsContinue, t.Interaction, func(ctx context.Context) error {
		if err := page.WaitClickable(ctx, sel.SettingsContinue); err != nil {
			return err
		}
		return page.Click(ctx, sel.SettingsContinue)
	}); err != nil {
		return report, err
	}

	g.log.Info().Dur("timeout", t.GenerationCompletion).Msg("waiting for the video to render")
	if err := g.step(ctx, page, StepGenerationComplete, t.GenerationCompletion, func(ctx context.Context) error {
		return page.WaitClickable(ctx, sel.DownloadButton)
	}); err != nil {
		return report, err
	}
	return report, nil
}

// RequestDownload runs step 8: download, "download video", the options
// dialog and its continue button. The file transfer starts afterwards.
func (g *Generator) RequestDownload(ctx context.Context, page browser.Page) (*DownloadReport, error) {
	t := g.cfg.Timeouts
	sel := g.cfg.Selectors
	report := &DownloadReport{}

	if err := g.step(ctx, page, StepDownloadButton, t.Interaction, func(ctx context.Context) error {
		if err := page.WaitClickable(ctx, sel.DownloadButton); err != nil {
			return err
		}
		if err := page.Click(ctx, sel.DownloadButton); err != nil {
			return err
		}
		return browser.Settle(ctx, t.ClickSettle)
	}); err != nil {
		return report, err
	}

	if err := g.step(ctx, page, StepDownloadMenu, t.Interaction, func(ctx context.Context) error {
		if err := page.WaitClickable(ctx, sel.DownloadMenuItem); err != nil {
			return err
		}
		if err := page.Click(ctx, sel.DownloadMenuItem); err != nil {
			return err
		}
		return browser.Settle(ctx, t.ClickSettle)
	}); err != nil {
		return report, err
	}

	if err := g.step(ctx, page, StepDownloadDialog, t.DownloadDialog, func(ctx context.Context) error {
		return page.WaitVisible(ctx, sel.DownloadDialog)
	}); err != nil {
		return report, err
	}

	if sel.DownloadDialogSelected != "" {
		if text, ok, err := page.Text(ctx, sel.DownloadDialogSelected); err == nil && ok {
			report.DialogSelection = text
			g.log.Info().Str("selection", text).Msg("download dialog selection")
		}
	}

	if err := g.step(ctx, page, StepDownloadContinue, t.Interaction, func(ctx context.Context) error {
		if err := page.WaitClickable(ctx, sel.DownloadDialogContinue); err != nil {
			return err
		}
		return page.Click(ctx, sel.DownloadDialogContinue)
	}); err != nil {
		return report, err
	}
	g.log.Info().Msg("✅ download requested")
	return report, nil
}

// step bounds fn by timeout and turns any failure into a StepTimeout that
// carries the step name and the page location.
func (g *Generator) step(ctx context.Context, page browser.Page, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	g.log.Debug().Str("step", name).Dur("timeout", timeout).Msg("step started")
	err := fn(sctx)
	if err == nil {
		g.log.Info().Str("step", name).Dur("took", time.Since(start)).Msg("step done")
		return nil
	}
	loc := browser.LastLocation(page)
	g.log.Error().Err(err).Str("step", name).Str("location", loc).Msg("step failed")
	if ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
		err = ctx.Err()
	}
	return failure.StepTimeout(name, loc, err)
}
