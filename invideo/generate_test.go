package invideo_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/browser/browsertest"
	"shorts-pipeline/config"
	"shorts-pipeline/failure"
	"shorts-pipeline/invideo"
	"shorts-pipeline/types"
)

const copilotURL = "https://ai.invideo.io/workspace/abc-123/v30-copilot"

// scriptEditor models the editor up to the download control
func scriptEditor(c config.InVideoConfig) *browsertest.Page {
	sel := c.Selectors
	page := browsertest.New()
	page.SetURL(copilotURL)
	page.Show(sel.PromptInput, sel.GenerateButton)
	page.OnClick(sel.GenerateButton, func(p *browsertest.Page) {
		p.Show(sel.SettingsIndicator, sel.SettingsContinue)
	})
	page.OnClick(sel.SettingsContinue, func(p *browsertest.Page) {
		p.Show(sel.DownloadButton)
	})
	return page
}

func TestGenerateFallsBackToRandomOption(t *testing.T) {
	c := testConfig()
	page := scriptEditor(c)
	// audience preference is gone; three other audiences are offered
	page.SetChoices(c.Audience.ChoicesXPath, "Parents", "Newlyweds", "Retirees")
	page.Show(c.PreferredTarget(c.Style))
	page.SetAttr(c.PreferredTarget(c.Style), "class", "btn selected-true")

	var seen []types.Selection
	g := invideo.NewGenerator(c, zerolog.Nop(),
		invideo.WithPicker(func(n int) int {
			assert.Equal(t, 3, n)
			return 1
		}),
		invideo.WithSelectionObserver(func(s types.Selection) { seen = append(seen, s) }),
	)

	report, err := g.Generate(context.Background(), page, "Create a 45 second short about listening")
	require.NoError(t, err)
	require.Len(t, report.Selections, 2)

	audience := report.Selections[0]
	assert.Equal(t, "audience", audience.Group)
	assert.Equal(t, invideo.OutcomeRandomFallback, audience.Outcome)
	assert.Equal(t, "Newlyweds", audience.Label)
	assert.Equal(t, string(invideo.ProbeDefaultAssumed), audience.Observed)
	assert.True(t, page.Called("click-choice "+browsertest.ChoiceKey(c.Audience.ChoicesXPath, 1)))

	style := report.Selections[1]
	assert.Equal(t, invideo.OutcomeAlreadySelected, style.Outcome)
	assert.False(t, page.Called("click "+c.PreferredTarget(c.Style)), "selected option is not toggled off")

	assert.Equal(t, report.Selections, seen)
	assert.Equal(t, "Create a 45 second short about listening", page.Value(c.Selectors.PromptInput))
	assert.True(t, page.Called("wait-clickable "+c.Selectors.DownloadButton))
}

func TestGenerateClicksPreferredOption(t *testing.T) {
	c := testConfig()
	page := scriptEditor(c)
	page.Show(c.PreferredTarget(c.Audience), c.PreferredTarget(c.Style))
	probe := strings.ReplaceAll(c.SelectedProbes[0].Selector, "{choices}", c.Audience.ChoicesXPath)
	page.OnClick(c.PreferredTarget(c.Audience), func(p *browsertest.Page) {
		p.SetText(probe, "Married adults")
	})

	g := invideo.NewGenerator(c, zerolog.Nop())
	report, err := g.Generate(context.Background(), page, "prompt")
	require.NoError(t, err)

	audience := report.Selections[0]
	assert.Equal(t, invideo.OutcomePreferred, audience.Outcome)
	assert.Equal(t, string(invideo.ProbeSelected), audience.Observed)
	assert.Equal(t, "Married adults", audience.ObservedLabel)
	assert.Equal(t, "aria-pressed", audience.ObservedBy)
	assert.True(t, page.Called("click "+c.PreferredTarget(c.Style)))
}

func TestGenerateProceedsWhenGroupIsEmpty(t *testing.T) {
	c := testConfig()
	page := scriptEditor(c)

	g := invideo.NewGenerator(c, zerolog.Nop(), invideo.WithPicker(func(int) int {
		t.Fatal("picker must not run without options")
		return 0
	}))
	report, err := g.Generate(context.Background(), page, "prompt")
	require.NoError(t, err)
	for _, s := range report.Selections {
		assert.Equal(t, invideo.OutcomeNone, s.Outcome)
		assert.Equal(t, string(invideo.ProbeNotFound), s.Observed)
	}
}

func TestGenerateStepTimeoutCarriesStepAndLocation(t *testing.T) {
	c := testConfig()
	page := browsertest.New()
	page.SetURL(copilotURL)
	page.Show(c.Selectors.PromptInput, c.Selectors.GenerateButton)
	// settings surface never shows

	g := invideo.NewGenerator(c, zerolog.Nop())
	_, err := g.Generate(context.Background(), page, "prompt")
	require.Error(t, err)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindStepTimeout, fe.Kind)
	assert.Equal(t, invideo.StepSettingsSurface, fe.Step)
	assert.Equal(t, copilotURL, fe.Location)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerateRenderTimeout(t *testing.T) {
	c := testConfig()
	page := scriptEditor(c)
	page.OnClick(c.Selectors.SettingsContinue, func(p *browsertest.Page) {
		p.Show(c.Selectors.DownloadButton)
		p.Disable(c.Selectors.DownloadButton, true)
	})
	g := invideo.NewGenerator(c, zerolog.Nop())
	_, err := g.Generate(context.Background(), page, "prompt")
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, invideo.StepGenerationComplete, fe.Step)
}

func TestRequestDownload(t *testing.T) {
	c := testConfig()
	sel := c.Selectors
	page := browsertest.New()
	page.SetURL(copilotURL)
	page.Show(sel.DownloadButton)
	page.OnClick(sel.DownloadButton, func(p *browsertest.Page) { p.Show(sel.DownloadMenuItem) })
	page.OnClick(sel.DownloadMenuItem, func(p *browsertest.Page) {
		p.Show(sel.DownloadDialog, sel.DownloadDialogContinue)
		p.SetText(sel.DownloadDialogSelected, "1080p")
	})

	g := invideo.NewGenerator(c, zerolog.Nop())
	report, err := g.RequestDownload(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "1080p", report.DialogSelection)
	assert.True(t, page.Called("click "+sel.DownloadDialogContinue))
}

func TestRequestDownloadDialogTimeout(t *testing.T) {
	c := testConfig()
	sel := c.Selectors
	page := browsertest.New()
	page.Show(sel.DownloadButton, sel.DownloadMenuItem)

	g := invideo.NewGenerator(c, zerolog.Nop())
	_, err := g.RequestDownload(context.Background(), page)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindStepTimeout, fe.Kind)
	assert.Equal(t, invideo.StepDownloadDialog, fe.Step)
}

func TestGenerateClicksConfiguredPreference(t *testing.T) {
	c := testConfig()
	c.Audience.Preferred = "Young adults"
	page := scriptEditor(c)
	young := "//button[.//div[text()='Young adults']]"
	married := "//button[.//div[text()='Married adults']]"
	page.Show(young, married)

	g := invideo.NewGenerator(c, zerolog.Nop())
	report, err := g.Generate(context.Background(), page, "prompt")
	require.NoError(t, err)

	audience := report.Selections[0]
	assert.Equal(t, invideo.OutcomePreferred, audience.Outcome)
	assert.Equal(t, "Young adults", audience.Label)
	assert.True(t, page.Called("click "+young))
	assert.False(t, page.Called("click "+married))
}
