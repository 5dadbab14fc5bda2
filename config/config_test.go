package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
ai:
  provider: gemini
  model: gemini-1.5-flash
invideo:
  compatibility_surface: false
  timeouts:
    generation_completion: 30m
download:
  dir: /tmp/videos
upload:
  privacy: unlisted
  tags: [shorts, advice]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))
	t.Setenv("INVIDEO_USERNAME", "operator@example.com")
	t.Setenv("INVIDEO_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, 30*time.Minute, cfg.InVideo.Timeouts.GenerationCompletion)
	assert.False(t, cfg.InVideo.CompatibilitySurface)
	assert.Equal(t, "/tmp/videos", cfg.Download.Dir)
	assert.Equal(t, []string{"shorts", "advice"}, cfg.Upload.Tags)

	// untouched sections keep their defaults
	assert.Equal(t, 2*time.Second, cfg.Download.PollInterval)
	assert.Equal(t, 120*time.Second, cfg.InVideo.Timeouts.MFAApproval)
	assert.Equal(t, "access_token", cfg.InVideo.TokenStorageKey)
	assert.True(t, cfg.Secrets.EditorCredentialsSet())
}

func TestLoadMissingDefaultFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.AI.Provider)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg := Default()
	cfg.AI.Provider = "claude"
	cfg.Upload.Privacy = "friends-only"
	cfg.Upload.CategoryID = "99"
	cfg.InVideo.WorkspacePattern = `https://ai\.invideo\.io/workspace/.*`
	cfg.Download.PollInterval = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"ai.provider", "upload.privacy", "upload.category_id", "capture group", "download.poll_interval"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestUploadCheck(t *testing.T) {
	u := Default().Upload
	r := u.Check()
	assert.True(t, r.AllValid)
	assert.Equal(t, 7, r.TagCount)

	u.Tags = make([]string, 31)
	r = u.Check()
	assert.False(t, r.TagCountValid)
	assert.False(t, r.AllValid)
}

func TestLoadPreferredOverrideMovesClickTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
invideo:
  audience:
    name: audience
    preferred: "Young adults"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Young adults", cfg.InVideo.Audience.Preferred)
	assert.Equal(t, "//button[.//div[text()='Young adults']]", cfg.InVideo.PreferredTarget(cfg.InVideo.Audience))
	assert.Equal(t, "//button[.//div[text()='Inspirational']]", cfg.InVideo.PreferredTarget(cfg.InVideo.Style))
}

func TestPreferredTarget(t *testing.T) {
	c := Default().InVideo
	grp := OptionGroupConfig{Name: "style", Preferred: `Bold "and" bright`}
	assert.Equal(t, `//button[.//div[text()='Bold "and" bright']]`, c.PreferredTarget(grp))

	grp.Preferred = "Partner's pick"
	assert.Equal(t, `//button[.//div[text()="Partner's pick"]]`, c.PreferredTarget(grp))

	grp.PreferredXPath = "//button[@data-option=\"Partner's pick\"]"
	assert.Equal(t, grp.PreferredXPath, c.PreferredTarget(grp), "explicit xpath wins")

	assert.Empty(t, c.PreferredTarget(OptionGroupConfig{Name: "audience"}))
	assert.Equal(t, `concat('a', "'", 'b"c')`, XPathLiteral(`a'b"c`))
}

func TestValidateRejectsMismatchedPreferredXPath(t *testing.T) {
	cfg := Default()
	cfg.InVideo.Audience.Preferred = "Young adults"
	cfg.InVideo.Audience.PreferredXPath = "//button[.//div[text()='Married adults']]"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invideo.audience.preferred_xpath")

	cfg.InVideo.Audience.PreferredXPath = "//button[.//span[text()='Young adults']]"
	assert.NoError(t, cfg.Validate())

	cfg.InVideo.Audience.PreferredXPath = ""
	cfg.InVideo.PreferredXPathTemplate = "//button[.//div[text()='Young adults']]"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preferred_xpath_template")
}

func TestValidateCompatibilityURLTemplate(t *testing.T) {
	for name, tc := range map[string]struct {
		tmpl string
		ok   bool
	}{
		"one verb":        {"https://ai.invideo.io/workspace/%s/v30-copilot", true},
		"escaped percent": {"https://ai.invideo.io/workspace/%s/v30-copilot?x=100%%", true},
		"no verb":         {"https://ai.invideo.io/workspace/v30-copilot", false},
		"two verbs":       {"https://ai.invideo.io/workspace/%s/%s", false},
		"other verb":      {"https://ai.invideo.io/workspace/%s/%d", false},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.InVideo.CompatibilityURLTemplate = tc.tmpl
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "compatibility_url_template")
			}
		})
	}

	cfg := Default()
	cfg.InVideo.CompatibilitySurface = false
	cfg.InVideo.CompatibilityURLTemplate = ""
	assert.NoError(t, cfg.Validate(), "unused when the surface is off")
}
