package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Categories maps YouTube category ids to their names
var Categories = map[string]string{
	"1":  "Film & Animation",
	"2":  "Autos & Vehicles",
	"10": "Music",
	"15": "Pets & Animals",
	"17": "Sports",
	"19": "Travel & Events",
	"20": "Gaming",
	"22": "People & Blogs",
	"23": "Comedy",
	"24": "Entertainment",
	"25": "News & Politics",
	"26": "Howto & Style",
	"27": "Education",
	"28": "Science & Technology",
}

const (
	maxDefaultTags     = 30
	maxPlaylistNameLen = 150
)

// ValidPrivacy reports whether p is a YouTube privacy status
func ValidPrivacy(p string) bool {
	switch strings.ToLower(p) {
	case "private", "public", "unlisted":
		return true
	}
	return false
}

// SettingsReport is the upload-settings check served over HTTP
type SettingsReport struct {
	CategoryIDValid   bool `json:"category_id_valid"`
	PrivacyValid      bool `json:"privacy_status_valid"`
	TagCount          int  `json:"tag_count"`
	TagCountValid     bool `json:"tag_count_valid"`
	PlaylistNameValid bool `json:"playlist_name_valid"`
	AllValid          bool `json:"all_settings_valid"`
}

// Check evaluates the upload settings without failing
func (u UploadConfig) Check() SettingsReport {
	_, cat := Categories[u.CategoryID]
	n := utf8.RuneCountInString(u.Playlist)
	r := SettingsReport{
		CategoryIDValid:   cat,
		PrivacyValid:      ValidPrivacy(u.Privacy),
		TagCount:          len(u.Tags),
		TagCountValid:     len(u.Tags) <= maxDefaultTags,
		PlaylistNameValid: u.Playlist == "" || n <= maxPlaylistNameLen,
	}
	r.AllValid = r.CategoryIDValid && r.PrivacyValid && r.TagCountValid && r.PlaylistNameValid
	return r
}

// singleStringVerb reports whether tpl formats exactly one string argument
func singleStringVerb(tpl string) bool {
	tpl = strings.ReplaceAll(tpl, "%%", "")
	return strings.Count(tpl, "%") == 1 && strings.Count(tpl, "%s") == 1
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.AI.Provider {
	case "openai", "gemini", "groq":
	default:
		errs = append(errs, fmt.Errorf("ai.provider %q: want openai, gemini or groq", c.AI.Provider))
	}

	if r := c.Upload.Check(); !r.AllValid {
		if !r.CategoryIDValid {
			errs = append(errs, fmt.Errorf("upload.category_id %q is not a YouTube category", c.Upload.CategoryID))
		}
		if !r.PrivacyValid {
			errs = append(errs, fmt.Errorf("upload.privacy %q: want private, public or unlisted", c.Upload.Privacy))
		}
		if !r.TagCountValid {
			errs = append(errs, fmt.Errorf("upload.tags: %d tags, at most %d", r.TagCount, maxDefaultTags))
		}
		if !r.PlaylistNameValid {
			errs = append(errs, fmt.Errorf("upload.playlist longer than %d characters", maxPlaylistNameLen))
		}
	}

	if c.InVideo.CompatibilitySurface {
		re, err := regexp.Compile(c.InVideo.WorkspacePattern)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("invideo.workspace_pattern: %w", err))
		case re.NumSubexp() < 1:
			errs = append(errs, errors.New("invideo.workspace_pattern needs a capture group for the workspace id"))
		}
		if !singleStringVerb(c.InVideo.CompatibilityURLTemplate) {
			errs = append(errs, errors.New("invideo.compatibility_url_template needs exactly one %s verb and no other verbs"))
		}
	}

	for _, g := range []struct {
		key string
		grp OptionGroupConfig
	}{{"invideo.audience", c.InVideo.Audience}, {"invideo.style", c.InVideo.Style}} {
		switch {
		case g.grp.Preferred == "":
		case g.grp.PreferredXPath != "":
			if !strings.Contains(g.grp.PreferredXPath, XPathLiteral(g.grp.Preferred)) {
				errs = append(errs, fmt.Errorf("%s.preferred_xpath does not target preferred %q", g.key, g.grp.Preferred))
			}
		case !singleStringVerb(c.InVideo.PreferredXPathTemplate):
			errs = append(errs, fmt.Errorf("%s.preferred needs invideo.preferred_xpath_template with exactly one %%s verb", g.key))
		}
	}

	t := c.InVideo.Timeouts
	for name, d := range map[string]int64{
		"invideo.timeouts.interaction":           int64(t.Interaction),
		"invideo.timeouts.token_verify":          int64(t.TokenVerify),
		"invideo.timeouts.mfa_approval":          int64(t.MFAApproval),
		"invideo.timeouts.settings_surface":      int64(t.SettingsSurface),
		"invideo.timeouts.generation_completion": int64(t.GenerationCompletion),
		"download.timeout":                       int64(c.Download.Timeout),
		"download.poll_interval":                 int64(c.Download.PollInterval),
		"download.stable_window":                 int64(c.Download.StableWindow),
		"browser.page_load_timeout":              int64(c.Browser.PageLoadTimeout),
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.Pipeline.Workers < 1 {
		errs = append(errs, errors.New("pipeline.workers must be at least 1"))
	}
	if c.History.Max < 1 {
		errs = append(errs, errors.New("history.max must be at least 1"))
	}
	if c.Upload.TitleMax < 1 || c.Upload.DescriptionMax < 0 {
		errs = append(errs, errors.New("upload.title_max and upload.description_max must be positive"))
	}

	return errors.Join(errs...)
}
