package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given
const DefaultPath = "config.yaml"

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	AI       AIConfig       `yaml:"ai"`
	History  HistoryConfig  `yaml:"history"`
	InVideo  InVideoConfig  `yaml:"invideo"`
	Browser  BrowserConfig  `yaml:"browser"`
	Download DownloadConfig `yaml:"download"`
	Upload   UploadConfig   `yaml:"upload"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Paths    PathsConfig    `yaml:"paths"`
	Log      LogConfig      `yaml:"log"`

	Secrets Secrets `yaml:"-"`
}

type BotConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Username       string  `yaml:"username"`
	AllowedChatIDs []int64 `yaml:"allowed_chat_ids"`
	PollTimeoutSec int     `yaml:"poll_timeout_sec"`
	PublicBaseURL  string  `yaml:"public_base_url"`
}

type AIConfig struct {
	Provider         string        `yaml:"provider"` // openai | gemini | groq
	Model            string        `yaml:"model"`
	MasterPromptPath string        `yaml:"master_prompt_path"`
	Temperature      float64       `yaml:"temperature"`
	MaxTokens        int           `yaml:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout"`
	GroqURL          string        `yaml:"groq_url"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
	Max  int    `yaml:"max"`
}

type InVideoConfig struct {
	LoginURL             string `yaml:"login_url"`
	AppURL               string `yaml:"app_url"`
	SuccessURLPrefix     string `yaml:"success_url_prefix"`
	IdentityProviderHost string `yaml:"identity_provider_host"`
	TokenStorageKey      string `yaml:"token_storage_key"`
	TokenPath            string `yaml:"token_path"`

	CompatibilitySurface     bool   `yaml:"compatibility_surface"`
	WorkspacePattern         string `yaml:"workspace_pattern"`
	CompatibilityURLTemplate string `yaml:"compatibility_url_template"`

	// PreferredXPathTemplate locates a group's preferred option when the group
	// sets no preferred_xpath; %s receives the label as an XPath literal.
	PreferredXPathTemplate string `yaml:"preferred_xpath_template"`

	Selectors      SelectorsConfig   `yaml:"selectors"`
	Audience       OptionGroupConfig `yaml:"audience"`
	Style          OptionGroupConfig `yaml:"style"`
	SelectedProbes []ProbeConfig     `yaml:"selected_probes"`
	Timeouts       InVideoTimeouts   `yaml:"timeouts"`
}

// SelectorsConfig holds XPath (leading "/" or "(") or CSS selectors.
type SelectorsConfig struct {
	AuthIndicator          string `yaml:"auth_indicator"`
	CompatibilityIndicator string `yaml:"compatibility_indicator"`
	GoogleButton           string `yaml:"google_button"`
	EmailInput             string `yaml:"email_input"`
	EmailNext              string `yaml:"email_next"`
	PasswordInput          string `yaml:"password_input"`
	PasswordNext           string `yaml:"password_next"`
	MFAHeading             string `yaml:"mfa_heading"`
	MFADeviceOption        string `yaml:"mfa_device_option"`
	PromptInput            string `yaml:"prompt_input"`
	GenerateButton         string `yaml:"generate_button"`
	SettingsIndicator      string `yaml:"settings_indicator"`
	SettingsContinue       string `yaml:"settings_continue"`
	DownloadButton         string `yaml:"download_button"`
	DownloadMenuItem       string `yaml:"download_menu_item"`
	DownloadDialog         string `yaml:"download_dialog"`
	DownloadDialogSelected string `yaml:"download_dialog_selected"`
	DownloadDialogContinue string `yaml:"download_dialog_continue"`
}

// OptionGroupConfig describes one settings-surface option group.
type OptionGroupConfig struct {
	Name           string `yaml:"name"`
	Preferred      string `yaml:"preferred"`
	PreferredXPath string `yaml:"preferred_xpath"`
	ChoicesXPath   string `yaml:"choices_xpath"`
	SelectedMarker string `yaml:"selected_marker"`
}

// PreferredTarget is the selector clicked for grp's preferred option: its
// own PreferredXPath, else the template filled with Preferred. Empty when the
// group names no preference.
func (c InVideoConfig) PreferredTarget(grp OptionGroupConfig) string {
	if grp.PreferredXPath != "" {
		return grp.PreferredXPath
	}
	if grp.Preferred == "" || c.PreferredXPathTemplate == "" {
		return ""
	}
	return fmt.Sprintf(c.PreferredXPathTemplate, XPathLiteral(grp.Preferred))
}

// XPathLiteral quotes s for use in an XPath 1.0 expression
func XPathLiteral(s string) string {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	}
	return "concat('" + strings.Join(strings.Split(s, "'"), `', "'", '`) + "')"
}

// ProbeConfig is one ranked strategy for reading back a group's selection.
// "{choices}" in Selector expands to the group's ChoicesXPath.
type ProbeConfig struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
}

type InVideoTimeouts struct {
	Interaction          time.Duration `yaml:"interaction"`
	TokenVerify          time.Duration `yaml:"token_verify"`
	LoginButton          time.Duration `yaml:"login_button"`
	MFADetect            time.Duration `yaml:"mfa_detect"`
	MFAApproval          time.Duration `yaml:"mfa_approval"`
	LoginRedirect        time.Duration `yaml:"login_redirect"`
	SettingsSurface      time.Duration `yaml:"settings_surface"`
	GenerationCompletion time.Duration `yaml:"generation_completion"`
	DownloadDialog       time.Duration `yaml:"download_dialog"`
	OptionLookup         time.Duration `yaml:"option_lookup"`
	PopupWait            time.Duration `yaml:"popup_wait"`
	PromptSettle         time.Duration `yaml:"prompt_settle"`
	ClickSettle          time.Duration `yaml:"click_settle"`
}

type BrowserConfig struct {
	Headless        bool          `yaml:"headless"`
	ExecPath        string        `yaml:"exec_path"`
	UserAgent       string        `yaml:"user_agent"`
	WindowWidth     int           `yaml:"window_width"`
	WindowHeight    int           `yaml:"window_height"`
	UserDataDir     string        `yaml:"user_data_dir"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
	TeardownGrace   time.Duration `yaml:"teardown_grace"`
}

type DownloadConfig struct {
	Dir             string        `yaml:"dir"`
	Timeout         time.Duration `yaml:"timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	StableWindow    time.Duration `yaml:"stable_window"`
	Extensions      []string      `yaml:"extensions"`
	PartialSuffixes []string      `yaml:"partial_suffixes"`
}

type UploadConfig struct {
	CategoryID          string        `yaml:"category_id"`
	Language            string        `yaml:"language"`
	Tags                []string      `yaml:"tags"`
	Privacy             string        `yaml:"privacy"`
	MadeForKids         bool          `yaml:"made_for_kids"`
	NotifySubscribers   bool          `yaml:"notify_subscribers"`
	License             string        `yaml:"license"`
	Embeddable          bool          `yaml:"embeddable"`
	PublicStatsViewable bool          `yaml:"public_stats_viewable"`
	Playlist            string        `yaml:"playlist"`
	MaxFileSize         int64         `yaml:"max_file_size"`
	TitleMax            int           `yaml:"title_max"`
	DescriptionMax      int           `yaml:"description_max"`
	ProbeDuration       bool          `yaml:"probe_duration"`
	MaxDuration         time.Duration `yaml:"max_duration"`
	ChunkSize           int           `yaml:"chunk_size"`
}

type OAuthConfig struct {
	RedirectURL string   `yaml:"redirect_url"`
	TokenPath   string   `yaml:"token_path"`
	Scopes      []string `yaml:"scopes"`
}

type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type PipelineConfig struct {
	Workers           int           `yaml:"workers"`
	TaskTTL           time.Duration `yaml:"task_ttl"`
	RetainFailedTasks bool          `yaml:"retain_failed_tasks"`
	DownloadEnabled   bool          `yaml:"download_enabled"`
	UploadEnabled     bool          `yaml:"upload_enabled"`
	RunTimeout        time.Duration `yaml:"run_timeout"`
}

type PathsConfig struct {
	Runs string `yaml:"runs"`
	Logs string `yaml:"logs"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Secrets are read from the environment, never from YAML
type Secrets struct {
	TelegramToken       string
	InVideoUsername     string
	InVideoPassword     string
	OpenAIKey           string
	GeminiKey           string
	GroqKey             string
	YouTubeClientID     string
	YouTubeClientSecret string
	YouTubeRefreshToken string
}

// EditorCredentialsSet reports whether the InVideo login is configured
func (s Secrets) EditorCredentialsSet() bool {
	return s.InVideoUsername != "" && s.InVideoPassword != ""
}

// Load reads config.yaml over the defaults and pulls secrets from the
// environment. A missing file at DefaultPath is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.Secrets = SecretsFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SecretsFromEnv collects credentials from the process environment
func SecretsFromEnv() Secrets {
	return Secrets{
		TelegramToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		InVideoUsername:     os.Getenv("INVIDEO_USERNAME"),
		InVideoPassword:     os.Getenv("INVIDEO_PASSWORD"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		GeminiKey:           os.Getenv("GEMINI_API_KEY"),
		GroqKey:             os.Getenv("GROQ_API_KEY"),
		YouTubeClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeRefreshToken: os.Getenv("YOUTUBE_REFRESH_TOKEN"),
	}
}
