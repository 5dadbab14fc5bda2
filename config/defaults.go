package config

import "time"

const chromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// Default returns a fully populated configuration
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Enabled:        true,
			PollTimeoutSec: 60,
			PublicBaseURL:  "http://localhost:8080",
		},
		AI: AIConfig{
			Provider:         "openai",
			Model:            "gpt-4o",
			MasterPromptPath: "prompts/master_prompt.txt",
			Temperature:      0.8,
			MaxTokens:        3500,
			Timeout:          60 * time.Second,
			GroqURL:          "https://api.groq.com/openai/v1/chat/completions",
		},
		History: HistoryConfig{
			Path: "data/recent_tip_titles.json",
			Max:  10,
		},
		InVideo: InVideoConfig{
			LoginURL:             "https://invideo.io/login",
			AppURL:               "https://ai.invideo.io/",
			SuccessURLPrefix:     "https://ai.invideo.io/workspace/",
			IdentityProviderHost: "accounts.google.com",
			TokenStorageKey:      "access_token",
			TokenPath:            "data/invideo_token.txt",

			CompatibilitySurface:     true,
			WorkspacePattern:         `https://ai\.invideo\.io/workspace/([a-f0-9\-]+)/.*`,
			CompatibilityURLTemplate: "https://ai.invideo.io/workspace/%s/v30-copilot",
			PreferredXPathTemplate:   "//button[.//div[text()=%s]]",

			Selectors: SelectorsConfig{
				AuthIndicator:          "//button[.//div[contains(text(),'Upgrade')]] | //div[@data-testid='workspace-sidebar']",
				CompatibilityIndicator: "//textarea",
				GoogleButton:           "//button[.//p[text()='Join with Google']]",
				EmailInput:             "input[type='email']",
				EmailNext:              "#identifierNext button",
				PasswordInput:          "input[type='password']",
				PasswordNext:           "#passwordNext button",
				MFAHeading:             "//h1[contains(., '2-Step Verification') or contains(., '2단계 인증')]",
				MFADeviceOption:        "//div[@data-challengetype='39']",
				PromptInput:            "//textarea",
				GenerateButton:         "//button[.//div[contains(text(),'Generate')]]",
				SettingsIndicator:      "//button[.//div[contains(text(),'Continue')]]",
				SettingsContinue:       "//button[.//div[contains(text(),'Continue')]]",
				DownloadButton:         "//button[contains(.//text(), 'Download')]",
				DownloadMenuItem:       "//div[@role='menuitem'][.//div[contains(text(), 'Download video')]]",
				DownloadDialog:         "//div[@role='dialog'][.//div[contains(text(), 'Download Settings')]]",
				DownloadDialogSelected: "//div[@role='dialog']//button[contains(@class,'selected-true')]",
				DownloadDialogContinue: "//div[@role='dialog']//button[.//div[contains(text(), 'Continue')]]",
			},
			Audience: OptionGroupConfig{
				Name:           "audience",
				Preferred:      "Married adults",
				ChoicesXPath:   "//div[.//div[text()='Audiences']]/following-sibling::div[1]//button",
				SelectedMarker: "selected-true",
			},
			Style: OptionGroupConfig{
				Name:           "style",
				Preferred:      "Inspirational",
				ChoicesXPath:   "//div[.//div[text()='Look and feel']]/following-sibling::div[1]//button",
				SelectedMarker: "selected-true",
			},
			// Strongest signal first: ARIA state, then the editor's own class
			// marker, then generic "active" styling.
			SelectedProbes: []ProbeConfig{
				{Name: "aria-pressed", Selector: "{choices}[@aria-pressed='true']"},
				{Name: "aria-checked", Selector: "{choices}[@aria-checked='true']"},
				{Name: "class-selected", Selector: "{choices}[contains(@class,'selected-true')]"},
				{Name: "class-active", Selector: "{choices}[contains(@class,'active')]"},
			},
			Timeouts: InVideoTimeouts{
				Interaction:          45 * time.Second,
				TokenVerify:          15 * time.Second,
				LoginButton:          20 * time.Second,
				MFADetect:            10 * time.Second,
				MFAApproval:          120 * time.Second,
				LoginRedirect:        60 * time.Second,
				SettingsSurface:      120 * time.Second,
				GenerationCompletion: 20 * time.Minute,
				DownloadDialog:       45 * time.Second,
				OptionLookup:         5 * time.Second,
				PopupWait:            5 * time.Second,
				PromptSettle:         2 * time.Second,
				ClickSettle:          500 * time.Millisecond,
			},
		},
		Browser: BrowserConfig{
			Headless:        false,
			UserAgent:       chromeUserAgent,
			WindowWidth:     1920,
			WindowHeight:    1080,
			PageLoadTimeout: 60 * time.Second,
			TeardownGrace:   5 * time.Second,
		},
		Download: DownloadConfig{
			Dir:             "downloads",
			Timeout:         5 * time.Minute,
			PollInterval:    2 * time.Second,
			StableWindow:    2 * time.Second,
			Extensions:      []string{".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".mkv"},
			PartialSuffixes: []string{".crdownload", ".part", ".tmp"},
		},
		Upload: UploadConfig{
			CategoryID:          "22",
			Language:            "en",
			Tags:                []string{"shorts", "marriage", "relationships", "advice", "couples", "intimacy", "communication"},
			Privacy:             "private",
			MadeForKids:         false,
			NotifySubscribers:   true,
			License:             "youtube",
			Embeddable:          true,
			PublicStatsViewable: true,
			Playlist:            "Sexless Marriage Advice",
			MaxFileSize:         128 << 30,
			TitleMax:            100,
			DescriptionMax:      5000,
			MaxDuration:         3 * time.Minute,
			ChunkSize:           8 << 20,
		},
		OAuth: OAuthConfig{
			RedirectURL: "http://localhost:8080/api/youtube/oauth/callback",
			TokenPath:   "data/youtube_token.json",
			Scopes: []string{
				"https://www.googleapis.com/auth/youtube.upload",
				"https://www.googleapis.com/auth/youtube",
			},
		},
		Server: ServerConfig{
			Enabled:         true,
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:         2,
			TaskTTL:         24 * time.Hour,
			DownloadEnabled: true,
			UploadEnabled:   true,
			RunTimeout:      45 * time.Minute,
		},
		Paths: PathsConfig{
			Runs: "output/runs",
			Logs: "logs",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}
