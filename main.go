package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"shorts-pipeline/browser"
	"shorts-pipeline/config"
	"shorts-pipeline/download"
	"shorts-pipeline/history"
	"shorts-pipeline/invideo"
	"shorts-pipeline/logging"
	"shorts-pipeline/metrics"
	"shorts-pipeline/pipeline"
	"shorts-pipeline/script"
	"shorts-pipeline/session"
	"shorts-pipeline/upload"
	"shorts-pipeline/ytauth"
)

func main() {
	// Load .env (local dev only, deployments inject the environment)
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

// app holds the wired components shared by the commands
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	history   *history.Store
	oauth     *ytauth.Manager
	uploader  *upload.YouTubeUploader
	publisher *upload.Publisher
	runner    *pipeline.Runner
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log)

	// Ensure required dirs exist
	for _, dir := range []string{cfg.Paths.Runs, cfg.Paths.Logs, cfg.Download.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNew(reg)

	store := session.NewTokenStore(cfg.InVideo.TokenPath, log)
	auth, err := invideo.NewAuthenticator(cfg.InVideo, invideo.Credentials{
		Username: cfg.Secrets.InVideoUsername,
		Password: cfg.Secrets.InVideoPassword,
	}, store, log)
	if err != nil {
		return nil, err
	}
	watcher := download.NewWatcher(cfg.Download, log)
	launcher := browser.NewChromeLauncher(cfg.Browser, watcher.Dir(), log)

	oauth := ytauth.NewManager(cfg.OAuth, cfg.Secrets, log)
	validator := upload.NewValidator(cfg.Upload, cfg.Download.Extensions, log)
	uploader := upload.NewYouTubeUploader(cfg.Upload, oauth, log)
	publisher := upload.NewPublisher(cfg.Upload, validator, uploader, cfg.Paths.Logs, log)
	hist := history.Open(cfg.History.Path, cfg.History.Max, log)

	runner := pipeline.NewRunner(pipeline.Deps{
		Sessions:  browser.NewManager(launcher, cfg.Browser.TeardownGrace, log),
		Auth:      auth,
		Generator: invideo.NewGenerator(cfg.InVideo, log),
		Downloads: watcher,
		Publisher: publisher,
		History:   hist,
		Metrics:   m,
	}, cfg.Pipeline, cfg.Download.Timeout, cfg.Paths.Runs, log)

	return &app{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		metrics:   m,
		history:   hist,
		oauth:     oauth,
		uploader:  uploader,
		publisher: publisher,
		runner:    runner,
	}, nil
}

// writer builds the AI collaborator; only commands that generate need a key
func (a *app) writer() (*script.Writer, error) {
	return script.New(a.cfg.AI, a.cfg.Secrets, a.history, a.log)
}
