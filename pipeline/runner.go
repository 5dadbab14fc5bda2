// Package pipeline runs one confirmed task end to end: browser session, sign
// in, generation, download and upload. It is the boundary where every error
// becomes a classified failure.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"shorts-pipeline/async"
	"shorts-pipeline/browser"
	"shorts-pipeline/config"
	"shorts-pipeline/download"
	"shorts-pipeline/failure"
	"shorts-pipeline/invideo"
	"shorts-pipeline/metrics"
	"shorts-pipeline/types"
	"shorts-pipeline/upload"
)

// Stage names used when an error carries no step of its own
const (
	StageSession  = "session"
	StageAuth     = "auth"
	StageGenerate = "generate"
	StageDownload = "download"
	StageUpload   = "upload"
)

// Sessions opens one browser per invocation
type Sessions interface {
	WithSession(ctx context.Context, fn func(ctx context.Context, page browser.Page) error) error
}

// Authenticator signs the page in
type Authenticator interface {
	Authenticate(ctx context.Context, page browser.Page) (*invideo.AuthOutcome, error)
}

// Generator drives the editor
type Generator interface {
	Generate(ctx context.Context, page browser.Page, prompt string) (*invideo.GenerationReport, error)
	RequestDownload(ctx context.Context, page browser.Page) (*invideo.DownloadReport, error)
}

// Downloads resolves the downloaded file
type Downloads interface {
	Snapshot() (download.Snapshot, error)
	AwaitNewVideoFile(ctx context.Context, before download.Snapshot, timeout time.Duration) (string, error)
}

// Publisher uploads the file
type Publisher interface {
	Publish(ctx context.Context, videoFile, title, description string) (*upload.Result, error)
}

// TitleRecorder remembers published titles
type TitleRecorder interface {
	Add(title string) error
}

// Deps are the collaborators of a Runner. History and Metrics may be nil.
type Deps struct {
	Sessions  Sessions
	Auth      Authenticator
	Generator Generator
	Downloads Downloads
	Publisher Publisher
	History   TitleRecorder
	Metrics   *metrics.Metrics
}

// Runner executes pipeline invocations
type Runner struct {
	deps            Deps
	cfg             config.PipelineConfig
	downloadTimeout time.Duration
	runsDir         string
	log             zerolog.Logger
}

func NewRunner(deps Deps, cfg config.PipelineConfig, downloadTimeout time.Duration, runsDir string, log zerolog.Logger) *Runner {
	return &Runner{
		deps:            deps,
		cfg:             cfg,
		downloadTimeout: downloadTimeout,
		runsDir:         runsDir,
		log:             log.With().Str("component", "pipeline").Logger(),
	}
}

// Run always returns a result. Err is nil on success and a *failure.Error
// otherwise; the browser is released before Run returns either way.
func (r *Runner) Run(ctx context.Context, task types.TaskRecord) (res *types.PipelineResult) {
	log := r.log.With().Str("task_id", task.TaskID).Logger()
	res = &types.PipelineResult{
		TaskID:    task.TaskID,
		Title:     task.Payload.Title,
		StartedAt: time.Now().UTC(),
	}
	stage := StageSession
	r.deps.Metrics.RunStarted()
	log.Info().Str("title", task.Payload.Title).Msg("🎬 pipeline starting")

	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	var err error
	defer func() {
		res.CompletedAt = time.Now().UTC()
		if err != nil {
			fe := failure.Classify(err, failure.KindInternal, stage, "")
			res.Err = fe
			res.ErrorKind = string(fe.Kind)
			res.FailedStep = fe.Step
			res.Location = fe.Location
			log.Error().Err(fe).Str("kind", res.ErrorKind).Str("step", res.FailedStep).Msg("❌ pipeline failed")
		} else {
			log.Info().Str("video", res.VideoURL).Dur("took", res.Duration()).Msg("✅ pipeline complete")
		}
		r.deps.Metrics.RunFinished(res.Duration(), res.ErrorKind, res.FailedStep)
		r.saveState(task, res)
	}()
	defer async.Recover(log, "pipeline", func(perr error) { err = perr })

	err = r.deps.Sessions.WithSession(ctx, func(ctx context.Context, page browser.Page) error {
		stage = StageAuth
		if _, err := r.deps.Auth.Authenticate(ctx, page); err != nil {
			return err
		}

		stage = StageGenerate
		report, err := r.deps.Generator.Generate(ctx, page, task.Payload.GenerationPrompt)
		if report != nil {
			res.Selections = report.Selections
			for _, s := range report.Selections {
				r.deps.Metrics.OptionSelected(s.Group, s.Outcome)
			}
		}
		if err != nil {
			return err
		}
		if !r.cfg.DownloadEnabled {
			log.Info().Msg("download disabled, stopping after generation")
			return nil
		}

		stage = StageDownload
		before, err := r.deps.Downloads.Snapshot()
		if err != nil {
			return failure.Environment(err)
		}
		if _, err := r.deps.Generator.RequestDownload(ctx, page); err != nil {
			return err
		}
		res.VideoFile, err = r.deps.Downloads.AwaitNewVideoFile(ctx, before, r.downloadTimeout)
		return err
	})
	if err != nil || res.VideoFile == "" {
		return res
	}
	if !r.cfg.UploadEnabled {
		log.Info().Str("file", res.VideoFile).Msg("upload disabled, keeping downloaded file")
		return res
	}

	// the browser is gone by now; uploads never hold a session
	stage = StageUpload
	var up *upload.Result
	up, err = r.deps.Publisher.Publish(ctx, res.VideoFile, task.Payload.Title, task.Payload.PlatformDescription)
	if err != nil {
		return res
	}
	res.VideoID = up.VideoID
	res.VideoURL = up.VideoURL
	res.LocalFileDeleted = up.LocalFileDeleted
	if r.deps.History != nil {
		if herr := r.deps.History.Add(task.Payload.Title); herr != nil {
			log.Warn().Err(herr).Msg("could not record title history")
		}
	}
	return res
}

// saveState writes pipeline_state.json for the run
func (r *Runner) saveState(task types.TaskRecord, res *types.PipelineResult) {
	if r.runsDir == "" {
		return
	}
	payload := task.Payload
	state := &types.PipelineState{
		RunID:       task.TaskID,
		StartedAt:   res.StartedAt.Format(time.RFC3339),
		CompletedAt: res.CompletedAt.Format(time.RFC3339),
		Payload:     &payload,
		Selections:  res.Selections,
		VideoFile:   res.VideoFile,
		YouTubeURL:  res.VideoURL,
		YouTubeID:   res.VideoID,
		FailedStep:  res.FailedStep,
		Location:    res.Location,
		ErrorKind:   res.ErrorKind,
	}
	if res.Err != nil {
		state.Error = res.Err.Error()
	}
	dir := filepath.Join(r.runsDir, task.TaskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.log.Warn().Err(err).Str("dir", dir).Msg("could not create run dir")
		return
	}
	r.saveJSON(filepath.Join(dir, "pipeline_state.json"), state)
}

func (r *Runner) saveJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.log.Warn().Err(err).Msg("could not marshal state")
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("could not save state")
	}
}

// StatePath is where Run writes the state of taskID
func (r *Runner) StatePath(taskID string) string {
	return filepath.Join(r.runsDir, taskID, "pipeline_state.json")
}

// LoadState reads a saved run state
func LoadState(path string) (*types.PipelineState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st types.PipelineState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &st, nil
}
