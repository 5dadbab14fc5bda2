package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"shorts-pipeline/config"
	"shorts-pipeline/failure"
	"shorts-pipeline/types"
)

// Uploader is the platform client behind a Publisher
type Uploader interface {
	Upload(ctx context.Context, videoFile string, meta types.VideoMetadata) (videoID string, err error)
}

// Result of a successful publish
type Result struct {
	VideoID          string `json:"video_id"`
	VideoURL         string `json:"video_url"`
	LocalFileDeleted bool   `json:"local_file_deleted"`
}

// Publisher validates, uploads and then removes the local file
type Publisher struct {
	cfg       config.UploadConfig
	validator *Validator
	uploader  Uploader
	logDir    string
	log       zerolog.Logger
}

// NewPublisher wires a publisher. An empty logDir disables upload logs.
func NewPublisher(cfg config.UploadConfig, validator *Validator, uploader Uploader, logDir string, log zerolog.Logger) *Publisher {
	return &Publisher{
		cfg:       cfg,
		validator: validator,
		uploader:  uploader,
		logDir:    logDir,
		log:       log.With().Str("component", "upload").Logger(),
	}
}

// Metadata combines the per-video text with the configured upload settings
func (p *Publisher) Metadata(title, description string) types.VideoMetadata {
	return types.VideoMetadata{
		Title:               title,
		Description:         description,
		Tags:                append([]string(nil), p.cfg.Tags...),
		CategoryID:          p.cfg.CategoryID,
		Privacy:             p.cfg.Privacy,
		Language:            p.cfg.Language,
		License:             p.cfg.License,
		MadeForKids:         p.cfg.MadeForKids,
		Embeddable:          p.cfg.Embeddable,
		PublicStatsViewable: p.cfg.PublicStatsViewable,
		Playlist:            p.cfg.Playlist,
	}
}

// Publish uploads videoFile. Validation failures make no network call;
// upload failures keep the local file for a retry.
func (p *Publisher) Publish(ctx context.Context, videoFile, title, description string) (*Result, error) {
	if err := p.validator.Validate(ctx, videoFile, title, description); err != nil {
		p.log.Error().Err(err).Str("file", videoFile).Msg("upload rejected locally")
		return nil, err
	}

	meta := p.Metadata(title, description)
	id, err := p.uploader.Upload(ctx, videoFile, meta)
	if err != nil {
		p.log.Error().Err(err).Str("file", videoFile).Msg("upload failed, keeping local file")
		return nil, failure.UploadFailed(err)
	}
	res := &Result{VideoID: id, VideoURL: VideoURL(id)}

	if err := os.Remove(videoFile); err != nil {
		p.log.Warn().Err(err).Str("file", videoFile).Msg("could not delete uploaded file")
	} else {
		res.LocalFileDeleted = true
		p.log.Info().Str("file", filepath.Base(videoFile)).Msg("local file deleted")
	}

	if p.logDir != "" {
		if _, err := LogUpload(p.logDir, videoFile, res, meta); err != nil {
			p.log.Warn().Err(err).Msg("could not write upload log")
		}
	}
	return res, nil
}

// LogUpload saves the upload result to the logs directory
func LogUpload(logDir, videoFile string, res *Result, meta types.VideoMetadata) (string, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", err
	}
	entry := map[string]any{
		"video_id":    res.VideoID,
		"video_url":   res.VideoURL,
		"title":       meta.Title,
		"privacy":     meta.Privacy,
		"playlist":    meta.Playlist,
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
		"video_file":  videoFile,
	}
	path := filepath.Join(logDir, fmt.Sprintf("upload_%s_%s.json", time.Now().Format("20060102_150405"), res.VideoID))
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}
