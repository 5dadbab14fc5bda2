// Package upload validates rendered videos and publishes them to YouTube.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"shorts-pipeline/config"
	"shorts-pipeline/failure"
)

// DurationProbe measures a video's running time
type DurationProbe func(ctx context.Context, path string) (time.Duration, error)

// Validator runs the local checks that gate every upload. Nothing it does
// touches the network.
type Validator struct {
	cfg        config.UploadConfig
	extensions []string
	probe      DurationProbe
	log        zerolog.Logger
}

// NewValidator accepts files whose extension is in extensions
func NewValidator(cfg config.UploadConfig, extensions []string, log zerolog.Logger) *Validator {
	v := &Validator{
		cfg:        cfg,
		extensions: extensions,
		log:        log.With().Str("component", "upload").Logger(),
	}
	if cfg.ProbeDuration {
		v.probe = FFProbe
	}
	return v
}

// WithProbe replaces the duration probe; nil disables the duration check
func (v *Validator) WithProbe(p DurationProbe) *Validator {
	v.probe = p
	return v
}

// Validate checks the file and the metadata and reports every violation in
// one ValidationError.
func (v *Validator) Validate(ctx context.Context, path, title, description string) error {
	errs := []error{v.ValidateMetadata(title, description)}
	if err := v.ValidateFile(path); err != nil {
		errs = append(errs, err)
	} else if err := v.checkDuration(ctx, path); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return failure.Validation(err)
	}
	return nil
}

// ValidateMetadata enforces the platform's title and description ceilings,
// counted in characters.
func (v *Validator) ValidateMetadata(title, description string) error {
	var errs []error
	switch n := utf8.RuneCountInString(title); {
	case strings.TrimSpace(title) == "":
		errs = append(errs, errors.New("title is empty"))
	case n > v.cfg.TitleMax:
		errs = append(errs, fmt.Errorf("title is %d characters, max %d", n, v.cfg.TitleMax))
	}
	if n := utf8.RuneCountInString(description); n > v.cfg.DescriptionMax {
		errs = append(errs, fmt.Errorf("description is %d characters, max %d", n, v.cfg.DescriptionMax))
	}
	return errors.Join(errs...)
}

// ValidateFile checks existence, extension and size
func (v *Validator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("video file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("video file %s is a directory", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(v.extensions, ext) {
		return fmt.Errorf("unsupported video format %q", ext)
	}
	if info.Size() == 0 {
		return errors.New("video file is empty")
	}
	if v.cfg.MaxFileSize > 0 && info.Size() > v.cfg.MaxFileSize {
		return fmt.Errorf("video file is %d bytes, max %d", info.Size(), v.cfg.MaxFileSize)
	}
	v.log.Debug().Str("file", filepath.Base(path)).Float64("mb", float64(info.Size())/1024/1024).Msg("file checks passed")
	return nil
}

func (v *Validator) checkDuration(ctx context.Context, path string) error {
	if v.probe == nil || v.cfg.MaxDuration <= 0 {
		return nil
	}
	d, err := v.probe(ctx, path)
	if errors.Is(err, exec.ErrNotFound) {
		v.log.Warn().Msg("ffprobe not installed, skipping duration check")
		return nil
	}
	if err != nil {
		return fmt.Errorf("probe duration: %w", err)
	}
	if d > v.cfg.MaxDuration {
		return fmt.Errorf("video runs %s, max %s", d.Round(time.Second), v.cfg.MaxDuration)
	}
	return nil
}

// FFProbe reads the container duration with ffprobe
func FFProbe(ctx context.Context, path string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
