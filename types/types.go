package types

import (
	"strings"
	"time"
)

// ErrorPrefix marks a payload field produced by a failed generation.
const ErrorPrefix = "Error"

// ContentPayload holds one AI-generated tip ready for video creation
type ContentPayload struct {
	Title               string `json:"daily_tip_title"`
	Script              string `json:"daily_tip_script"`
	GenerationPrompt    string `json:"invideo_ai_prompt"`
	PlatformDescription string `json:"youtube_short_description"`
}

// ErrorSignal reports whether any field is error-shaped and, if so, the first
// such field's text.
func (p ContentPayload) ErrorSignal() (string, bool) {
	for _, f := range []string{p.GenerationPrompt, p.Title, p.PlatformDescription} {
		f = strings.TrimSpace(f)
		if f == ErrorPrefix || strings.HasPrefix(f, ErrorPrefix+":") {
			return f, true
		}
	}
	if strings.TrimSpace(p.GenerationPrompt) == "" {
		return "empty generation prompt", true
	}
	return "", false
}

// ErrorPayload builds the error-shaped payload for a failed generation.
func ErrorPayload(reason string) ContentPayload {
	return ContentPayload{
		Title:               ErrorPrefix,
		Script:              reason,
		GenerationPrompt:    ErrorPrefix + ": " + reason,
		PlatformDescription: ErrorPrefix + ": " + reason,
	}
}

// TaskRecord is one pending payload awaiting confirmation
type TaskRecord struct {
	TaskID    string         `json:"task_id"`
	Payload   ContentPayload `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Selection records how one settings option group was resolved
type Selection struct {
	Group         string `json:"group"`
	Outcome       string `json:"outcome"`
	Label         string `json:"label,omitempty"`
	Observed      string `json:"observed,omitempty"`
	ObservedLabel string `json:"observed_label,omitempty"`
	ObservedBy    string `json:"observed_by,omitempty"`
}

// PipelineResult is the terminal outcome of one pipeline invocation
type PipelineResult struct {
	TaskID           string      `json:"task_id"`
	Title            string      `json:"title"`
	VideoFile        string      `json:"video_file,omitempty"`
	VideoID          string      `json:"video_id,omitempty"`
	VideoURL         string      `json:"video_url,omitempty"`
	LocalFileDeleted bool        `json:"local_file_deleted"`
	Selections       []Selection `json:"selections,omitempty"`
	FailedStep       string      `json:"failed_step,omitempty"`
	Location         string      `json:"location,omitempty"`
	ErrorKind        string      `json:"error_kind,omitempty"`
	Err              error       `json:"-"`
	StartedAt        time.Time   `json:"started_at"`
	CompletedAt      time.Time   `json:"completed_at"`
}

// Succeeded is true when the run reached its last enabled stage
func (r *PipelineResult) Succeeded() bool {
	return r != nil && r.Err == nil
}

// Duration of the run
func (r *PipelineResult) Duration() time.Duration {
	if r == nil || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// VideoMetadata holds all YouTube upload metadata
type VideoMetadata struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Tags                []string `json:"tags"`
	CategoryID          string   `json:"category_id"`
	Privacy             string   `json:"privacy"`
	Language            string   `json:"language"`
	License             string   `json:"license"`
	MadeForKids         bool     `json:"made_for_kids"`
	Embeddable          bool     `json:"embeddable"`
	PublicStatsViewable bool     `json:"public_stats_viewable"`
	Playlist            string   `json:"playlist,omitempty"`
}

// PipelineState tracks the full state of one pipeline run
type PipelineState struct {
	RunID       string          `json:"run_id"`
	StartedAt   string          `json:"started_at"`
	CompletedAt string          `json:"completed_at"`
	Payload     *ContentPayload `json:"payload"`
	Selections  []Selection     `json:"selections,omitempty"`
	VideoFile   string          `json:"video_file"`
	YouTubeURL  string          `json:"youtube_url"`
	YouTubeID   string          `json:"youtube_id"`
	FailedStep  string          `json:"failed_step,omitempty"`
	Location    string          `json:"location,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	Error       string          `json:"error,omitempty"`
}
