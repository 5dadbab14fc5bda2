// Package script asks an LLM for the next daily tip: title, narration, the
// editor prompt and the YouTube description.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

// Placeholder in the master prompt that receives the avoid-list
const Placeholder = "[INSERT_PREVIOUS_TIPS_HERE]"

const noHistory = "No previous tips have been generated recently. Feel free to generate any relevant tip.\n"

// Backend is one LLM provider
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// TitleSource supplies recently used titles
type TitleSource interface {
	Titles() []string
}

// Writer composes the prompt and turns the completion into a payload
type Writer struct {
	backend    Backend
	promptPath string
	history    TitleSource
	timeout    time.Duration
	log        zerolog.Logger
}

// New creates a Writer for the configured provider
func New(cfg config.AIConfig, secrets config.Secrets, history TitleSource, log zerolog.Logger) (*Writer, error) {
	var b Backend
	switch cfg.Provider {
	case "openai":
		if secrets.OpenAIKey == "" {
			return nil, errors.New("OPENAI_API_KEY not set")
		}
		b = NewOpenAI(cfg, secrets.OpenAIKey)
	case "gemini":
		if secrets.GeminiKey == "" {
			return nil, errors.New("GEMINI_API_KEY not set")
		}
		b = NewGemini(cfg, secrets.GeminiKey)
	case "groq":
		if secrets.GroqKey == "" {
			return nil, errors.New("GROQ_API_KEY not set")
		}
		b = NewGroq(cfg, secrets.GroqKey)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	return NewWithBackend(b, cfg, history, log), nil
}

// NewWithBackend creates a Writer around an existing backend
func NewWithBackend(b Backend, cfg config.AIConfig, history TitleSource, log zerolog.Logger) *Writer {
	return &Writer{
		backend:    b,
		promptPath: cfg.MasterPromptPath,
		history:    history,
		timeout:    cfg.Timeout,
		log:        log.With().Str("component", "script").Str("provider", b.Name()).Logger(),
	}
}

// Generate returns the next payload. On failure it returns an error-shaped
// payload together with the error so callers that only look at the payload
// still cannot mistake it for content.
func (w *Writer) Generate(ctx context.Context) (types.ContentPayload, error) {
	master, err := os.ReadFile(w.promptPath)
	if err != nil || strings.TrimSpace(string(master)) == "" {
		if err == nil {
			err = errors.New("master prompt is empty")
		}
		w.log.Error().Err(err).Str("path", w.promptPath).Msg("master prompt could not be loaded")
		return types.ErrorPayload("Master prompt issue."), fmt.Errorf("load master prompt: %w", err)
	}

	var avoid []string
	if w.history != nil {
		avoid = w.history.Titles()
	}
	prompt := BuildPrompt(string(master), avoid)
	w.log.Info().Int("avoid", len(avoid)).Msg("generating tip")

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	start := time.Now()
	raw, err := w.backend.Complete(ctx, prompt)
	if err != nil {
		w.log.Error().Err(err).Msg("completion failed")
		return types.ErrorPayload("AI API call failed."), fmt.Errorf("%s completion: %w", w.backend.Name(), err)
	}
	if strings.TrimSpace(raw) == "" {
		return types.ErrorPayload("Empty response from the AI."), fmt.Errorf("%s returned an empty response", w.backend.Name())
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		w.log.Error().Err(err).Str("raw", truncate(raw, 200)).Msg("response is not a payload")
		return types.ErrorPayload("JSON Parsing Failed."), err
	}
	if reason, bad := payload.ErrorSignal(); bad {
		w.log.Warn().Str("reason", reason).Msg("model returned an error-shaped payload")
		return payload, fmt.Errorf("model reported an error: %s", reason)
	}
	w.log.Info().Str("title", payload.Title).Dur("took", time.Since(start)).Msg("✅ tip ready")
	return payload, nil
}

// BuildPrompt puts the avoid-list into master at the placeholder, or in
// front of it when the placeholder is missing.
func BuildPrompt(master string, avoid []string) string {
	block := noHistory
	if len(avoid) > 0 {
		var sb strings.Builder
		sb.WriteString("IMPORTANT: Avoid generating tips that are substantively similar in topic or advice to the following recently generated tips. Focus on providing fresh, distinct advice each time.\n")
		sb.WriteString("Recently generated tip titles (for your reference to avoid duplication):\n")
		for _, t := range avoid {
			sb.WriteString("- " + t + "\n")
		}
		sb.WriteString("(If this list is empty or short, it means fewer tips were generated recently or they were not persisted.)\n")
		block = sb.String()
	}
	if strings.Contains(master, Placeholder) {
		return strings.ReplaceAll(master, Placeholder, block)
	}
	return block + "\n" + master
}

// ParsePayload decodes the model's JSON answer
func ParsePayload(raw string) (types.ContentPayload, error) {
	var p types.ContentPayload
	content := cleanJSON(raw)
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return p, fmt.Errorf("parse payload JSON: %w", err)
	}
	return p, nil
}

// cleanJSON strips markdown fences and anything around the outer object
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndex(s, "}"); j >= 0 && j < len(s)-1 {
		s = s[:j+1]
	}
	return s
}

// truncate keeps at most n runes of s
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
