package script_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/config"
	"shorts-pipeline/script"
	"shorts-pipeline/types"
)

const goodJSON = `{
  "daily_tip_title": "Listen before you fix",
  "daily_tip_script": "Tonight, just listen.",
  "invideo_ai_prompt": "Create a 45 second vertical short about listening",
  "youtube_short_description": "One habit that changes everything #shorts"
}`

type fakeBackend struct {
	out     string
	err     error
	prompts []string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

type titles []string

func (t titles) Titles() []string { return t }

func aiConfig(t *testing.T, master string) config.AIConfig {
	t.Helper()
	cfg := config.Default().AI
	cfg.MasterPromptPath = filepath.Join(t.TempDir(), "master_prompt.txt")
	if master != "" {
		require.NoError(t, os.WriteFile(cfg.MasterPromptPath, []byte(master), 0o644))
	}
	return cfg
}

func TestBuildPrompt(t *testing.T) {
	got := script.BuildPrompt("Rules.\n"+script.Placeholder+"\nAnswer in JSON.", []string{"A", "B"})
	assert.Contains(t, got, "- A\n- B\n")
	assert.NotContains(t, got, script.Placeholder)
	assert.True(t, strings.HasPrefix(got, "Rules.\nIMPORTANT"))

	got = script.BuildPrompt("No placeholder here.", nil)
	assert.True(t, strings.HasPrefix(got, "No previous tips have been generated recently."))
	assert.True(t, strings.HasSuffix(got, "No placeholder here."))
}

func TestParsePayloadStripsFences(t *testing.T) {
	p, err := script.ParsePayload("Sure! ```json\n" + goodJSON + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Listen before you fix", p.Title)
	assert.Equal(t, "Create a 45 second vertical short about listening", p.GenerationPrompt)
}

func TestGenerate(t *testing.T) {
	cfg := aiConfig(t, "Write a tip.\n"+script.Placeholder)
	b := &fakeBackend{out: goodJSON}
	w := script.NewWithBackend(b, cfg, titles{"Old tip"}, zerolog.Nop())

	p, err := w.Generate(context.Background())
	require.NoError(t, err)
	_, bad := p.ErrorSignal()
	assert.False(t, bad)
	require.Len(t, b.prompts, 1)
	assert.Contains(t, b.prompts[0], "- Old tip")
}

func TestGenerateFailuresAreErrorShaped(t *testing.T) {
	cases := map[string]struct {
		master  string
		backend *fakeBackend
	}{
		"missing master prompt": {"", &fakeBackend{out: goodJSON}},
		"transport error":       {"prompt", &fakeBackend{err: errors.New("connection reset")}},
		"empty response":        {"prompt", &fakeBackend{out: "  "}},
		"not json":              {"prompt", &fakeBackend{out: "I cannot help with that"}},
		"model says error":      {"prompt", &fakeBackend{out: `{"daily_tip_title":"Error","invideo_ai_prompt":"Error: quota"}`}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := script.NewWithBackend(tc.backend, aiConfig(t, tc.master), nil, zerolog.Nop())
			p, err := w.Generate(context.Background())
			assert.Error(t, err)
			_, bad := p.ErrorSignal()
			assert.True(t, bad)
		})
	}
}

func TestGroqBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, 0.8, req["temperature"])
		content, _ := json.Marshal(goodJSON)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":`+string(content)+`}}]}`)
	}))
	defer srv.Close()

	cfg := config.Default().AI
	cfg.GroqURL = srv.URL
	out, err := script.NewGroq(cfg, "gsk-test").Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.JSONEq(t, goodJSON, out)
}

func TestGroqBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	cfg := config.Default().AI
	cfg.GroqURL = srv.URL
	_, err := script.NewGroq(cfg, "k").Complete(context.Background(), "prompt")
	assert.ErrorContains(t, err, "rate limited")
}

func TestOpenAIBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "gpt-4o", req["model"])
		content, _ := json.Marshal(goodJSON)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":`+string(content)+`}}]}`)
	}))
	defer srv.Close()

	b := script.NewOpenAI(config.Default().AI, "sk-test", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	out, err := b.Complete(context.Background(), "prompt")
	require.NoError(t, err)

	p, err := script.ParsePayload(out)
	require.NoError(t, err)
	assert.Equal(t, types.ContentPayload{
		Title:               "Listen before you fix",
		Script:              "Tonight, just listen.",
		GenerationPrompt:    "Create a 45 second vertical short about listening",
		PlatformDescription: "One habit that changes everything #shorts",
	}, p)
}

func TestNewRequiresProviderKey(t *testing.T) {
	cfg := config.Default().AI
	_, err := script.New(cfg, config.Secrets{}, nil, zerolog.Nop())
	assert.Error(t, err)

	cfg.Provider = "groq"
	w, err := script.New(cfg, config.Secrets{GroqKey: "k"}, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, w)
}
