// Package agent talks to the completion model that cleans and summarizes
// chunks.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"chunker/model"
	"chunker/types"
)

var ErrNotConfigured = errors.New("llm url or model not configured")

const (
	cleanSystem     = "You are a helpful editor. Rewrite text to be clean and readable without changing its meaning."
	summarizeSystem = "You are a helpful summarizer. Produce short, faithful summaries."

	cleanPrompt = `Clean up the following text. Fix broken words, stray whitespace,
hyphenation and OCR artifacts. Keep the original language and meaning.
Return the result wrapped in <cleaned_text></cleaned_text> tags and nothing else.

Text:
%s`

	summarizePrompt = `Summarize the following text in a few sentences.
Return the result wrapped in <summary></summary> tags and nothing else.

Text:
%s`
)

type GenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type GenerateResponse struct {
	Response string `json:"response"`
}

// ConfigSource returns the runtime override of the model settings.
type ConfigSource interface {
	GetConfig(ctx context.Context) (*types.LLMConfig, error)
}

type Agent struct {
	client   *resty.Client
	defaults types.LLMConfig
	source   ConfigSource
	attempts uint64
	logger   *slog.Logger
}

// New builds an agent. source may be nil, then defaults are always used.
func New(defaults types.LLMConfig, timeout time.Duration, source ConfigSource, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		client:   resty.New().SetTimeout(timeout),
		defaults: defaults,
		source:   source,
		attempts: 3,
		logger:   logger,
	}
}

// Config merges the stored settings over the defaults; empty stored fields
// keep the default.
func (a *Agent) Config(ctx context.Context) types.LLMConfig {
	cfg := a.defaults
	if a.source == nil {
		return cfg
	}
	stored, err := a.source.GetConfig(ctx)
	if err != nil {
		a.logger.Warn("could not read llm config, using defaults", "error", err)
		return cfg
	}
	if stored == nil {
		return cfg
	}
	if stored.Url != "" {
		cfg.Url = stored.Url
	}
	if stored.Model != "" {
		cfg.Model = stored.Model
	}
	if stored.PromptStr != "" {
		cfg.PromptStr = stored.PromptStr
	}
	return cfg
}

func (a *Agent) Clean(ctx context.Context, text string) (string, error) {
	out, err := a.GenerateAnswer(ctx, cleanSystem, fmt.Sprintf(cleanPrompt, text))
	if err != nil {
		return "", fmt.Errorf("clean: %w", err)
	}
	return extractTagged(out, "cleaned_text"), nil
}

func (a *Agent) Summarize(ctx context.Context, text string) (string, error) {
	out, err := a.GenerateAnswer(ctx, summarizeSystem, fmt.Sprintf(summarizePrompt, text))
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return extractTagged(out, "summary"), nil
}

// GenerateAnswer sends one completion request. A configured prompt string is
// appended to the system prompt.
func (a *Agent) GenerateAnswer(ctx context.Context, system, prompt string) (string, error) {
	cfg := a.Config(ctx)
	if cfg.Url == "" || cfg.Model == "" {
		return "", ErrNotConfigured
	}
	if cfg.PromptStr != "" {
		system = system + "\n" + cfg.PromptStr
	}

	start := time.Now()
	defer func() {
		a.logger.Debug("llm answered", "model", cfg.Model, "took", time.Since(start))
	}()

	var body []byte
	err := model.WithRetry(ctx, a.attempts, func(ctx context.Context) error {
		resp, err := a.client.R().
			SetContext(ctx).
			SetBody(GenerateRequest{Model: cfg.Model, System: system, Prompt: prompt}).
			Post(cfg.Url)
		if err := model.CheckResponse(resp, err); err != nil {
			return err
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return "", err
	}
	return decodeAnswer(body), nil
}

// decodeAnswer accepts a single JSON object or a stream of them.
func decodeAnswer(body []byte) string {
	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err == nil && genResp.Response != "" {
		return genResp.Response
	}

	var b strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var part GenerateResponse
		if err := decoder.Decode(&part); err != nil {
			break
		}
		b.WriteString(part.Response)
	}
	return b.String()
}

// extractTagged returns the trimmed content of the first <tag>...</tag>, or
// the trimmed text itself when the model ignored the format.
func extractTagged(text, tag string) string {
	re := regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(tag) + `>(.*?)</` + regexp.QuoteMeta(tag) + `>`)
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}
