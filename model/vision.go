package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
)

// VisionModel captions an image.
type VisionModel interface {
	Describe(ctx context.Context, img []byte) (string, error)
}

type LLaVA struct {
	client   *resty.Client
	url      string
	model    string
	attempts uint64
	logger   *slog.Logger
}

type LLaVARequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature float32  `json:"temperature"`
	TopP        float32  `json:"top_p"`
	TopK        int      `json:"top_k"`
	MaxTokens   int      `json:"max_tokens"`
	Images      []string `json:"images"`
}

type LLaVAResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

const describePrompt = `You are a document digitization model.

Read the provided image and return its content wrapped in a single
<processed_content> element:

- Put every block of readable text, in reading order, inside <text></text>.
- Put a short description of every figure, chart, photo or diagram inside
  <figure_caption></figure_caption>.

RULES:
- Preserve exact wording, numbers and punctuation of the text.
- Do NOT invent content that is not visible.
- Do NOT add explanations or markdown outside the tags.
`

func NewLLaVA(url, model string, logger *slog.Logger) *LLaVA {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLaVA{
		client:   resty.New().SetTimeout(5 * time.Minute),
		url:      url,
		model:    model,
		attempts: 3,
		logger:   logger,
	}
}

// Describe sends img to the vision model and returns its flattened output.
func (l *LLaVA) Describe(ctx context.Context, img []byte) (string, error) {
	req := LLaVARequest{
		Model:       l.model,
		Prompt:      describePrompt,
		Temperature: 0.05,
		TopP:        0.9,
		TopK:        20,
		MaxTokens:   2048,
		Images:      []string{base64.StdEncoding.EncodeToString(img)},
	}

	start := time.Now()
	var raw string
	err := WithRetry(ctx, l.attempts, func(ctx context.Context) error {
		out, err := l.generate(ctx, req)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return retry.RetryableError(errors.New("empty response"))
		}
		raw = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("vision describe: %w", err)
	}
	l.logger.Debug("vision model answered", "model", l.model, "took", time.Since(start))

	return ParseVisionOutput(raw), nil
}

// generate reads the newline-delimited JSON stream Ollama emits until done.
func (l *LLaVA) generate(ctx context.Context, req LLaVARequest) (string, error) {
	resp, err := l.client.R().
		SetContext(ctx).
		SetBody(req).
		SetDoNotParseResponse(true).
		Post(l.url)
	if err != nil {
		return "", retry.RetryableError(err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(body, 4096))
		herr := fmt.Errorf("status %d: %s", resp.StatusCode(), strings.TrimSpace(string(msg)))
		if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
			return "", retry.RetryableError(herr)
		}
		return "", herr
	}

	decoder := json.NewDecoder(body)
	var b strings.Builder
	for {
		var llavaResp LLaVAResponse
		if err := decoder.Decode(&llavaResp); err == io.EOF {
			break
		} else if err != nil {
			return "", retry.RetryableError(fmt.Errorf("decode response: %w", err))
		}

		b.WriteString(llavaResp.Response)

		if llavaResp.Done {
			break
		}
	}
	return b.String(), nil
}
