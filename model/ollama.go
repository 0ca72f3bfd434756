package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
)

// OllamaEmbedder calls the Ollama embeddings endpoint.
type OllamaEmbedder struct {
	client   *resty.Client
	apiURL   string
	model    string
	attempts uint64
	logger   *slog.Logger
}

type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(apiURL, model string, logger *slog.Logger) *OllamaEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("using Ollama for embeddings", "model", model)
	return &OllamaEmbedder{
		client:   resty.New().SetTimeout(30 * time.Second),
		apiURL:   apiURL,
		model:    model,
		attempts: 3,
		logger:   logger,
	}
}

func (e *OllamaEmbedder) Model() string {
	return e.model
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out OllamaEmbeddingResponse
	err := WithRetry(ctx, e.attempts, func(ctx context.Context) error {
		resp, err := e.client.R().
			SetContext(ctx).
			SetBody(OllamaEmbeddingRequest{Model: e.model, Prompt: text}).
			SetResult(&out).
			Post(e.apiURL)
		return CheckResponse(resp, err)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("ollama embedding: empty vector")
	}

	norm := normalize64(out.Embedding)
	embedding := make([]float32, len(norm))
	for i, v := range norm {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// normalize64 scales vec to unit length in place.
func normalize64(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}
