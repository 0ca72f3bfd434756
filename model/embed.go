package model

import (
	"context"
	"log/slog"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache stores vectors per model and text.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, model, text string) ([]float32, bool, error)
	SaveEmbedding(ctx context.Context, model, text string, vec []float32) error
}

// CachedEmbedder looks vectors up in a cache before asking the model.
// Cache failures are logged and never fail the embedding.
type CachedEmbedder struct {
	next   Embedder
	model  string
	cache  EmbeddingCache
	logger *slog.Logger
}

func NewCachedEmbedder(next Embedder, model string, cache EmbeddingCache, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{next: next, model: model, cache: cache, logger: logger}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, ok, err := e.cache.GetEmbedding(ctx, e.model, text)
	if err != nil {
		e.logger.Warn("embedding cache lookup failed", "error", err)
	}
	if ok {
		return vec, nil
	}

	vec, err = e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.SaveEmbedding(ctx, e.model, text, vec); err != nil {
		e.logger.Warn("embedding cache save failed", "error", err)
	}
	return vec, nil
}
