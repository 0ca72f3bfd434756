// Package chunking splits text into chunks and runs the optional per-chunk
// processing (clean, summarize, token count).
package chunking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chunker/types"
)

var ErrProcessorUnavailable = errors.New("text processor not configured")

// Processor rewrites text through a language model.
type Processor interface {
	Clean(ctx context.Context, text string) (string, error)
	Summarize(ctx context.Context, text string) (string, error)
}

// Emit receives stream events in order. Returning an error stops the run.
type Emit func(types.StreamEvent) error

type Chunker struct {
	embedder  Embedder
	processor Processor
	tokens    *TokenCounter
	logger    *slog.Logger
}

// New wires a chunker. Any dependency may be nil: semantic splitting falls
// back to fixed size, processing options are rejected, token counts are
// left absent.
func New(embedder Embedder, processor Processor, tokens *TokenCounter, logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{
		embedder:  embedder,
		processor: processor,
		tokens:    tokens,
		logger:    logger,
	}
}

// Split applies the requested method to text.
func (c *Chunker) Split(ctx context.Context, text string, opts types.ChunkingOptions) ([]types.Chunk, error) {
	switch opts.Method {
	case types.MethodSemantic:
		if c.embedder == nil {
			c.logger.Warn("semantic chunker not available, falling back to fixed size")
			return FixedSize(text, opts.ChunkSize, opts.ChunkOverlap), nil
		}
		threshold := types.DefaultSemanticThreshold
		if opts.SemanticThreshold != nil {
			threshold = *opts.SemanticThreshold
		}
		return Semantic(ctx, c.embedder, text, threshold)
	case types.MethodRecursive:
		return Recursive(text, opts.ChunkSize, opts.ChunkOverlap, opts.Separators)
	default:
		return FixedSize(text, opts.ChunkSize, opts.ChunkOverlap), nil
	}
}

// Process splits and processes req in one go.
func (c *Chunker) Process(ctx context.Context, req types.ProcessRequest) (types.ProcessResponse, error) {
	var chunks []types.Chunk
	err := c.Stream(ctx, req, func(ev types.StreamEvent) error {
		if ev.Type == types.EventChunk && ev.Chunk != nil {
			chunks = append(chunks, *ev.Chunk)
		}
		return nil
	})
	if err != nil {
		return types.ProcessResponse{}, err
	}
	if chunks == nil {
		chunks = []types.Chunk{}
	}
	return types.ProcessResponse{Chunks: chunks, TotalChunks: len(chunks)}, nil
}

// Stream splits req, reports the total, then emits each chunk as soon as it
// has been processed.
func (c *Chunker) Stream(ctx context.Context, req types.ProcessRequest, emit Emit) error {
	start := time.Now()
	req.ApplyDefaults()

	popts := req.ProcessingOptions
	if (popts.CleanText || popts.GenerateSummary) && c.processor == nil {
		return ErrProcessorUnavailable
	}

	chunks, err := c.Split(ctx, req.Text, req.ChunkingOptions)
	if err != nil {
		return err
	}
	total := len(chunks)
	c.logger.Info("text split", "method", req.ChunkingOptions.Method, "chunks", total)

	if err := emit(types.NewProgressEvent(0, total)); err != nil {
		return err
	}

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if popts.CleanText {
			if chunk, err = c.clean(ctx, chunk); err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
		}
		if popts.GenerateSummary {
			if chunk, err = c.summarize(ctx, chunk); err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
		}
		chunk.TokenCount = c.tokens.Count(chunk.Content)

		if err := emit(types.NewChunkEvent(chunk, i+1, total)); err != nil {
			return err
		}
	}

	c.logger.Info("processing finished", "chunks", total, "took", time.Since(start))
	return nil
}

// ProcessChunk applies one enrichment action to chunk.
func (c *Chunker) ProcessChunk(ctx context.Context, chunk types.Chunk, action types.EnrichAction) (types.Chunk, error) {
	if c.processor == nil {
		return types.Chunk{}, ErrProcessorUnavailable
	}
	switch action {
	case types.ActionClean:
		out, err := c.clean(ctx, chunk)
		if err != nil {
			return types.Chunk{}, err
		}
		out.TokenCount = c.tokens.Count(out.Content)
		if out.TokenCount == nil {
			out.TokenCount = chunk.TokenCount
		}
		return out, nil
	case types.ActionSummarize:
		return c.summarize(ctx, chunk)
	}
	return types.Chunk{}, fmt.Errorf("invalid action: %q", action)
}

func (c *Chunker) clean(ctx context.Context, chunk types.Chunk) (types.Chunk, error) {
	text, err := c.processor.Clean(ctx, chunk.Content)
	if err != nil {
		return types.Chunk{}, fmt.Errorf("clean: %w", err)
	}
	out := chunk.Clone()
	out.Content = text
	return out, nil
}

func (c *Chunker) summarize(ctx context.Context, chunk types.Chunk) (types.Chunk, error) {
	summary, err := c.processor.Summarize(ctx, chunk.Content)
	if err != nil {
		return types.Chunk{}, fmt.Errorf("summarize: %w", err)
	}
	out := chunk.Clone()
	out.Summary = &summary
	return out, nil
}
