package chunking

import (
	"context"
	"fmt"
	"math"
	"strings"

	"chunker/types"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Semantic splits text into sentences and starts a new chunk wherever the
// cosine similarity of two neighbouring sentences drops below threshold.
func Semantic(ctx context.Context, embedder Embedder, text string, threshold float64) ([]types.Chunk, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, len(sentences))
	for i, s := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := embedder.Embed(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("embed sentence %d: %w", i, err)
		}
		embeddings[i] = vec
	}

	if len(embeddings) < 2 {
		return []types.Chunk{{Content: text, OriginalIndex: types.Ptr(0)}}, nil
	}

	var (
		chunks  []types.Chunk
		current = []string{sentences[0]}
		start   = 0
	)
	flush := func() {
		content := strings.Join(current, " ")
		chunks = append(chunks, types.Chunk{Content: content, OriginalIndex: types.Ptr(start)})
		start += len([]rune(content)) + 1
	}
	for i := 0; i < len(embeddings)-1; i++ {
		if Cosine(embeddings[i], embeddings[i+1]) < threshold {
			flush()
			current = []string{sentences[i+1]}
			continue
		}
		current = append(current, sentences[i+1])
	}
	flush()
	return chunks, nil
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range strings.Split(text, ".") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s+".")
		}
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
