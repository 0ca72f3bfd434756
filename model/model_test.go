package model

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chunker/logger"
)

func TestParseVisionOutput(t *testing.T) {
	t.Run("Should flatten text and captions", func(t *testing.T) {
		raw := "<processed_content><text>Hello</text><figure_caption>A cat</figure_caption></processed_content>"
		assert.Equal(t, "Hello\n\n[Image: A cat]", ParseVisionOutput(raw))
	})

	t.Run("Should collapse blank runs", func(t *testing.T) {
		raw := "<text>a\n\n\n\nb</text>"
		assert.Equal(t, "a\n\nb", ParseVisionOutput(raw))
	})

	t.Run("Should keep untagged output", func(t *testing.T) {
		assert.Equal(t, "plain answer", ParseVisionOutput("  plain answer \n"))
	})
}

func TestOllamaEmbedder(t *testing.T) {
	t.Run("Should normalize the returned vector", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req OllamaEmbeddingRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "nomic", req.Model)
			assert.Equal(t, "hello", req.Prompt)
			_ = json.NewEncoder(w).Encode(OllamaEmbeddingResponse{Embedding: []float64{3, 4}})
		}))
		defer srv.Close()

		e := NewOllamaEmbedder(srv.URL, "nomic", logger.Discard())
		vec, err := e.Embed(context.Background(), "hello")
		require.NoError(t, err)
		require.Len(t, vec, 2)
		assert.InDelta(t, 0.6, vec[0], 1e-6)
		assert.InDelta(t, 0.8, vec[1], 1e-6)
	})

	t.Run("Should retry server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(OllamaEmbeddingResponse{Embedding: []float64{1}})
		}))
		defer srv.Close()

		e := NewOllamaEmbedder(srv.URL, "m", logger.Discard())
		vec, err := e.Embed(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, vec)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Should not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		e := NewOllamaEmbedder(srv.URL, "m", logger.Discard())
		_, err := e.Embed(context.Background(), "x")
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestNormalize64(t *testing.T) {
	out := normalize64([]float64{1, 2, 2})
	var sum float64
	for _, v := range out {
		sum += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-9)
	assert.Equal(t, []float64{0, 0}, normalize64([]float64{0, 0}))
}

type memCache struct {
	mu    sync.Mutex
	data  map[string][]float32
	fail  bool
	saves int
}

func (c *memCache) GetEmbedding(_ context.Context, model, text string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, false, errors.New("cache down")
	}
	v, ok := c.data[model+"|"+text]
	return v, ok, nil
}

func (c *memCache) SaveEmbedding(_ context.Context, model, text string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	c.saves++
	c.data[model+"|"+text] = vec
	return nil
}

type countingEmbedder struct{ calls int }

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{float32(len(text))}, nil
}

func TestCachedEmbedder(t *testing.T) {
	t.Run("Should serve repeated text from cache", func(t *testing.T) {
		inner := &countingEmbedder{}
		cache := &memCache{data: map[string][]float32{}}
		e := NewCachedEmbedder(inner, "m", cache, logger.Discard())

		for i := 0; i < 3; i++ {
			vec, err := e.Embed(context.Background(), "abc")
			require.NoError(t, err)
			assert.Equal(t, []float32{3}, vec)
		}
		assert.Equal(t, 1, inner.calls)
		assert.Equal(t, 1, cache.saves)
	})

	t.Run("Should fall through when cache fails", func(t *testing.T) {
		inner := &countingEmbedder{}
		e := NewCachedEmbedder(inner, "m", &memCache{fail: true}, logger.Discard())
		vec, err := e.Embed(context.Background(), "ab")
		require.NoError(t, err)
		assert.Equal(t, []float32{2}, vec)
	})
}

func TestLLaVA_Describe(t *testing.T) {
	t.Run("Should join streamed fragments and parse tags", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req LLaVARequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req.Images, 1)
			for _, part := range []string{"<processed_content><text>Hi", " there</text>", "</processed_content>"} {
				_ = json.NewEncoder(w).Encode(LLaVAResponse{Response: part})
			}
			_ = json.NewEncoder(w).Encode(LLaVAResponse{Done: true})
		}))
		defer srv.Close()

		l := NewLLaVA(srv.URL, "llava", logger.Discard())
		out, err := l.Describe(context.Background(), []byte{0x89, 'P', 'N', 'G'})
		require.NoError(t, err)
		assert.Equal(t, "Hi there", out)
	})

	t.Run("Should retry an empty answer", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			answer := "ok"
			if calls.Add(1) == 1 {
				answer = ""
			}
			_ = json.NewEncoder(w).Encode(LLaVAResponse{Response: answer, Done: true})
		}))
		defer srv.Close()

		l := NewLLaVA(srv.URL, "llava", logger.Discard())
		out, err := l.Describe(context.Background(), []byte("img"))
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, int32(2), calls.Load())
	})
}
