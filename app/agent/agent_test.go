package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chunker/logger"
	"chunker/types"
)

type staticSource struct {
	cfg *types.LLMConfig
	err error
}

func (s staticSource) GetConfig(context.Context) (*types.LLMConfig, error) {
	return s.cfg, s.err
}

func llmServer(t *testing.T, answer func(GenerateRequest) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(GenerateResponse{Response: answer(req)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractTagged(t *testing.T) {
	t.Run("Should return tagged content", func(t *testing.T) {
		assert.Equal(t, "clean", extractTagged("noise <cleaned_text>\n clean \n</cleaned_text> tail", "cleaned_text"))
	})

	t.Run("Should fall back to raw text", func(t *testing.T) {
		assert.Equal(t, "just text", extractTagged("  just text ", "summary"))
	})
}

func TestDecodeAnswer(t *testing.T) {
	assert.Equal(t, "whole", decodeAnswer([]byte(`{"response":"whole"}`)))
	assert.Equal(t, "ab", decodeAnswer([]byte("{\"response\":\"a\"}\n{\"response\":\"b\"}\n")))
}

func TestAgent(t *testing.T) {
	t.Run("Should clean using the editor prompt", func(t *testing.T) {
		srv := llmServer(t, func(req GenerateRequest) string {
			assert.Equal(t, "llama", req.Model)
			assert.Contains(t, req.System, "helpful editor")
			assert.Contains(t, req.Prompt, "dirty  text")
			return "<cleaned_text>dirty text</cleaned_text>"
		})

		a := New(types.LLMConfig{Url: srv.URL, Model: "llama"}, time.Second, nil, logger.Discard())
		out, err := a.Clean(context.Background(), "dirty  text")
		require.NoError(t, err)
		assert.Equal(t, "dirty text", out)
	})

	t.Run("Should summarize and strip tags", func(t *testing.T) {
		srv := llmServer(t, func(req GenerateRequest) string {
			assert.Contains(t, req.System, "helpful summarizer")
			return "<summary>short</summary>"
		})

		a := New(types.LLMConfig{Url: srv.URL, Model: "m"}, time.Second, nil, logger.Discard())
		out, err := a.Summarize(context.Background(), "long text")
		require.NoError(t, err)
		assert.Equal(t, "short", out)
	})

	t.Run("Should prefer stored config over defaults", func(t *testing.T) {
		srv := llmServer(t, func(req GenerateRequest) string {
			assert.Equal(t, "stored-model", req.Model)
			assert.True(t, strings.HasSuffix(req.System, "Answer in English."))
			return "ok"
		})

		source := staticSource{cfg: &types.LLMConfig{Url: srv.URL, Model: "stored-model", PromptStr: "Answer in English."}}
		a := New(types.LLMConfig{Url: "http://unused.invalid", Model: "default"}, time.Second, source, logger.Discard())
		out, err := a.Summarize(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	})

	t.Run("Should use defaults when store fails", func(t *testing.T) {
		a := New(types.LLMConfig{Url: "http://x", Model: "d"}, time.Second, staticSource{err: errors.New("down")}, logger.Discard())
		assert.Equal(t, "d", a.Config(context.Background()).Model)
	})

	t.Run("Should fail when not configured", func(t *testing.T) {
		a := New(types.LLMConfig{}, time.Second, nil, logger.Discard())
		_, err := a.Clean(context.Background(), "x")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("Should not retry a bad request", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		a := New(types.LLMConfig{Url: srv.URL, Model: "m"}, time.Second, nil, logger.Discard())
		_, err := a.Clean(context.Background(), "x")
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}
