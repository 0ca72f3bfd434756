package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chunker/logger"
	"chunker/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, logger.Discard())
}

func TestClient_Process(t *testing.T) {
	t.Run("Should post the request and decode chunks", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, processPath, r.URL.Path)
			var req types.ProcessRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "hello", req.Text)
			assert.Equal(t, types.MethodSemantic, req.ChunkingOptions.Method)

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"chunks":[{"content":"hello","original_index":0}],"total_chunks":1}`)
		})

		resp, err := c.Process(context.Background(), types.ProcessRequest{
			Text:            "hello",
			ChunkingOptions: types.ChunkingOptions{Method: types.MethodSemantic},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, resp.TotalChunks)
		require.Len(t, resp.Chunks, 1)
		assert.Equal(t, 0, *resp.Chunks[0].OriginalIndex)
	})

	t.Run("Should surface validation errors", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"status":422,"errors":{"Text":"failed on 'required' tag"}}`)
		})

		_, err := c.Process(context.Background(), types.ProcessRequest{})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 422, apiErr.Status)
		assert.Contains(t, apiErr.Errors, "Text")
	})

	t.Run("Should fall back to the raw body on unknown errors", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "upstream down")
		})

		_, err := c.Process(context.Background(), types.ProcessRequest{Text: "x"})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.Code)
		assert.Equal(t, "upstream down", apiErr.Message)
	})
}

func TestClient_Enrich(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chunkPath, r.URL.Path)
		var req types.ChunkActionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, types.ActionSummarize, req.Action)

		out := req.Chunk
		out.Summary = types.Ptr("short")
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(out))
	})

	got, err := c.Enrich(context.Background(), types.Chunk{Content: "long"}, types.ActionSummarize)
	require.NoError(t, err)
	assert.Equal(t, "long", got.Content)
	assert.Equal(t, "short", *got.Summary)
}

func TestClient_ExtractFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, uploadPath, r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "doc.pdf", hdr.Filename)
		assert.Equal(t, "%PDF", string(data))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":"--- Page 1 ---\nhello"}`)
	})

	content, err := c.ExtractFile(context.Background(), "doc.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 ---\nhello", content)
}

func TestClient_Open(t *testing.T) {
	t.Run("Should yield one payload per event", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, streamPath, r.URL.Path)
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, ": keepalive\n\n")
			fmt.Fprint(w, "data: {\"type\":\"progress\",\"processed_chunks\":0,\"total_chunks\":1}\n\n")
			fmt.Fprint(w, "event: message\ndata: {\"type\":\"chunk\",\ndata: \"chunk\":{\"content\":\"A\"}}\n\n")
			fmt.Fprint(w, "data: [DONE]\n\n")
		})

		src, err := c.Open(context.Background(), types.ProcessRequest{Text: "x"})
		require.NoError(t, err)
		defer src.Close()

		var got []string
		for {
			data, err := src.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			got = append(got, data)
		}
		assert.Equal(t, []string{
			`{"type":"progress","processed_chunks":0,"total_chunks":1}`,
			"{\"type\":\"chunk\",\n\"chunk\":{\"content\":\"A\"}}",
			"[DONE]",
		}, got)
	})

	t.Run("Should return a trailing event without blank line", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "data: [DONE]")
		})
		src, err := c.Open(context.Background(), types.ProcessRequest{Text: "x"})
		require.NoError(t, err)
		defer src.Close()

		data, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, "[DONE]", data)
		_, err = src.Next()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("Should fail on non-200 status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"status":422}`)
		})
		_, err := c.Open(context.Background(), types.ProcessRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "422")
	})
}

func TestClient_Config(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == healthPath:
			fmt.Fprint(w, `{"result":"ok"}`)
		case r.Method == http.MethodGet:
			fmt.Fprint(w, `{"llm_url":"http://llm","llm_model":"m","prompt_str":""}`)
		default:
			var p types.ConfigParams
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			fmt.Fprintf(w, `{"llm_url":"http://llm","llm_model":%q,"prompt_str":""}`, p.Model)
		}
	})

	require.NoError(t, c.Healthy(context.Background()))

	cfg, err := c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "m", cfg.Model)

	cfg, err = c.UpdateConfig(context.Background(), types.ConfigParams{Model: "m2"})
	require.NoError(t, err)
	assert.Equal(t, "m2", cfg.Model)
}
