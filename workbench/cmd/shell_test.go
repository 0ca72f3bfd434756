package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chunker/logger"
	"chunker/types"
	"chunker/workbench"
	"chunker/workbench/collection"
	"chunker/workbench/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type replaySource struct {
	events []string
}

func (r *replaySource) Next() (string, error) {
	if len(r.events) == 0 {
		return "", io.EOF
	}
	ev := r.events[0]
	r.events = r.events[1:]
	return ev, nil
}

func (r *replaySource) Close() error { return nil }

type fakeService struct {
	lastReq types.ProcessRequest
}

func (f *fakeService) Open(_ context.Context, req types.ProcessRequest) (stream.EventSource, error) {
	f.lastReq = req
	return &replaySource{events: []string{
		`{"type":"chunk","chunk":{"content":"alpha"},"processed_chunks":1,"total_chunks":3}`,
		`{"type":"chunk","chunk":{"content":"beta"},"processed_chunks":2,"total_chunks":3}`,
		`{"type":"chunk","chunk":{"content":"gamma"},"processed_chunks":3,"total_chunks":3}`,
		types.DoneSentinel,
	}}, nil
}

func (f *fakeService) Enrich(_ context.Context, c types.Chunk, action types.EnrichAction) (types.Chunk, error) {
	out := c.Clone()
	if action == types.ActionSummarize {
		out.Summary = types.Ptr(strings.ToUpper(c.Content))
	} else {
		out.Content = strings.TrimSpace(c.Content)
	}
	return out, nil
}

func (f *fakeService) Process(context.Context, types.ProcessRequest) (types.ProcessResponse, error) {
	return types.ProcessResponse{Chunks: []types.Chunk{{Content: "one"}}, TotalChunks: 1}, nil
}

func (f *fakeService) ExtractFile(context.Context, string, io.Reader) (string, error) {
	return "extracted", nil
}

func newTestShell(t *testing.T) (*shell, *fakeService, *bytes.Buffer, string) {
	t.Helper()
	svc := &fakeService{}
	wb := workbench.New(svc, nil, logger.Discard())
	t.Cleanup(wb.Close)
	dir := t.TempDir()
	var out bytes.Buffer
	return newShell(wb, dir, &out), svc, &out, dir
}

func run(t *testing.T, s *shell, lines ...string) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, s.Exec(context.Background(), l), l)
	}
}

func waitStream(t *testing.T, s *shell) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.wb.Stream.Wait(ctx))
}

func TestShell_Session(t *testing.T) {
	s, svc, out, dir := newTestShell(t)

	run(t, s, `text "alpha beta gamma"`, "set method recursive", "set size 10", `set separators "|" " "`, "process")
	waitStream(t, s)

	assert.Equal(t, "alpha beta gamma", svc.lastReq.Text)
	assert.Equal(t, types.MethodRecursive, svc.lastReq.ChunkingOptions.Method)
	assert.Equal(t, 10, svc.lastReq.ChunkingOptions.ChunkSize)
	assert.Equal(t, []string{"|", " "}, svc.lastReq.ChunkingOptions.Separators)

	run(t, s, "move 3 1", "select 1 3", "summarize 1")
	s.wb.Enrich.Wait()
	run(t, s, "use-summary 1", "export md")

	data, err := os.ReadFile(filepath.Join(dir, "chunks.md"))
	require.NoError(t, err)
	assert.Equal(t, "## Chunk 1\n\nGAMMA\n\n## Chunk 2\n\nbeta", string(data))

	out.Reset()
	run(t, s, "list")
	assert.Equal(t, "*  1 GAMMA\n   2 alpha\n*  3 beta\n", out.String())
}

func TestShell_Editing(t *testing.T) {
	s, _, out, _ := newTestShell(t)
	run(t, s, "add first", "add 1 zero", "add", "edit 3 third chunk", "del 2")

	out.Reset()
	run(t, s, "list", "show 2")
	assert.Equal(t, "   1 zero\n   2 third chunk\nthird chunk\n", out.String())
}

func TestShell_Errors(t *testing.T) {
	s, _, _, _ := newTestShell(t)
	ctx := context.Background()

	assert.ErrorContains(t, s.Exec(ctx, "process"), "no text")
	assert.ErrorContains(t, s.Exec(ctx, "frobnicate"), "unknown command")
	assert.ErrorContains(t, s.Exec(ctx, "del x"), "not a number")
	assert.ErrorContains(t, s.Exec(ctx, "del 1"), "invalid position")
	assert.ErrorIs(t, s.Exec(ctx, "add 0 zero"), collection.ErrInvalidPosition)
	assert.ErrorIs(t, s.Exec(ctx, "del 0"), collection.ErrInvalidPosition)
	assert.Zero(t, s.wb.Collection.Len())
	assert.ErrorContains(t, s.Exec(ctx, "export pdf"), "unknown export format")
	assert.ErrorContains(t, s.Exec(ctx, "set size big"), "invalid syntax")
	assert.ErrorIs(t, s.Exec(ctx, "quit"), errQuit)
	assert.NoError(t, s.Exec(ctx, "   "))
}

func TestShell_Run(t *testing.T) {
	s, _, out, _ := newTestShell(t)
	s.Run(context.Background(), strings.NewReader("add hello\nlist\nquit\nadd never\n"))

	assert.Contains(t, out.String(), "1 hello")
	assert.Equal(t, 1, s.wb.Collection.Len())
}

func TestShell_Batch(t *testing.T) {
	s, _, _, _ := newTestShell(t)
	run(t, s, "text x", "batch")
	assert.Equal(t, "one", s.wb.Collection.Chunks()[0].Content)
}
