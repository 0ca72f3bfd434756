package loader

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chunker/config"
	"chunker/logger"
	"chunker/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeIngester struct {
	mu       sync.Mutex
	failName string
	requests []types.ProcessRequest
}

func (f *fakeIngester) ExtractFile(_ context.Context, name string, r io.Reader) (string, error) {
	if name == f.failName {
		return "", errors.New("unsupported file type")
	}
	data, err := io.ReadAll(r)
	return string(data), err
}

func (f *fakeIngester) Process(_ context.Context, req types.ProcessRequest) (types.ProcessResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	words := strings.Fields(req.Text)
	chunks := make([]types.Chunk, len(words))
	for i, w := range words {
		chunks[i] = types.Chunk{Content: w, OriginalIndex: types.Ptr(i)}
	}
	return types.ProcessResponse{Chunks: chunks, TotalChunks: len(chunks)}, nil
}

func testConfig(t *testing.T) config.Loader {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultLoader()
	cfg.SourceDir = filepath.Join(root, "source")
	cfg.ArchiveDir = filepath.Join(root, "archive")
	cfg.BadDir = filepath.Join(root, "bad")
	cfg.MonitoringTime = 0
	cfg.PollInterval = 10 * time.Millisecond
	require.NoError(t, createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir))
	return cfg
}

func TestWatcher_Scan(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(dir, time.Minute, time.Second, logger.Discard())
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	t.Run("Should wait for the settle time", func(t *testing.T) {
		assert.Empty(t, w.Scan(now))
		assert.Empty(t, w.Scan(now.Add(30*time.Second)))
		assert.Equal(t, []string{path}, w.Scan(now.Add(time.Minute)))
	})

	t.Run("Should not offer a file twice while it is processed", func(t *testing.T) {
		assert.Empty(t, w.Scan(now.Add(2*time.Minute)))
	})

	t.Run("Should track the file again after Done", func(t *testing.T) {
		w.Done(path)
		assert.Empty(t, w.Scan(now.Add(3*time.Minute)))
		assert.Equal(t, []string{path}, w.Scan(now.Add(4*time.Minute)))
	})

	t.Run("Should forget removed files", func(t *testing.T) {
		require.NoError(t, os.Remove(path))
		assert.Empty(t, w.Scan(now.Add(5*time.Minute)))
		w.mu.Lock()
		defer w.mu.Unlock()
		assert.Empty(t, w.firstSeen)
		assert.Empty(t, w.processing)
	})
}

func TestDatedPath(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	first, err := datedPath(root, "doc.pdf", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "2026-03-04", "doc.pdf"), first)
	require.NoError(t, os.WriteFile(first, nil, 0o644))

	second, err := datedPath(root, "doc.pdf", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "2026-03-04", "doc_1.pdf"), second)
}

func TestService_Ingest(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkingMethod = "recursive"
	ing := &fakeIngester{}
	s := New(cfg, ing, logger.Discard())
	s.now = func() time.Time { return time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC) }

	path := filepath.Join(cfg.SourceDir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha beta"), 0o644))

	out, err := s.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.ArchiveDir, "2026-05-06", "notes.chunks.json"), out)
	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(cfg.ArchiveDir, "2026-05-06", "notes.txt"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var chunks []types.Chunk
	require.NoError(t, json.Unmarshal(data, &chunks))
	require.Len(t, chunks, 2)
	assert.Equal(t, "beta", chunks[1].Content)

	require.Len(t, ing.requests, 1)
	assert.Equal(t, types.MethodRecursive, ing.requests[0].ChunkingOptions.Method)
	assert.Equal(t, 500, ing.requests[0].ChunkingOptions.ChunkSize)
}

func TestService_IngestWriteFailure(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, &fakeIngester{}, logger.Discard())
	s.now = func() time.Time { return time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC) }

	path := filepath.Join(cfg.SourceDir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha beta"), 0o644))
	// a directory in the way makes the chunks file unwritable
	blocker := filepath.Join(cfg.ArchiveDir, "2026-05-06", "notes.chunks.json")
	require.NoError(t, os.MkdirAll(blocker, 0o755))

	t.Run("Should keep the original in place when chunks cannot be written", func(t *testing.T) {
		_, err := s.Ingest(context.Background(), path)
		require.ErrorContains(t, err, "write chunks")
		assert.FileExists(t, path)
		assert.NoFileExists(t, filepath.Join(cfg.ArchiveDir, "2026-05-06", "notes.txt"))
	})

	t.Run("Should move the original to the bad dir", func(t *testing.T) {
		s.handle(context.Background(), path)
		assert.NoFileExists(t, path)
		assert.FileExists(t, filepath.Join(cfg.BadDir, "2026-05-06", "notes.txt"))
		assert.NoFileExists(t, filepath.Join(cfg.ArchiveDir, "2026-05-06", "notes.txt"))
	})
}

func TestService_Run(t *testing.T) {
	cfg := testConfig(t)
	ing := &fakeIngester{failName: "broken.bin"}
	s := New(cfg, ing, logger.Discard())

	require.NoError(t, os.WriteFile(filepath.Join(cfg.SourceDir, "good.txt"), []byte("one two three"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SourceDir, "broken.bin"), []byte{0}, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	day := time.Now().Format("2006-01-02")
	assert.Eventually(t, func() bool {
		_, goodErr := os.Stat(filepath.Join(cfg.ArchiveDir, day, "good.chunks.json"))
		_, badErr := os.Stat(filepath.Join(cfg.BadDir, day, "broken.bin"))
		return goodErr == nil && badErr == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	entries, err := os.ReadDir(cfg.SourceDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
