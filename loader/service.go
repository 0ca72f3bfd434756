// Package loader ingests documents dropped into a folder: each settled file
// is extracted and chunked by the chunking service, the chunks are written
// next to the archived original.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chunker/config"
	"chunker/types"
	"chunker/workbench/export"
)

const shutdownTimeout = 5 * time.Second

// Ingester is the part of the chunking service client the loader needs.
type Ingester interface {
	ExtractFile(ctx context.Context, name string, r io.Reader) (string, error)
	Process(ctx context.Context, req types.ProcessRequest) (types.ProcessResponse, error)
}

type Service struct {
	cfg      config.Loader
	watcher  *Watcher
	ingester Ingester
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg config.Loader, ingester Ingester, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		watcher:  NewWatcher(cfg.SourceDir, cfg.MonitoringTime, cfg.PollInterval, logger),
		ingester: ingester,
		logger:   logger,
		now:      time.Now,
	}
}

// Run watches the source folder and ingests files until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := createDirectories(s.cfg.SourceDir, s.cfg.ArchiveDir, s.cfg.BadDir); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.watcher.Watch(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range fileChan {
			if ctx.Err() != nil {
				return
			}
			s.handle(ctx, path)
		}
	}()

	<-ctx.Done()
	s.logger.Info("received shutdown signal, shutting down gracefully")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("loader stopped")
	case <-time.After(shutdownTimeout):
		s.logger.Warn("timeout waiting for workers to stop")
	}
	return nil
}

func (s *Service) handle(ctx context.Context, path string) {
	defer s.watcher.Done(path)

	out, err := s.Ingest(ctx, path)
	if ctx.Err() != nil {
		// keep the file in place, it is picked up on the next start
		return
	}
	if err != nil {
		s.logger.Error("file ingestion failed", "file", path, "error", err)
		if _, err := s.archive(path, s.cfg.BadDir); err != nil {
			s.logger.Error("could not move file to bad dir", "file", path, "error", err)
		}
		return
	}
	s.logger.Info("file ingested", "file", path, "chunks", out)
}

// Ingest processes one file and returns the path of the written chunks.
func (s *Service) Ingest(ctx context.Context, path string) (string, error) {
	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	text, err := s.ingester.ExtractFile(ctx, filepath.Base(path), f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}

	req := s.request(text)
	if errs := req.Validate(); len(errs) > 0 {
		return "", fmt.Errorf("invalid request: %v", errs)
	}
	resp, err := s.ingester.Process(ctx, req)
	if err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	file, err := export.Render(resp.Chunks, export.JSON)
	if err != nil {
		return "", err
	}

	// chunks go in first so a failure leaves the original in the source dir
	dest, err := datedPath(s.cfg.ArchiveDir, filepath.Base(path), s.now())
	if err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	out := strings.TrimSuffix(dest, filepath.Ext(dest)) + "." + file.Name
	if err := os.WriteFile(out, file.Data, 0o644); err != nil {
		return "", fmt.Errorf("write chunks: %w", err)
	}
	if err := moveFile(path, dest); err != nil {
		if rmErr := os.Remove(out); rmErr != nil {
			s.logger.Warn("could not remove chunks file", "file", out, "error", rmErr)
		}
		return "", fmt.Errorf("archive: %w", err)
	}
	s.logger.Info("file moved", "from", path, "to", dest)

	s.logger.Debug("ingest finished", "file", path, "chunks", resp.TotalChunks, "took", time.Since(start))
	return out, nil
}

func (s *Service) request(text string) types.ProcessRequest {
	req := types.ProcessRequest{
		Text: text,
		ChunkingOptions: types.ChunkingOptions{
			Method:       types.ChunkingMethod(s.cfg.ChunkingMethod),
			ChunkSize:    s.cfg.ChunkSize,
			ChunkOverlap: s.cfg.ChunkOverlap,
		},
		ProcessingOptions: types.ProcessingOptions{
			CleanText:       s.cfg.CleanText,
			GenerateSummary: s.cfg.GenerateSummary,
		},
	}
	req.ApplyDefaults()
	return req
}

func (s *Service) archive(path, root string) (string, error) {
	dest, err := datedPath(root, filepath.Base(path), s.now())
	if err != nil {
		return "", err
	}
	if err := moveFile(path, dest); err != nil {
		return "", err
	}
	s.logger.Info("file moved", "from", path, "to", dest)
	return dest, nil
}
