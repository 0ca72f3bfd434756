// Package workbench ties one collection to its stream reconciler, its
// enrichment coordinator and export.
package workbench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"chunker/types"
	"chunker/workbench/collection"
	"chunker/workbench/enrich"
	"chunker/workbench/export"
	"chunker/workbench/notify"
	"chunker/workbench/stream"
)

// Service is the chunking collaborator as the workbench sees it.
type Service interface {
	stream.Transport
	enrich.Enricher
	Process(ctx context.Context, req types.ProcessRequest) (types.ProcessResponse, error)
	ExtractFile(ctx context.Context, name string, r io.Reader) (string, error)
}

var localExtensions = map[string]struct{}{
	".txt":  {},
	".md":   {},
	".json": {},
	".csv":  {},
}

type Workbench struct {
	Collection *collection.Manager
	Stream     *stream.Reconciler
	Enrich     *enrich.Coordinator

	service  Service
	notifier notify.Notifier
	logger   *slog.Logger
}

func New(service Service, notifier notify.Notifier, logger *slog.Logger) *Workbench {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	coll := collection.New(logger)
	return &Workbench{
		Collection: coll,
		Stream:     stream.NewReconciler(service, coll, notifier, logger),
		Enrich:     enrich.NewCoordinator(coll, service, notifier, logger),
		service:    service,
		notifier:   notifier,
		logger:     logger,
	}
}

// Submit starts a streaming submission, replacing the current collection.
func (w *Workbench) Submit(ctx context.Context, req types.ProcessRequest) error {
	req.ApplyDefaults()
	if errs := req.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid request: %v", errs)
	}
	return w.Stream.Process(ctx, req)
}

// SubmitBatch runs a non-streaming submission and replaces the collection
// with its result. It takes part in the same one-session rule as Submit.
func (w *Workbench) SubmitBatch(ctx context.Context, req types.ProcessRequest) (int, error) {
	req.ApplyDefaults()
	if errs := req.Validate(); len(errs) > 0 {
		return 0, fmt.Errorf("invalid request: %v", errs)
	}
	return w.Stream.ProcessBatch(ctx, func(ctx context.Context) ([]types.Chunk, error) {
		resp, err := w.service.Process(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.Chunks, nil
	})
}

// LoadFile returns the text of a file. Plain text formats are read locally,
// everything else goes through the extraction service.
func (w *Workbench) LoadFile(ctx context.Context, path string) (string, error) {
	if _, ok := localExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s is not valid UTF-8", filepath.Base(path))
		}
		return string(data), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w.logger.Debug("extracting file", "file", path)
	return w.service.ExtractFile(ctx, filepath.Base(path), f)
}

func (w *Workbench) Export(format export.Format, scope export.Scope) (export.File, error) {
	return export.Export(w.Collection, format, scope)
}

// Close cancels the running session and waits for pending enrichments.
func (w *Workbench) Close() {
	w.Stream.Cancel()
	w.Enrich.Wait()
}
