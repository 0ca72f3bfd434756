// Package extract turns uploaded documents into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/semaphore"

	"chunker/model"
)

var (
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrNotUTF8           = errors.New("file is not valid UTF-8 text")
	ErrInvalidDocument   = errors.New("invalid document")
	ErrVisionUnavailable = errors.New("vision model not configured")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindPDF
	KindDOCX
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

var extKinds = map[string]Kind{
	".txt":  KindText,
	".md":   KindText,
	".csv":  KindText,
	".json": KindText,
	".pdf":  KindPDF,
	".docx": KindDOCX,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".gif":  KindImage,
	".webp": KindImage,
}

// Detect classifies a file by extension, then by content when the
// extension says nothing.
func Detect(name string, data []byte) Kind {
	if k, ok := extKinds[strings.ToLower(filepath.Ext(name))]; ok {
		return k
	}
	if filepath.Ext(name) != "" {
		return KindUnknown
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return KindPDF
	case mt.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
		return KindDOCX
	case strings.HasPrefix(mt.String(), "image/"):
		return KindImage
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return KindText
		}
	}
	return KindUnknown
}

type Options struct {
	// ConcurrencyLimit bounds vision calls across all extractions.
	ConcurrencyLimit int
	// CropTop and CropBottom trim PDF page margins, in points.
	CropTop    float64
	CropBottom float64
}

type Extractor struct {
	vision model.VisionModel
	sem    *semaphore.Weighted
	opts   Options
	logger *slog.Logger
}

// New builds an extractor. vision may be nil; images then fail to caption.
func New(vision model.VisionModel, opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = 5
	}
	return &Extractor{
		vision: vision,
		sem:    semaphore.NewWeighted(int64(opts.ConcurrencyLimit)),
		opts:   opts,
		logger: logger,
	}
}

// Extract returns the text content of the named file.
func (e *Extractor) Extract(ctx context.Context, name string, data []byte) (string, error) {
	kind := Detect(name, data)
	start := time.Now()
	e.logger.Info("extracting file", "name", name, "kind", kind, "size", len(data))

	var (
		out string
		err error
	)
	switch kind {
	case KindText:
		out, err = decodeText(data)
	case KindPDF:
		out, err = e.extractPDF(ctx, data)
	case KindDOCX:
		out, err = e.extractDOCX(ctx, data)
	case KindImage:
		out, err = e.caption(ctx, data)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
	}
	if err != nil {
		e.logger.Error("extraction failed", "name", name, "error", err)
		return "", err
	}

	e.logger.Info("file extracted", "name", name, "chars", len(out), "took", time.Since(start))
	return out, nil
}

// caption runs one vision call under the shared concurrency limit.
func (e *Extractor) caption(ctx context.Context, img []byte) (string, error) {
	if e.vision == nil {
		return "", ErrVisionUnavailable
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.sem.Release(1)

	return e.vision.Describe(ctx, img)
}
