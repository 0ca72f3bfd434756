package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	if e.opts.CropTop > 0 || e.opts.CropBottom > 0 {
		cropped, err := cropMargins(data, e.opts.CropTop, e.opts.CropBottom)
		if err != nil {
			e.logger.Warn("pdf crop failed, using original pages", "error", err)
		} else {
			data = cropped
		}
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	total := r.NumPage()
	e.logger.Info("processing pdf", "pages", total)

	pages := make([]string, 0, total)
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := pageText(r, n)
		if err != nil {
			e.logger.Warn("pdf page failed", "page", n, "error", err)
			pages = append(pages, pageError(n, err))
			continue
		}
		pages = append(pages, pageBlock(n, text))
	}
	return strings.Join(pages, "\n"), nil
}

func pageBlock(n int, text string) string {
	return fmt.Sprintf("--- Page %d ---\n%s\n", n, strings.TrimSpace(text))
}

func pageError(n int, err error) string {
	return fmt.Sprintf("--- Page %d (Error) ---\n[Error processing page: %v]\n", n, err)
}

// pageText reads the text layer of page n. The pdf reader panics on some
// malformed content streams.
func pageText(r *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed page: %v", rec)
		}
	}()

	p := r.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

// cropMargins trims top and bottom margins, given in points, from every
// page. pdfcpu works on files, so the document goes through a temp dir.
func cropMargins(data []byte, top, bottom float64) ([]byte, error) {
	dir, err := os.MkdirTemp("", "chunker-pdf-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	conf := api.LoadConfiguration()
	box, err := model.ParseBox(fmt.Sprintf("%.2f 0 %.2f 0", top, bottom), types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse crop box: %w", err)
	}
	if err := api.CropFile(in, out, []string{"1-"}, box, conf); err != nil {
		return nil, fmt.Errorf("failed to crop PDF: %w", err)
	}
	return os.ReadFile(out)
}
