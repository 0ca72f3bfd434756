package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

const imagesHeader = "\n--- Extracted Images Content ---\n"

func (e *Extractor) extractDOCX(ctx context.Context, data []byte) (string, error) {
	paragraphs, images, err := parseDOCX(data)
	if err != nil {
		return "", err
	}
	e.logger.Info("processing docx", "paragraphs", len(paragraphs), "images", len(images))

	parts := paragraphs
	if len(images) > 0 {
		captions := make([]string, len(images))
		g, gctx := errgroup.WithContext(ctx)
		for i, img := range images {
			g.Go(func() error {
				text, err := e.caption(gctx, img)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					e.logger.Warn("docx image failed", "image", i+1, "error", err)
					captions[i] = fmt.Sprintf("[Error processing image %d: %v]", i+1, err)
					return nil
				}
				captions[i] = text
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", err
		}
		parts = append(parts, imagesHeader)
		parts = append(parts, captions...)
	}
	return strings.Join(parts, "\n"), nil
}

// parseDOCX returns the non-blank paragraphs of the main document and the
// embedded media files in archive name order.
func parseDOCX(data []byte) ([]string, [][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var (
		body  *zip.File
		media []*zip.File
	)
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			body = f
		case strings.HasPrefix(f.Name, "word/media/") && !f.FileInfo().IsDir():
			media = append(media, f)
		}
	}
	if body == nil {
		return nil, nil, fmt.Errorf("%w: missing word/document.xml", ErrInvalidDocument)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, nil, err
	}
	paragraphs, err := docxParagraphs(rc)
	rc.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	sort.Slice(media, func(i, j int) bool { return media[i].Name < media[j].Name })
	images := make([][]byte, 0, len(media))
	for _, f := range media {
		rc, err := f.Open()
		if err != nil {
			return nil, nil, err
		}
		img, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, nil, err
		}
		images = append(images, img)
	}
	return paragraphs, images, nil
}

func docxParagraphs(r io.Reader) ([]string, error) {
	var (
		dec        = xml.NewDecoder(r)
		paragraphs []string
		buf        strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				buf.Reset()
			case "t":
				inText = true
			case "tab":
				buf.WriteString("\t")
			case "br", "cr":
				buf.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := buf.String(); strings.TrimSpace(text) != "" {
					paragraphs = append(paragraphs, text)
				}
				buf.Reset()
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		}
	}
	return paragraphs, nil
}
