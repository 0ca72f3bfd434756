// Package export renders chunks into downloadable files.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chunker/types"
)

type Format string

const (
	JSON     Format = "json"
	Text     Format = "text"
	Markdown Format = "markdown"
)

type Scope int

const (
	SelectionIfNonEmpty Scope = iota
	All
)

const TextSeparator = "\n\n---\n\n"

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts the format names and the file extensions.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return JSON, nil
	case "text", "txt", "plaintext":
		return Text, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Source is what an export reads from.
type Source interface {
	Chunks() []types.Chunk
	Selected() []types.Chunk
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// WriteTo writes the file into dir and returns its path.
func (f File) WriteTo(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, f.Name)
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", f.Name, err)
	}
	return path, nil
}

func Export(src Source, format Format, scope Scope) (File, error) {
	chunks := src.Chunks()
	if scope == SelectionIfNonEmpty {
		if selected := src.Selected(); len(selected) > 0 {
			chunks = selected
		}
	}
	return Render(chunks, format)
}

// Render serialises chunks in the given order.
func Render(chunks []types.Chunk, format Format) (File, error) {
	switch format {
	case JSON:
		if chunks == nil {
			chunks = []types.Chunk{}
		}
		data, err := json.MarshalIndent(chunks, "", "  ")
		if err != nil {
			return File{}, fmt.Errorf("encode chunks: %w", err)
		}
		return File{Name: "chunks.json", ContentType: "application/json", Data: data}, nil
	case Text:
		parts := make([]string, len(chunks))
		for i, c := range chunks {
			parts[i] = c.Content
		}
		return File{Name: "chunks.txt", ContentType: "text/plain", Data: []byte(strings.Join(parts, TextSeparator))}, nil
	case Markdown:
		parts := make([]string, len(chunks))
		for i, c := range chunks {
			parts[i] = fmt.Sprintf("## Chunk %d\n\n%s", i+1, c.Content)
		}
		return File{Name: "chunks.md", ContentType: "text/markdown", Data: []byte(strings.Join(parts, "\n\n"))}, nil
	}
	return File{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
