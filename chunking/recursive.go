package chunking

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"chunker/types"

	"github.com/tmc/langchaingo/textsplitter"
)

var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Recursive splits on the first separator present in the text and recurses
// with the next one into pieces still longer than size.
func Recursive(text string, size, overlap int, separators []string) ([]types.Chunk, error) {
	if text == "" || size <= 0 {
		return nil, nil
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	if overlap >= size {
		overlap = 0
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(separators),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("recursive split: %w", err)
	}

	chunks := make([]types.Chunk, 0, len(parts))
	cursor := 0
	for _, p := range parts {
		c := types.Chunk{Content: p}
		if i := strings.Index(text[cursor:], p); i >= 0 {
			offset := cursor + i
			c.OriginalIndex = types.Ptr(utf8.RuneCountInString(text[:offset]))
			cursor = offset + 1
			if cursor > len(text) {
				cursor = len(text)
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}
