package chunking

import "chunker/types"

// FixedSize cuts text into windows of size runes, each starting
// size-overlap runes after the previous one. When overlap >= size the
// window still advances by at least one rune.
func FixedSize(text string, size, overlap int) []types.Chunk {
	runes := []rune(text)
	if len(runes) == 0 || size <= 0 {
		return nil
	}

	step := size - overlap
	if overlap >= size {
		step++
	}
	if step <= 0 {
		step = 1
	}

	var chunks []types.Chunk
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, types.Chunk{
			Content:       string(runes[start:end]),
			OriginalIndex: types.Ptr(start),
		})
	}
	return chunks
}
