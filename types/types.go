package types

// Chunk is one unit of split text plus optional derived metadata.
// Only Content is mandatory; a nil pointer means the field is absent,
// which is not the same as zero or empty.
type Chunk struct {
	Content       string  `json:"content"`
	OriginalIndex *int    `json:"original_index,omitempty"`
	Summary       *string `json:"summary,omitempty"`
	TokenCount    *int    `json:"token_count,omitempty"`
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}

// Clone returns a deep copy of the chunk so callers can mutate it freely.
func (c Chunk) Clone() Chunk {
	out := Chunk{Content: c.Content}
	if c.OriginalIndex != nil {
		out.OriginalIndex = Ptr(*c.OriginalIndex)
	}
	if c.Summary != nil {
		out.Summary = Ptr(*c.Summary)
	}
	if c.TokenCount != nil {
		out.TokenCount = Ptr(*c.TokenCount)
	}
	return out
}

// HasSummary reports whether a summary is present.
func (c Chunk) HasSummary() bool {
	return c.Summary != nil
}

// EqualPtr compares two optional values by presence and content.
func EqualPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

const (
	EventProgress = "progress"
	EventChunk    = "chunk"

	// DoneSentinel terminates a successful stream.
	DoneSentinel = "[DONE]"
)

// StreamEvent is a progress or chunk event pushed over the process stream.
type StreamEvent struct {
	Type            string `json:"type"`
	Chunk           *Chunk `json:"chunk,omitempty"`
	ProcessedChunks int    `json:"processed_chunks"`
	TotalChunks     int    `json:"total_chunks"`
}

// ErrorEvent reports a failure on the process stream.
type ErrorEvent struct {
	Error string `json:"error"`
}

func NewProgressEvent(processed, total int) StreamEvent {
	return StreamEvent{Type: EventProgress, ProcessedChunks: processed, TotalChunks: total}
}

func NewChunkEvent(chunk Chunk, processed, total int) StreamEvent {
	return StreamEvent{Type: EventChunk, Chunk: &chunk, ProcessedChunks: processed, TotalChunks: total}
}

// ProcessResponse is the batch (non-streaming) result.
type ProcessResponse struct {
	Chunks      []Chunk `json:"chunks"`
	TotalChunks int     `json:"total_chunks"`
}

// FileContent is the result of a file extraction.
type FileContent struct {
	Content string `json:"content"`
}

// LLMConfig holds the runtime settings of the completion model.
type LLMConfig struct {
	Url       string `db:"llm_url" json:"llm_url"`
	Model     string `db:"llm_model" json:"llm_model"`
	PromptStr string `db:"prompt_str" json:"prompt_str"`
}
