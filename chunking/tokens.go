package chunking

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with a tiktoken encoding.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter(encoding string) (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TokenCounter{enc: enc}, nil
}

// Count returns nil when no encoding is loaded; an unknown count is absent,
// not zero.
func (t *TokenCounter) Count(text string) *int {
	if t == nil || t.enc == nil {
		return nil
	}
	n := len(t.enc.Encode(text, nil, nil))
	return &n
}
