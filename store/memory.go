package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"chunker/types"
)

// MemoryStore keeps config and embeddings in process memory. It is used
// when no database is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	config     *types.LLMConfig
	embeddings map[uuid.UUID][]float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{embeddings: make(map[uuid.UUID][]float32)}
}

func (m *MemoryStore) GetConfig(context.Context) (*types.LLMConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil, nil
	}
	cp := *m.config
	return &cp, nil
}

func (m *MemoryStore) SetConfig(_ context.Context, values map[string]any) (*types.LLMConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := types.LLMConfig{}
	if m.config != nil {
		next = *m.config
	}
	for col, v := range values {
		if !slices.Contains(ConfigColumns, col) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
		}
		s := fmt.Sprint(v)
		switch col {
		case "llm_url":
			next.Url = s
		case "llm_model":
			next.Model = s
		case "prompt_str":
			next.PromptStr = s
		}
	}
	m.config = &next
	cp := next
	return &cp, nil
}

func (m *MemoryStore) GetEmbedding(_ context.Context, model, text string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.embeddings[EmbeddingKey(model, text)]
	return vec, ok, nil
}

func (m *MemoryStore) SaveEmbedding(_ context.Context, model, text string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings[EmbeddingKey(model, text)] = slices.Clone(vec)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
