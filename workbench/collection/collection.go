// Package collection holds the ordered, identity-tracked list of chunks a
// user curates, together with the set of chunks selected for export.
package collection

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"chunker/types"

	"github.com/google/uuid"
)

// Tail inserts at the end of the collection.
const Tail = -1

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrStaleIdentity   = errors.New("chunk no longer in collection")
	ErrNoSummary       = errors.New("chunk has no summary")
)

// ID identifies a chunk for as long as it stays in the collection.
// Positions change on every reorder or delete; IDs never do.
type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

type Entry struct {
	ID    ID
	Chunk types.Chunk
}

// Manager owns the ordered collection and the selection. ids and chunks are
// always the same length and are only ever changed together under mu.
type Manager struct {
	mu       sync.RWMutex
	ids      []ID
	chunks   []types.Chunk
	selected map[ID]struct{}
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		selected: make(map[ID]struct{}),
		logger:   logger,
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Append adds chunk at the tail under a fresh identity.
func (m *Manager) Append(chunk types.Chunk) ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := NewID()
	m.ids = append(m.ids, id)
	m.chunks = append(m.chunks, chunk.Clone())
	return id
}

// Insert places chunk at pos, shifting later chunks back. pos may equal Len
// or be Tail to append.
func (m *Manager) Insert(chunk types.Chunk, pos int) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos == Tail {
		pos = len(m.ids)
	}
	if pos < 0 || pos > len(m.ids) {
		return "", fmt.Errorf("insert at %d: %w", pos, ErrInvalidPosition)
	}
	id := NewID()
	m.ids = slices.Insert(m.ids, pos, id)
	m.chunks = slices.Insert(m.chunks, pos, chunk.Clone())
	return id, nil
}

// Move takes the chunk at from and puts it at to; everything between shifts
// by one. Selection follows identities so it needs no remapping.
func (m *Manager) Move(from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inRange(from) || !m.inRange(to) {
		return fmt.Errorf("move %d to %d: %w", from, to, ErrInvalidPosition)
	}
	if from == to {
		return nil
	}
	id, chunk := m.ids[from], m.chunks[from]
	m.ids = slices.Delete(m.ids, from, from+1)
	m.chunks = slices.Delete(m.chunks, from, from+1)
	m.ids = slices.Insert(m.ids, to, id)
	m.chunks = slices.Insert(m.chunks, to, chunk)
	return nil
}

// EditContent replaces the content only.
func (m *Manager) EditContent(pos int, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inRange(pos) {
		return fmt.Errorf("edit %d: %w", pos, ErrInvalidPosition)
	}
	m.chunks[pos].Content = content
	return nil
}

func (m *Manager) Delete(pos int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inRange(pos) {
		return fmt.Errorf("delete %d: %w", pos, ErrInvalidPosition)
	}
	delete(m.selected, m.ids[pos])
	m.ids = slices.Delete(m.ids, pos, pos+1)
	m.chunks = slices.Delete(m.chunks, pos, pos+1)
	return nil
}

// UseSummary copies the summary into the content. The summary is kept.
func (m *Manager) UseSummary(pos int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inRange(pos) {
		return fmt.Errorf("use summary %d: %w", pos, ErrInvalidPosition)
	}
	c := &m.chunks[pos]
	if c.Summary == nil {
		return fmt.Errorf("use summary %d: %w", pos, ErrNoSummary)
	}
	c.Content = *c.Summary
	return nil
}

// ToggleSelect flips selection of the chunk at pos and reports the new state.
func (m *Manager) ToggleSelect(pos int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inRange(pos) {
		return false, fmt.Errorf("select %d: %w", pos, ErrInvalidPosition)
	}
	id := m.ids[pos]
	if _, ok := m.selected[id]; ok {
		delete(m.selected, id)
		return false, nil
	}
	m.selected[id] = struct{}{}
	return true, nil
}

func (m *Manager) ClearSelection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.selected)
}

// Selection returns the current positions of selected chunks, ascending.
func (m *Manager) Selection() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, 0, len(m.selected))
	for i, id := range m.ids {
		if _, ok := m.selected[id]; ok {
			out = append(out, i)
		}
	}
	return out
}

func (m *Manager) IsSelected(pos int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.inRange(pos) {
		return false
	}
	_, ok := m.selected[m.ids[pos]]
	return ok
}

// Selected returns copies of the selected chunks in collection order.
func (m *Manager) Selected() []types.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Chunk, 0, len(m.selected))
	for i, id := range m.ids {
		if _, ok := m.selected[id]; ok {
			out = append(out, m.chunks[i].Clone())
		}
	}
	return out
}

// Chunks returns copies of all chunks in collection order.
func (m *Manager) Chunks() []types.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Chunk, len(m.chunks))
	for i, c := range m.chunks {
		out[i] = c.Clone()
	}
	return out
}

func (m *Manager) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.ids))
	for i := range m.ids {
		out[i] = Entry{ID: m.ids[i], Chunk: m.chunks[i].Clone()}
	}
	return out
}

func (m *Manager) Get(pos int) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.inRange(pos) {
		return Entry{}, fmt.Errorf("get %d: %w", pos, ErrInvalidPosition)
	}
	return Entry{ID: m.ids[pos], Chunk: m.chunks[pos].Clone()}, nil
}

// Lookup returns the chunk with the given identity wherever it sits now.
func (m *Manager) Lookup(id ID) (types.Chunk, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos := m.indexOf(id)
	if pos < 0 {
		return types.Chunk{}, -1, fmt.Errorf("lookup %s: %w", id, ErrStaleIdentity)
	}
	return m.chunks[pos].Clone(), pos, nil
}

func (m *Manager) PositionOf(id ID) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos := m.indexOf(id)
	return pos, pos >= 0
}

// Update applies fn to the chunk with the given identity under the write lock.
func (m *Manager) Update(id ID, fn func(current types.Chunk) types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.indexOf(id)
	if pos < 0 {
		return fmt.Errorf("update %s: %w", id, ErrStaleIdentity)
	}
	m.chunks[pos] = fn(m.chunks[pos].Clone()).Clone()
	return nil
}

// Replace overwrites the chunk with the given identity.
func (m *Manager) Replace(id ID, chunk types.Chunk) error {
	return m.Update(id, func(types.Chunk) types.Chunk { return chunk })
}

// Reset empties the collection and the selection.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = nil
	m.chunks = nil
	clear(m.selected)
	m.logger.Debug("collection reset")
}

func (m *Manager) inRange(pos int) bool {
	return pos >= 0 && pos < len(m.ids)
}

func (m *Manager) indexOf(id ID) int {
	return slices.Index(m.ids, id)
}
