// Package enrich runs per-chunk clean and summarize calls and merges the
// results back by identity.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chunker/types"
	"chunker/workbench/collection"
	"chunker/workbench/notify"
)

var (
	ErrAlreadyInFlight = errors.New("enrichment already in flight for this chunk")
	ErrUnknownAction   = errors.New("unknown enrichment action")
)

// EnrichmentError reports a failed collaborator call. The chunk is unchanged.
type EnrichmentError struct {
	Action types.EnrichAction
	ID     collection.ID
	Err    error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}

type Enricher interface {
	Enrich(ctx context.Context, chunk types.Chunk, action types.EnrichAction) (types.Chunk, error)
}

// Collection is the part of the collection manager the coordinator needs.
type Collection interface {
	Get(pos int) (collection.Entry, error)
	PositionOf(id collection.ID) (int, bool)
	Update(id collection.ID, fn func(types.Chunk) types.Chunk) error
}

type Coordinator struct {
	coll     Collection
	enricher Enricher
	notifier notify.Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[collection.ID]types.EnrichAction
	wg       sync.WaitGroup
}

func NewCoordinator(coll Collection, enricher Enricher, notifier notify.Notifier, logger *slog.Logger) *Coordinator {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		coll:     coll,
		enricher: enricher,
		notifier: notifier,
		logger:   logger,
		inflight: make(map[collection.ID]types.EnrichAction),
	}
}

// Request starts action on the chunk currently at pos. The position is
// resolved to an identity immediately; the result is applied to that
// identity wherever it sits when the call returns.
func (c *Coordinator) Request(ctx context.Context, pos int, action types.EnrichAction) (collection.ID, error) {
	if !action.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	entry, err := c.coll.Get(pos)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if _, busy := c.inflight[entry.ID]; busy {
		c.mu.Unlock()
		return entry.ID, fmt.Errorf("%s at %d: %w", action, pos, ErrAlreadyInFlight)
	}
	c.inflight[entry.ID] = action
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx, entry, action)
	return entry.ID, nil
}

// InFlight reports whether the chunk at pos has a pending call.
func (c *Coordinator) InFlight(pos int) (types.EnrichAction, bool) {
	entry, err := c.coll.Get(pos)
	if err != nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	action, ok := c.inflight[entry.ID]
	return action, ok
}

// Pending returns the number of outstanding calls.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Wait blocks until every outstanding call has been resolved.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) run(ctx context.Context, entry collection.Entry, action types.EnrichAction) {
	defer c.wg.Done()
	defer c.release(entry.ID)

	resp, err := c.enricher.Enrich(ctx, entry.Chunk, action)
	if err != nil {
		eerr := &EnrichmentError{Action: action, ID: entry.ID, Err: err}
		c.logger.Warn("enrichment failed", "action", action, "id", entry.ID, "error", err)
		c.notifier.Notify(notify.Notice{Level: notify.Error, Message: "enrichment failed", Err: eerr})
		return
	}

	err = c.coll.Update(entry.ID, func(current types.Chunk) types.Chunk {
		return Merge(current, entry.Chunk, resp, action)
	})
	if errors.Is(err, collection.ErrStaleIdentity) {
		c.logger.Debug("dropping enrichment result for removed chunk", "action", action, "id", entry.ID)
		return
	}
	if err != nil {
		c.logger.Error("applying enrichment result", "error", err)
		return
	}

	pos, _ := c.coll.PositionOf(entry.ID)
	c.notifier.Notify(notify.Notice{Level: notify.Info, Message: fmt.Sprintf("chunk %d: %s done", pos+1, action)})
}

func (c *Coordinator) release(id collection.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}

// Merge folds a collaborator response into the current chunk. The response
// owns the field the action targets and any other field it changed relative
// to sent; everything else keeps its current value. clean never touches the
// summary.
func Merge(current, sent, resp types.Chunk, action types.EnrichAction) types.Chunk {
	out := current.Clone()

	if action == types.ActionClean || resp.Content != sent.Content {
		out.Content = resp.Content
	}
	if action == types.ActionSummarize && resp.Summary != nil {
		out.Summary = types.Ptr(*resp.Summary)
	}
	if resp.TokenCount != nil && !types.EqualPtr(resp.TokenCount, sent.TokenCount) {
		out.TokenCount = types.Ptr(*resp.TokenCount)
	}
	if resp.OriginalIndex != nil && !types.EqualPtr(resp.OriginalIndex, sent.OriginalIndex) {
		out.OriginalIndex = types.Ptr(*resp.OriginalIndex)
	}
	return out
}
