// Package stream folds a server-pushed event session into a collection.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"chunker/types"
	"chunker/workbench/collection"
	"chunker/workbench/notify"
)

type Status int

const (
	Idle Status = iota
	Active
	Done
	Errored
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Done:
		return "done"
	case Errored:
		return "errored"
	default:
		return "idle"
	}
}

type State struct {
	Status         Status
	TotalExpected  int
	ProcessedCount int
	Err            error
}

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrSuperseded     = errors.New("session superseded")
)

// TransportError means the session failed before a terminal signal.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError carries an error event reported by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server reported error: " + e.Message
}

// EventSource yields raw event payloads in arrival order. Next returns
// io.EOF when the transport closed cleanly.
type EventSource interface {
	Next() (string, error)
	Close() error
}

type Transport interface {
	Open(ctx context.Context, req types.ProcessRequest) (EventSource, error)
}

// Sink receives the chunks of a session.
type Sink interface {
	Append(types.Chunk) collection.ID
	Reset()
}

type wireEvent struct {
	types.StreamEvent
	Error *string `json:"error"`
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Reconciler runs at most one session at a time.
type Reconciler struct {
	transport Transport
	sink      Sink
	notifier  notify.Notifier
	logger    *slog.Logger

	submit sync.Mutex

	mu      sync.Mutex
	state   State
	current *session
}

func NewReconciler(transport Transport, sink Sink, notifier notify.Notifier, logger *slog.Logger) *Reconciler {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		transport: transport,
		sink:      sink,
		notifier:  notifier,
		logger:    logger,
	}
}

// Process tears down any running session, resets the sink and opens a new
// session for req. Events are applied in the background.
func (r *Reconciler) Process(ctx context.Context, req types.ProcessRequest) error {
	r.submit.Lock()
	defer r.submit.Unlock()

	r.Cancel()
	r.sink.Reset()

	sctx, cancel := context.WithCancel(ctx)
	sess := &session{ctx: sctx, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	r.current = sess
	r.state = State{Status: Idle}
	r.mu.Unlock()

	src, err := r.transport.Open(sctx, req)
	if err != nil {
		terr := &TransportError{Err: err}
		r.mu.Lock()
		if r.current == sess && sctx.Err() == nil {
			r.state.Status = Errored
			r.state.Err = terr
		}
		r.mu.Unlock()
		cancel()
		close(sess.done)
		return terr
	}

	r.logger.Debug("stream session opened", "method", req.ChunkingOptions.Method)
	go r.run(sess, src)
	return nil
}

// Fetch produces the whole result of a non-streaming submission.
type Fetch func(ctx context.Context) ([]types.Chunk, error)

// ProcessBatch runs fetch as a session: it tears down the running session,
// resets the sink and appends the fetched chunks only if no other session
// took over meanwhile. A later Process or ProcessBatch cancels it.
func (r *Reconciler) ProcessBatch(ctx context.Context, fetch Fetch) (int, error) {
	r.submit.Lock()
	r.Cancel()
	r.sink.Reset()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess := &session{ctx: sctx, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	r.current = sess
	r.state = State{Status: Active}
	r.mu.Unlock()
	r.submit.Unlock()

	chunks, err := fetch(sctx)
	defer close(sess.done)

	r.mu.Lock()
	if ctx.Err() != nil && r.current == sess {
		r.state = State{Status: Idle}
		r.mu.Unlock()
		return 0, ctx.Err()
	}
	if sctx.Err() != nil || r.current != sess {
		r.mu.Unlock()
		if err == nil {
			return 0, ErrSuperseded
		}
		return 0, fmt.Errorf("%w: %w", ErrSuperseded, err)
	}
	if err != nil {
		r.state.Status = Errored
		r.state.Err = err
		r.mu.Unlock()
		r.notifier.Notify(notify.Notice{Level: notify.Error, Message: "processing failed", Err: err})
		return 0, err
	}
	for _, c := range chunks {
		r.sink.Append(c)
	}
	r.state = State{Status: Done, TotalExpected: len(chunks), ProcessedCount: len(chunks)}
	r.mu.Unlock()

	r.notifier.Notify(notify.Notice{Level: notify.Info, Message: fmt.Sprintf("processing complete: %d chunks", len(chunks))})
	return len(chunks), nil
}

// Cancel aborts the running session and waits for it to exit. No event of
// that session is applied after Cancel returns.
func (r *Reconciler) Cancel() {
	r.mu.Lock()
	sess := r.current
	if sess == nil {
		r.mu.Unlock()
		return
	}
	sess.cancel()
	if r.state.Status == Active || r.state.Status == Idle {
		r.state = State{Status: Idle}
	}
	r.mu.Unlock()

	<-sess.done
}

// Wait blocks until the current session has stopped or ctx is done.
func (r *Reconciler) Wait(ctx context.Context) error {
	r.mu.Lock()
	sess := r.current
	r.mu.Unlock()
	if sess == nil {
		return nil
	}
	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconciler) run(sess *session, src EventSource) {
	defer close(sess.done)
	defer func() {
		if err := src.Close(); err != nil {
			r.logger.Debug("closing event source", "error", err)
		}
	}()

	for {
		data, err := src.Next()
		if err != nil {
			r.finish(sess, err)
			return
		}
		if r.apply(sess, data) {
			return
		}
	}
}

// apply folds one payload into the session and reports whether the session
// is over.
func (r *Reconciler) apply(sess *session, data string) bool {
	var notice *notify.Notice
	defer func() {
		if notice != nil {
			r.notifier.Notify(*notice)
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess.ctx.Err() != nil || r.current != sess {
		return true
	}
	if r.state.Status == Idle {
		r.state.Status = Active
	}

	data = strings.TrimSpace(data)
	if data == types.DoneSentinel {
		r.state.Status = Done
		notice = &notify.Notice{Level: notify.Info, Message: fmt.Sprintf("processing complete: %d chunks", r.state.ProcessedCount)}
		return true
	}

	var ev wireEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		r.logger.Warn("dropping event", "error", fmt.Errorf("%w: %v", ErrMalformedEvent, err))
		return false
	}

	if ev.Error != nil {
		serr := &ServerError{Message: *ev.Error}
		r.state.Status = Errored
		r.state.Err = serr
		notice = &notify.Notice{Level: notify.Error, Message: "processing failed", Err: serr}
		return true
	}

	switch ev.Type {
	case types.EventProgress:
	case types.EventChunk:
		if ev.Chunk == nil {
			r.logger.Warn("dropping event", "error", fmt.Errorf("%w: chunk event without chunk", ErrMalformedEvent))
			return false
		}
		r.sink.Append(*ev.Chunk)
	default:
		r.logger.Warn("dropping event", "error", fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, ev.Type))
		return false
	}
	r.state.TotalExpected = ev.TotalChunks
	r.state.ProcessedCount = ev.ProcessedChunks
	return false
}

func (r *Reconciler) finish(sess *session, err error) {
	var notice notify.Notice

	r.mu.Lock()
	if sess.ctx.Err() != nil || r.current != sess {
		r.mu.Unlock()
		return
	}
	if errors.Is(err, io.EOF) {
		r.state.Status = Done
		notice = notify.Notice{Level: notify.Info, Message: fmt.Sprintf("processing complete: %d chunks", r.state.ProcessedCount)}
	} else {
		terr := &TransportError{Err: err}
		r.state.Status = Errored
		r.state.Err = terr
		notice = notify.Notice{Level: notify.Error, Message: "connection lost, partial results kept", Err: terr}
	}
	r.mu.Unlock()

	r.notifier.Notify(notice)
}
