// Package notify carries user-visible, non-fatal notices out of the
// workbench components.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

type Notice struct {
	Level   Level
	Message string
	Err     error
}

func (n Notice) String() string {
	if n.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", n.Level, n.Message, n.Err)
	}
	return fmt.Sprintf("[%s] %s", n.Level, n.Message)
}

type Notifier interface {
	Notify(Notice)
}

type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = Func(func(Notice) {})

// Writer prints notices line by line to w.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (p *Writer) Notify(n Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, n.String())
}

// Logged forwards to next after recording the notice on logger.
func Logged(logger *slog.Logger, next Notifier) Notifier {
	return Func(func(n Notice) {
		attrs := []any{"level", n.Level.String()}
		if n.Err != nil {
			attrs = append(attrs, "error", n.Err)
		}
		logger.Debug(n.Message, attrs...)
		next.Notify(n)
	})
}

// Recorder keeps every notice. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}
