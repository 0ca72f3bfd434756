package loader

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher polls a directory and hands out files that have stayed put for
// the settle time. A handed out file is not offered again until Done.
type Watcher struct {
	dir      string
	settle   time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	firstSeen  map[string]time.Time
	processing map[string]bool
}

func NewWatcher(dir string, settle, interval time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:        dir,
		settle:     settle,
		interval:   interval,
		logger:     logger,
		firstSeen:  make(map[string]time.Time),
		processing: make(map[string]bool),
	}
}

// Watch sends ready file paths on out until ctx is done.
func (w *Watcher) Watch(ctx context.Context, out chan<- string) {
	w.logger.Info("start monitoring folder", "dir", w.dir)
	defer w.logger.Info("file watcher stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range w.Scan(time.Now()) {
				select {
				case out <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Scan lists the directory once and returns the files that became ready.
func (w *Watcher) Scan(now time.Time) []string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error("error while reading source directory", "dir", w.dir, "error", err)
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	current := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		current[path] = true

		if w.processing[path] {
			continue
		}
		first, seen := w.firstSeen[path]
		if !seen {
			w.firstSeen[path] = now
			w.logger.Debug("new file detected", "file", path)
			continue
		}
		if now.Sub(first) >= w.settle {
			w.processing[path] = true
			ready = append(ready, path)
		}
	}

	for path := range w.firstSeen {
		if !current[path] {
			delete(w.firstSeen, path)
			delete(w.processing, path)
			w.logger.Debug("file removed from tracking", "file", path)
		}
	}
	return ready
}

// Done forgets path so a new file with the same name is picked up again.
func (w *Watcher) Done(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.processing, path)
	delete(w.firstSeen, path)
}
