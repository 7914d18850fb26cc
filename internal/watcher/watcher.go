// Package watcher keeps the index current as source files change. The
// Watcher adapts fsnotify into a bounded event channel; the Coordinator
// debounces those events per file and drives reparse, delta application,
// skeleton invalidation, lexical updates, and embedding scheduling.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileOp is the kind of file change.
type FileOp int

const (
	OpCreate FileOp = iota
	OpWrite
	OpRemove
	OpRename
)

func (op FileOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileChange is one filesystem event after ignore filtering.
type FileChange struct {
	Path string
	Op   FileOp
	Time time.Time
}

// DefaultIgnorePatterns covers directories that never hold indexable
// source.
var DefaultIgnorePatterns = []string{
	".git", "node_modules", "__pycache__", ".venv", "venv",
	".idea", "*.swp", "*.tmp", "*.pyc",
}

// Watcher turns fsnotify events for a directory tree into a bounded
// channel of FileChange values. Directories are registered recursively,
// including ones created after Start. Events for ignored paths are
// dropped; when the buffer is full events are dropped too, which is
// safe because the initial scan plus later writes re-converge the
// index.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	ignore   []string
	events   chan FileChange
	done     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewWatcher creates a watcher for root. bufferSize <= 0 selects a
// default of 1000 pending events.
func NewWatcher(root string, ignore []string, bufferSize int, logger *slog.Logger) (*Watcher, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ignore == nil {
		ignore = DefaultIgnorePatterns
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:   root,
		fsw:    fsw,
		ignore: ignore,
		events: make(chan FileChange, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}, nil
}

// Events returns the channel of filtered file changes.
func (w *Watcher) Events() <-chan FileChange {
	return w.events
}

// Start registers the directory tree and begins forwarding events until
// the context is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

// Stop shuts the watcher down and closes the event channel.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.ignore {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if strings.Contains(path, string(filepath.Separator)+pattern+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event.Name) {
				continue
			}

			// Newly created directories need registration before
			// events inside them can be seen.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						w.logger.Warn("watching new directory failed", "path", event.Name, "error", err)
					}
					continue
				}
			}

			change := FileChange{
				Path: event.Name,
				Op:   convertOp(event.Op),
				Time: time.Now(),
			}
			select {
			case w.events <- change:
			default:
				w.logger.Warn("event buffer full, dropping change", "path", event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watch error", "error", err)
		}
	}
}

func convertOp(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}
