package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/itstanner5216/codegraph-mcp/internal/extractor"
	"github.com/itstanner5216/codegraph-mcp/internal/lexical"
	"github.com/itstanner5216/codegraph-mcp/internal/storage"
)

// Embedder is the slice of the embedding queue the coordinator needs.
type Embedder interface {
	Enqueue(ids ...string)
}

// CoordinatorOptions tunes the update coordinator.
type CoordinatorOptions struct {
	Debounce time.Duration // quiet period before a changed file is processed
	Workers  int           // max files processed concurrently
	Logger   *slog.Logger
}

// fileState tracks the per-file update state machine:
// idle -> pending(timer) -> processing -> idle. New events while
// pending reset the timer; new events while processing set rerun so
// exactly one more pass runs. Passes for one file never overlap.
type fileState struct {
	timer      *time.Timer
	processing bool
	rerun      bool
}

// Coordinator consumes file changes and keeps the store, skeleton
// cache, lexical index, and embedding queue in sync with the
// filesystem.
type Coordinator struct {
	store  storage.Store
	parser *extractor.Extractor
	lex    *lexical.Index
	embed  Embedder // nil when embedding is disabled
	logger *slog.Logger

	debounce time.Duration
	sem      chan struct{}

	mu     sync.Mutex
	files  map[string]*fileState
	snaps  map[string]*extractor.Snapshot
	closed bool

	wg sync.WaitGroup
}

// NewCoordinator wires the update pipeline. embed may be nil.
func NewCoordinator(store storage.Store, parser *extractor.Extractor, lex *lexical.Index, embed Embedder, opts CoordinatorOptions) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		store:    store,
		parser:   parser,
		lex:      lex,
		embed:    embed,
		logger:   logger,
		debounce: opts.Debounce,
		sem:      make(chan struct{}, opts.Workers),
		files:    make(map[string]*fileState),
		snaps:    make(map[string]*extractor.Snapshot),
	}
}

// Notify schedules a file for processing after the debounce window.
// Rename and remove take the same path as write: processing stats the
// file and applies a deletion when it is gone, so remove+create pairs
// need no special casing.
func (c *Coordinator) Notify(path string) {
	if !indexable(path) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	state := c.files[path]
	if state == nil {
		state = &fileState{}
		c.files[path] = state
	}

	if state.processing {
		state.rerun = true
		return
	}
	if state.timer != nil {
		state.timer.Reset(c.debounce)
		return
	}
	state.timer = time.AfterFunc(c.debounce, func() { c.fire(path) })
}

// Run consumes changes from the channel until it closes or the context
// is canceled.
func (c *Coordinator) Run(ctx context.Context, changes <-chan FileChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			c.Notify(change.Path)
		}
	}
}

// fire moves a file from pending to processing.
func (c *Coordinator) fire(path string) {
	c.mu.Lock()
	state := c.files[path]
	if state == nil || c.closed {
		c.mu.Unlock()
		return
	}
	state.timer = nil
	if state.processing {
		state.rerun = true
		c.mu.Unlock()
		return
	}
	state.processing = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.processLoop(path, state)
}

func (c *Coordinator) processLoop(path string, state *fileState) {
	defer c.wg.Done()

	for {
		c.sem <- struct{}{}
		c.processFile(context.Background(), path)
		<-c.sem

		c.mu.Lock()
		if state.rerun && !c.closed {
			state.rerun = false
			c.mu.Unlock()
			continue
		}
		state.processing = false
		if state.timer == nil && !state.rerun {
			delete(c.files, path)
		}
		c.mu.Unlock()
		return
	}
}

// processFile runs one full update pass for a file. Errors are logged
// and leave the file idle; the next change reprocesses it.
func (c *Coordinator) processFile(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		c.removeFile(ctx, path)
		return
	}
	if err != nil {
		c.logger.Warn("reading changed file failed", "path", path, "error", err)
		return
	}

	prev := c.takeSnapshot(path)
	result, err := c.parser.Parse(ctx, path, content, prev)
	if err != nil {
		prev.Close()
		c.logger.Warn("parsing changed file failed", "path", path, "error", err)
		return
	}
	prev.Close()
	if result.Skipped {
		return
	}
	c.putSnapshot(path, result.Snapshot)

	delta, err := c.store.ApplyDelta(ctx, path, result.Entities, result.Edges)
	if err != nil {
		c.logger.Warn("applying delta failed", "path", path, "error", err)
		return
	}

	if err := c.store.DeleteSkeleton(ctx, path); err != nil {
		c.logger.Warn("invalidating skeleton failed", "path", path, "error", err)
	}
	c.lex.Update(path, content, result.Entities)

	if c.embed != nil {
		ids := append(append([]string{}, delta.Added...), delta.Modified...)
		if len(ids) > 0 {
			c.embed.Enqueue(ids...)
		}
	}

	if !delta.Empty() {
		c.logger.Debug("file updated",
			"path", path,
			"added", len(delta.Added),
			"modified", len(delta.Modified),
			"removed", len(delta.Removed))
	}
}

// removeFile applies an empty delta and drops every cached artifact.
func (c *Coordinator) removeFile(ctx context.Context, path string) {
	if _, err := c.store.ApplyDelta(ctx, path, nil, nil); err != nil {
		c.logger.Warn("removing file entities failed", "path", path, "error", err)
		return
	}
	if err := c.store.DeleteSkeleton(ctx, path); err != nil {
		c.logger.Warn("invalidating skeleton failed", "path", path, "error", err)
	}
	c.lex.Remove(path)

	c.takeSnapshot(path).Close()
	c.logger.Debug("file removed from index", "path", path)
}

func (c *Coordinator) takeSnapshot(path string) *extractor.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snaps[path]
	delete(c.snaps, path)
	return snap
}

func (c *Coordinator) putSnapshot(path string, snap *extractor.Snapshot) {
	if snap == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		snap.Close()
		return
	}
	old := c.snaps[path]
	c.snaps[path] = snap
	c.mu.Unlock()
	old.Close()
}

// InitialScan indexes every Python file under root, bounded by the
// worker semaphore. Per-file failures are logged and skipped; the walk
// itself failing is an error.
func (c *Coordinator) InitialScan(ctx context.Context, root string, ignore []string) error {
	if ignore == nil {
		ignore = DefaultIgnorePatterns
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		base := filepath.Base(path)
		if d.IsDir() {
			if path != root && ignoredName(base, ignore) {
				return filepath.SkipDir
			}
			return nil
		}
		if indexable(path) && !ignoredName(base, ignore) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range files {
		path := path
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case c.sem <- struct{}{}:
			}
			defer func() { <-c.sem }()

			c.processFile(gctx, path)
			return nil
		})
	}
	return g.Wait()
}

// Close waits for in-flight processing and releases cached trees.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for _, state := range c.files {
		if state.timer != nil {
			state.timer.Stop()
			state.timer = nil
		}
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for path, snap := range c.snaps {
		snap.Close()
		delete(c.snaps, path)
	}
	c.mu.Unlock()
}

func indexable(path string) bool {
	return strings.HasSuffix(path, ".py")
}

func ignoredName(base string, patterns []string) bool {
	for _, pattern := range patterns {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
