// Package codegraph maintains a queryable graph of a Python codebase:
// entities and causal relationships extracted by structural parsing,
// fused lexical and semantic search, compressed file skeletons, and
// bounded graph traversal, all kept current by a debounced file
// watcher.
package codegraph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/itstanner5216/codegraph-mcp/internal/embedder"
	"github.com/itstanner5216/codegraph-mcp/internal/extractor"
	"github.com/itstanner5216/codegraph-mcp/internal/fusion"
	"github.com/itstanner5216/codegraph-mcp/internal/graph"
	"github.com/itstanner5216/codegraph-mcp/internal/lexical"
	"github.com/itstanner5216/codegraph-mcp/internal/skeleton"
	"github.com/itstanner5216/codegraph-mcp/internal/storage"
	"github.com/itstanner5216/codegraph-mcp/internal/watcher"
	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

// ErrNotFound is returned for lookups of entities or files the index
// does not hold.
var ErrNotFound = storage.ErrNotFound

const defaultSearchLimit = 20

// Engine is the facade over the index. One Engine owns one database
// and one watched root.
type Engine struct {
	cfg Config

	store    storage.Store
	parser   *extractor.Extractor
	renderer *skeleton.Renderer
	lex      *lexical.Index
	walker   *graph.Traverser
	emb      embedder.Embedder // nil when embedding is disabled
	queue    *embedder.Queue   // nil when embedding is disabled
	coord    *watcher.Coordinator

	mu    sync.Mutex
	watch *watcher.Watcher

	closeOnce sync.Once
	closeErr  error
}

// New wires an engine from the configuration.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		store:    store,
		parser:   extractor.New(extractor.DefaultRules(), cfg.Logger),
		renderer: skeleton.New(store),
		lex:      lexical.New(),
		walker:   graph.New(store, cfg.Logger),
	}

	if !cfg.EmbeddingDisabled {
		emb, err := newEmbedder(cfg)
		if err != nil {
			store.Close()
			return nil, err
		}
		e.emb = emb
		e.queue = embedder.NewQueue(store, emb, embedder.QueueOptions{
			Dimension:  cfg.EmbeddingDim,
			MaxTextLen: cfg.EmbeddingMaxTextLen,
			Logger:     cfg.Logger,
		})
	}

	var enqueuer watcher.Embedder
	if e.queue != nil {
		enqueuer = e.queue
	}
	e.coord = watcher.NewCoordinator(store, e.parser, e.lex, enqueuer, watcher.CoordinatorOptions{
		Debounce: cfg.DebounceInterval,
		Workers:  cfg.Workers,
		Logger:   cfg.Logger,
	})

	return e, nil
}

func newEmbedder(cfg Config) (embedder.Embedder, error) {
	if cfg.EmbeddingProvider == "" {
		return embedder.NewFromEnv()
	}
	return embedder.New(embedder.Config{
		Provider:  cfg.EmbeddingProvider,
		Dimension: cfg.EmbeddingDim,
		CacheSize: 10000,
	})
}

// Index walks the root and builds the initial index. Embedding runs
// asynchronously; entities left without vectors by earlier runs are
// re-enqueued too.
func (e *Engine) Index(ctx context.Context) error {
	if err := e.coord.InitialScan(ctx, e.cfg.Root, e.cfg.IgnorePatterns); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	if e.queue != nil {
		pending, err := e.store.PendingEmbeddings(ctx, 0)
		if err != nil {
			return fmt.Errorf("listing pending embeddings: %w", err)
		}
		ids := make([]string, len(pending))
		for i, entity := range pending {
			ids[i] = entity.ID
		}
		e.queue.Enqueue(ids...)
	}
	return nil
}

// Watch starts the filesystem watcher and feeds changes to the update
// coordinator until the context is canceled.
func (e *Engine) Watch(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watch != nil {
		return nil
	}

	w, err := watcher.NewWatcher(e.cfg.Root, e.cfg.IgnorePatterns, 0, e.cfg.Logger)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("starting watcher: %w", err)
	}
	e.watch = w
	go e.coord.Run(ctx, w.Events())
	return nil
}

// Search runs the lexical and semantic streams concurrently and fuses
// them with reciprocal rank fusion. A failing or disabled semantic
// stream degrades to lexical-only results rather than an error.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]types.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is empty")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var (
		semanticIDs []string
		wg          sync.WaitGroup
	)
	if e.emb != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			semanticIDs = e.semanticStream(ctx, query, limit)
		}()
	}

	matches := e.lex.Search(query, limit)
	lexicalIDs := make([]string, len(matches))
	for i, m := range matches {
		lexicalIDs[i] = m.EntityID
	}
	wg.Wait()

	fused, err := fusion.Fuse(lexicalIDs, semanticIDs, e.cfg.RRFK)
	if err != nil {
		return nil, err
	}

	hits := make([]types.SearchHit, 0, limit)
	for _, r := range fused {
		if len(hits) == limit {
			break
		}
		entity, err := e.store.GetEntity(ctx, r.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue // removed between ranking and hydration
		}
		if err != nil {
			return nil, fmt.Errorf("hydrating search hit %s: %w", r.ID, err)
		}
		hits = append(hits, types.SearchHit{
			EntityID:  entity.ID,
			Score:     r.Score,
			Signature: entity.Signature,
			FilePath:  entity.FilePath,
			Line:      entity.StartLine,
		})
	}
	return hits, nil
}

// semanticStream embeds the query and ranks by vector similarity.
// Every failure path returns nil so search degrades instead of
// breaking.
func (e *Engine) semanticStream(ctx context.Context, query string, limit int) []string {
	emb, err := e.emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		e.cfg.Logger.Warn("semantic search degraded: embedding query failed", "error", err)
		return nil
	}
	vec := emb.Vector
	if e.cfg.EmbeddingDim > 0 {
		vec = embedder.Truncate(vec, e.cfg.EmbeddingDim)
	}

	results, err := e.store.SemanticSearch(ctx, vec, limit)
	if err != nil {
		e.cfg.Logger.Warn("semantic search degraded: vector query failed", "error", err)
		return nil
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.EntityID
	}
	return ids
}

// Skeleton returns the compressed structural view of a file.
func (e *Engine) Skeleton(ctx context.Context, filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filePath, err)
	}
	return e.renderer.Render(ctx, filePath, content)
}

// Traverse walks the relationship graph from an entity. depth <= 0
// selects the configured maximum; larger requests are clamped to it.
func (e *Engine) Traverse(ctx context.Context, entityID string, relations []types.Relation, direction types.Direction, depth int) (*types.Subgraph, error) {
	if depth <= 0 || depth > e.cfg.MaxDepth {
		depth = e.cfg.MaxDepth
	}
	return e.walker.Traverse(ctx, entityID, relations, direction, depth)
}

// ReadWindow returns an entity's source with surrounding context lines.
func (e *Engine) ReadWindow(ctx context.Context, entityID string, contextLines int) (*types.CodeWindow, error) {
	entity, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if entity.Kind.IsPseudo() {
		return nil, fmt.Errorf("entity %s has no source location", entityID)
	}
	if contextLines < 0 {
		contextLines = 0
	}

	content, err := os.ReadFile(entity.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", entity.FilePath, err)
	}
	lines := strings.Split(string(content), "\n")

	start := entity.StartLine - contextLines
	if start < 1 {
		start = 1
	}
	end := entity.EndLine + contextLines
	if end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		return nil, fmt.Errorf("entity %s is out of range for %s", entityID, entity.FilePath)
	}

	return &types.CodeWindow{
		EntityID:  entityID,
		FilePath:  entity.FilePath,
		StartLine: start,
		EndLine:   end,
		Lines:     lines[start-1 : end],
	}, nil
}

// Stats reports index counters.
func (e *Engine) Stats(ctx context.Context) (*storage.Stats, error) {
	return e.store.Stats(ctx)
}

// Close shuts the engine down in dependency order: watcher, update
// coordinator, embedding queue, then the parsers and the store.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		if e.watch != nil {
			e.watch.Stop()
		}
		e.mu.Unlock()

		e.coord.Close()
		if e.queue != nil {
			_ = e.queue.Close()
		}
		if e.emb != nil {
			_ = e.emb.Close()
		}
		e.renderer.Close()
		e.parser.Close()
		e.closeErr = e.store.Close()
	})
	return e.closeErr
}
