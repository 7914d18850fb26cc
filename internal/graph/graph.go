// Package graph walks the relationship edges stored alongside code
// entities and produces bounded subgraphs for impact analysis.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/itstanner5216/codegraph-mcp/internal/storage"
	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

// Traverser performs breadth-first walks over the edge store.
type Traverser struct {
	store  storage.Store
	logger *slog.Logger
}

// New creates a Traverser backed by the given store.
func New(store storage.Store, logger *slog.Logger) *Traverser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Traverser{store: store, logger: logger}
}

// Traverse walks outward from rootID up to maxDepth hops, following only
// the given relations (all relations when the slice is empty). Nodes at
// the depth limit are included in the result but their outgoing edges
// are not followed, so cycles and deep chains terminate cleanly.
//
// Returns storage.ErrNotFound when the root entity does not exist.
func (t *Traverser) Traverse(ctx context.Context, rootID string, relations []types.Relation, direction types.Direction, maxDepth int) (*types.Subgraph, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("max depth must be non-negative, got %d", maxDepth)
	}
	for _, rel := range relations {
		if !types.ValidRelation(rel) {
			return nil, fmt.Errorf("unknown relation %q", rel)
		}
	}

	root, err := t.store.GetEntity(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("resolving traversal root %s: %w", rootID, err)
	}

	sub := &types.Subgraph{
		RootID:    rootID,
		Direction: direction,
		MaxDepth:  maxDepth,
		Adjacency: make(map[string][]types.Edge),
		Entities:  map[string]*types.Entity{rootID: root},
	}

	type frontier struct {
		id    string
		depth int
	}
	visited := map[string]bool{rootID: true}
	queue := []frontier{{id: rootID, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= maxDepth {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		edges, err := t.store.GetEdges(ctx, cur.id, relations, direction)
		if err != nil {
			return nil, fmt.Errorf("loading edges for %s: %w", cur.id, err)
		}
		sub.Adjacency[cur.id] = edges

		for _, edge := range edges {
			next := edge.TargetID
			if direction == types.Upstream {
				next = edge.SourceID
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, frontier{id: next, depth: cur.depth + 1})

			entity, err := t.store.GetEntity(ctx, next)
			if errors.Is(err, storage.ErrNotFound) {
				entity = stubEntity(next)
			} else if err != nil {
				return nil, fmt.Errorf("loading entity %s: %w", next, err)
			}
			sub.Entities[next] = entity
		}
	}

	t.logger.Debug("traversal complete",
		"root", rootID,
		"direction", direction,
		"max_depth", maxDepth,
		"visited", sub.VisitedCount())
	return sub, nil
}

// stubEntity builds a minimal entity for an edge endpoint with no
// stored row, so callers always find metadata for every node.
func stubEntity(id string) *types.Entity {
	kind, filePath, name, err := types.ParseEntityID(id)
	if err != nil {
		return &types.Entity{ID: id, Name: id}
	}
	return &types.Entity{
		ID:       id,
		Kind:     kind,
		Name:     name,
		FilePath: filePath,
	}
}
