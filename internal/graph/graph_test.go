package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstanner5216/codegraph-mcp/internal/storage"
	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

func setupTraverser(t *testing.T) (*Traverser, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, nil), store
}

func fn(name string, line int) *types.Entity {
	return &types.Entity{
		ID:        types.EntityID(types.KindFunction, "app.py", name),
		Kind:      types.KindFunction,
		Name:      name,
		FilePath:  "app.py",
		StartLine: line,
		EndLine:   line + 2,
		Signature: fmt.Sprintf("def %s():", name),
	}
}

func call(source, target *types.Entity) types.Edge {
	return types.Edge{
		SourceID: source.ID,
		Relation: types.RelationCalls,
		TargetID: target.ID,
		Context:  "line:1",
	}
}

// seedChain stores a -> b -> c -> a so traversals must cope with a cycle.
func seedChain(t *testing.T, store storage.Store) (a, b, c *types.Entity) {
	t.Helper()
	a, b, c = fn("a", 1), fn("b", 10), fn("c", 20)
	_, err := store.ApplyDelta(context.Background(), "app.py",
		[]*types.Entity{a, b, c},
		[]types.Edge{call(a, b), call(b, c), call(c, a)})
	require.NoError(t, err)
	return a, b, c
}

func TestTraverseCycle(t *testing.T) {
	tr, store := setupTraverser(t)
	a, b, c := seedChain(t, store)

	sub, err := tr.Traverse(context.Background(), a.ID, nil, types.Downstream, 2)
	require.NoError(t, err)

	// c sits at the depth limit: it is visited but its edge back to a
	// is not followed.
	require.Len(t, sub.Adjacency, 2)
	require.Len(t, sub.Adjacency[a.ID], 1)
	assert.Equal(t, b.ID, sub.Adjacency[a.ID][0].TargetID)
	require.Len(t, sub.Adjacency[b.ID], 1)
	assert.Equal(t, c.ID, sub.Adjacency[b.ID][0].TargetID)

	assert.Equal(t, 3, sub.VisitedCount())
	for _, e := range []*types.Entity{a, b, c} {
		assert.Contains(t, sub.Entities, e.ID)
	}
}

func TestTraverseCycleDeepEnough(t *testing.T) {
	tr, store := setupTraverser(t)
	a, _, c := seedChain(t, store)

	// With room to follow c's edge the walk closes the cycle without
	// revisiting a.
	sub, err := tr.Traverse(context.Background(), a.ID, nil, types.Downstream, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, sub.VisitedCount())
	require.Len(t, sub.Adjacency[c.ID], 1)
	assert.Equal(t, a.ID, sub.Adjacency[c.ID][0].TargetID)
}

func TestTraverseUpstream(t *testing.T) {
	tr, store := setupTraverser(t)
	a, b, c := seedChain(t, store)

	sub, err := tr.Traverse(context.Background(), c.ID, nil, types.Upstream, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, sub.VisitedCount())
	assert.Contains(t, sub.Entities, b.ID)
	assert.NotContains(t, sub.Entities, a.ID)
	require.Len(t, sub.Adjacency[c.ID], 1)
	assert.Equal(t, b.ID, sub.Adjacency[c.ID][0].SourceID)
}

func TestTraverseRelationFilter(t *testing.T) {
	tr, store := setupTraverser(t)
	a, b := fn("a", 1), fn("b", 10)
	edges := []types.Edge{
		call(a, b),
		{
			SourceID: a.ID,
			Relation: types.RelationReadsConfig,
			TargetID: "config:env:DATABASE_URL",
			Context:  "line:2",
		},
	}
	_, err := store.ApplyDelta(context.Background(), "app.py", []*types.Entity{a, b}, edges)
	require.NoError(t, err)

	sub, err := tr.Traverse(context.Background(), a.ID,
		[]types.Relation{types.RelationReadsConfig}, types.Downstream, 1)
	require.NoError(t, err)
	require.Len(t, sub.Adjacency[a.ID], 1)
	assert.Equal(t, "config:env:DATABASE_URL", sub.Adjacency[a.ID][0].TargetID)
	assert.NotContains(t, sub.Entities, b.ID)

	cfg := sub.Entities["config:env:DATABASE_URL"]
	require.NotNil(t, cfg)
	assert.Equal(t, types.KindConfig, cfg.Kind)
}

func TestTraverseUnknownRoot(t *testing.T) {
	tr, _ := setupTraverser(t)
	_, err := tr.Traverse(context.Background(), "function:missing.py:nope", nil, types.Downstream, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTraverseRejectsBadInput(t *testing.T) {
	tr, store := setupTraverser(t)
	a, _, _ := seedChain(t, store)

	_, err := tr.Traverse(context.Background(), a.ID, nil, types.Downstream, -1)
	assert.Error(t, err)

	_, err = tr.Traverse(context.Background(), a.ID,
		[]types.Relation{"depends-on"}, types.Downstream, 1)
	assert.Error(t, err)
}

func TestTraverseZeroDepth(t *testing.T) {
	tr, store := setupTraverser(t)
	a, _, _ := seedChain(t, store)

	sub, err := tr.Traverse(context.Background(), a.ID, nil, types.Downstream, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.VisitedCount())
	assert.Empty(t, sub.Adjacency)
}
