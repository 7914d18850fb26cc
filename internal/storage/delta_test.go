package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

func TestApplyDeltaInitial(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entities := []*types.Entity{
		testEntity("a.py", "f", types.KindFunction, 1, 5, "def f():"),
		testEntity("a.py", "g", types.KindFunction, 7, 9, "def g():"),
	}
	delta, err := store.ApplyDelta(ctx, "a.py", entities, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{entities[0].ID, entities[1].ID}, delta.Added)
	assert.Empty(t, delta.Removed)
	assert.Empty(t, delta.Modified)
}

func TestApplyDeltaModifyAndRemove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := testEntity("a.py", "f", types.KindFunction, 1, 5, "def f():")
	g := testEntity("a.py", "g", types.KindFunction, 7, 9, "def g():")
	_, err := store.ApplyDelta(ctx, "a.py", []*types.Entity{f, g}, nil)
	require.NoError(t, err)

	// f changes signature, g disappears, h is new.
	f2 := testEntity("a.py", "f", types.KindFunction, 1, 6, "def f(x):")
	h := testEntity("a.py", "h", types.KindFunction, 8, 10, "def h():")
	delta, err := store.ApplyDelta(ctx, "a.py", []*types.Entity{f2, h}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{h.ID}, delta.Added)
	assert.Equal(t, []string{f.ID}, delta.Modified)
	assert.Equal(t, []string{g.ID}, delta.Removed)

	_, err = store.GetEntity(ctx, g.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyDeltaPreservesEmbeddingWhenUnchanged(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := testEntity("a.py", "f", types.KindFunction, 1, 5, "def f():")
	_, err := store.ApplyDelta(ctx, "a.py", []*types.Entity{f}, nil)
	require.NoError(t, err)

	stored, err := store.GetEntity(ctx, f.ID)
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(ctx, f.ID, []float32{1, 0, 0}, stored.UpdatedAt))

	// Same signature, shifted lines: embedding and version survive.
	moved := testEntity("a.py", "f", types.KindFunction, 10, 14, "def f():")
	delta, err := store.ApplyDelta(ctx, "a.py", []*types.Entity{moved}, nil)
	require.NoError(t, err)
	assert.True(t, delta.Empty())

	got, err := store.GetEntity(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.StartLine)
	assert.NotNil(t, got.Embedding)
	assert.Equal(t, stored.UpdatedAt, got.UpdatedAt)

	// Changed signature: embedding is cleared and version bumped.
	changed := testEntity("a.py", "f", types.KindFunction, 10, 15, "def f(x):")
	delta, err = store.ApplyDelta(ctx, "a.py", []*types.Entity{changed}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{f.ID}, delta.Modified)

	got, err = store.GetEntity(ctx, f.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Embedding)
	assert.Greater(t, got.UpdatedAt, stored.UpdatedAt)
}

func TestApplyDeltaCascadesEdges(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	caller := testEntity("a.py", "caller", types.KindFunction, 1, 5, "def caller():")
	callee := testEntity("a.py", "callee", types.KindFunction, 7, 9, "def callee():")
	edges := []types.Edge{
		{SourceID: caller.ID, Relation: types.RelationCalls, TargetID: callee.ID, Context: "line:3"},
	}
	_, err := store.ApplyDelta(ctx, "a.py", []*types.Entity{caller, callee}, edges)
	require.NoError(t, err)

	// Re-apply without callee (and without the edge, since the parse
	// could no longer resolve it). The edge must be gone either way.
	delta, err := store.ApplyDelta(ctx, "a.py", []*types.Entity{caller}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{callee.ID}, delta.Removed)

	out, err := store.GetEdges(ctx, caller.ID, nil, types.Downstream)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestApplyDeltaEmptyIsDeletion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := testEntity("a.py", "f", types.KindFunction, 1, 5, "def f():")
	cfg := &types.Entity{ID: types.ConfigID("env", "PORT"), Kind: types.KindConfig, Name: "PORT"}
	edges := []types.Edge{
		{SourceID: f.ID, Relation: types.RelationReadsConfig, TargetID: cfg.ID},
	}
	_, err := store.ApplyDelta(ctx, "a.py", []*types.Entity{f, cfg}, edges)
	require.NoError(t, err)

	delta, err := store.ApplyDelta(ctx, "a.py", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{f.ID}, delta.Removed)

	// Config pseudo entities survive file deltas.
	_, err = store.GetEntity(ctx, cfg.ID)
	assert.NoError(t, err)

	out, err := store.GetEdges(ctx, cfg.ID, nil, types.Upstream)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestApplyDeltaRejectsInvalid(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	bad := &types.Entity{ID: "function:a.py:f", Kind: types.KindFunction, Name: "f"}
	_, err := store.ApplyDelta(ctx, "a.py", []*types.Entity{bad}, nil)
	assert.Error(t, err)

	f := testEntity("a.py", "f", types.KindFunction, 1, 3, "def f():")
	badEdge := []types.Edge{{SourceID: f.ID, Relation: "depends-on", TargetID: "x"}}
	_, err = store.ApplyDelta(ctx, "a.py", []*types.Entity{f}, badEdge)
	assert.Error(t, err)

	// Nothing was committed.
	_, err = store.GetEntity(ctx, f.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyDeltaConcurrentFiles(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	files := []string{"a.py", "b.py", "c.py", "d.py"}
	var wg sync.WaitGroup
	errs := make([]error, len(files))
	for i, file := range files {
		wg.Add(1)
		go func(i int, file string) {
			defer wg.Done()
			e := testEntity(file, "f", types.KindFunction, 1, 3, "def f():")
			_, errs[i] = store.ApplyDelta(ctx, file, []*types.Entity{e}, nil)
		}(i, file)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(files), stats.EntityCount)
}
