package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

func TestSerializeRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.0, 0}
	blob := SerializeVector(vec)
	assert.Len(t, blob, len(vec)*4)
	assert.Equal(t, vec, DeserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Mismatched or zero vectors score zero.
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestSemanticSearch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entities := []*types.Entity{
		testEntity("a.py", "north", types.KindFunction, 1, 3, "def north():"),
		testEntity("a.py", "east", types.KindFunction, 5, 7, "def east():"),
		testEntity("a.py", "unembedded", types.KindFunction, 9, 11, "def unembedded():"),
	}
	_, err := store.ApplyDelta(ctx, "a.py", entities, nil)
	require.NoError(t, err)

	vectors := map[string][]float32{
		entities[0].ID: {0, 1},
		entities[1].ID: {1, 0},
	}
	for id, vec := range vectors {
		e, err := store.GetEntity(ctx, id)
		require.NoError(t, err)
		require.NoError(t, store.SetEmbedding(ctx, id, vec, e.UpdatedAt))
	}

	results, err := store.SemanticSearch(ctx, []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2) // entities without vectors are excluded
	assert.Equal(t, entities[0].ID, results[0].EntityID)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)

	// Limit caps the result set.
	results, err = store.SemanticSearch(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// Empty index searches cleanly.
	empty := setupTestStore(t)
	results, err = empty.SemanticSearch(ctx, []float32{0, 1}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
