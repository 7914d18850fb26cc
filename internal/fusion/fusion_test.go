package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestFuseBothStreams(t *testing.T) {
	// A appears in both lists and must outrank single-stream items.
	results, err := Fuse(
		[]string{"A", "B"},
		[]string{"C", "A"},
		60,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(results))
	assert.InDelta(t, 1.0/61+1.0/62, results[0].Score, 1e-12)
}

func TestFuseTieBreak(t *testing.T) {
	// A and B mirror each other's ranks and tie exactly, as do C and
	// D; the first-encountered item wins each tie.
	results, err := Fuse(
		[]string{"A", "B", "C"},
		[]string{"B", "A", "D"},
		60,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids(results))

	assert.InDelta(t, results[0].Score, results[1].Score, 1e-12)
	assert.InDelta(t, 1.0/63, results[2].Score, 1e-12)
	assert.InDelta(t, 1.0/63, results[3].Score, 1e-12)
}

func TestFuseEmptyStreams(t *testing.T) {
	results, err := Fuse(nil, []string{"A"}, 60)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(results))

	results, err = Fuse(nil, nil, 60)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFuseRequiresPositiveK(t *testing.T) {
	_, err := Fuse([]string{"A"}, nil, 0)
	assert.Error(t, err)
	_, err = Fuse([]string{"A"}, nil, -1)
	assert.Error(t, err)
}

func TestFuseDeterministic(t *testing.T) {
	a := []string{"x", "y", "z"}
	b := []string{"z", "w"}
	first, err := Fuse(a, b, 60)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Fuse(a, b, 60)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
