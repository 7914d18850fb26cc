package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashProviderDeterministic(t *testing.T) {
	p, err := NewHashProvider(64, nil)
	require.NoError(t, err)
	defer p.Close()

	a, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "def connect(url):"})
	require.NoError(t, err)
	b, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "def connect(url):"})
	require.NoError(t, err)
	c, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "class Driver:"})
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector)
	assert.NotEqual(t, a.Vector, c.Vector)
	assert.Len(t, a.Vector, 64)
	assert.Equal(t, ProviderHash, a.Provider)
}

func TestHashProviderUnitLength(t *testing.T) {
	p, err := NewHashProvider(0, nil)
	require.NoError(t, err)

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "open a database connection"})
	require.NoError(t, err)
	require.Len(t, emb.Vector, HashDimension)

	var sum float64
	for _, v := range emb.Vector {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestHashProviderSharedTokens(t *testing.T) {
	p, err := NewHashProvider(128, nil)
	require.NoError(t, err)

	sim := func(x, y []float32) float64 {
		var dot float64
		for i := range x {
			dot += float64(x[i]) * float64(y[i])
		}
		return dot
	}

	a, _ := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "open database connection"})
	b, _ := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "close database connection"})
	c, _ := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "render html template"})

	assert.Greater(t, sim(a.Vector, b.Vector), sim(a.Vector, c.Vector))
}

func TestHashProviderCaches(t *testing.T) {
	cache := NewCache(10)
	p, err := NewHashProvider(32, cache)
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "cached"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Size())

	_, ok := cache.Get(ComputeHash("cached"))
	assert.True(t, ok)
}

func TestHashProviderBatch(t *testing.T) {
	p, err := NewHashProvider(32, nil)
	require.NoError(t, err)

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"one", "two", "three"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, ProviderHash, resp.Provider)
}

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vecs := make([][]float32, len(req.Input))
		for i := range vecs {
			vecs[i] = []float32{float32(i), 1, 2}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model":      req.Model,
			"embeddings": vecs,
		})
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(srv.URL, nil)
	require.NoError(t, err)
	defer p.Close()

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"a", "b"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, []float32{0, 1, 2}, resp.Embeddings[0].Vector)
	assert.Equal(t, []float32{1, 1, 2}, resp.Embeddings[1].Vector)
	assert.Equal(t, ProviderOllama, resp.Provider)
	assert.Equal(t, DefaultOllamaModel, resp.Model)
}

func TestOllamaProviderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model":      "m",
			"embeddings": [][]float32{{1}},
		})
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(srv.URL, nil)
	require.NoError(t, err)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"a", "b"},
	})
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "")
	_, err := NewOpenAIProvider("", "", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  DefaultOpenAIModel,
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2}},
			},
		})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("test-key", srv.URL, nil)
	require.NoError(t, err)
	defer p.Close()

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "def f():"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, emb.Vector)
	assert.Equal(t, ProviderOpenAI, emb.Provider)
}

func TestBatchTooLarge(t *testing.T) {
	p, err := NewOllamaProvider("http://localhost:1", nil)
	require.NoError(t, err)

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "x"
	}
	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}
