package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Sentinel errors shared by the providers and the queue
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding is one generated vector plus the provenance needed to
// cache and audit it
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // content hash of the embedded text
}

// EmbeddingRequest asks for one vector. Text is an entity's embedding
// text, signature plus docstring; body text is never embedded.
type EmbeddingRequest struct {
	Text  string
	Model string // optional override of the provider default
}

// BatchEmbeddingRequest asks for one vector per text in order
type BatchEmbeddingRequest struct {
	Texts []string
	Model string // optional override of the provider default
}

// BatchEmbeddingResponse carries the vectors for a batch request
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder generates vectors for entity texts. Implementations are
// safe for concurrent use.
type Embedder interface {
	// GenerateEmbedding produces a vector for one text
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch produces vectors for several texts in one call
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension is the native vector width of this provider
	Dimension() int

	// Provider is the provider name (openai, ollama, hash)
	Provider() string

	// Model is the model identifier vectors are generated with
	Model() string

	// Close releases provider resources
	Close() error
}

// Cache is an LRU of embeddings keyed by the content hash of the
// embedded text. Entity texts repeat across reindex passes whenever a
// signature survives an edit, which is what makes the cache pay off.
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a cache holding at most maxLen embeddings
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	// lru.New only fails on a non-positive size, which the guard
	// above rules out.
	cache, _ := lru.New[string, *Embedding](maxLen)
	return &Cache{cache: cache}
}

// Get returns a deep copy of the cached embedding for hash, so a
// caller writing through the returned vector cannot corrupt the
// cached one.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vector := make([]float32, len(emb.Vector))
	copy(vector, emb.Vector)
	return &Embedding{
		Vector:    vector,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}, true
}

// Set stores an embedding, evicting the least recently used entry
// when full
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the number of cached embeddings
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash returns the hex SHA-256 of text, the cache key for its
// embedding
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ValidateRequest rejects requests with no text to embed
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest rejects empty batches and batches containing
// empty texts
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
