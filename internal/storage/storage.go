package storage

import (
	"context"

	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

// Store defines the interface for persisting and querying the code graph
type Store interface {
	// Entity operations
	GetEntity(ctx context.Context, id string) (*types.Entity, error)
	EntitiesByFile(ctx context.Context, filePath string) ([]*types.Entity, error)
	QueryEntities(ctx context.Context, filter EntityFilter) ([]*types.Entity, error)

	// Delta operations. ApplyDelta atomically replaces every entity and
	// edge attributed to one file; deltas for the same file are
	// serialized, deltas for different files proceed independently.
	ApplyDelta(ctx context.Context, filePath string, entities []*types.Entity, edges []types.Edge) (*types.Delta, error)

	// Edge operations
	GetEdges(ctx context.Context, nodeID string, relations []types.Relation, direction types.Direction) ([]types.Edge, error)

	// Embedding operations
	SetEmbedding(ctx context.Context, entityID string, vector []float32, expectVersion int64) error
	PendingEmbeddings(ctx context.Context, limit int) ([]*types.Entity, error)
	SemanticSearch(ctx context.Context, vector []float32, limit int) ([]VectorResult, error)

	// Skeleton cache operations
	GetSkeleton(ctx context.Context, filePath string) (*types.SkeletonEntry, error)
	PutSkeleton(ctx context.Context, entry *types.SkeletonEntry) error
	DeleteSkeleton(ctx context.Context, filePath string) error

	// Maintenance operations
	PruneOrphanPseudos(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*Stats, error)

	// Database operations
	Close() error
}

// EntityFilter narrows a QueryEntities call
type EntityFilter struct {
	Kinds    []types.EntityKind
	FilePath string
	Name     string // exact match on entity name
	Limit    int
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	EntityID        string
	SimilarityScore float64
}

// Stats contains statistics about the index
type Stats struct {
	EntityCount    int
	PseudoCount    int
	EdgeCount      int
	SkeletonCount  int
	EmbeddedCount  int
	IndexSizeMB    float64
	DatabaseDriver string
}
