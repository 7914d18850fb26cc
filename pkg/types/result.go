package types

// SearchHit is one ranked entry returned by the search pipeline.
type SearchHit struct {
	EntityID  string
	Score     float64
	Signature string
	FilePath  string
	Line      int
}

// Subgraph is the result of a bounded graph traversal.
type Subgraph struct {
	RootID    string
	Direction Direction
	MaxDepth  int

	// Adjacency maps each expanded entity to the edges followed from
	// it. Entities visited at the depth limit appear in Entities but
	// have no adjacency entry.
	Adjacency map[string][]Edge

	// Entities holds metadata for every visited node, keyed by ID.
	// Pseudo endpoints that have no stored row map to a synthesized
	// stub entity.
	Entities map[string]*Entity
}

// VisitedCount returns the number of distinct entities the traversal reached.
func (s *Subgraph) VisitedCount() int {
	return len(s.Entities)
}

// CodeWindow is a precise slice of a source file around one entity.
type CodeWindow struct {
	EntityID  string
	FilePath  string
	StartLine int
	EndLine   int

	// Lines holds the window content, one entry per line. The first
	// entry corresponds to StartLine.
	Lines []string
}

// SkeletonEntry is a cached compressed file outline.
type SkeletonEntry struct {
	FilePath string
	Content  string

	// SourceVersion is the hex SHA-256 of the file content the
	// skeleton was rendered from. A mismatch means the cache is stale.
	SourceVersion string
}

// Delta describes the effect of applying one file's extraction result
// to the store.
type Delta struct {
	FilePath string
	Added    []string
	Removed  []string
	Modified []string
}

// Empty reports whether the delta changed nothing.
func (d *Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}
