package types

import (
	"errors"
	"fmt"
)

// Relation represents a typed relationship between two entities
type Relation string

const (
	RelationCalls           Relation = "calls"
	RelationMutatesState    Relation = "mutates-state"
	RelationReadsConfig     Relation = "reads-config"
	RelationPropagatesError Relation = "propagates-error"
	RelationInheritsFrom    Relation = "inherits-from"
)

// AllRelations lists every supported relation in a stable order.
var AllRelations = []Relation{
	RelationCalls,
	RelationMutatesState,
	RelationReadsConfig,
	RelationPropagatesError,
	RelationInheritsFrom,
}

// ValidRelation reports whether r is one of the supported relations.
func ValidRelation(r Relation) bool {
	switch r {
	case RelationCalls, RelationMutatesState, RelationReadsConfig,
		RelationPropagatesError, RelationInheritsFrom:
		return true
	}
	return false
}

// Direction selects which end of an edge a traversal follows.
type Direction string

const (
	// Downstream follows edges where the node is the source.
	Downstream Direction = "downstream"
	// Upstream follows edges where the node is the target.
	Upstream Direction = "upstream"
)

// Edge represents a directed, typed relationship between two entities.
// The (SourceID, Relation, TargetID) triple is unique.
type Edge struct {
	SourceID string
	Relation Relation
	TargetID string

	// Context records where the relationship was observed,
	// e.g. "line:42" or "line:17 via:os.getenv".
	Context string
}

// Validate performs structural validation of the edge.
func (e *Edge) Validate() error {
	if e.SourceID == "" || e.TargetID == "" {
		return errors.New("edge endpoints are required")
	}
	if !ValidRelation(e.Relation) {
		return fmt.Errorf("invalid relation %q", e.Relation)
	}
	return nil
}
