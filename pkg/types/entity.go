package types

import (
	"errors"
	"fmt"
	"strings"
)

// EntityKind represents the kind of indexed code entity
type EntityKind string

const (
	KindFunction EntityKind = "function"
	KindMethod   EntityKind = "method"
	KindClass    EntityKind = "class"
	KindModule   EntityKind = "module"

	// Pseudo kinds: referenced-but-not-defined targets materialized so
	// edges always have resolvable endpoints
	KindAttribute EntityKind = "attribute"
	KindVariable  EntityKind = "variable"
	KindConfig    EntityKind = "config"
	KindError     EntityKind = "error"
)

// IsPseudo reports whether the kind names a placeholder entity rather
// than a parsed definition.
func (k EntityKind) IsPseudo() bool {
	switch k {
	case KindAttribute, KindVariable, KindConfig, KindError:
		return true
	}
	return false
}

// Entity represents a code entity extracted from source via structural parsing.
// Pseudo entities carry only ID, Kind, and Name; the remaining fields stay zero.
type Entity struct {
	// Identification
	ID   string
	Kind EntityKind
	Name string

	// Location
	FilePath  string
	StartLine int
	EndLine   int

	// Content
	Signature string
	Docstring string

	// Embedding is nil until the embedder has processed the entity.
	Embedding []float32

	// UpdatedAt is the entity's content version (unix nanoseconds),
	// bumped on every write. Embedding writes carry the version they
	// were computed against and are rejected when it no longer matches.
	UpdatedAt int64
}

// EntityID builds the canonical entity identifier.
// The format is {kind}:{file_path}:{qualified_name}; methods use
// Class.method as the qualified name.
func EntityID(kind EntityKind, filePath, qualifiedName string) string {
	return fmt.Sprintf("%s:%s:%s", kind, filePath, qualifiedName)
}

// ConfigID builds the identifier for a global config pseudo entity.
// Config entities are not attributed to a file; the middle segment
// namespaces the source kind instead: env, file, or const.
func ConfigID(source, name string) string {
	return fmt.Sprintf("%s:%s:%s", KindConfig, source, name)
}

// ParseEntityID splits an entity identifier into its three segments.
// The file path segment may itself contain colons on some platforms,
// so the split is anchored on the first and last separators.
func ParseEntityID(id string) (kind EntityKind, filePath, name string, err error) {
	first := strings.Index(id, ":")
	last := strings.LastIndex(id, ":")
	if first < 1 || last <= first {
		return "", "", "", fmt.Errorf("malformed entity id %q", id)
	}
	return EntityKind(id[:first]), id[first+1 : last], id[last+1:], nil
}

// Validate performs structural validation of the entity.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return errors.New("entity id is required")
	}
	if e.Name == "" {
		return errors.New("entity name is required")
	}
	switch e.Kind {
	case KindFunction, KindMethod, KindClass, KindModule,
		KindAttribute, KindVariable, KindConfig, KindError:
	default:
		return fmt.Errorf("invalid entity kind %q", e.Kind)
	}
	if e.Kind.IsPseudo() {
		return nil
	}
	if e.FilePath == "" {
		return errors.New("file path is required")
	}
	if e.StartLine <= 0 || e.EndLine < e.StartLine {
		return errors.New("invalid line span")
	}
	return nil
}

// EmbeddingText returns the text the embedder should encode for this
// entity. Bodies are deliberately excluded; only the signature and
// docstring participate in semantic similarity.
func (e *Entity) EmbeddingText() string {
	if e.Docstring == "" {
		return e.Signature
	}
	return e.Signature + "\n" + e.Docstring
}
