// Package extractor parses Python source with tree-sitter and derives
// the entities and typed edges the index stores.
//
// # Entities
//
// One module entity per file, plus top-level functions, classes, and
// their direct methods. Signatures are the byte-precise span from the
// definition start to the body start, so multi-line headers survive
// intact. Docstrings come from the leading string expression of a body.
//
// # Edges
//
// Five relations are derived per scope:
//   - calls: same-file function, class, and self-method calls
//   - mutates-state: attribute/subscript assignments, module-level
//     bindings, and mutating method calls (append, update, ...)
//   - reads-config: os.getenv / os.environ access, config loader calls,
//     and references to module-level constants
//   - propagates-error: raise statements, including bare re-raises
//     inside except handlers
//   - inherits-from: same-file base classes
//
// Targets that exist in the file resolve to real entities; attribute,
// variable, config, and exception targets that don't materialize as
// pseudo entities so every edge endpoint exists. Callees and bases that
// cannot be resolved within the file produce no edge at all.
//
// # Incremental Parsing
//
// Parse accepts the previous Snapshot of a file. The changed byte range
// is computed from the two content versions, applied to the old tree
// via Edit, and tree-sitter reparses only the affected region:
//
//	res, err := x.Parse(ctx, path, newContent, prevSnapshot)
//
// The resulting entities and edges are identical to a full parse of the
// new content.
//
// # Error Tolerance
//
// Syntax errors do not abort extraction; well-formed regions of the
// tree still produce entities. Binary or undecodable files yield an
// empty result flagged Skipped.
package extractor
