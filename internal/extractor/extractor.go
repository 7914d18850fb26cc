package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

// Snapshot holds the parse state of a file from a previous run.
// Passing it back to Parse enables incremental reparsing.
type Snapshot struct {
	Tree    *sitter.Tree
	Content []byte
}

// Close releases the underlying syntax tree
func (s *Snapshot) Close() {
	if s != nil && s.Tree != nil {
		s.Tree.Close()
	}
}

// Result is the output of parsing one file
type Result struct {
	FilePath string
	Entities []*types.Entity
	Edges    []types.Edge

	// Snapshot carries the tree and content forward for the next
	// incremental parse of the same file.
	Snapshot *Snapshot

	// Skipped is set for binary or undecodable content. The file is
	// treated as having no entities; this is not an error.
	Skipped bool

	// ErrorRegions counts syntax error nodes the parse tolerated.
	// Extraction proceeds in the well-formed parts of the tree.
	ErrorRegions int
}

// Extractor parses Python source and extracts entities and edges
type Extractor struct {
	mu     sync.Mutex // tree-sitter parsers are not safe for concurrent use
	parser *sitter.Parser
	rules  Rules
	logger *slog.Logger
}

// New creates an extractor with the given detection rules
func New(rules Rules, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Extractor{
		parser: parser,
		rules:  rules,
		logger: logger,
	}
}

// Close releases the underlying parser
func (x *Extractor) Close() {
	x.parser.Close()
}

// Parse extracts entities and edges from content. When prev holds the
// previous snapshot of the same file, the changed byte range is
// computed and only the affected subtree is reparsed.
func (x *Extractor) Parse(ctx context.Context, filePath string, content []byte, prev *Snapshot) (*Result, error) {
	if isBinary(content) {
		x.logger.Warn("skipping binary or undecodable file", "path", filePath)
		return &Result{FilePath: filePath, Skipped: true}, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	var oldTree *sitter.Tree
	if prev != nil && prev.Tree != nil {
		prev.Tree.Edit(computeEdit(prev.Content, content))
		oldTree = prev.Tree
	}

	tree, err := x.parser.ParseCtx(ctx, oldTree, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	root := tree.RootNode()
	result := &Result{
		FilePath: filePath,
		Snapshot: &Snapshot{Tree: tree, Content: content},
	}
	if root.HasError() {
		result.ErrorRegions = countErrorNodes(root)
		x.logger.Debug("parse completed with syntax errors",
			"path", filePath, "error_regions", result.ErrorRegions)
	}

	idx := buildFileIndex(filePath, root, content)
	result.Edges = extractEdges(idx, x.rules)
	result.Entities = withPseudoTargets(idx.entities, result.Edges)
	return result, nil
}

// withPseudoTargets materializes a pseudo entity for every edge target
// that is not a parsed entity, keeping the invariant that both edge
// endpoints exist in the same delta.
func withPseudoTargets(entities []*types.Entity, edges []types.Edge) []*types.Entity {
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[e.ID] = true
	}
	for _, edge := range edges {
		if known[edge.TargetID] {
			continue
		}
		kind, _, name, err := types.ParseEntityID(edge.TargetID)
		if err != nil || !kind.IsPseudo() {
			continue
		}
		known[edge.TargetID] = true
		entities = append(entities, &types.Entity{
			ID:   edge.TargetID,
			Kind: kind,
			Name: name,
		})
	}
	return entities
}

// computeEdit derives the single changed byte range between two
// versions of a file as the region outside their common prefix and
// suffix.
func computeEdit(old, new []byte) sitter.EditInput {
	prefix := 0
	max := len(old)
	if len(new) < max {
		max = len(new)
	}
	for prefix < max && old[prefix] == new[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < max-prefix &&
		old[len(old)-1-suffix] == new[len(new)-1-suffix] {
		suffix++
	}

	oldEnd := len(old) - suffix
	newEnd := len(new) - suffix
	return sitter.EditInput{
		StartIndex:  uint32(prefix),
		OldEndIndex: uint32(oldEnd),
		NewEndIndex: uint32(newEnd),
		StartPoint:  pointAt(old, prefix),
		OldEndPoint: pointAt(old, oldEnd),
		NewEndPoint: pointAt(new, newEnd),
	}
}

// pointAt converts a byte offset to a row/column point
func pointAt(content []byte, offset int) sitter.Point {
	row := bytes.Count(content[:offset], []byte{'\n'})
	col := offset
	if idx := bytes.LastIndexByte(content[:offset], '\n'); idx >= 0 {
		col = offset - idx - 1
	}
	return sitter.Point{Row: uint32(row), Column: uint32(col)}
}

// isBinary reports whether content looks like binary data: a NUL byte
// in the leading probe window or invalid UTF-8 overall.
func isBinary(content []byte) bool {
	probe := content
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	if bytes.IndexByte(probe, 0) >= 0 {
		return true
	}
	return !utf8.Valid(content)
}

func countErrorNodes(n *sitter.Node) int {
	count := 0
	if n.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		count += countErrorNodes(n.Child(i))
	}
	return count
}
