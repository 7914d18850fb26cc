// Package skeleton renders compressed file outlines: imports,
// signatures, and docstrings with every body elided. Rendered outlines
// are cached in the store keyed by a content hash, so unchanged files
// never reparse.
package skeleton

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/itstanner5216/codegraph-mcp/internal/storage"
	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

// Placeholder marks an elided body
const Placeholder = "..."

// Cache is the slice of the store the renderer needs
type Cache interface {
	GetSkeleton(ctx context.Context, filePath string) (*types.SkeletonEntry, error)
	PutSkeleton(ctx context.Context, entry *types.SkeletonEntry) error
}

// Renderer produces and caches skeletons
type Renderer struct {
	cache Cache

	mu     sync.Mutex // tree-sitter parsers are not safe for concurrent use
	parser *sitter.Parser
}

// New creates a renderer backed by the given cache
func New(cache Cache) *Renderer {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Renderer{cache: cache, parser: parser}
}

// Close releases the underlying parser
func (r *Renderer) Close() {
	r.parser.Close()
}

// Render returns the skeleton for content, serving from the cache when
// the stored entry matches the current content hash.
func (r *Renderer) Render(ctx context.Context, filePath string, content []byte) (string, error) {
	version := ContentVersion(content)

	entry, err := r.cache.GetSkeleton(ctx, filePath)
	if err == nil && entry.SourceVersion == version {
		return entry.Content, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	rendered, err := r.render(ctx, content)
	if err != nil {
		return "", fmt.Errorf("failed to render skeleton for %s: %w", filePath, err)
	}

	if err := r.cache.PutSkeleton(ctx, &types.SkeletonEntry{
		FilePath:      filePath,
		Content:       rendered,
		SourceVersion: version,
	}); err != nil {
		return "", err
	}
	return rendered, nil
}

// ContentVersion is the cache key for one version of a file's content
func ContentVersion(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (r *Renderer) render(ctx context.Context, content []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tree, err := r.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	var b strings.Builder
	root := tree.RootNode()

	if doc := docstringOf(root, content); doc != "" {
		writeDocstring(&b, doc, "")
	}

	wroteImports := false
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "import_statement", "import_from_statement":
			b.WriteString(string(content[child.StartByte():child.EndByte()]))
			b.WriteByte('\n')
			wroteImports = true
		}
	}
	if wroteImports {
		b.WriteByte('\n')
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := unwrapDecorated(root.NamedChild(i))
		switch child.Type() {
		case "function_definition":
			writeDefinition(&b, child, content, "")
			b.WriteByte('\n')
		case "class_definition":
			writeClass(&b, child, content)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// writeClass renders a class header, its docstring, and each method
// signature with an elided body
func writeClass(b *strings.Builder, class *sitter.Node, content []byte) {
	body := class.ChildByFieldName("body")
	if body == nil {
		return
	}
	writeSignature(b, class, body, content, "")
	if doc := docstringOf(body, content); doc != "" {
		writeDocstring(b, doc, "    ")
	}

	wroteMember := false
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := unwrapDecorated(body.NamedChild(i))
		if child.Type() != "function_definition" {
			continue
		}
		writeDefinition(b, child, content, "    ")
		wroteMember = true
	}
	if !wroteMember {
		b.WriteString("    " + Placeholder + "\n")
	}
}

// writeDefinition renders one function or method with its body elided
func writeDefinition(b *strings.Builder, def *sitter.Node, content []byte, indent string) {
	body := def.ChildByFieldName("body")
	if body == nil {
		return
	}
	writeSignature(b, def, body, content, indent)
	if doc := docstringOf(body, content); doc != "" {
		writeDocstring(b, doc, indent+"    ")
	}
	b.WriteString(indent + "    " + Placeholder + "\n")
}

// writeSignature emits the byte-precise span from the definition start
// to the body start, one indented line at a time
func writeSignature(b *strings.Builder, def, body *sitter.Node, content []byte, indent string) {
	sig := strings.TrimRight(string(content[def.StartByte():body.StartByte()]), " \t\n")
	for _, line := range strings.Split(sig, "\n") {
		b.WriteString(indent + strings.TrimRight(line, " \t") + "\n")
	}
}

func writeDocstring(b *strings.Builder, doc, indent string) {
	b.WriteString(indent + `"""` + doc + `"""` + "\n")
}

func unwrapDecorated(n *sitter.Node) *sitter.Node {
	if n.Type() == "decorated_definition" {
		if def := n.ChildByFieldName("definition"); def != nil {
			return def
		}
	}
	return n
}

// docstringOf returns the leading string expression of a block, if any
func docstringOf(body *sitter.Node, content []byte) string {
	if body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	text := string(content[str.StartByte():str.EndByte()])
	text = strings.TrimLeft(text, "rbfuRBFU")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			return strings.TrimSpace(text[len(q) : len(text)-len(q)])
		}
	}
	return strings.TrimSpace(text)
}
