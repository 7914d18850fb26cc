package extractor

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

// scope associates an extracted code entity with the definition node
// its statements live under. Edge extraction walks one scope at a time.
type scope struct {
	entity    *types.Entity
	node      *sitter.Node // definition node; nil for the module scope
	body      *sitter.Node
	className string // enclosing class for methods, "" otherwise
}

// fileIndex holds everything one parse pass learned about a file
type fileIndex struct {
	filePath string
	root     *sitter.Node
	content  []byte

	entities []*types.Entity
	scopes   []scope

	// Resolution tables for same-file edge targets.
	functions map[string]string // function name -> entity id
	classes   map[string]string // class name -> entity id
	methods   map[string]string // Class.method -> entity id
	constants map[string]bool   // module-level UPPER_CASE bindings
}

// buildFileIndex extracts the file's entities and the per-scope nodes
// edge extraction will walk. Only top-level functions, classes, and
// their direct methods become entities; nested definitions contribute
// their statements to the nearest extracted scope.
func buildFileIndex(filePath string, root *sitter.Node, content []byte) *fileIndex {
	idx := &fileIndex{
		filePath:  filePath,
		root:      root,
		content:   content,
		functions: make(map[string]string),
		classes:   make(map[string]string),
		methods:   make(map[string]string),
		constants: make(map[string]bool),
	}

	module := moduleEntity(filePath, root, content)
	idx.entities = append(idx.entities, module)
	idx.scopes = append(idx.scopes, scope{entity: module, node: nil, body: root})

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := unwrapDecorated(root.NamedChild(i))
		switch child.Type() {
		case "function_definition":
			idx.addFunction(child, "")
		case "class_definition":
			idx.addClass(child)
		case "expression_statement":
			idx.collectConstant(child)
		}
	}
	return idx
}

// collectConstant records a module-level UPPER_CASE assignment as a
// config constant and materializes its pseudo entity. These names
// resolve reads-config edges when functions reference them.
func (idx *fileIndex) collectConstant(stmt *sitter.Node) {
	if stmt.NamedChildCount() == 0 {
		return
	}
	assign := stmt.NamedChild(0)
	if assign.Type() != "assignment" {
		return
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	name := string(idx.content[left.StartByte():left.EndByte()])
	if !isConstantName(name) {
		return
	}
	idx.constants[name] = true
	idx.entities = append(idx.entities, &types.Entity{
		ID:   types.ConfigID("const", name),
		Kind: types.KindConfig,
		Name: name,
	})
}

// isConstantName matches the conventional UPPER_SNAKE_CASE constant style
func isConstantName(name string) bool {
	hasLetter := false
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r == '_' || (r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return hasLetter
}

// moduleEntity builds the one-per-file module entity
func moduleEntity(filePath string, root *sitter.Node, content []byte) *types.Entity {
	name := strings.TrimSuffix(filepath.Base(filePath), ".py")
	lines := 1
	for _, b := range content {
		if b == '\n' {
			lines++
		}
	}
	return &types.Entity{
		ID:        types.EntityID(types.KindModule, filePath, name),
		Kind:      types.KindModule,
		Name:      name,
		FilePath:  filePath,
		StartLine: 1,
		EndLine:   lines,
		Signature: "module " + name,
		Docstring: moduleDocstring(root, content),
	}
}

func (idx *fileIndex) addFunction(node *sitter.Node, className string) {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	name := string(idx.content[nameNode.StartByte():nameNode.EndByte()])

	kind := types.KindFunction
	qualified := name
	if className != "" {
		kind = types.KindMethod
		qualified = className + "." + name
	}

	e := &types.Entity{
		ID:        types.EntityID(kind, idx.filePath, qualified),
		Kind:      kind,
		Name:      qualified,
		FilePath:  idx.filePath,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Signature: signatureOf(node, body, idx.content),
		Docstring: docstringOf(body, idx.content),
	}
	idx.entities = append(idx.entities, e)
	idx.scopes = append(idx.scopes, scope{entity: e, node: node, body: body, className: className})

	if className != "" {
		idx.methods[qualified] = e.ID
	} else {
		idx.functions[name] = e.ID
	}
}

func (idx *fileIndex) addClass(node *sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	name := string(idx.content[nameNode.StartByte():nameNode.EndByte()])

	e := &types.Entity{
		ID:        types.EntityID(types.KindClass, idx.filePath, name),
		Kind:      types.KindClass,
		Name:      name,
		FilePath:  idx.filePath,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Signature: signatureOf(node, body, idx.content),
		Docstring: docstringOf(body, idx.content),
	}
	idx.entities = append(idx.entities, e)
	idx.classes[name] = e.ID
	// Class-level statements (assignments, nested calls) belong to the
	// class scope; method bodies are walked separately.
	idx.scopes = append(idx.scopes, scope{entity: e, node: node, body: body, className: name})

	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := unwrapDecorated(body.NamedChild(i))
		if child.Type() == "function_definition" {
			idx.addFunction(child, name)
		}
	}
}

// unwrapDecorated returns the wrapped definition for decorated nodes
func unwrapDecorated(n *sitter.Node) *sitter.Node {
	if n.Type() == "decorated_definition" {
		if def := n.ChildByFieldName("definition"); def != nil {
			return def
		}
	}
	return n
}

// signatureOf slices the byte span from the definition start to the
// body start, which captures the full header including multi-line
// parameter lists and return annotations.
func signatureOf(def, body *sitter.Node, content []byte) string {
	sig := string(content[def.StartByte():body.StartByte()])
	return strings.TrimRight(sig, " \t\n")
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
	return trimStringQuotes(string(content[str.StartByte():str.EndByte()]))
}

// moduleDocstring is docstringOf applied to the module root
func moduleDocstring(root *sitter.Node, content []byte) string {
	return docstringOf(root, content)
}

// trimStringQuotes strips Python string delimiters and prefixes
func trimStringQuotes(s string) string {
	// Drop string prefixes like r, b, f, u in either case.
	s = strings.TrimLeft(s, "rbfuRBFU")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}
