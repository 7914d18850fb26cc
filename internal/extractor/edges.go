package extractor

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

// edgeSet accumulates edges, deduplicating on the identity triple.
// The first context observed for a triple wins.
type edgeSet struct {
	edges []types.Edge
	seen  map[string]bool
}

func newEdgeSet() *edgeSet {
	return &edgeSet{seen: make(map[string]bool)}
}

func (s *edgeSet) add(e types.Edge) {
	key := e.SourceID + "\x00" + string(e.Relation) + "\x00" + e.TargetID
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.edges = append(s.edges, e)
}

// extractEdges walks every scope in the file and derives the five
// relation kinds. Targets are resolved within the file; callees and
// base classes that cannot be resolved produce no edge.
func extractEdges(idx *fileIndex, rules Rules) []types.Edge {
	set := newEdgeSet()

	for _, sc := range idx.scopes {
		if sc.entity.Kind == types.KindClass {
			extractInheritance(idx, sc, set)
		}
		walkScope(sc.body, sc.node, func(n *sitter.Node) {
			switch n.Type() {
			case "call":
				handleCall(idx, sc, n, rules, set)
			case "assignment", "augmented_assignment":
				handleAssignment(idx, sc, n, set)
			case "subscript":
				handleEnvSubscript(idx, sc, n, set)
			case "raise_statement":
				handleRaise(idx, sc, n, set)
			case "identifier":
				handleConstantRead(idx, sc, n, set)
			}
		})
	}
	return set.edges
}

// walkScope visits every node under body without descending into
// nested function or class definitions, which are walked as their own
// scopes (or, for unextracted nested definitions, attributed nowhere).
func walkScope(body, owner *sitter.Node, visit func(*sitter.Node)) {
	var rec func(n *sitter.Node)
	rec = func(n *sitter.Node) {
		if n != body && n != owner {
			switch n.Type() {
			case "function_definition", "class_definition", "decorated_definition":
				return
			}
		}
		visit(n)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			rec(n.NamedChild(i))
		}
	}
	rec(body)
}

func lineContext(n *sitter.Node) string {
	return fmt.Sprintf("line:%d", n.StartPoint().Row+1)
}

// extractInheritance emits inherits-from edges for same-file bases
func extractInheritance(idx *fileIndex, sc scope, set *edgeSet) {
	supers := sc.node.ChildByFieldName("superclasses")
	if supers == nil {
		return
	}
	for i := 0; i < int(supers.NamedChildCount()); i++ {
		base := supers.NamedChild(i)
		if base.Type() != "identifier" {
			continue
		}
		name := string(idx.content[base.StartByte():base.EndByte()])
		targetID, ok := idx.classes[name]
		if !ok {
			continue
		}
		set.add(types.Edge{
			SourceID: sc.entity.ID,
			Relation: types.RelationInheritsFrom,
			TargetID: targetID,
			Context:  lineContext(base),
		})
	}
}

// handleCall derives calls, reads-config, and mutates-state edges from
// one call expression
func handleCall(idx *fileIndex, sc scope, call *sitter.Node, rules Rules, set *edgeSet) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return
	}

	switch fn.Type() {
	case "identifier":
		name := string(idx.content[fn.StartByte():fn.EndByte()])
		if targetID, ok := idx.functions[name]; ok {
			set.add(types.Edge{
				SourceID: sc.entity.ID,
				Relation: types.RelationCalls,
				TargetID: targetID,
				Context:  lineContext(call),
			})
		} else if targetID, ok := idx.classes[name]; ok {
			// Instantiation counts as calling the class.
			set.add(types.Edge{
				SourceID: sc.entity.ID,
				Relation: types.RelationCalls,
				TargetID: targetID,
				Context:  lineContext(call),
			})
		}

	case "attribute":
		path := string(idx.content[fn.StartByte():fn.EndByte()])
		attrNode := fn.ChildByFieldName("attribute")
		objNode := fn.ChildByFieldName("object")
		if attrNode == nil || objNode == nil {
			return
		}
		attr := string(idx.content[attrNode.StartByte():attrNode.EndByte()])

		if rules.EnvReaders[path] {
			if key, ok := firstStringArg(call, idx.content); ok {
				set.add(types.Edge{
					SourceID: sc.entity.ID,
					Relation: types.RelationReadsConfig,
					TargetID: types.ConfigID("env", key),
					Context:  lineContext(call) + " via:" + path,
				})
			}
			return
		}
		if rules.ConfigLoaders[path] {
			if name, ok := firstStringArg(call, idx.content); ok {
				set.add(types.Edge{
					SourceID: sc.entity.ID,
					Relation: types.RelationReadsConfig,
					TargetID: types.ConfigID("file", name),
					Context:  lineContext(call) + " via:" + path,
				})
			}
			return
		}

		// self.helper() resolves to a method of the enclosing class.
		if objNode.Type() == "identifier" && sc.className != "" {
			obj := string(idx.content[objNode.StartByte():objNode.EndByte()])
			if obj == "self" {
				if targetID, ok := idx.methods[sc.className+"."+attr]; ok {
					set.add(types.Edge{
						SourceID: sc.entity.ID,
						Relation: types.RelationCalls,
						TargetID: targetID,
						Context:  lineContext(call),
					})
					return
				}
			}
		}

		if rules.MutatingMethods[attr] {
			if targetID, ok := mutationTarget(idx, sc, objNode); ok {
				set.add(types.Edge{
					SourceID: sc.entity.ID,
					Relation: types.RelationMutatesState,
					TargetID: targetID,
					Context:  lineContext(call) + " via:" + attr,
				})
			}
		}
	}
}

// handleAssignment derives mutates-state edges from attribute,
// subscript, and module-level bindings. Local variable assignments
// inside functions are not state mutations.
func handleAssignment(idx *fileIndex, sc scope, assign *sitter.Node, set *edgeSet) {
	left := assign.ChildByFieldName("left")
	if left == nil {
		return
	}

	switch left.Type() {
	case "attribute", "subscript":
		var target *sitter.Node
		if left.Type() == "attribute" {
			target = left
		} else {
			target = left.ChildByFieldName("value")
		}
		if target == nil {
			return
		}
		if targetID, ok := mutationTarget(idx, sc, target); ok {
			set.add(types.Edge{
				SourceID: sc.entity.ID,
				Relation: types.RelationMutatesState,
				TargetID: targetID,
				Context:  lineContext(assign),
			})
		}

	case "identifier":
		// Only module-level bindings count, and constants are config
		// definitions rather than mutations.
		if sc.entity.Kind != types.KindModule {
			return
		}
		name := string(idx.content[left.StartByte():left.EndByte()])
		if isConstantName(name) {
			return
		}
		set.add(types.Edge{
			SourceID: sc.entity.ID,
			Relation: types.RelationMutatesState,
			TargetID: types.EntityID(types.KindVariable, "", name),
			Context:  lineContext(assign),
		})
	}
}

// mutationTarget resolves the pseudo entity an attribute or identifier
// expression mutates. self.x binds to the enclosing class; a plain
// object identifier is capitalized into its presumed type name.
func mutationTarget(idx *fileIndex, sc scope, expr *sitter.Node) (string, bool) {
	switch expr.Type() {
	case "identifier":
		name := string(idx.content[expr.StartByte():expr.EndByte()])
		if name == "self" {
			return "", false
		}
		return types.EntityID(types.KindVariable, "", name), true

	case "attribute":
		objNode := expr.ChildByFieldName("object")
		attrNode := expr.ChildByFieldName("attribute")
		if objNode == nil || attrNode == nil || objNode.Type() != "identifier" {
			return "", false
		}
		obj := string(idx.content[objNode.StartByte():objNode.EndByte()])
		attr := string(idx.content[attrNode.StartByte():attrNode.EndByte()])

		owner := capitalize(obj)
		if obj == "self" {
			if sc.className == "" {
				return "", false
			}
			owner = sc.className
		}
		return types.EntityID(types.KindAttribute, "", owner+"."+attr), true
	}
	return "", false
}

// handleEnvSubscript derives reads-config from os.environ["KEY"]
func handleEnvSubscript(idx *fileIndex, sc scope, sub *sitter.Node, set *edgeSet) {
	value := sub.ChildByFieldName("value")
	if value == nil || value.Type() != "attribute" {
		return
	}
	if string(idx.content[value.StartByte():value.EndByte()]) != "os.environ" {
		return
	}
	keyNode := sub.ChildByFieldName("subscript")
	if keyNode == nil || keyNode.Type() != "string" {
		return
	}
	key := trimStringQuotes(string(idx.content[keyNode.StartByte():keyNode.EndByte()]))
	set.add(types.Edge{
		SourceID: sc.entity.ID,
		Relation: types.RelationReadsConfig,
		TargetID: types.ConfigID("env", key),
		Context:  lineContext(sub) + " via:os.environ",
	})
}

// handleRaise derives propagates-error edges. A bare raise inside an
// except handler re-raises the handled type.
func handleRaise(idx *fileIndex, sc scope, raise *sitter.Node, set *edgeSet) {
	var typeName string
	if raise.NamedChildCount() > 0 {
		// raise X(...) / raise X / raise X from Y. The first named
		// child is the raised expression; the cause is a separate field.
		typeName = exceptionTypeName(raise.NamedChild(0), idx.content)
	} else {
		typeName = handledExceptionType(raise, idx.content)
	}
	if typeName == "" {
		return
	}

	targetID, ok := idx.classes[typeName]
	if !ok {
		targetID = types.EntityID(types.KindError, "", typeName)
	}
	set.add(types.Edge{
		SourceID: sc.entity.ID,
		Relation: types.RelationPropagatesError,
		TargetID: targetID,
		Context:  lineContext(raise),
	})
}

// exceptionTypeName reduces a raised expression to a type name
func exceptionTypeName(expr *sitter.Node, content []byte) string {
	switch expr.Type() {
	case "identifier":
		return string(content[expr.StartByte():expr.EndByte()])
	case "call":
		fn := expr.ChildByFieldName("function")
		if fn == nil {
			return ""
		}
		return exceptionTypeName(fn, content)
	case "attribute":
		attr := expr.ChildByFieldName("attribute")
		if attr == nil {
			return ""
		}
		return string(content[attr.StartByte():attr.EndByte()])
	case "tuple":
		if expr.NamedChildCount() > 0 {
			return exceptionTypeName(expr.NamedChild(0), content)
		}
	}
	return ""
}

// handledExceptionType climbs to the nearest enclosing except clause
// and returns the type it handles
func handledExceptionType(raise *sitter.Node, content []byte) string {
	for n := raise.Parent(); n != nil; n = n.Parent() {
		if n.Type() != "except_clause" {
			continue
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "block" {
				continue
			}
			// Strip the "as err" alias if present.
			if child.Type() == "as_pattern" {
				if child.NamedChildCount() > 0 {
					child = child.NamedChild(0)
				}
			}
			if name := exceptionTypeName(child, content); name != "" {
				return name
			}
		}
		return ""
	}
	return ""
}

// handleConstantRead derives reads-config edges for references to
// module-level constants from function and method bodies
func handleConstantRead(idx *fileIndex, sc scope, ident *sitter.Node, set *edgeSet) {
	if sc.entity.Kind != types.KindFunction && sc.entity.Kind != types.KindMethod {
		return
	}
	name := string(idx.content[ident.StartByte():ident.EndByte()])
	if !idx.constants[name] {
		return
	}
	set.add(types.Edge{
		SourceID: sc.entity.ID,
		Relation: types.RelationReadsConfig,
		TargetID: types.ConfigID("const", name),
		Context:  lineContext(ident),
	})
}

// firstStringArg returns the unquoted first argument of a call when it
// is a string literal
func firstStringArg(call *sitter.Node, content []byte) (string, bool) {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return "", false
	}
	first := args.NamedChild(0)
	if first.Type() != "string" {
		return "", false
	}
	return trimStringQuotes(string(content[first.StartByte():first.EndByte()])), true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
