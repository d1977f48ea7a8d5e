package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// bashExtractor covers shell scripts. Functions come from
// function_definition nodes, assignments become variables or, when
// SCREAMING_SNAKE or readonly, constants, and commands inside function
// bodies become call edges.
type bashExtractor struct {
	base
}

func newBashExtractor() *bashExtractor {
	return &bashExtractor{base: base{lang: "bash"}}
}

func (e *bashExtractor) ExtractSymbols(tree *sitter.Tree, src []byte, path string) []Symbol {
	var symbols []Symbol
	root := tree.RootNode()

	var walk func(node *sitter.Node, inFunction bool)
	walk = func(node *sitter.Node, inFunction bool) {
		if node.IsError() {
			return
		}
		switch node.Type() {
		case "function_definition":
			name := e.nameOf(node, src, []string{"name"}, []string{"word"})
			if name != "" {
				sym := e.symbolAt(node, src, path, name, name, KindFunction, "")
				sym.Visibility = e.visibilityByUnderscore(name)
				symbols = append(symbols, sym)
			}
			if body := node.ChildByFieldName("body"); body != nil {
				walk(body, true)
			}
			return
		case "variable_assignment":
			if inFunction {
				return // locals are not indexed
			}
			name := e.nameOf(node, src, []string{"name"}, []string{"variable_name"})
			if name == "" {
				return
			}
			kind := KindVariable
			if isScreamingSnake(name) || isReadonlyAssignment(node, src) {
				kind = KindConstant
			}
			sym := e.symbolAt(node, src, path, name, name, kind, "")
			sym.Visibility = e.visibilityByUnderscore(name)
			symbols = append(symbols, sym)
			return
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i), inFunction)
		}
	}
	walk(root, false)
	return symbols
}

func isScreamingSnake(name string) bool {
	hasUpper := false
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			return false
		}
	}
	return hasUpper
}

// isReadonlyAssignment reports whether the assignment sits inside a
// readonly, declare -r, or export declaration.
func isReadonlyAssignment(node *sitter.Node, src []byte) bool {
	parent := node.Parent()
	if parent == nil || parent.Type() != "declaration_command" {
		return false
	}
	head := ""
	if parent.ChildCount() > 0 {
		head = string(src[parent.Child(0).StartByte():parent.Child(0).EndByte()])
	}
	if head == "readonly" {
		return true
	}
	return head == "declare" && strings.Contains(string(src[parent.StartByte():node.StartByte()]), "-r")
}

func (e *bashExtractor) ExtractRelationships(tree *sitter.Tree, src []byte, path string, symbols []Symbol) []Relationship {
	byName := indexByName(symbols)
	var rels []Relationship

	var walk func(node *sitter.Node, enclosing string)
	walk = func(node *sitter.Node, enclosing string) {
		if node.IsError() {
			return
		}
		switch node.Type() {
		case "function_definition":
			name := e.nameOf(node, src, []string{"name"}, []string{"word"})
			if sym, ok := byName[name]; ok {
				enclosing = sym.ID
			}
		case "command":
			cmd := e.text(node.ChildByFieldName("name"), src)
			if cmd == "source" || cmd == "." {
				// source ./lib.sh pulls another script in.
				if arg := firstChildOfType(node, "word"); arg != nil {
					rels = append(rels, Relationship{
						Kind:       RelImports,
						SourceID:   fileSymbolID(path),
						TargetName: e.text(arg, src),
						Path:       path,
						Line:       int(node.StartPoint().Row) + 1,
						Confidence: 1.0,
					})
				}
			} else if enclosing != "" && cmd != "" {
				if target, ok := byName[cmd]; ok && target.Kind == KindFunction {
					rels = append(rels, Relationship{
						Kind:       RelCalls,
						SourceID:   enclosing,
						TargetID:   target.ID,
						Path:       path,
						Line:       int(node.StartPoint().Row) + 1,
						Confidence: 1.0,
					})
				}
			}
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i), enclosing)
		}
	}
	walk(tree.RootNode(), "")
	return rels
}

func (e *bashExtractor) InferTypes(symbols []Symbol) map[string]TypeInfo {
	// Shell has no type declarations worth recording.
	return map[string]TypeInfo{}
}
