package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// pythonExtractor handles def/class nesting, decorated definitions,
// module-level assignments, and underscore visibility.
type pythonExtractor struct {
	base
}

func newPythonExtractor() *pythonExtractor {
	return &pythonExtractor{base: base{lang: "python"}}
}

func (e *pythonExtractor) ExtractSymbols(tree *sitter.Tree, src []byte, path string) []Symbol {
	var symbols []Symbol
	e.collect(tree.RootNode(), src, path, "", "", false, &symbols)
	return symbols
}

func (e *pythonExtractor) collect(node *sitter.Node, src []byte, path, qualifier, parentID string, inClass bool, out *[]Symbol) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.IsError() {
			continue
		}
		switch child.Type() {
		case "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil {
				e.definition(def, child, src, path, qualifier, parentID, inClass, out)
			}
		case "function_definition", "class_definition":
			e.definition(child, child, src, path, qualifier, parentID, inClass, out)
		case "expression_statement":
			// Module and class level assignments become variables or,
			// by SCREAMING_SNAKE convention, constants.
			if node.Type() != "module" && node.Type() != "block" {
				continue
			}
			for j := 0; j < int(child.NamedChildCount()); j++ {
				assign := child.NamedChild(j)
				if assign.Type() != "assignment" {
					continue
				}
				left := assign.ChildByFieldName("left")
				if left == nil || left.Type() != "identifier" {
					continue
				}
				name := e.text(left, src)
				kind := KindVariable
				if name == strings.ToUpper(name) && strings.ContainsAny(name, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
					kind = KindConstant
				}
				sym := e.symbolAt(assign, src, path, name, qualify(qualifier, name), kind, parentID)
				sym.Visibility = e.visibilityByUnderscore(name)
				if typeNode := assign.ChildByFieldName("type"); typeNode != nil {
					sym.Metadata = map[string]string{"type": e.text(typeNode, src)}
				}
				*out = append(*out, sym)
			}
		case "import_statement", "import_from_statement":
			e.importStatement(child, src, path, out)
		case "if_statement", "try_statement", "with_statement":
			e.collect(child, src, path, qualifier, parentID, inClass, out)
		case "block":
			e.collect(child, src, path, qualifier, parentID, inClass, out)
		}
	}
}

func (e *pythonExtractor) definition(def, spanNode *sitter.Node, src []byte, path, qualifier, parentID string, inClass bool, out *[]Symbol) {
	name := e.text(def.ChildByFieldName("name"), src)
	if name == "" {
		return
	}
	qualified := qualify(qualifier, name)

	switch def.Type() {
	case "class_definition":
		sym := e.symbolAt(spanNode, src, path, name, qualified, KindClass, parentID)
		sym.Visibility = e.visibilityByUnderscore(name)
		*out = append(*out, sym)
		if body := def.ChildByFieldName("body"); body != nil {
			e.collect(body, src, path, qualified, sym.ID, true, out)
		}
	case "function_definition":
		kind := KindFunction
		if inClass {
			kind = KindMethod
		}
		sym := e.symbolAt(spanNode, src, path, name, qualified, kind, parentID)
		sym.Visibility = e.visibilityByUnderscore(name)
		if ret := def.ChildByFieldName("return_type"); ret != nil {
			sym.Metadata = map[string]string{"type": e.text(ret, src)}
		}
		*out = append(*out, sym)
		if body := def.ChildByFieldName("body"); body != nil {
			// Nested defs are functions regardless of the enclosing class.
			e.collect(body, src, path, qualified, sym.ID, false, out)
		}
	}
}

func (e *pythonExtractor) importStatement(node *sitter.Node, src []byte, path string, out *[]Symbol) {
	module := ""
	if node.Type() == "import_from_statement" {
		module = e.text(node.ChildByFieldName("module_name"), src)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		var target string
		switch child.Type() {
		case "dotted_name":
			target = e.text(child, src)
			if node.Type() == "import_from_statement" && target == module {
				continue
			}
		case "aliased_import":
			target = e.text(child.ChildByFieldName("name"), src)
		default:
			continue
		}
		if target == "" {
			continue
		}
		full := target
		if module != "" {
			full = module + "." + target
		}
		name := target
		if i := strings.LastIndex(target, "."); i >= 0 {
			name = target[i+1:]
		}
		sym := e.symbolAt(child, src, path, name, full, KindImport, "")
		sym.Visibility = VisibilityPrivate
		sym.Metadata = map[string]string{"import_path": full}
		*out = append(*out, sym)
	}
}

func (e *pythonExtractor) ExtractRelationships(tree *sitter.Tree, src []byte, path string, symbols []Symbol) []Relationship {
	byName := indexByName(symbols)
	var rels []Relationship

	var walk func(node *sitter.Node, enclosing string)
	walk = func(node *sitter.Node, enclosing string) {
		if node.IsError() {
			return
		}
		switch node.Type() {
		case "function_definition", "class_definition":
			name := e.text(node.ChildByFieldName("name"), src)
			if sym, ok := byName[name]; ok {
				enclosing = sym.ID
			}
			// Superclasses become extends edges.
			if node.Type() == "class_definition" && enclosing != "" {
				if supers := node.ChildByFieldName("superclasses"); supers != nil {
					for i := 0; i < int(supers.NamedChildCount()); i++ {
						super := supers.NamedChild(i)
						if super.Type() != "identifier" && super.Type() != "attribute" {
							continue
						}
						superName := e.text(super, src)
						if i := strings.LastIndex(superName, "."); i >= 0 {
							superName = superName[i+1:]
						}
						rel := Relationship{
							Kind:     RelExtends,
							SourceID: enclosing,
							Path:     path,
							Line:     int(super.StartPoint().Row) + 1,
						}
						if target, ok := byName[superName]; ok {
							rel.TargetID = target.ID
							rel.Confidence = 1.0
						} else {
							rel.TargetName = superName
							rel.Confidence = 0.7
						}
						rels = append(rels, rel)
					}
				}
			}
		case "call":
			if enclosing != "" {
				callee := e.text(node.ChildByFieldName("function"), src)
				if i := strings.LastIndex(callee, "."); i >= 0 {
					callee = callee[i+1:]
				}
				if callee != "" {
					rel := Relationship{
						Kind:     RelCalls,
						SourceID: enclosing,
						Path:     path,
						Line:     int(node.StartPoint().Row) + 1,
					}
					if target, ok := byName[callee]; ok {
						rel.TargetID = target.ID
						rel.Confidence = 1.0
					} else {
						rel.TargetName = callee
						rel.Confidence = 0.7
					}
					rels = append(rels, rel)
				}
			}
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i), enclosing)
		}
	}
	walk(tree.RootNode(), "")

	for _, sym := range symbols {
		if sym.Kind != KindImport {
			continue
		}
		rels = append(rels, Relationship{
			Kind:       RelImports,
			SourceID:   fileSymbolID(path),
			TargetName: sym.Metadata["import_path"],
			Path:       path,
			Line:       sym.StartLine,
			Confidence: 1.0,
		})
	}
	return rels
}

func (e *pythonExtractor) InferTypes(symbols []Symbol) map[string]TypeInfo {
	types := make(map[string]TypeInfo)
	for _, sym := range symbols {
		declared, ok := sym.Metadata["type"]
		if !ok || declared == "" {
			continue
		}
		types[sym.ID] = TypeInfo{
			SymbolID:     sym.ID,
			ResolvedType: strings.TrimSpace(declared),
			Language:     "python",
			Declared:     true,
		}
	}
	return types
}

func qualify(qualifier, name string) string {
	if qualifier == "" {
		return name
	}
	return qualifier + "." + name
}
