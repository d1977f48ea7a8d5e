package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// goExtractor is the Go-specific variant. Beyond the shared walk it
// understands receivers (methods attach to their type), the
// struct/interface split inside type declarations, and literal-based
// type inference for var/const declarations.
type goExtractor struct {
	base
}

func newGoExtractor() *goExtractor {
	return &goExtractor{base: base{lang: "go"}}
}

func (e *goExtractor) ExtractSymbols(tree *sitter.Tree, src []byte, path string) []Symbol {
	root := tree.RootNode()
	var symbols []Symbol

	var packageName string
	if pkg := firstChildOfType(root, "package_clause"); pkg != nil {
		packageName = e.nameOf(pkg, src, nil, []string{"package_identifier"})
		if packageName != "" {
			sym := e.symbolAt(pkg, src, path, packageName, packageName, KindNamespace, "")
			sym.Visibility = VisibilityPublic
			symbols = append(symbols, sym)
		}
	}

	// First pass: top-level declarations. Type symbols are collected
	// before methods so receivers can resolve to a parent symbol.
	typeIDs := make(map[string]string) // type name -> symbol id

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "type_declaration":
			for j := 0; j < int(node.NamedChildCount()); j++ {
				spec := node.NamedChild(j)
				if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
					continue
				}
				name := e.text(spec.ChildByFieldName("name"), src)
				if name == "" {
					continue
				}
				kind := KindClass
				switch typeNode := spec.ChildByFieldName("type"); {
				case typeNode == nil:
				case typeNode.Type() == "struct_type":
					kind = KindStruct
				case typeNode.Type() == "interface_type":
					kind = KindInterface
				}
				sym := e.symbolAt(node, src, path, name, name, kind, "")
				sym.Visibility = e.visibilityByCase(name)
				symbols = append(symbols, sym)
				typeIDs[name] = sym.ID

				if kind == KindStruct {
					symbols = append(symbols, e.structFields(spec, src, path, name, sym.ID)...)
				}
			}
		case "import_declaration":
			for j := 0; j < int(node.NamedChildCount()); j++ {
				spec := node.NamedChild(j)
				if spec.Type() != "import_spec" {
					continue
				}
				importPath := strings.Trim(e.text(spec.ChildByFieldName("path"), src), `"`)
				if importPath == "" {
					continue
				}
				name := importPath
				if i := strings.LastIndex(importPath, "/"); i >= 0 {
					name = importPath[i+1:]
				}
				sym := e.symbolAt(spec, src, path, name, importPath, KindImport, "")
				sym.Visibility = VisibilityPrivate
				sym.Metadata = map[string]string{"import_path": importPath}
				symbols = append(symbols, sym)
			}
		}
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "function_declaration":
			name := e.text(node.ChildByFieldName("name"), src)
			if name == "" {
				continue
			}
			sym := e.symbolAt(node, src, path, name, name, KindFunction, "")
			sym.Visibility = e.visibilityByCase(name)
			if result := node.ChildByFieldName("result"); result != nil {
				sym.Metadata = map[string]string{"type": e.text(result, src)}
			}
			symbols = append(symbols, sym)

		case "method_declaration":
			name := e.text(node.ChildByFieldName("name"), src)
			if name == "" {
				continue
			}
			receiver := e.receiverTypeName(node, src)
			qualified := name
			parentID := ""
			if receiver != "" {
				qualified = receiver + "." + name
				parentID = typeIDs[receiver]
			}
			sym := e.symbolAt(node, src, path, name, qualified, KindMethod, parentID)
			sym.Visibility = e.visibilityByCase(name)
			if receiver != "" {
				sym.Metadata = map[string]string{"receiver": receiver}
			}
			if result := node.ChildByFieldName("result"); result != nil {
				if sym.Metadata == nil {
					sym.Metadata = map[string]string{}
				}
				sym.Metadata["type"] = e.text(result, src)
			}
			symbols = append(symbols, sym)

		case "const_declaration", "var_declaration":
			kind := KindConstant
			if node.Type() == "var_declaration" {
				kind = KindVariable
			}
			symbols = append(symbols, e.valueSpecs(node, src, path, kind)...)
		}
	}

	return symbols
}

// structFields emits one property symbol per named struct field.
func (e *goExtractor) structFields(spec *sitter.Node, src []byte, path, typeName, parentID string) []Symbol {
	structType := spec.ChildByFieldName("type")
	if structType == nil {
		return nil
	}
	fieldList := firstChildOfType(structType, "field_declaration_list")
	if fieldList == nil {
		return nil
	}

	var fields []Symbol
	for i := 0; i < int(fieldList.NamedChildCount()); i++ {
		decl := fieldList.NamedChild(i)
		if decl.Type() != "field_declaration" {
			continue
		}
		name := e.text(decl.ChildByFieldName("name"), src)
		if name == "" {
			continue // embedded field
		}
		sym := e.symbolAt(decl, src, path, name, typeName+"."+name, KindProperty, parentID)
		sym.Visibility = e.visibilityByCase(name)
		if fieldType := decl.ChildByFieldName("type"); fieldType != nil {
			sym.Metadata = map[string]string{"type": e.text(fieldType, src)}
		}
		fields = append(fields, sym)
	}
	return fields
}

// valueSpecs flattens const/var specs, attaching declared types when
// written and literal-inferred types when not.
func (e *goExtractor) valueSpecs(decl *sitter.Node, src []byte, path string, kind SymbolKind) []Symbol {
	var out []Symbol
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		spec := decl.NamedChild(i)
		if spec.Type() != "const_spec" && spec.Type() != "var_spec" {
			continue
		}
		name := e.text(spec.ChildByFieldName("name"), src)
		if name == "" {
			continue
		}
		sym := e.symbolAt(spec, src, path, name, name, kind, "")
		sym.Visibility = e.visibilityByCase(name)
		if typeNode := spec.ChildByFieldName("type"); typeNode != nil {
			sym.Metadata = map[string]string{"type": e.text(typeNode, src)}
		} else if inferred := literalType(spec.ChildByFieldName("value")); inferred != "" {
			sym.Metadata = map[string]string{"type": inferred, "inferred": "true"}
		}
		out = append(out, sym)
	}
	return out
}

func (e *goExtractor) receiverTypeName(node *sitter.Node, src []byte) string {
	receiver := node.ChildByFieldName("receiver")
	if receiver == nil {
		return ""
	}
	name := e.identifierIn(receiver, src)
	// The first identifier is the binding; the type follows. Walk for
	// a type_identifier instead.
	var findType func(n *sitter.Node) string
	findType = func(n *sitter.Node) string {
		if n.Type() == "type_identifier" {
			return e.text(n, src)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if t := findType(n.Child(i)); t != "" {
				return t
			}
		}
		return ""
	}
	if t := findType(receiver); t != "" {
		return t
	}
	return name
}

func (e *goExtractor) ExtractRelationships(tree *sitter.Tree, src []byte, path string, symbols []Symbol) []Relationship {
	byName := indexByName(symbols)
	var rels []Relationship

	var walk func(node *sitter.Node, enclosing string)
	walk = func(node *sitter.Node, enclosing string) {
		if node.IsError() {
			return
		}
		switch node.Type() {
		case "function_declaration", "method_declaration":
			name := e.text(node.ChildByFieldName("name"), src)
			if sym, ok := byName[name]; ok {
				enclosing = sym.ID
			}
		case "call_expression":
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

	// Import edges from the file symbol to each imported path.
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

func (e *goExtractor) InferTypes(symbols []Symbol) map[string]TypeInfo {
	types := make(map[string]TypeInfo)
	for _, sym := range symbols {
		declared, ok := sym.Metadata["type"]
		if !ok || declared == "" {
			continue
		}
		types[sym.ID] = TypeInfo{
			SymbolID:     sym.ID,
			ResolvedType: strings.TrimSpace(declared),
			Language:     "go",
			Declared:     sym.Metadata["inferred"] != "true",
		}
	}
	return types
}

// literalType maps a literal value node to its Go type name.
func literalType(value *sitter.Node) string {
	if value == nil {
		return ""
	}
	node := value
	if node.Type() == "expression_list" && node.NamedChildCount() > 0 {
		node = node.NamedChild(0)
	}
	switch node.Type() {
	case "int_literal":
		return "int"
	case "float_literal":
		return "float64"
	case "interpreted_string_literal", "raw_string_literal":
		return "string"
	case "true", "false":
		return "bool"
	case "rune_literal":
		return "rune"
	}
	return ""
}

// firstChildOfType returns the first named child with the given type.
func firstChildOfType(node *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == nodeType {
			return child
		}
	}
	return nil
}
