package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// tsExtractor covers the TypeScript family. The grammar differs per
// dialect (tsx has its own parser, javascript lacks type nodes) but
// the declaration shapes are shared, so one variant serves all three.
type tsExtractor struct {
	base
}

func newTSExtractor(lang string) *tsExtractor {
	return &tsExtractor{base: base{lang: lang}}
}

func (e *tsExtractor) ExtractSymbols(tree *sitter.Tree, src []byte, path string) []Symbol {
	var symbols []Symbol
	e.collect(tree.RootNode(), src, path, "", "", false, false, &symbols)
	return symbols
}

func (e *tsExtractor) collect(node *sitter.Node, src []byte, path, qualifier, parentID string, inClass, exported bool, out *[]Symbol) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.IsError() {
			continue
		}
		switch child.Type() {
		case "export_statement":
			e.collect(child, src, path, qualifier, parentID, inClass, true, out)
		case "function_declaration", "generator_function_declaration":
			e.function(child, src, path, qualifier, parentID, inClass, exported, out)
		case "class_declaration", "abstract_class_declaration":
			e.class(child, src, path, qualifier, parentID, exported, out)
		case "interface_declaration":
			name := e.text(child.ChildByFieldName("name"), src)
			if name == "" {
				continue
			}
			sym := e.symbolAt(child, src, path, name, qualify(qualifier, name), KindInterface, parentID)
			sym.Visibility = exportVisibility(exported)
			*out = append(*out, sym)
		case "enum_declaration":
			name := e.text(child.ChildByFieldName("name"), src)
			if name == "" {
				continue
			}
			sym := e.symbolAt(child, src, path, name, qualify(qualifier, name), KindEnum, parentID)
			sym.Visibility = exportVisibility(exported)
			*out = append(*out, sym)
		case "type_alias_declaration":
			name := e.text(child.ChildByFieldName("name"), src)
			if name == "" {
				continue
			}
			sym := e.symbolAt(child, src, path, name, qualify(qualifier, name), KindClass, parentID)
			sym.Visibility = exportVisibility(exported)
			*out = append(*out, sym)
		case "method_definition":
			name := e.text(child.ChildByFieldName("name"), src)
			if name == "" {
				continue
			}
			sym := e.symbolAt(child, src, path, name, qualify(qualifier, name), KindMethod, parentID)
			sym.Visibility = e.visibilityFromModifiers(child, src)
			if ret := child.ChildByFieldName("return_type"); ret != nil {
				sym.Metadata = map[string]string{"type": strings.TrimPrefix(e.text(ret, src), ": ")}
			}
			*out = append(*out, sym)
		case "public_field_definition", "field_definition":
			name := e.text(child.ChildByFieldName("name"), src)
			if name == "" {
				continue
			}
			sym := e.symbolAt(child, src, path, name, qualify(qualifier, name), KindProperty, parentID)
			sym.Visibility = e.visibilityFromModifiers(child, src)
			if typeNode := child.ChildByFieldName("type"); typeNode != nil {
				sym.Metadata = map[string]string{"type": strings.TrimPrefix(e.text(typeNode, src), ": ")}
			}
			*out = append(*out, sym)
		case "lexical_declaration", "variable_declaration":
			e.variables(child, src, path, qualifier, parentID, exported, out)
		case "import_statement":
			e.importStatement(child, src, path, out)
		case "internal_module", "module":
			// namespace Foo { ... }
			name := e.text(child.ChildByFieldName("name"), src)
			if name == "" {
				continue
			}
			qualified := qualify(qualifier, name)
			sym := e.symbolAt(child, src, path, name, qualified, KindNamespace, parentID)
			sym.Visibility = exportVisibility(exported)
			*out = append(*out, sym)
			if body := child.ChildByFieldName("body"); body != nil {
				e.collect(body, src, path, qualified, sym.ID, false, false, out)
			}
		case "statement_block":
			e.collect(child, src, path, qualifier, parentID, inClass, false, out)
		}
	}
}

func (e *tsExtractor) function(node *sitter.Node, src []byte, path, qualifier, parentID string, inClass, exported bool, out *[]Symbol) {
	name := e.text(node.ChildByFieldName("name"), src)
	if name == "" {
		return
	}
	kind := KindFunction
	if inClass {
		kind = KindMethod
	}
	sym := e.symbolAt(node, src, path, name, qualify(qualifier, name), kind, parentID)
	sym.Visibility = exportVisibility(exported)
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sym.Metadata = map[string]string{"type": strings.TrimPrefix(e.text(ret, src), ": ")}
	}
	*out = append(*out, sym)
}

func (e *tsExtractor) class(node *sitter.Node, src []byte, path, qualifier, parentID string, exported bool, out *[]Symbol) {
	name := e.text(node.ChildByFieldName("name"), src)
	if name == "" {
		return
	}
	qualified := qualify(qualifier, name)
	sym := e.symbolAt(node, src, path, name, qualified, KindClass, parentID)
	sym.Visibility = exportVisibility(exported)
	*out = append(*out, sym)
	if body := node.ChildByFieldName("body"); body != nil {
		e.collect(body, src, path, qualified, sym.ID, true, false, out)
	}
}

func (e *tsExtractor) variables(node *sitter.Node, src []byte, path, qualifier, parentID string, exported bool, out *[]Symbol) {
	isConst := strings.HasPrefix(e.text(node, src), "const")
	for i := 0; i < int(node.NamedChildCount()); i++ {
		declarator := node.NamedChild(i)
		if declarator.Type() != "variable_declarator" {
			continue
		}
		nameNode := declarator.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := e.text(nameNode, src)
		kind := KindVariable
		if isConst {
			kind = KindConstant
		}
		// Arrow functions bound to const are functions in practice.
		if value := declarator.ChildByFieldName("value"); value != nil {
			if value.Type() == "arrow_function" || value.Type() == "function_expression" || value.Type() == "function" {
				kind = KindFunction
			}
		}
		sym := e.symbolAt(declarator, src, path, name, qualify(qualifier, name), kind, parentID)
		sym.Visibility = exportVisibility(exported)
		if typeNode := declarator.ChildByFieldName("type"); typeNode != nil {
			sym.Metadata = map[string]string{"type": strings.TrimPrefix(e.text(typeNode, src), ": ")}
		}
		*out = append(*out, sym)
	}
}

func (e *tsExtractor) importStatement(node *sitter.Node, src []byte, path string, out *[]Symbol) {
	source := strings.Trim(e.text(node.ChildByFieldName("source"), src), "\"'`")
	if source == "" {
		return
	}
	name := source
	if i := strings.LastIndex(source, "/"); i >= 0 {
		name = source[i+1:]
	}
	sym := e.symbolAt(node, src, path, name, source, KindImport, "")
	sym.Visibility = VisibilityPrivate
	sym.Metadata = map[string]string{"import_path": source}
	*out = append(*out, sym)
}

func (e *tsExtractor) ExtractRelationships(tree *sitter.Tree, src []byte, path string, symbols []Symbol) []Relationship {
	byName := indexByName(symbols)
	var rels []Relationship

	var walk func(node *sitter.Node, enclosing string)
	walk = func(node *sitter.Node, enclosing string) {
		if node.IsError() {
			return
		}
		switch node.Type() {
		case "function_declaration", "generator_function_declaration", "method_definition",
			"class_declaration", "abstract_class_declaration":
			name := e.text(node.ChildByFieldName("name"), src)
			if sym, ok := byName[name]; ok {
				enclosing = sym.ID
			}
			if enclosing != "" {
				rels = append(rels, e.heritage(node, src, path, enclosing, byName)...)
			}
		case "variable_declarator":
			name := e.text(node.ChildByFieldName("name"), src)
			if sym, ok := byName[name]; ok && sym.Kind == KindFunction {
				enclosing = sym.ID
			}
		case "call_expression":
			if enclosing != "" {
				callee := e.text(node.ChildByFieldName("function"), src)
				if i := strings.LastIndex(callee, "."); i >= 0 {
					callee = callee[i+1:]
				}
				if callee != "" && callee != "require" {
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

// heritage emits extends and implements edges from a class_heritage
// clause when present.
func (e *tsExtractor) heritage(node *sitter.Node, src []byte, path, sourceID string, byName map[string]Symbol) []Relationship {
	var rels []Relationship
	emit := func(target *sitter.Node, kind RelationshipKind) {
		name := e.text(target, src)
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		if name == "" {
			return
		}
		rel := Relationship{
			Kind:     kind,
			SourceID: sourceID,
			Path:     path,
			Line:     int(target.StartPoint().Row) + 1,
		}
		if sym, ok := byName[name]; ok {
			rel.TargetID = sym.ID
			rel.Confidence = 1.0
		} else {
			rel.TargetName = name
			rel.Confidence = 0.7
		}
		rels = append(rels, rel)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		clause := node.NamedChild(i)
		if clause.Type() != "class_heritage" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			sub := clause.NamedChild(j)
			switch sub.Type() {
			case "extends_clause":
				for k := 0; k < int(sub.NamedChildCount()); k++ {
					emit(sub.NamedChild(k), RelExtends)
				}
			case "implements_clause":
				for k := 0; k < int(sub.NamedChildCount()); k++ {
					emit(sub.NamedChild(k), RelImplements)
				}
			case "identifier", "member_expression":
				emit(sub, RelExtends)
			}
		}
	}
	return rels
}

func (e *tsExtractor) InferTypes(symbols []Symbol) map[string]TypeInfo {
	types := make(map[string]TypeInfo)
	for _, sym := range symbols {
		declared, ok := sym.Metadata["type"]
		if !ok || declared == "" {
			continue
		}
		types[sym.ID] = TypeInfo{
			SymbolID:     sym.ID,
			ResolvedType: strings.TrimSpace(strings.TrimPrefix(declared, ":")),
			Language:     e.lang,
			Declared:     true,
		}
	}
	return types
}

func exportVisibility(exported bool) Visibility {
	if exported {
		return VisibilityPublic
	}
	return VisibilityPrivate
}
