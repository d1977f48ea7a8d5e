package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// visibilityRule selects how a language infers visibility when it has
// no explicit modifier on the node.
type visibilityRule int

const (
	visByModifiers visibilityRule = iota // scan modifier children, default public
	visByCase                            // Go-style exported case
	visByUnderscore                      // Python-style leading underscore
)

// callSpec describes a call-expression shape: the node type and the
// field holding the callee expression.
type callSpec struct {
	nodeType    string
	calleeField string
}

// decisionTable is the fixed per-language classification table driving
// the shared tree-walk variant. Tables are compiled in; the language
// set stays closed and statically checkable.
type decisionTable struct {
	// kinds maps declaration node types to symbol kinds. A mapped node
	// emits a symbol; containers additionally listed in recurse also
	// descend so nested declarations are found.
	kinds map[string]SymbolKind

	// nameFields lists grammar fields tried, in order, for the name.
	nameFields []string

	// nameChildTypes lists child node types tried when no field hits.
	nameChildTypes []string

	// recurse lists node types to descend into even after emitting.
	recurse map[string]bool

	// visibility picks the defaulting rule for this language.
	visibility visibilityRule

	// calls lists call-expression shapes producing call edges.
	calls []callSpec

	// importNode is the node type of an import declaration, if the
	// language has one worth recording.
	importNode string
}

// genericTables holds the decision table for every language served by
// the shared variant. Documented here, fixed at compile time.
var genericTables = map[string]decisionTable{
	"rust": {
		kinds: map[string]SymbolKind{
			"function_item": KindFunction,
			"struct_item":   KindStruct,
			"enum_item":     KindEnum,
			"trait_item":    KindInterface,
			"mod_item":      KindNamespace,
			"const_item":    KindConstant,
			"static_item":   KindVariable,
		},
		nameFields: []string{"name"},
		recurse:    map[string]bool{"mod_item": true, "impl_item": true, "trait_item": true},
		visibility: visByModifiers,
		calls:      []callSpec{{"call_expression", "function"}},
		importNode: "use_declaration",
	},
	"java": {
		kinds: map[string]SymbolKind{
			"class_declaration":       KindClass,
			"interface_declaration":   KindInterface,
			"enum_declaration":        KindEnum,
			"method_declaration":      KindMethod,
			"constructor_declaration": KindMethod,
			"field_declaration":       KindProperty,
		},
		nameFields: []string{"name", "declarator"},
		recurse:    map[string]bool{"class_declaration": true, "interface_declaration": true, "enum_declaration": true},
		visibility: visByModifiers,
		calls:      []callSpec{{"method_invocation", "name"}},
		importNode: "import_declaration",
	},
	"ruby": {
		kinds: map[string]SymbolKind{
			"method":           KindMethod,
			"singleton_method": KindMethod,
			"class":            KindClass,
			"module":           KindModule,
		},
		nameFields: []string{"name"},
		recurse:    map[string]bool{"class": true, "module": true},
		visibility: visByUnderscore,
		calls:      []callSpec{{"call", "method"}},
	},
	"c": {
		kinds: map[string]SymbolKind{
			"function_definition": KindFunction,
			"struct_specifier":    KindStruct,
			"enum_specifier":      KindEnum,
			"type_definition":     KindClass,
		},
		nameFields: []string{"declarator", "name"},
		visibility: visByModifiers,
		calls:      []callSpec{{"call_expression", "function"}},
	},
	"cpp": {
		kinds: map[string]SymbolKind{
			"function_definition":  KindFunction,
			"class_specifier":      KindClass,
			"struct_specifier":     KindStruct,
			"enum_specifier":       KindEnum,
			"namespace_definition": KindNamespace,
		},
		nameFields: []string{"declarator", "name"},
		recurse:    map[string]bool{"namespace_definition": true, "class_specifier": true, "struct_specifier": true},
		visibility: visByModifiers,
		calls:      []callSpec{{"call_expression", "function"}},
	},
	"csharp": {
		kinds: map[string]SymbolKind{
			"class_declaration":     KindClass,
			"interface_declaration": KindInterface,
			"enum_declaration":      KindEnum,
			"struct_declaration":    KindStruct,
			"method_declaration":    KindMethod,
			"property_declaration":  KindProperty,
			"namespace_declaration": KindNamespace,
		},
		nameFields: []string{"name"},
		recurse: map[string]bool{
			"namespace_declaration": true, "class_declaration": true,
			"interface_declaration": true, "struct_declaration": true,
		},
		visibility: visByModifiers,
		calls:      []callSpec{{"invocation_expression", "function"}},
		importNode: "using_directive",
	},
	"php": {
		kinds: map[string]SymbolKind{
			"function_definition":   KindFunction,
			"method_declaration":    KindMethod,
			"class_declaration":     KindClass,
			"interface_declaration": KindInterface,
			"trait_declaration":     KindClass,
			"namespace_definition":  KindNamespace,
		},
		nameFields: []string{"name"},
		recurse:    map[string]bool{"class_declaration": true, "interface_declaration": true, "trait_declaration": true, "namespace_definition": true},
		visibility: visByModifiers,
		calls:      []callSpec{{"function_call_expression", "function"}},
	},
	"kotlin": {
		kinds: map[string]SymbolKind{
			"class_declaration":    KindClass,
			"object_declaration":   KindClass,
			"function_declaration": KindFunction,
			"property_declaration": KindVariable,
		},
		recurse:    map[string]bool{"class_declaration": true, "object_declaration": true},
		visibility: visByModifiers,
		calls:      []callSpec{{"call_expression", ""}},
	},
	"scala": {
		kinds: map[string]SymbolKind{
			"class_definition":    KindClass,
			"object_definition":   KindClass,
			"trait_definition":    KindInterface,
			"function_definition": KindFunction,
			"val_definition":      KindVariable,
		},
		nameFields: []string{"name"},
		recurse:    map[string]bool{"class_definition": true, "object_definition": true, "trait_definition": true},
		visibility: visByModifiers,
		calls:      []callSpec{{"call_expression", "function"}},
	},
	"swift": {
		kinds: map[string]SymbolKind{
			"class_declaration":    KindClass,
			"protocol_declaration": KindInterface,
			"function_declaration": KindFunction,
			"property_declaration": KindVariable,
		},
		nameFields: []string{"name"},
		recurse:    map[string]bool{"class_declaration": true, "protocol_declaration": true},
		visibility: visByModifiers,
		calls:      []callSpec{{"call_expression", ""}},
	},
	"lua": {
		kinds: map[string]SymbolKind{
			"function_declaration": KindFunction,
			"function_definition":  KindFunction,
		},
		nameFields: []string{"name"},
		visibility: visByUnderscore,
		calls:      []callSpec{{"function_call", "name"}},
	},
	"elm": {
		kinds: map[string]SymbolKind{
			"value_declaration":      KindFunction,
			"type_declaration":       KindClass,
			"type_alias_declaration": KindClass,
		},
		visibility: visByUnderscore,
	},
	"ocaml": {
		kinds: map[string]SymbolKind{
			"value_definition":  KindVariable,
			"type_definition":   KindClass,
			"module_definition": KindNamespace,
		},
		recurse:    map[string]bool{"module_definition": true},
		visibility: visByUnderscore,
	},
	"css": {
		kinds:          map[string]SymbolKind{"rule_set": KindProperty},
		nameChildTypes: []string{"selectors"},
		visibility:     visByModifiers,
	},
	"hcl": {
		kinds:      map[string]SymbolKind{"block": KindNamespace},
		recurse:    map[string]bool{"block": true},
		visibility: visByModifiers,
	},
	"toml": {
		kinds:          map[string]SymbolKind{"table": KindNamespace},
		nameChildTypes: []string{"bare_key", "dotted_key"},
		visibility:     visByModifiers,
	},
	"yaml": {
		kinds:      map[string]SymbolKind{"block_mapping_pair": KindProperty},
		nameFields: []string{"key"},
		recurse:    map[string]bool{"block_mapping_pair": true},
		visibility: visByModifiers,
	},
	"dockerfile": {
		kinds:          map[string]SymbolKind{"from_instruction": KindModule},
		nameChildTypes: []string{"image_spec", "image_alias"},
		visibility:     visByModifiers,
	},
	"protobuf": {
		kinds: map[string]SymbolKind{
			"message": KindClass,
			"enum":    KindEnum,
			"service": KindInterface,
			"rpc":     KindMethod,
		},
		nameChildTypes: []string{"message_name", "enum_name", "service_name", "rpc_name"},
		recurse:        map[string]bool{"message": true, "service": true},
		visibility:     visByModifiers,
	},
}

// tableExtractor is the shared variant: a single tree walk driven by
// a language's decision table. It classifies declarations, records
// containment, and emits call/import edges resolved by name within
// the same file.
type tableExtractor struct {
	base
	table decisionTable
}

func newTableExtractor(lang string) *tableExtractor {
	return &tableExtractor{base: base{lang: lang}, table: genericTables[lang]}
}

func (e *tableExtractor) ExtractSymbols(tree *sitter.Tree, src []byte, path string) []Symbol {
	var symbols []Symbol
	e.walk(tree.RootNode(), src, path, "", "", &symbols)
	return symbols
}

func (e *tableExtractor) walk(node *sitter.Node, src []byte, path, parentID, parentQualified string, out *[]Symbol) {
	if node.IsError() {
		return // skip malformed fragments, keep the rest of the file
	}

	kind, isDecl := e.table.kinds[node.Type()]
	if isDecl {
		name := e.nameOf(node, src, e.table.nameFields, e.table.nameChildTypes)
		if name != "" {
			qualified := name
			if parentQualified != "" {
				qualified = parentQualified + "." + name
			}
			sym := e.symbolAt(node, src, path, name, qualified, kind, parentID)
			sym.Visibility = e.visibilityOf(node, src, name)
			*out = append(*out, sym)

			if e.table.recurse[node.Type()] {
				for i := 0; i < int(node.NamedChildCount()); i++ {
					e.walk(node.NamedChild(i), src, path, sym.ID, qualified, out)
				}
			}
			return
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		e.walk(node.NamedChild(i), src, path, parentID, parentQualified, out)
	}
}

func (e *tableExtractor) visibilityOf(node *sitter.Node, src []byte, name string) Visibility {
	switch e.table.visibility {
	case visByCase:
		return e.visibilityByCase(name)
	case visByUnderscore:
		return e.visibilityByUnderscore(name)
	default:
		return e.visibilityFromModifiers(node, src)
	}
}

func (e *tableExtractor) ExtractRelationships(tree *sitter.Tree, src []byte, path string, symbols []Symbol) []Relationship {
	if len(e.table.calls) == 0 && e.table.importNode == "" {
		return nil
	}

	byName := indexByName(symbols)
	var rels []Relationship

	var walk func(node *sitter.Node, enclosing string)
	walk = func(node *sitter.Node, enclosing string) {
		if node.IsError() {
			return
		}

		// Track the innermost enclosing declared symbol as edge source.
		if _, isDecl := e.table.kinds[node.Type()]; isDecl {
			startLine, startCol, _, _ := e.position(node)
			for _, sym := range symbols {
				if sym.StartLine == startLine && sym.StartCol == startCol {
					enclosing = sym.ID
					break
				}
			}
		}

		for _, spec := range e.table.calls {
			if node.Type() != spec.nodeType || enclosing == "" {
				continue
			}
			callee := e.calleeName(node, src, spec)
			if callee == "" {
				continue
			}
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
				rel.Confidence = 0.7 // cross-file, bound during deferred resolution
			}
			rels = append(rels, rel)
		}

		if e.table.importNode != "" && node.Type() == e.table.importNode {
			rels = append(rels, Relationship{
				Kind:       RelImports,
				SourceID:   fileSymbolID(path),
				TargetName: e.text(node, src),
				Path:       path,
				Line:       int(node.StartPoint().Row) + 1,
				Confidence: 1.0,
			})
		}

		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i), enclosing)
		}
	}
	walk(tree.RootNode(), "")
	return rels
}

func (e *tableExtractor) calleeName(node *sitter.Node, src []byte, spec callSpec) string {
	var calleeNode *sitter.Node
	if spec.calleeField != "" {
		calleeNode = node.ChildByFieldName(spec.calleeField)
	}
	if calleeNode == nil && node.NamedChildCount() > 0 {
		calleeNode = node.NamedChild(0)
	}
	name := e.identifierIn(calleeNode, src)
	// Keep only the final segment of dotted/scoped callees.
	for _, sep := range []string{".", "::", "->"} {
		if i := strings.LastIndex(name, sep); i >= 0 {
			name = name[i+len(sep):]
		}
	}
	return name
}

// InferTypes is best-effort for table-driven languages: only symbols
// that stashed a declared type during symbol extraction get entries.
func (e *tableExtractor) InferTypes(symbols []Symbol) map[string]TypeInfo {
	types := make(map[string]TypeInfo)
	for _, sym := range symbols {
		if declared, ok := sym.Metadata["type"]; ok && declared != "" {
			types[sym.ID] = TypeInfo{
				SymbolID:     sym.ID,
				ResolvedType: declared,
				Language:     e.lang,
				Declared:     true,
			}
		}
	}
	return types
}

// indexByName maps symbol name to the first symbol carrying it, for
// same-file target resolution.
func indexByName(symbols []Symbol) map[string]Symbol {
	byName := make(map[string]Symbol, len(symbols))
	for _, sym := range symbols {
		if _, seen := byName[sym.Name]; !seen {
			byName[sym.Name] = sym
		}
	}
	return byName
}

// fileSymbolID is the source id used for file-scoped edges such as
// imports. Extract persists a matching module symbol whenever a file
// emits such an edge, so the id always lands on a real row.
func fileSymbolID(path string) string {
	return SymbolID(path, path, KindModule, 0, 0)
}

// fileSymbol is the module symbol that anchors a file's own edges.
func fileSymbol(filePath, lang string) Symbol {
	name := filePath
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return Symbol{
		ID:            fileSymbolID(filePath),
		Name:          name,
		QualifiedName: filePath,
		Kind:          KindModule,
		Path:          filePath,
		StartLine:     1,
		EndLine:       1,
		Language:      lang,
		Visibility:    VisibilityPublic,
	}
}
