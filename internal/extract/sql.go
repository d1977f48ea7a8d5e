package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// sqlExtractor maps DDL to the symbol model: CREATE TABLE becomes a
// table symbol with one column symbol per definition, views and
// functions get their own kinds, and FOREIGN KEY clauses become
// references edges from the constrained column against the target
// table name.
type sqlExtractor struct {
	base
}

func newSQLExtractor() *sqlExtractor {
	return &sqlExtractor{base: base{lang: "sql"}}
}

func (e *sqlExtractor) ExtractSymbols(tree *sitter.Tree, src []byte, path string) []Symbol {
	var symbols []Symbol

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node.IsError() {
			return
		}
		switch node.Type() {
		case "create_table_statement", "create_table":
			name := e.objectName(node, src)
			if name != "" {
				table := e.symbolAt(node, src, path, name, name, KindTable, "")
				table.Visibility = VisibilityPublic
				symbols = append(symbols, table)
				symbols = append(symbols, e.columns(node, src, path, name, table.ID)...)
			}
			return
		case "create_view_statement", "create_view":
			name := e.objectName(node, src)
			if name != "" {
				sym := e.symbolAt(node, src, path, name, name, KindTable, "")
				sym.Visibility = VisibilityPublic
				sym.Metadata = map[string]string{"view": "true"}
				symbols = append(symbols, sym)
			}
			return
		case "create_function_statement", "create_function",
			"create_procedure_statement", "create_procedure":
			name := e.objectName(node, src)
			if name != "" {
				sym := e.symbolAt(node, src, path, name, name, KindFunction, "")
				sym.Visibility = VisibilityPublic
				symbols = append(symbols, sym)
			}
			return
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i))
		}
	}
	walk(tree.RootNode())
	return symbols
}

// objectName finds the table or routine name of a CREATE statement.
func (e *sqlExtractor) objectName(node *sitter.Node, src []byte) string {
	var find func(n *sitter.Node) string
	find = func(n *sitter.Node) string {
		switch n.Type() {
		case "object_reference":
			name := e.text(n, src)
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			return name
		case "identifier":
			return e.text(n, src)
		case "column_definitions", "column_definition":
			return ""
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if name := find(n.NamedChild(i)); name != "" {
				return name
			}
		}
		return ""
	}
	return strings.Trim(find(node), "`\"[]")
}

func (e *sqlExtractor) columns(table *sitter.Node, src []byte, path, tableName, tableID string) []Symbol {
	var cols []Symbol
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "column_definition" {
			name := ""
			colType := ""
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if name == "" && (child.Type() == "identifier" || child.Type() == "column") {
					name = strings.Trim(e.text(child, src), "`\"[]")
					continue
				}
				if name != "" && colType == "" {
					colType = e.text(child, src)
				}
			}
			if name != "" {
				col := e.symbolAt(n, src, path, name, tableName+"."+name, KindColumn, tableID)
				col.Visibility = VisibilityPublic
				if colType != "" {
					col.Metadata = map[string]string{"type": strings.ToUpper(colType)}
				}
				cols = append(cols, col)
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(table)
	return cols
}

func (e *sqlExtractor) ExtractRelationships(tree *sitter.Tree, src []byte, path string, symbols []Symbol) []Relationship {
	byName := indexByName(symbols)
	byQualified := make(map[string]Symbol, len(symbols))
	for _, sym := range symbols {
		if _, seen := byQualified[sym.QualifiedName]; !seen {
			byQualified[sym.QualifiedName] = sym
		}
	}
	var rels []Relationship

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node.IsError() {
			return
		}
		if node.Type() == "create_table_statement" || node.Type() == "create_table" {
			tableName := e.objectName(node, src)
			if table, ok := byName[tableName]; ok {
				rels = append(rels, e.foreignKeys(node, src, path, table.ID, tableName, byName, byQualified)...)
			}
			return
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i))
		}
	}
	walk(tree.RootNode())
	return rels
}

// foreignKeys scans constraint clause text for REFERENCES targets.
// Grammar constraint node names vary across dialects, so the target
// table and constrained column are recovered from the clause text.
// Each edge sources from the constrained column symbol when it can be
// found, falling back to the table symbol otherwise.
func (e *sqlExtractor) foreignKeys(table *sitter.Node, src []byte, path, tableID, sourceName string, byName, byQualified map[string]Symbol) []Relationship {
	var rels []Relationship
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		text := e.text(n, src)
		if strings.Contains(n.Type(), "constraint") || n.Type() == "column_definition" {
			if target, column := referencesTarget(text); target != "" {
				sourceID := tableID
				sourceColumn := e.constrainedColumn(n, src, text)
				if sourceColumn != "" {
					if col, ok := byQualified[sourceName+"."+sourceColumn]; ok {
						sourceID = col.ID
					}
				}
				rel := Relationship{
					Kind:     RelReferences,
					SourceID: sourceID,
					Path:     path,
					Line:     int(n.StartPoint().Row) + 1,
					Metadata: map[string]string{"source_table": sourceName},
				}
				if sourceColumn != "" {
					rel.Metadata["source_column"] = sourceColumn
				}
				if column != "" {
					rel.Metadata["target_column"] = column
				}
				if sym, ok := byName[target]; ok {
					rel.TargetID = sym.ID
					rel.Confidence = 1.0
				} else {
					rel.TargetName = target
					rel.Confidence = 0.8
				}
				rels = append(rels, rel)
			}
			if n.Type() == "column_definition" {
				return
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(table)
	return rels
}

// constrainedColumn names the column a REFERENCES clause constrains.
// Inline constraints take the column from the enclosing definition,
// table-level constraints from the "FOREIGN KEY (col)" list.
func (e *sqlExtractor) constrainedColumn(n *sitter.Node, src []byte, clause string) string {
	if n.Type() == "column_definition" {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "identifier" || child.Type() == "column" {
				return strings.Trim(e.text(child, src), "`\"[]")
			}
		}
		return ""
	}
	upper := strings.ToUpper(clause)
	idx := strings.Index(upper, "FOREIGN KEY")
	if idx < 0 {
		return ""
	}
	rest := clause[idx+len("FOREIGN KEY"):]
	open := strings.Index(rest, "(")
	if open < 0 {
		return ""
	}
	close := strings.Index(rest[open:], ")")
	if close <= 0 {
		return ""
	}
	return strings.TrimSpace(strings.Trim(rest[open+1:open+close], "`\"[] "))
}

// referencesTarget parses "REFERENCES target(col)" out of a constraint
// clause, returning the target table and, when present, the column.
func referencesTarget(clause string) (table, column string) {
	upper := strings.ToUpper(clause)
	idx := strings.Index(upper, "REFERENCES")
	if idx < 0 {
		return "", ""
	}
	rest := strings.TrimSpace(clause[idx+len("REFERENCES"):])
	if rest == "" {
		return "", ""
	}
	end := strings.IndexAny(rest, " \t\n(")
	if end < 0 {
		end = len(rest)
	}
	table = strings.Trim(rest[:end], "`\"[],;")
	if i := strings.LastIndex(table, "."); i >= 0 {
		table = table[i+1:]
	}
	if open := strings.Index(rest, "("); open >= 0 {
		if close := strings.Index(rest[open:], ")"); close > 0 {
			column = strings.TrimSpace(strings.Trim(rest[open+1:open+close], "`\"[] "))
		}
	}
	return table, column
}

func (e *sqlExtractor) InferTypes(symbols []Symbol) map[string]TypeInfo {
	types := make(map[string]TypeInfo)
	for _, sym := range symbols {
		declared, ok := sym.Metadata["type"]
		if !ok || declared == "" {
			continue
		}
		types[sym.ID] = TypeInfo{
			SymbolID:     sym.ID,
			ResolvedType: declared,
			Language:     "sql",
			Declared:     true,
		}
	}
	return types
}
