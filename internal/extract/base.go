package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"codegraph/internal/textutil"
)

// base carries the helpers every language variant shares. Variants
// embed it so node-text retrieval, position mapping, visibility
// inference, doc-comment association, and signature truncation behave
// identically regardless of language, keeping symbols comparable
// across grammars.
type base struct {
	lang string
}

// text returns the source text covered by node.
func (b base) text(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}

// position fills 1-indexed line and 0-indexed column bounds.
func (b base) position(node *sitter.Node) (startLine, startCol, endLine, endCol int) {
	startLine = int(node.StartPoint().Row) + 1
	startCol = int(node.StartPoint().Column)
	endLine = int(node.EndPoint().Row) + 1
	endCol = int(node.EndPoint().Column)
	// End point at column 0 means the node closed on the previous line.
	if node.EndPoint().Column == 0 && endLine > startLine {
		endLine--
	}
	return
}

// nameOf extracts a symbol name, trying configured field names first
// and falling back to the first identifier-flavored child.
func (b base) nameOf(node *sitter.Node, src []byte, fields []string, childTypes []string) string {
	for _, field := range fields {
		if n := node.ChildByFieldName(field); n != nil {
			return b.identifierIn(n, src)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		t := child.Type()
		for _, want := range childTypes {
			if t == want {
				return b.text(child, src)
			}
		}
		if isIdentifierType(t) {
			return b.text(child, src)
		}
	}
	return ""
}

// identifierIn drills into a declarator-style node until it reaches a
// plain identifier (C/C++ function declarators nest arbitrarily).
func (b base) identifierIn(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	if isIdentifierType(node.Type()) || int(node.ChildCount()) == 0 {
		return b.text(node, src)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if name := b.identifierIn(node.Child(i), src); name != "" {
			return name
		}
	}
	return ""
}

func isIdentifierType(t string) bool {
	switch t {
	case "identifier", "property_identifier", "type_identifier",
		"field_identifier", "simple_identifier", "name", "word",
		"constant", "variable_name":
		return true
	}
	return false
}

// signature builds a display signature for a declaration: the node
// text up to its body (when it has one), whitespace collapsed and
// truncated UTF-8-safely at the shared budget.
func (b base) signature(node *sitter.Node, src []byte) string {
	end := node.EndByte()
	if body := node.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	start := node.StartByte()
	if int(end) > len(src) || start >= end {
		return ""
	}
	return textutil.TruncateSignature(string(src[start:end]))
}

// docFor associates the comment block immediately preceding node.
// Consecutive comment siblings are joined; anything separated by more
// than one line is not a doc comment.
func (b base) docFor(node *sitter.Node, src []byte) string {
	var parts []string
	expectLine := int(node.StartPoint().Row)
	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		if !strings.Contains(prev.Type(), "comment") {
			break
		}
		if int(prev.EndPoint().Row) < expectLine-1 {
			break
		}
		parts = append([]string{cleanComment(b.text(prev, src))}, parts...)
		expectLine = int(prev.StartPoint().Row)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func cleanComment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/**")
	s = strings.TrimPrefix(s, "/*")
	s = strings.TrimSuffix(s, "*/")
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "//")
		line = strings.TrimPrefix(line, "#")
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimPrefix(line, "--")
		lines = append(lines, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// visibilityByCase infers visibility from the first letter, the Go
// exported-name rule.
func (b base) visibilityByCase(name string) Visibility {
	if name == "" {
		return VisibilityPublic
	}
	r, _ := utf8.DecodeRuneInString(name)
	if unicode.IsUpper(r) {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

// visibilityByUnderscore infers visibility from a leading underscore,
// the Python convention.
func (b base) visibilityByUnderscore(name string) Visibility {
	if strings.HasPrefix(name, "_") {
		return VisibilityPrivate
	}
	return VisibilityPublic
}

// visibilityFromModifiers scans a declaration's modifier children for
// explicit keywords. Defaults to public when nothing is declared.
func (b base) visibilityFromModifiers(node *sitter.Node, src []byte) Visibility {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if !strings.Contains(child.Type(), "modifier") {
			continue
		}
		switch {
		case strings.Contains(b.text(child, src), "private"):
			return VisibilityPrivate
		case strings.Contains(b.text(child, src), "protected"):
			return VisibilityProtected
		case strings.Contains(b.text(child, src), "public"):
			return VisibilityPublic
		}
	}
	return VisibilityPublic
}

// symbolAt assembles a Symbol for node with the shared id derivation.
// qualified is the parent chain joined with "."; parentID may be "".
func (b base) symbolAt(node *sitter.Node, src []byte, path, name, qualified string, kind SymbolKind, parentID string) Symbol {
	startLine, startCol, endLine, endCol := b.position(node)
	return Symbol{
		ID:            SymbolID(path, qualified, kind, startLine, startCol),
		Name:          name,
		QualifiedName: qualified,
		Kind:          kind,
		Path:          path,
		StartLine:     startLine,
		StartCol:      startCol,
		EndLine:       endLine,
		EndCol:        endCol,
		Signature:     b.signature(node, src),
		ParentID:      parentID,
		Doc:           b.docFor(node, src),
		Language:      b.lang,
	}
}
