package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

// SymbolKind classifies a code entity. The set is closed and shared
// across every language so symbols from different grammars stay
// comparable.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindStruct    SymbolKind = "struct"
	KindEnum      SymbolKind = "enum"
	KindVariable  SymbolKind = "variable"
	KindConstant  SymbolKind = "constant"
	KindNamespace SymbolKind = "namespace"
	KindModule    SymbolKind = "module"
	KindImport    SymbolKind = "import"
	KindProperty  SymbolKind = "property"
	KindTable     SymbolKind = "table"
	KindColumn    SymbolKind = "column"
)

// Visibility of a symbol, normalized across languages. Languages
// without explicit modifiers infer it (leading underscore, case of
// the first letter).
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
)

// Symbol is a named code entity with position and identity.
type Symbol struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	QualifiedName string            `json:"qualified_name"` // parent chain joined with "."
	Kind          SymbolKind        `json:"kind"`
	Path          string            `json:"path"` // workspace-relative, forward slashes
	StartLine     int               `json:"start_line"`
	StartCol      int               `json:"start_col"`
	EndLine       int               `json:"end_line"`
	EndCol        int               `json:"end_col"`
	Signature     string            `json:"signature,omitempty"`
	ParentID      string            `json:"parent_id,omitempty"` // enclosing symbol, if any
	Visibility    Visibility        `json:"visibility,omitempty"`
	Doc           string            `json:"doc,omitempty"`
	Language      string            `json:"language"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// SymbolID derives the stable identifier for a symbol. Re-extracting
// unchanged content yields the same id, which keeps stored
// relationships valid across passes. Qualified name means the
// parent chain joined with "." where the language has one.
func SymbolID(path, qualifiedName string, kind SymbolKind, line, col int) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s\x00%s\x00%s\x00%d:%d", path, qualifiedName, kind, line, col))
	return hex.EncodeToString(h[:16])
}

// RelationshipKind classifies a directed edge between two symbols.
type RelationshipKind string

const (
	RelCalls      RelationshipKind = "calls"
	RelExtends    RelationshipKind = "extends"
	RelImplements RelationshipKind = "implements"
	RelReferences RelationshipKind = "references"
	RelImports    RelationshipKind = "imports"
	RelContains   RelationshipKind = "contains"
)

// Relationship is a directed, typed edge between two symbol ids.
// TargetID may be empty when the target lives in a file not yet
// indexed; TargetName then carries the unresolved name and the store
// binds it during deferred resolution.
type Relationship struct {
	Kind       RelationshipKind  `json:"kind"`
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id,omitempty"`
	TargetName string            `json:"target_name,omitempty"`
	Path       string            `json:"path"`
	Line       int               `json:"line"`
	Confidence float64           `json:"confidence"` // 1.0 syntactic, lower when inferred
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TypeInfo is a declared or inferred type annotation for a symbol.
// ResolvedType is never empty: variants omit entries they cannot
// infer instead of writing placeholders.
type TypeInfo struct {
	SymbolID     string `json:"symbol_id"`
	ResolvedType string `json:"resolved_type"`
	Language     string `json:"language"`
	Declared     bool   `json:"declared"` // false when inferred
}

// ExtractionResults is the unit of work produced by extracting one
// file. It is ephemeral: the pipeline consumes it immediately.
type ExtractionResults struct {
	Path          string
	Language      string
	Symbols       []Symbol
	Relationships []Relationship
	Types         map[string]TypeInfo
}

// scratchCounter generates unique suffixes for anonymous symbols
// (lambdas, unnamed tables). Process-scoped, starts at zero, and all
// access goes through NextScratchID.
var scratchCounter atomic.Uint64

// NextScratchID returns the next unique scratch identifier.
func NextScratchID() uint64 {
	return scratchCounter.Add(1)
}
