package extract

import (
	"context"
	"fmt"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"codegraph/internal/logging"
	"codegraph/internal/textutil"
)

// Extractor turns a parse tree into symbols, relationships, and type
// information. Implementations are stateless and safe for concurrent
// use.
type Extractor interface {
	ExtractSymbols(tree *sitter.Tree, src []byte, path string) []Symbol
	ExtractRelationships(tree *sitter.Tree, src []byte, path string, symbols []Symbol) []Relationship
	InferTypes(symbols []Symbol) map[string]TypeInfo
}

// variantFor maps a language tag to its extractor. The language set is
// closed: adding a language means adding a case or a decision table,
// not registering anything at runtime.
func variantFor(lang string) (Extractor, bool) {
	switch lang {
	case "go":
		return newGoExtractor(), true
	case "python":
		return newPythonExtractor(), true
	case "typescript", "tsx", "javascript":
		return newTSExtractor(lang), true
	case "sql":
		return newSQLExtractor(), true
	case "bash":
		return newBashExtractor(), true
	}
	if _, ok := genericTables[lang]; ok {
		return newTableExtractor(lang), true
	}
	return nil, false
}

var extractLog = logging.Default("extract")

// Extract runs the full per-file pass: normalize the path against the
// workspace root, parse, then run the language variant. A variant
// panic is contained and downgraded to a partial result so one bad
// tree cannot take down a batch.
func Extract(ctx context.Context, lang, filePath, workspaceRoot string, src []byte) (results *ExtractionResults, err error) {
	relPath := filePath
	if workspaceRoot != "" {
		relPath, err = textutil.NormalizePath(filePath, workspaceRoot)
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", filePath, err)
		}
	}

	variant, ok := variantFor(lang)
	if !ok {
		return nil, fmt.Errorf("%s: %w", lang, ErrUnsupportedLanguage)
	}

	tree, err := Parse(ctx, lang, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	results = &ExtractionResults{
		Path:     relPath,
		Language: lang,
		Types:    map[string]TypeInfo{},
	}

	defer func() {
		if r := recover(); r != nil {
			extractLog.Warn("extractor panic recovered",
				slog.String("path", relPath),
				slog.String("language", lang),
				slog.Any("panic", r))
			err = nil // keep whatever was extracted before the panic
		}
	}()

	results.Symbols = variant.ExtractSymbols(tree, src, relPath)
	results.Relationships = variant.ExtractRelationships(tree, src, relPath, results.Symbols)
	results.Types = variant.InferTypes(results.Symbols)

	// File-scoped edges (imports, sourced scripts) hang off a module
	// symbol for the file itself. Persist it so every edge endpoint
	// lands on a stored symbol.
	fid := fileSymbolID(relPath)
	for _, rel := range results.Relationships {
		if rel.SourceID == fid {
			results.Symbols = append(results.Symbols, fileSymbol(relPath, lang))
			break
		}
	}
	return results, nil
}

// ExtractFile is the path-driven variant: the language is detected
// from the file name.
func ExtractFile(ctx context.Context, filePath, workspaceRoot string, src []byte) (*ExtractionResults, error) {
	lang, ok := LanguageForFile(filePath)
	if !ok {
		return nil, fmt.Errorf("%s: %w", filePath, ErrUnsupportedLanguage)
	}
	return Extract(ctx, lang, filePath, workspaceRoot, src)
}
