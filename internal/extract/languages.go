package extract

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/dockerfile"
	"github.com/smacker/go-tree-sitter/elm"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/hcl"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/lua"
	"github.com/smacker/go-tree-sitter/ocaml"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/protobuf"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/scala"
	"github.com/smacker/go-tree-sitter/sql"
	"github.com/smacker/go-tree-sitter/swift"
	"github.com/smacker/go-tree-sitter/toml"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/yaml"
)

// extToLanguage maps file extensions to canonical language tags.
var extToLanguage = map[string]string{
	".go":         "go",
	".py":         "python",
	".pyi":        "python",
	".js":         "javascript",
	".mjs":        "javascript",
	".cjs":        "javascript",
	".jsx":        "javascript",
	".ts":         "typescript",
	".mts":        "typescript",
	".tsx":        "tsx",
	".rs":         "rust",
	".java":       "java",
	".rb":         "ruby",
	".c":          "c",
	".h":          "c",
	".cpp":        "cpp",
	".cc":         "cpp",
	".cxx":        "cpp",
	".hpp":        "cpp",
	".hxx":        "cpp",
	".cs":         "csharp",
	".php":        "php",
	".kt":         "kotlin",
	".kts":        "kotlin",
	".scala":      "scala",
	".swift":      "swift",
	".lua":        "lua",
	".elm":        "elm",
	".ml":         "ocaml",
	".mli":        "ocaml",
	".sh":         "bash",
	".bash":       "bash",
	".sql":        "sql",
	".css":        "css",
	".hcl":        "hcl",
	".tf":         "hcl",
	".toml":       "toml",
	".yaml":       "yaml",
	".yml":        "yaml",
	".proto":      "protobuf",
	".dockerfile": "dockerfile",
}

// fileToLanguage handles extensionless special-cased filenames.
var fileToLanguage = map[string]string{
	"Dockerfile": "dockerfile",
}

// langToGrammar maps language tags to tree-sitter grammars. Lazily
// initialized; grammar construction touches cgo and is not free.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": typescript.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
			"rust":       rust.GetLanguage(),
			"java":       java.GetLanguage(),
			"ruby":       ruby.GetLanguage(),
			"c":          c.GetLanguage(),
			"cpp":        cpp.GetLanguage(),
			"csharp":     csharp.GetLanguage(),
			"php":        php.GetLanguage(),
			"kotlin":     kotlin.GetLanguage(),
			"scala":      scala.GetLanguage(),
			"swift":      swift.GetLanguage(),
			"lua":        lua.GetLanguage(),
			"elm":        elm.GetLanguage(),
			"ocaml":      ocaml.GetLanguage(),
			"bash":       bash.GetLanguage(),
			"sql":        sql.GetLanguage(),
			"css":        css.GetLanguage(),
			"hcl":        hcl.GetLanguage(),
			"toml":       toml.GetLanguage(),
			"yaml":       yaml.GetLanguage(),
			"protobuf":   protobuf.GetLanguage(),
			"dockerfile": dockerfile.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language tag for a file path.
// Returns ("", false) if the file is not a recognized source file.
func LanguageForFile(path string) (string, bool) {
	if lang, ok := fileToLanguage[filepath.Base(path)]; ok {
		return lang, true
	}
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// GrammarForLanguage returns the tree-sitter grammar for a language
// tag. Returns (nil, false) for unregistered tags.
func GrammarForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	g, ok := langToGrammar[lang]
	return g, ok
}

// SupportedLanguages returns all registered language tags.
func SupportedLanguages() []string {
	initGrammars()
	langs := make([]string, 0, len(langToGrammar))
	for lang := range langToGrammar {
		langs = append(langs, lang)
	}
	return langs
}

// IsSupported reports whether the file maps to a registered language.
func IsSupported(path string) bool {
	lang, ok := LanguageForFile(path)
	if !ok {
		return false
	}
	_, ok = GrammarForLanguage(lang)
	return ok
}

// Parse runs the tree-sitter parser for the given language over src.
// The returned tree is best-effort: it may contain error nodes, which
// the extractor variants skip rather than fail on. The caller owns
// the tree and must Close it.
func Parse(ctx context.Context, lang string, src []byte) (*sitter.Tree, error) {
	grammar, ok := GrammarForLanguage(lang)
	if !ok {
		return nil, ErrUnsupportedLanguage
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &ParseError{Lang: lang, Err: err}
	}
	return tree, nil
}
