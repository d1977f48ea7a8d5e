package resolver

import (
	"strings"
	"unicode"
)

// Convention names a casing style for identifiers.
type Convention string

const (
	ConventionCamel          Convention = "camelCase"
	ConventionPascal         Convention = "PascalCase"
	ConventionSnake          Convention = "snake_case"
	ConventionKebab          Convention = "kebab-case"
	ConventionScreamingSnake Convention = "SCREAMING_SNAKE_CASE"
)

// SplitWords breaks an identifier into lowercase words on underscore,
// hyphen, and camel boundaries. Acronym runs stay one word until the
// next boundary ("HTTPServer" splits to [http, server]).
func SplitWords(name string) []string {
	var words []string
	var current []rune
	runes := []rune(name)

	flush := func() {
		if len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
	}

	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				// Boundary at lower->Upper and at the last upper of an
				// acronym run (HTTPServer -> HTTP | Server).
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					flush()
				}
			}
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return words
}

// Render joins words in the given convention.
func Render(words []string, conv Convention) string {
	if len(words) == 0 {
		return ""
	}
	switch conv {
	case ConventionSnake:
		return strings.Join(words, "_")
	case ConventionKebab:
		return strings.Join(words, "-")
	case ConventionScreamingSnake:
		return strings.ToUpper(strings.Join(words, "_"))
	case ConventionPascal:
		var b strings.Builder
		for _, w := range words {
			b.WriteString(capitalize(w))
		}
		return b.String()
	default: // camel
		var b strings.Builder
		for i, w := range words {
			if i == 0 {
				b.WriteString(w)
			} else {
				b.WriteString(capitalize(w))
			}
		}
		return b.String()
	}
}

func capitalize(w string) string {
	if w == "" {
		return ""
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

// Detect reports the convention an identifier is written in.
func Detect(name string) Convention {
	switch {
	case strings.Contains(name, "-"):
		return ConventionKebab
	case strings.Contains(name, "_"):
		if name == strings.ToUpper(name) && name != strings.ToLower(name) {
			return ConventionScreamingSnake
		}
		return ConventionSnake
	case name != "" && unicode.IsUpper([]rune(name)[0]):
		return ConventionPascal
	default:
		return ConventionCamel
	}
}

var allConventions = []Convention{
	ConventionCamel,
	ConventionPascal,
	ConventionSnake,
	ConventionKebab,
	ConventionScreamingSnake,
}

// Variants returns the name rendered in every other convention,
// deduplicated and excluding the input itself. Resolution order is
// stable so candidate ranking is deterministic.
func Variants(name string) []string {
	words := SplitWords(name)
	if len(words) == 0 {
		return nil
	}

	seen := map[string]bool{name: true}
	var variants []string
	for _, conv := range allConventions {
		rendered := Render(words, conv)
		if rendered == "" || seen[rendered] {
			continue
		}
		seen[rendered] = true
		variants = append(variants, rendered)
	}
	return variants
}

// NormalizedKey is the convention-free form of an identifier: its
// words joined by a single separator. Two identifiers with the same
// key are the same name written in different conventions.
func NormalizedKey(name string) string {
	return strings.Join(SplitWords(name), "_")
}
