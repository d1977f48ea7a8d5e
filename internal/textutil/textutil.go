// Package textutil provides UTF-8-safe string truncation and
// workspace-relative path normalization shared by the extraction
// and storage layers.
package textutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrOutsideWorkspace is returned by NormalizePath for paths that do
// not resolve under the workspace root.
var ErrOutsideWorkspace = errors.New("path outside workspace")

// Ellipsis is appended to any string shortened by Truncate.
const Ellipsis = "..."

// DefaultSignatureBudget is the visible-character budget used for
// symbol signatures. Long constructs are cut here so signatures stay
// display-friendly in navigation results.
const DefaultSignatureBudget = 97

// Truncate shortens s to at most budget visible characters (runes),
// appending Ellipsis if anything was removed. The cut always lands on
// a rune boundary, so the result is valid UTF-8 for any input.
func Truncate(s string, budget int) string {
	if budget <= 0 {
		if s == "" {
			return ""
		}
		return Ellipsis
	}
	if utf8.RuneCountInString(s) <= budget {
		return s
	}

	count := 0
	for i := range s {
		if count == budget {
			return s[:i] + Ellipsis
		}
		count++
	}
	return s
}

// TruncateSignature collapses internal whitespace runs to single
// spaces and truncates to the default signature budget. Used for
// multi-line declarations (function headers, CREATE TABLE statements).
func TruncateSignature(s string) string {
	return Truncate(strings.Join(strings.Fields(s), " "), DefaultSignatureBudget)
}

// NormalizePath converts path to a workspace-relative, forward-slash
// form. Both path and root are canonicalized through symlinks first,
// so a path reached via a symlinked directory still normalizes to its
// real location under root. Returns an error if the file does not
// resolve under root.
func NormalizePath(path, root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	if r, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = r
	}

	absPath := path
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(absRoot, absPath)
	}
	if r, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = r
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s not under %s: %w", path, root, ErrOutsideWorkspace)
	}
	return filepath.ToSlash(rel), nil
}
