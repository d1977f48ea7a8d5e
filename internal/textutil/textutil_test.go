package textutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateShortStringUnchanged(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hello", Truncate("hello", 5))
}

func TestTruncateAppendsEllipsis(t *testing.T) {
	got := Truncate("hello world", 5)
	assert.Equal(t, "hello"+Ellipsis, got)
}

func TestTruncateMultibyteBoundary(t *testing.T) {
	// Each rune here is multi-byte; a byte-based cut would split one.
	s := strings.Repeat("héllo wörld 日本語 ", 20)
	for budget := 1; budget < 40; budget++ {
		got := Truncate(s, budget)
		assert.True(t, utf8.ValidString(got), "budget %d produced invalid UTF-8", budget)
		assert.True(t, strings.HasSuffix(got, Ellipsis), "budget %d missing ellipsis", budget)
		assert.Equal(t, budget, utf8.RuneCountInString(strings.TrimSuffix(got, Ellipsis)))
	}
}

func TestTruncateZeroBudget(t *testing.T) {
	assert.Equal(t, "", Truncate("", 0))
	assert.Equal(t, Ellipsis, Truncate("abc", 0))
}

func TestTruncateSignatureCollapsesWhitespace(t *testing.T) {
	sig := "func Foo(\n\ta int,\n\tb string,\n) error"
	assert.Equal(t, "func Foo( a int, b string, ) error", TruncateSignature(sig))
}

func TestNormalizePathRelative(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "pkg", "util")
	require.NoError(t, os.MkdirAll(sub, 0755))
	file := filepath.Join(sub, "helpers.go")
	require.NoError(t, os.WriteFile(file, []byte("package util\n"), 0644))

	got, err := NormalizePath(file, root)
	require.NoError(t, err)
	assert.Equal(t, "pkg/util/helpers.go", got)

	// Already-relative input resolves against the root.
	got, err = NormalizePath("pkg/util/helpers.go", root)
	require.NoError(t, err)
	assert.Equal(t, "pkg/util/helpers.go", got)
}

func TestNormalizePathRoundTrip(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a", "b.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0755))
	require.NoError(t, os.WriteFile(file, []byte("package a\n"), 0644))

	rel, err := NormalizePath(file, root)
	require.NoError(t, err)

	resolved := filepath.Join(root, filepath.FromSlash(rel))
	a, err := os.Stat(resolved)
	require.NoError(t, err)
	b, err := os.Stat(file)
	require.NoError(t, err)
	assert.True(t, os.SameFile(a, b))
}

func TestNormalizePathThroughSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	real := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(real, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(real, "m.py"), []byte("x = 1\n"), 0644))
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(real, link))

	got, err := NormalizePath(filepath.Join(link, "m.py"), root)
	require.NoError(t, err)
	assert.Equal(t, "src/m.py", got)
}

func TestNormalizePathOutsideWorkspace(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	file := filepath.Join(outside, "escape.go")
	require.NoError(t, os.WriteFile(file, []byte("package x\n"), 0644))

	_, err := NormalizePath(file, root)
	assert.Error(t, err)
}
