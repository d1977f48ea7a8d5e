// Package snapshot scans a workspace into a content-addressed
// snapshot and diffs it against stored fingerprints to drive
// incremental indexing.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileMeta is one source file in a snapshot. The content hash is
// computed lazily: the diff only reads files whose size or mtime
// changed since the last pass.
type FileMeta struct {
	Path       string // workspace-relative, forward slashes
	Language   string
	Size       int64
	MTimeNanos int64

	hash string
}

// ContentHash returns the file's SHA-256, reading it on first use.
func (f *FileMeta) ContentHash(root string) (string, error) {
	if f.hash != "" {
		return f.hash, nil
	}
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.Path)))
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", f.Path, err)
	}
	sum := sha256.Sum256(content)
	f.hash = hex.EncodeToString(sum[:])
	return f.hash, nil
}

// setHash seeds the cached hash, used when a stored fingerprint is
// known to still be valid.
func (f *FileMeta) setHash(hash string) { f.hash = hash }

// Snapshot is the scanned state of one workspace root.
type Snapshot struct {
	Root     string
	Files    map[string]*FileMeta
	ScanTime time.Time
}

// FileCount returns the number of source files in the snapshot.
func (s *Snapshot) FileCount() int { return len(s.Files) }

// IsEmpty returns true if no source files were found.
func (s *Snapshot) IsEmpty() bool { return s == nil || len(s.Files) == 0 }

// RootHash rolls the per-file content hashes into a single workspace
// hash: SHA-256 over the sorted (path, hash) pairs. Identical root
// hashes mean identical indexable content, so a matching stored hash
// lets a pass skip diffing entirely. Every file must have a computed
// or seeded content hash before calling.
func (s *Snapshot) RootHash() (string, error) {
	paths := make([]string, 0, len(s.Files))
	for path := range s.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, path := range paths {
		meta := s.Files[path]
		if meta.hash == "" {
			if _, err := meta.ContentHash(s.Root); err != nil {
				return "", err
			}
		}
		fmt.Fprintf(h, "%s\x00%s\x00", path, meta.hash)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
