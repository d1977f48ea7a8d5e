package snapshot

import "sort"

// Known is the stored fingerprint of a previously indexed file.
type Known struct {
	ContentHash string
	MTimeNanos  int64
	Size        int64
}

// Changes categorizes the difference between a fresh snapshot and the
// stored fingerprints, driving the incremental pass.
type Changes struct {
	Added    []string // present in the snapshot, never indexed
	Modified []string // content hash differs from the stored one
	Deleted  []string // indexed before, gone from the snapshot

	// Touched files were re-stat'd to a new size or mtime but hashed
	// to the same content. They need their stored fingerprint
	// refreshed, not re-extraction; without the refresh every later
	// pass re-reads them.
	Touched []string
}

// IsEmpty returns true if there are no changes.
func (c *Changes) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Total returns the total number of changes.
func (c *Changes) Total() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// AllChanged returns the files that need re-extraction (added plus
// modified), sorted.
func (c *Changes) AllChanged() []string {
	result := make([]string, 0, len(c.Added)+len(c.Modified))
	result = append(result, c.Added...)
	result = append(result, c.Modified...)
	sort.Strings(result)
	return result
}

// Diff compares the snapshot against stored fingerprints. A file
// whose size and mtime both match its fingerprint is assumed
// unchanged without reading it; anything else is settled by content
// hash, so a touch without an edit does not trigger re-extraction.
func (s *Snapshot) Diff(known map[string]Known) (*Changes, error) {
	changes := &Changes{}

	for path, meta := range s.Files {
		prev, exists := known[path]
		if !exists {
			changes.Added = append(changes.Added, path)
			continue
		}
		if prev.Size == meta.Size && prev.MTimeNanos == meta.MTimeNanos {
			meta.setHash(prev.ContentHash)
			continue
		}
		hash, err := meta.ContentHash(s.Root)
		if err != nil {
			// Deleted between scan and diff; the next pass settles it.
			continue
		}
		if hash != prev.ContentHash {
			changes.Modified = append(changes.Modified, path)
		} else {
			changes.Touched = append(changes.Touched, path)
		}
	}

	for path := range known {
		if _, exists := s.Files[path]; !exists {
			changes.Deleted = append(changes.Deleted, path)
		}
	}

	sort.Strings(changes.Added)
	sort.Strings(changes.Modified)
	sort.Strings(changes.Deleted)
	sort.Strings(changes.Touched)
	return changes, nil
}
