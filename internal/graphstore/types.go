package graphstore

import (
	"fmt"
	"time"
)

// Workspace is one indexed root. Reference workspaces hold library or
// framework sources indexed for lookup only; they are never scanned
// incrementally.
type Workspace struct {
	ID          string
	Root        string
	IsReference bool
	RootHash    string
	UpdatedAt   time.Time
}

// FileRecord is the stored fingerprint of one indexed file, used by
// the incremental diff to decide whether re-extraction is needed.
type FileRecord struct {
	ID          string
	WorkspaceID string
	Path        string
	Language    string
	ContentHash string
	MTimeNanos  int64
	Size        int64
	IndexedAt   time.Time
}

// Stats summarizes a workspace for the stats command.
type Stats struct {
	Files         int            `json:"files"`
	Symbols       int            `json:"symbols"`
	Relationships int            `json:"relationships"`
	Pending       int            `json:"pending"`
	ByLanguage    map[string]int `json:"by_language"`
	ByKind        map[string]int `json:"by_kind"`
}

// TxError wraps a failed store transaction. The batch that hit it is
// retried by the pipeline; the wrapped error says what went wrong.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("store transaction %s: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// maxPendingBatches is how many resolution batches a deferred
// relationship survives before it is dropped as unresolvable.
const maxPendingBatches = 3
