// Package pipeline runs indexing passes: scan the workspace, diff
// against stored fingerprints, extract changed files in parallel,
// merge serially, then resolve deferred relationships once per batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"codegraph/internal/extract"
	"codegraph/internal/graphstore"
	"codegraph/internal/logging"
	"codegraph/internal/snapshot"
)

// State is the phase an indexing pass is in.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateDiffing    State = "diffing"
	StateExtracting State = "extracting"
	StateMerging    State = "merging"
)

// Options control one indexing pass.
type Options struct {
	// Reference marks the workspace as a lookup-only reference index.
	Reference bool

	// Full re-extracts every file regardless of fingerprints.
	Full bool
}

// passCounter numbers indexing passes for this process. It starts at
// zero and only moves through nextPassID.
var passCounter atomic.Uint64

// nextPassID returns a process-unique, monotonically increasing pass
// identifier.
func nextPassID() uint64 {
	return passCounter.Add(1)
}

// Summary reports what a completed pass did. It doubles as the
// completion event: ChangedFiles and DeletedFiles tell downstream
// consumers exactly what to refresh.
type Summary struct {
	PassID        uint64        `json:"pass_id"`
	WorkspaceID   string        `json:"workspace_id"`
	Root          string        `json:"root"`
	ChangedFiles  []string      `json:"changed_files,omitempty"`
	DeletedFiles  []string      `json:"deleted_files,omitempty"`
	FilesScanned  int           `json:"files_scanned"`
	FilesAdded    int           `json:"files_added"`
	FilesModified int           `json:"files_modified"`
	FilesDeleted  int           `json:"files_deleted"`
	FilesFailed   int           `json:"files_failed"`
	EdgesResolved int           `json:"edges_resolved"`
	EdgesDropped  int           `json:"edges_dropped"`
	RootHash      string        `json:"root_hash"`
	Unchanged     bool          `json:"unchanged"` // fast path: nothing to do
	Duration      time.Duration `json:"duration_ns"`
}

// Indexer drives indexing passes against one store. Extraction runs
// on a worker pool; merging is serialized by the store.
type Indexer struct {
	store   *graphstore.Store
	scanner *snapshot.Scanner
	log     *slog.Logger

	// Workers caps the extraction pool. Zero means NumCPU.
	Workers int

	// MaxRetries bounds merge retries on transaction errors.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry.
	RetryBackoff time.Duration

	mu      sync.Mutex
	states  map[string]State
	cancels map[string]context.CancelFunc
}

func New(store *graphstore.Store) *Indexer {
	return &Indexer{
		store:        store,
		scanner:      snapshot.NewScanner(),
		log:          logging.Default("pipeline"),
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
		states:       make(map[string]State),
		cancels:      make(map[string]context.CancelFunc),
	}
}

// State returns the current phase for a workspace root.
func (ix *Indexer) State(root string) State {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if state, ok := ix.states[root]; ok {
		return state
	}
	return StateIdle
}

func (ix *Indexer) setState(root string, state State) {
	ix.mu.Lock()
	ix.states[root] = state
	ix.mu.Unlock()
}

// Cancel aborts the running pass for a workspace root, if any. Other
// workspaces are unaffected.
func (ix *Indexer) Cancel(root string) {
	ix.mu.Lock()
	cancel := ix.cancels[root]
	ix.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RemoveWorkspace cancels any in-flight pass for root, then deletes
// the workspace's indexed data as a unit. Removing an unknown root is
// a no-op.
func (ix *Indexer) RemoveWorkspace(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	ix.Cancel(absRoot)

	workspaces, err := ix.store.Workspaces(ctx)
	if err != nil {
		return err
	}
	for _, ws := range workspaces {
		if ws.Root != absRoot {
			continue
		}
		if err := ix.store.DeleteWorkspace(ctx, ws.ID); err != nil {
			return err
		}
		ix.log.Info("workspace removed",
			slog.String("workspace_id", ws.ID),
			slog.String("root", absRoot))
	}
	return nil
}

// IndexWorkspace runs one pass over root. Incremental by default:
// only files whose content changed since the stored fingerprints are
// re-extracted, and removed files are cleaned up with their symbols
// and edges.
func (ix *Indexer) IndexWorkspace(ctx context.Context, root string, opts Options) (*Summary, error) {
	started := time.Now()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	ix.mu.Lock()
	ix.cancels[absRoot] = cancel
	ix.mu.Unlock()
	defer func() {
		cancel()
		ix.mu.Lock()
		delete(ix.cancels, absRoot)
		ix.states[absRoot] = StateIdle
		ix.mu.Unlock()
	}()

	ws, err := ix.store.EnsureWorkspace(ctx, absRoot, opts.Reference)
	if err != nil {
		return nil, err
	}
	summary := &Summary{PassID: nextPassID(), WorkspaceID: ws.ID, Root: absRoot}

	ix.setState(absRoot, StateScanning)
	snap, err := ix.scanner.Scan(ctx, absRoot)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", absRoot, err)
	}
	summary.FilesScanned = snap.FileCount()

	ix.setState(absRoot, StateDiffing)
	stored, err := ix.store.ListFiles(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]snapshot.Known, len(stored))
	for path, rec := range stored {
		known[path] = snapshot.Known{
			ContentHash: rec.ContentHash,
			MTimeNanos:  rec.MTimeNanos,
			Size:        rec.Size,
		}
	}
	changes, err := snap.Diff(known)
	if err != nil {
		return nil, err
	}
	summary.FilesAdded = len(changes.Added)
	summary.FilesModified = len(changes.Modified)
	summary.FilesDeleted = len(changes.Deleted)
	summary.DeletedFiles = changes.Deleted

	// Touched files hashed identical but carry a new size or mtime.
	// Refresh the stored fingerprint so the next pass matches them
	// without re-reading.
	for _, path := range changes.Touched {
		meta, ok := snap.Files[path]
		if !ok {
			continue
		}
		if err := ix.store.RefreshFileFingerprint(ctx, ws.ID, graphstore.FileRecord{
			Path: path, MTimeNanos: meta.MTimeNanos, Size: meta.Size,
		}); err != nil {
			ix.log.Warn("fingerprint refresh failed",
				slog.String("path", path),
				slog.Any("error", err))
		}
	}

	toExtract := changes.AllChanged()
	if opts.Full {
		toExtract = toExtract[:0]
		for path := range snap.Files {
			toExtract = append(toExtract, path)
		}
		sort.Strings(toExtract)
	}
	summary.ChangedFiles = toExtract

	if len(toExtract) == 0 && len(changes.Deleted) == 0 && !opts.Full {
		rootHash, err := snap.RootHash()
		if err == nil && rootHash == ws.RootHash {
			summary.Unchanged = true
			summary.RootHash = rootHash
			summary.Duration = time.Since(started)
			ix.log.Info("workspace unchanged",
				slog.String("workspace_id", ws.ID),
				slog.String("root_hash", rootHash))
			return summary, nil
		}
	}

	ix.setState(absRoot, StateExtracting)
	failed, err := ix.extractAndMerge(ctx, ws, snap, toExtract)
	if err != nil {
		return nil, err
	}
	summary.FilesFailed = failed

	for _, path := range changes.Deleted {
		if err := ix.withRetries(ctx, func() error {
			return ix.store.RemoveFile(ctx, ws.ID, path)
		}); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			// The stale file row survives, so the next pass sees the
			// file as deleted again and retries the cleanup.
			ix.log.Warn("orphan cleanup failed",
				slog.String("path", path),
				slog.Any("error", err))
			summary.FilesFailed++
		}
	}

	// One resolution batch per pass, after every merge has landed.
	ix.setState(absRoot, StateMerging)
	resolved, dropped, err := ix.store.ResolveDeferred(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	summary.EdgesResolved = resolved
	summary.EdgesDropped = dropped

	rootHash, err := snap.RootHash()
	if err != nil {
		return nil, err
	}
	if err := ix.store.SetRootHash(ctx, ws.ID, rootHash); err != nil {
		return nil, err
	}
	summary.RootHash = rootHash
	summary.Duration = time.Since(started)

	ix.log.Info("pass complete",
		slog.String("workspace_id", ws.ID),
		slog.Int("scanned", summary.FilesScanned),
		slog.Int("added", summary.FilesAdded),
		slog.Int("modified", summary.FilesModified),
		slog.Int("deleted", summary.FilesDeleted),
		slog.Int("failed", summary.FilesFailed),
		slog.Int("edges_resolved", summary.EdgesResolved),
		slog.Int("edges_dropped", summary.EdgesDropped),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

type extractResult struct {
	path    string
	rec     graphstore.FileRecord
	results *extract.ExtractionResults
	err     error
}

// extractAndMerge fans changed files out to the worker pool and
// merges results serially as they complete. Per-file failures are
// logged and counted, not fatal; store transaction errors are retried
// with bounded backoff.
func (ix *Indexer) extractAndMerge(ctx context.Context, ws graphstore.Workspace, snap *snapshot.Snapshot, paths []string) (failed int, err error) {
	if len(paths) == 0 {
		return 0, nil
	}

	workers := ix.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	workCh := make(chan string, len(paths))
	for _, path := range paths {
		workCh <- path
	}
	close(workCh)

	resultCh := make(chan extractResult, len(paths))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range workCh {
				if ctx.Err() != nil {
					return
				}
				resultCh <- ix.extractOne(ctx, snap, path)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for res := range resultCh {
		if res.err != nil {
			// Unsupported and unparseable files are skipped, the rest
			// of the batch proceeds.
			ix.log.Warn("extraction failed",
				slog.String("path", res.path),
				slog.Any("error", res.err))
			failed++
			continue
		}
		mergeErr := ix.withRetries(ctx, func() error {
			return ix.store.UpsertFileResults(ctx, ws, res.rec, res.results)
		})
		if mergeErr != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			// The file keeps its stale fingerprint (or none), so the
			// next pass picks it up again as modified.
			ix.log.Warn("merge failed after retries",
				slog.String("path", res.path),
				slog.Any("error", mergeErr))
			failed++
			continue
		}
	}
	return failed, ctx.Err()
}

func (ix *Indexer) extractOne(ctx context.Context, snap *snapshot.Snapshot, path string) extractResult {
	meta, ok := snap.Files[path]
	if !ok {
		return extractResult{path: path, err: fmt.Errorf("%s not in snapshot", path)}
	}

	src, err := os.ReadFile(filepath.Join(snap.Root, filepath.FromSlash(path)))
	if err != nil {
		return extractResult{path: path, err: err}
	}
	hash, err := meta.ContentHash(snap.Root)
	if err != nil {
		return extractResult{path: path, err: err}
	}

	results, err := extract.Extract(ctx, meta.Language, path, "", src)
	if err != nil {
		return extractResult{path: path, err: err}
	}

	return extractResult{
		path: path,
		rec: graphstore.FileRecord{
			Path:        path,
			Language:    meta.Language,
			ContentHash: hash,
			MTimeNanos:  meta.MTimeNanos,
			Size:        meta.Size,
		},
		results: results,
	}
}

// withRetries retries fn on transaction errors with doubling backoff.
// Other errors fail immediately.
func (ix *Indexer) withRetries(ctx context.Context, fn func() error) error {
	backoff := ix.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= ix.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var txErr *graphstore.TxError
		if !errors.As(lastErr, &txErr) {
			return lastErr
		}
		ix.log.Warn("transaction retry",
			slog.Int("attempt", attempt+1),
			slog.Any("error", lastErr))
	}
	return lastErr
}
