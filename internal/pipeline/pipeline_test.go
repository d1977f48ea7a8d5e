package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/db"
	"codegraph/internal/extract"
	"codegraph/internal/graphstore"
	"codegraph/internal/resolver"
)

func openTestStore(t *testing.T) *graphstore.Store {
	t.Helper()
	store, err := graphstore.Open(context.Background(), db.Config{Driver: db.DriverModernc, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func seedWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "store.go", `package app

func GetUserName(id string) string {
	return lookup(id)
}

func lookup(id string) string {
	return id
}
`)
	writeFile(t, root, "handler.go", `package app

func Handle(id string) string {
	return GetUserName(id)
}
`)
	writeFile(t, root, "scripts/report.py", `def build_report(users):
    return [u.name for u in users]
`)
	return root
}

func TestFirstPassIndexesEverything(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	summary, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.FilesScanned)
	assert.Equal(t, 3, summary.FilesAdded)
	assert.Zero(t, summary.FilesModified)
	assert.Zero(t, summary.FilesFailed)
	assert.NotEmpty(t, summary.RootHash)
	assert.False(t, summary.Unchanged)

	stats, err := store.WorkspaceStats(context.Background(), summary.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Greater(t, stats.Symbols, 0)
	assert.Equal(t, 2, stats.ByLanguage["go"])
	assert.Equal(t, 1, stats.ByLanguage["python"])
}

func TestSecondPassIsFastPathWhenUnchanged(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	first, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)

	second, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.True(t, second.Unchanged)
	assert.Equal(t, first.RootHash, second.RootHash)
	assert.Zero(t, second.FilesAdded)
	assert.Zero(t, second.FilesModified)
	assert.Zero(t, second.FilesDeleted)
}

func TestTouchedFileRefreshesStoredFingerprint(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	first, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)

	before, err := store.ListFiles(context.Background(), first.WorkspaceID)
	require.NoError(t, err)
	require.Contains(t, before, "store.go")

	// Touch without an edit: the content hash still matches, so the
	// pass must refresh the stored mtime instead of re-extracting.
	future := time.Now().Add(3 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "store.go"), future, future))

	second, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Zero(t, second.FilesModified)

	after, err := store.ListFiles(context.Background(), first.WorkspaceID)
	require.NoError(t, err)
	require.Contains(t, after, "store.go")
	assert.Greater(t, after["store.go"].MTimeNanos, before["store.go"].MTimeNanos,
		"stored fingerprint should carry the new mtime")
	assert.Equal(t, before["store.go"].ContentHash, after["store.go"].ContentHash)
}

func TestIncrementalPassReExtractsOnlyChanged(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	_, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)

	writeFile(t, root, "handler.go", `package app

func Handle(id string) string {
	return GetUserName(id)
}

func HandleAll(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, Handle(id))
	}
	return out
}
`)
	writeFile(t, root, "config.go", "package app\n\nconst MaxUsers = 100\n")

	summary, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesAdded)
	assert.Equal(t, 1, summary.FilesModified)
	assert.Zero(t, summary.FilesDeleted)
	assert.False(t, summary.Unchanged)

	symbols, err := store.SymbolsByName(context.Background(), summary.WorkspaceID, "HandleAll")
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "handler.go", symbols[0].Path)
}

func TestDeletedFileIsCleanedUp(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	first, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "scripts", "report.py")))

	summary, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesDeleted)

	symbols, err := store.SymbolsInFile(context.Background(), first.WorkspaceID, "scripts/report.py")
	require.NoError(t, err)
	assert.Empty(t, symbols)

	stats, err := store.WorkspaceStats(context.Background(), first.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
}

func TestCrossFileCallsResolveInOnePass(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	summary, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)

	// handler.go calls GetUserName defined in store.go. The edge is
	// deferred during extraction and bound by the resolution batch at
	// the end of the same pass.
	assert.GreaterOrEqual(t, summary.EdgesResolved, 1)

	targets, err := store.SymbolsByName(context.Background(), summary.WorkspaceID, "GetUserName")
	require.NoError(t, err)
	require.Len(t, targets, 1)

	inbound, err := store.RelationshipsTo(context.Background(), summary.WorkspaceID, targets[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, inbound)
	assert.Equal(t, extract.RelCalls, inbound[0].Kind)
}

func TestSummaryCarriesChangedFileSets(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	first, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"store.go", "handler.go", "scripts/report.py"}, first.ChangedFiles)
	assert.Empty(t, first.DeletedFiles)

	require.NoError(t, os.Remove(filepath.Join(root, "scripts", "report.py")))
	writeFile(t, root, "store.go", "package app\n\nfunc GetUserName(id string) string { return id }\n")

	second, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"store.go"}, second.ChangedFiles)
	assert.Equal(t, []string{"scripts/report.py"}, second.DeletedFiles)
	assert.Greater(t, second.PassID, first.PassID)
}

func TestPythonDefinitionResolvesFromTypeScriptCall(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := t.TempDir()
	writeFile(t, root, "users.py", `def get_all_users():
    return []
`)
	writeFile(t, root, "users.ts", `export function loadUsers() {
  return getAllUsers();
}
`)

	summary, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)

	workspaces, err := store.Workspaces(context.Background())
	require.NoError(t, err)

	matches, err := resolver.New(store).Resolve(context.Background(), workspaces, "getAllUsers")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "get_all_users", matches[0].Symbol.Name)
	assert.Equal(t, "users.py", matches[0].Symbol.Path)
	assert.Equal(t, resolver.TierConvention, matches[0].Tier)
	assert.Equal(t, summary.WorkspaceID, matches[0].WorkspaceID)
}

func TestFullPassReExtractsEverything(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	_, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)

	summary, err := ix.IndexWorkspace(context.Background(), root, Options{Full: true})
	require.NoError(t, err)
	assert.False(t, summary.Unchanged)

	stats, err := store.WorkspaceStats(context.Background(), summary.WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
}

func TestUnsupportedFilesAreSkipped(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "README.md", "# notes\n")

	summary, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesScanned)
	assert.Equal(t, 1, summary.FilesAdded)
}

func TestRemoveWorkspaceDeletesEverything(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	summary, err := ix.IndexWorkspace(context.Background(), root, Options{})
	require.NoError(t, err)

	require.NoError(t, ix.RemoveWorkspace(context.Background(), root))

	workspaces, err := store.Workspaces(context.Background())
	require.NoError(t, err)
	assert.Empty(t, workspaces)

	symbols, err := store.SymbolsByName(context.Background(), summary.WorkspaceID, "GetUserName")
	require.NoError(t, err)
	assert.Empty(t, symbols)

	// Removing again is a no-op.
	assert.NoError(t, ix.RemoveWorkspace(context.Background(), root))
}

func TestCancelledPassReturnsContextError(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ix.IndexWorkspace(ctx, root, Options{})
	assert.Error(t, err)
}

func TestReferenceWorkspaceFlag(t *testing.T) {
	store := openTestStore(t)
	ix := New(store)
	root := seedWorkspace(t)

	summary, err := ix.IndexWorkspace(context.Background(), root, Options{Reference: true})
	require.NoError(t, err)

	absRoot, err := filepath.Abs(root)
	require.NoError(t, err)
	ws, err := store.EnsureWorkspace(context.Background(), absRoot, false)
	require.NoError(t, err)
	assert.Equal(t, summary.WorkspaceID, ws.ID)
	assert.True(t, ws.IsReference)
}
