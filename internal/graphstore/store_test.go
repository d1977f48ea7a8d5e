package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/db"
	"codegraph/internal/extract"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), db.Config{Driver: db.DriverModernc, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testWorkspace(t *testing.T, store *Store) Workspace {
	t.Helper()
	ws, err := store.EnsureWorkspace(context.Background(), "/tmp/project", false)
	require.NoError(t, err)
	return ws
}

func symbolFixture(path, name, qualified string, kind extract.SymbolKind, line int) extract.Symbol {
	return extract.Symbol{
		ID:            extract.SymbolID(path, qualified, kind, line, 0),
		Name:          name,
		QualifiedName: qualified,
		Kind:          kind,
		Path:          path,
		StartLine:     line,
		EndLine:       line + 3,
		Language:      "go",
		Visibility:    extract.VisibilityPublic,
	}
}

func fileResults(path string, symbols []extract.Symbol, rels []extract.Relationship) *extract.ExtractionResults {
	return &extract.ExtractionResults{
		Path:          path,
		Language:      "go",
		Symbols:       symbols,
		Relationships: rels,
		Types:         map[string]extract.TypeInfo{},
	}
}

func TestEnsureWorkspaceIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.EnsureWorkspace(ctx, "/tmp/project", false)
	require.NoError(t, err)
	second, err := store.EnsureWorkspace(ctx, "/tmp/project", false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	ref, err := store.EnsureWorkspace(ctx, "/tmp/stdlib", true)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, ref.ID)
	assert.True(t, ref.IsReference)
}

func TestUpsertFileResultsAndQueries(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	parse := symbolFixture("parser.go", "Parse", "Parse", extract.KindFunction, 10)
	helper := symbolFixture("parser.go", "helper", "helper", extract.KindFunction, 20)
	results := fileResults("parser.go", []extract.Symbol{parse, helper}, []extract.Relationship{
		{Kind: extract.RelCalls, SourceID: parse.ID, TargetID: helper.ID, Path: "parser.go", Line: 12, Confidence: 1.0},
	})
	results.Types[parse.ID] = extract.TypeInfo{SymbolID: parse.ID, ResolvedType: "error", Language: "go", Declared: true}

	rec := FileRecord{Path: "parser.go", Language: "go", ContentHash: "aaa", MTimeNanos: 1, Size: 100}
	require.NoError(t, store.UpsertFileResults(ctx, ws, rec, results))

	found, err := store.SymbolsByName(ctx, ws.ID, "Parse")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, parse.ID, found[0].ID)

	inFile, err := store.SymbolsInFile(ctx, ws.ID, "parser.go")
	require.NoError(t, err)
	assert.Len(t, inFile, 2)

	from, err := store.RelationshipsFrom(ctx, ws.ID, parse.ID)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, helper.ID, from[0].TargetID)

	info, ok, err := store.TypeOf(ctx, ws.ID, parse.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "error", info.ResolvedType)

	files, err := store.ListFiles(ctx, ws.ID)
	require.NoError(t, err)
	require.Contains(t, files, "parser.go")
	assert.Equal(t, "aaa", files["parser.go"].ContentHash)
}

func TestUpsertReplacesPreviousExtraction(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	old := symbolFixture("a.go", "OldName", "OldName", extract.KindFunction, 5)
	rec := FileRecord{Path: "a.go", Language: "go", ContentHash: "v1"}
	require.NoError(t, store.UpsertFileResults(ctx, ws, rec, fileResults("a.go", []extract.Symbol{old}, nil)))

	renamed := symbolFixture("a.go", "NewName", "NewName", extract.KindFunction, 5)
	rec.ContentHash = "v2"
	require.NoError(t, store.UpsertFileResults(ctx, ws, rec, fileResults("a.go", []extract.Symbol{renamed}, nil)))

	gone, err := store.SymbolsByName(ctx, ws.ID, "OldName")
	require.NoError(t, err)
	assert.Empty(t, gone)

	found, err := store.SymbolsByName(ctx, ws.ID, "NewName")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestRemoveFileCleansOrphans(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	target := symbolFixture("lib.go", "Target", "Target", extract.KindFunction, 3)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "lib.go", Language: "go", ContentHash: "x"},
		fileResults("lib.go", []extract.Symbol{target}, nil)))

	caller := symbolFixture("main.go", "main", "main", extract.KindFunction, 1)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "main.go", Language: "go", ContentHash: "y"},
		fileResults("main.go", []extract.Symbol{caller}, []extract.Relationship{
			{Kind: extract.RelCalls, SourceID: caller.ID, TargetID: target.ID, Path: "main.go", Line: 2, Confidence: 1.0},
		})))

	require.NoError(t, store.RemoveFile(ctx, ws.ID, "lib.go"))

	gone, err := store.SymbolsByName(ctx, ws.ID, "Target")
	require.NoError(t, err)
	assert.Empty(t, gone)

	files, err := store.ListFiles(ctx, ws.ID)
	require.NoError(t, err)
	assert.NotContains(t, files, "lib.go")

	// The caller's edge survives but is deferred again.
	from, err := store.RelationshipsFrom(ctx, ws.ID, caller.ID)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Empty(t, from[0].TargetID)
	assert.Equal(t, "Target", from[0].TargetName)

	stats, err := store.WorkspaceStats(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}

func TestResolveDeferredBindsAcrossFiles(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	caller := symbolFixture("app.py", "main", "main", extract.KindFunction, 1)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "app.py", Language: "python", ContentHash: "a"},
		fileResults("app.py", []extract.Symbol{caller}, []extract.Relationship{
			{Kind: extract.RelCalls, SourceID: caller.ID, TargetName: "get_user_name", Path: "app.py", Line: 2, Confidence: 0.7},
		})))

	callee := symbolFixture("users.py", "get_user_name", "UserStore.get_user_name", extract.KindMethod, 8)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "users.py", Language: "python", ContentHash: "b"},
		fileResults("users.py", []extract.Symbol{callee}, nil)))

	resolved, dropped, err := store.ResolveDeferred(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.Zero(t, dropped)

	from, err := store.RelationshipsFrom(ctx, ws.ID, caller.ID)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, callee.ID, from[0].TargetID)
}

func TestResolveDeferredDropsAfterMaxBatches(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	caller := symbolFixture("a.go", "run", "run", extract.KindFunction, 1)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "a.go", Language: "go", ContentHash: "a"},
		fileResults("a.go", []extract.Symbol{caller}, []extract.Relationship{
			{Kind: extract.RelCalls, SourceID: caller.ID, TargetName: "neverDefined", Path: "a.go", Line: 2, Confidence: 0.7},
		})))

	var dropped int
	for i := 0; i < maxPendingBatches; i++ {
		var err error
		_, dropped, err = store.ResolveDeferred(ctx, ws.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dropped)

	stats, err := store.WorkspaceStats(ctx, ws.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestResolveDeferredPrefersQualifiedThenSamePath(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	samePath := symbolFixture("z.go", "Do", "Do", extract.KindFunction, 50)
	caller := symbolFixture("z.go", "run", "run", extract.KindFunction, 1)
	other := symbolFixture("other.go", "Do", "Do", extract.KindFunction, 5)

	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "other.go", Language: "go", ContentHash: "o"},
		fileResults("other.go", []extract.Symbol{other}, nil)))
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "z.go", Language: "go", ContentHash: "z"},
		fileResults("z.go", []extract.Symbol{samePath, caller}, []extract.Relationship{
			{Kind: extract.RelCalls, SourceID: caller.ID, TargetName: "Do", Path: "z.go", Line: 2, Confidence: 0.7},
		})))

	_, _, err := store.ResolveDeferred(ctx, ws.ID)
	require.NoError(t, err)

	from, err := store.RelationshipsFrom(ctx, ws.ID, caller.ID)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, samePath.ID, from[0].TargetID, "same-file candidate should win")
}

func TestResolveDeferredSkipsImportEdges(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	mod := symbolFixture("main.go", "main.go", "main.go", extract.KindModule, 1)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "main.go", Language: "go", ContentHash: "m"},
		fileResults("main.go", []extract.Symbol{mod}, []extract.Relationship{
			{Kind: extract.RelImports, SourceID: mod.ID, TargetName: "fmt", Path: "main.go", Line: 3, Confidence: 1.0},
		})))

	// A workspace symbol that happens to shadow the module path must
	// not capture the import edge.
	decoy := symbolFixture("util.go", "fmt", "fmt", extract.KindFunction, 2)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "util.go", Language: "go", ContentHash: "u"},
		fileResults("util.go", []extract.Symbol{decoy}, nil)))

	for i := 0; i < maxPendingBatches+1; i++ {
		resolved, dropped, err := store.ResolveDeferred(ctx, ws.ID)
		require.NoError(t, err)
		assert.Zero(t, resolved)
		assert.Zero(t, dropped)
	}

	from, err := store.RelationshipsFrom(ctx, ws.ID, mod.ID)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "fmt", from[0].TargetName)
	assert.Empty(t, from[0].TargetID)

	stats, err := store.WorkspaceStats(ctx, ws.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestResolveDeferredResolvesManyEdgesInOneBatch(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	callee := symbolFixture("lib.go", "Helper", "Helper", extract.KindFunction, 3)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "lib.go", Language: "go", ContentHash: "l"},
		fileResults("lib.go", []extract.Symbol{callee}, nil)))

	// Several deferred edges in one batch: matching queries and the
	// binding transaction share the store's single sqlite connection.
	caller := symbolFixture("main.go", "main", "main", extract.KindFunction, 1)
	var rels []extract.Relationship
	for i := 0; i < 10; i++ {
		rels = append(rels, extract.Relationship{
			Kind: extract.RelCalls, SourceID: caller.ID, TargetName: "Helper",
			Path: "main.go", Line: i + 2, Confidence: 0.7,
		})
	}
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "main.go", Language: "go", ContentHash: "m"},
		fileResults("main.go", []extract.Symbol{caller}, rels)))

	resolved, dropped, err := store.ResolveDeferred(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, resolved)
	assert.Zero(t, dropped)
}

func TestResolveDeferredQualifiedTargetBeatsSamePath(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	method := symbolFixture("store.go", "Do", "Store.Do", extract.KindMethod, 12)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "store.go", Language: "go", ContentHash: "s"},
		fileResults("store.go", []extract.Symbol{method}, nil)))

	bare := symbolFixture("z.go", "Do", "Do", extract.KindFunction, 50)
	caller := symbolFixture("z.go", "run", "run", extract.KindFunction, 1)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "z.go", Language: "go", ContentHash: "z"},
		fileResults("z.go", []extract.Symbol{bare, caller}, []extract.Relationship{
			{Kind: extract.RelCalls, SourceID: caller.ID, TargetName: "Store.Do", Path: "z.go", Line: 2, Confidence: 0.7},
		})))

	_, _, err := store.ResolveDeferred(ctx, ws.ID)
	require.NoError(t, err)

	from, err := store.RelationshipsFrom(ctx, ws.ID, caller.ID)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, method.ID, from[0].TargetID)
	assert.InDelta(t, 0.95, from[0].Confidence, 0.001)
}

func TestWorkspaceStats(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	a := symbolFixture("a.go", "A", "A", extract.KindFunction, 1)
	b := symbolFixture("a.go", "B", "B", extract.KindStruct, 10)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "a.go", Language: "go", ContentHash: "1"},
		fileResults("a.go", []extract.Symbol{a, b}, nil)))

	stats, err := store.WorkspaceStats(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 2, stats.Symbols)
	assert.Equal(t, 2, stats.ByLanguage["go"])
	assert.Equal(t, 1, stats.ByKind["function"])
	assert.Equal(t, 1, stats.ByKind["struct"])
}

func TestDependenciesTraversal(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	a := symbolFixture("x.go", "A", "A", extract.KindFunction, 1)
	b := symbolFixture("x.go", "B", "B", extract.KindFunction, 10)
	c := symbolFixture("x.go", "C", "C", extract.KindFunction, 20)
	require.NoError(t, store.UpsertFileResults(ctx, ws,
		FileRecord{Path: "x.go", Language: "go", ContentHash: "1"},
		fileResults("x.go", []extract.Symbol{a, b, c}, []extract.Relationship{
			{Kind: extract.RelCalls, SourceID: a.ID, TargetID: b.ID, Path: "x.go", Line: 2, Confidence: 1.0},
			{Kind: extract.RelCalls, SourceID: b.ID, TargetID: c.ID, Path: "x.go", Line: 12, Confidence: 1.0},
		})))

	deps, err := store.Dependencies(ctx, ws.ID, a.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{b.ID, c.ID}, deps)

	none, err := store.Dependencies(ctx, ws.ID, c.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTypeOfDistinguishesMissingFromFailure(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	_, ok, err := store.TypeOf(ctx, ws.ID, "no-such-symbol")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Close())
	_, ok, err = store.TypeOf(ctx, ws.ID, "no-such-symbol")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRootHashRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ws := testWorkspace(t, store)
	ctx := context.Background()

	require.NoError(t, store.SetRootHash(ctx, ws.ID, "deadbeef"))
	hash, err := store.RootHash(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", hash)
}
