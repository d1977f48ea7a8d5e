package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/db"
	"codegraph/internal/extract"
	"codegraph/internal/graphstore"
)

func TestSplitWords(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"getUserName", []string{"get", "user", "name"}},
		{"GetUserName", []string{"get", "user", "name"}},
		{"get_user_name", []string{"get", "user", "name"}},
		{"get-user-name", []string{"get", "user", "name"}},
		{"GET_USER_NAME", []string{"get", "user", "name"}},
		{"HTTPServer", []string{"http", "server"}},
		{"parseHTTPResponse", []string{"parse", "http", "response"}},
		{"x", []string{"x"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitWords(tt.name), "SplitWords(%q)", tt.name)
	}
}

func TestVariants(t *testing.T) {
	variants := Variants("get_user_name")
	assert.Contains(t, variants, "getUserName")
	assert.Contains(t, variants, "GetUserName")
	assert.Contains(t, variants, "get-user-name")
	assert.Contains(t, variants, "GET_USER_NAME")
	assert.NotContains(t, variants, "get_user_name", "input itself is excluded")
}

func TestDetect(t *testing.T) {
	assert.Equal(t, ConventionCamel, Detect("getUserName"))
	assert.Equal(t, ConventionPascal, Detect("GetUserName"))
	assert.Equal(t, ConventionSnake, Detect("get_user_name"))
	assert.Equal(t, ConventionKebab, Detect("get-user-name"))
	assert.Equal(t, ConventionScreamingSnake, Detect("GET_USER_NAME"))
}

func TestNormalizedKey(t *testing.T) {
	key := NormalizedKey("getUserName")
	assert.Equal(t, key, NormalizedKey("get_user_name"))
	assert.Equal(t, key, NormalizedKey("GET-USER-NAME"))
	assert.NotEqual(t, key, NormalizedKey("setUserName"))
}

func seedStore(t *testing.T) (*graphstore.Store, graphstore.Workspace) {
	t.Helper()
	store, err := graphstore.Open(context.Background(), db.Config{Driver: db.DriverModernc, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ws, err := store.EnsureWorkspace(context.Background(), "/tmp/project", false)
	require.NoError(t, err)
	return store, ws
}

func addSymbol(t *testing.T, store *graphstore.Store, ws graphstore.Workspace, path, name string, kind extract.SymbolKind, line int) extract.Symbol {
	t.Helper()
	sym := extract.Symbol{
		ID:            extract.SymbolID(path, name, kind, line, 0),
		Name:          name,
		QualifiedName: name,
		Kind:          kind,
		Path:          path,
		StartLine:     line,
		Language:      "go",
	}
	err := store.UpsertFileResults(context.Background(), ws,
		graphstore.FileRecord{Path: path, Language: "go", ContentHash: path + name},
		&extract.ExtractionResults{
			Path:     path,
			Language: "go",
			Symbols:  []extract.Symbol{sym},
			Types:    map[string]extract.TypeInfo{},
		})
	require.NoError(t, err)
	return sym
}

func TestResolveExactTier(t *testing.T) {
	store, ws := seedStore(t)
	target := addSymbol(t, store, ws, "users.go", "GetUserName", extract.KindFunction, 10)

	r := New(store)
	matches, err := r.Resolve(context.Background(), []graphstore.Workspace{ws}, "GetUserName")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, target.ID, matches[0].Symbol.ID)
	assert.Equal(t, TierExact, matches[0].Tier)
	assert.Equal(t, 1.0, matches[0].Confidence)
}

func TestResolveAcrossConventions(t *testing.T) {
	store, ws := seedStore(t)
	pyDef := addSymbol(t, store, ws, "users.py", "get_user_name", extract.KindFunction, 5)

	r := New(store)
	// A TypeScript caller asks for the camelCase form.
	matches, err := r.Resolve(context.Background(), []graphstore.Workspace{ws}, "getUserName")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, pyDef.ID, matches[0].Symbol.ID)
	assert.Equal(t, TierConvention, matches[0].Tier)
	assert.Equal(t, "get_user_name", matches[0].MatchedName)
}

func TestResolveExactBeatsConvention(t *testing.T) {
	store, ws := seedStore(t)
	exact := addSymbol(t, store, ws, "a.go", "getUserName", extract.KindFunction, 1)
	addSymbol(t, store, ws, "b.py", "get_user_name", extract.KindFunction, 1)

	r := New(store)
	matches, err := r.Resolve(context.Background(), []graphstore.Workspace{ws}, "getUserName")
	require.NoError(t, err)
	require.Len(t, matches, 1, "exact tier stops resolution")
	assert.Equal(t, exact.ID, matches[0].Symbol.ID)
}

func TestResolveFuzzyTier(t *testing.T) {
	store, ws := seedStore(t)
	target := addSymbol(t, store, ws, "users.go", "getUserNames", extract.KindFunction, 3)

	r := New(store)
	matches, err := r.Resolve(context.Background(), []graphstore.Workspace{ws}, "getUserName")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, target.ID, matches[0].Symbol.ID)
	assert.Equal(t, TierFuzzy, matches[0].Tier)
	assert.Less(t, matches[0].Confidence, 0.9)
}

func TestResolvePrimaryWorkspaceWins(t *testing.T) {
	store, primary := seedStore(t)
	reference, err := store.EnsureWorkspace(context.Background(), "/tmp/stdlib", true)
	require.NoError(t, err)

	inPrimary := addSymbol(t, store, primary, "app.go", "Parse", extract.KindFunction, 1)
	addSymbol(t, store, reference, "lib.go", "Parse", extract.KindFunction, 1)

	r := New(store)
	matches, err := r.Resolve(context.Background(), []graphstore.Workspace{primary, reference}, "Parse")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, inPrimary.ID, matches[0].Symbol.ID)
}

func TestResolveDefinitionsBeforeImports(t *testing.T) {
	store, ws := seedStore(t)
	addSymbol(t, store, ws, "a.go", "config", extract.KindImport, 1)
	def := addSymbol(t, store, ws, "config.go", "config", extract.KindNamespace, 1)

	r := New(store)
	matches, err := r.Resolve(context.Background(), []graphstore.Workspace{ws}, "config")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, def.ID, matches[0].Symbol.ID)
}

func TestResolveNoMatch(t *testing.T) {
	store, ws := seedStore(t)
	addSymbol(t, store, ws, "a.go", "Alpha", extract.KindFunction, 1)

	r := New(store)
	matches, err := r.Resolve(context.Background(), []graphstore.Workspace{ws}, "completelyUnrelatedZZZ")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestResolveKindHintFilters(t *testing.T) {
	store, ws := seedStore(t)
	addSymbol(t, store, ws, "models.py", "user", extract.KindClass, 3)
	addSymbol(t, store, ws, "schema.sql", "user", extract.KindTable, 1)

	res := New(store)
	workspaces := []graphstore.Workspace{ws}

	all, err := res.Resolve(context.Background(), workspaces, "user")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tables, err := res.ResolveKind(context.Background(), workspaces, "user", extract.KindTable)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "schema.sql", tables[0].Symbol.Path)

	none, err := res.ResolveKind(context.Background(), workspaces, "user", extract.KindInterface)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestResolveFindAllCollectsEveryTier(t *testing.T) {
	store, ws := seedStore(t)
	exact := addSymbol(t, store, ws, "a.go", "getUserName", extract.KindFunction, 5)
	conv := addSymbol(t, store, ws, "b.py", "get_user_name", extract.KindFunction, 9)
	fuzzy := addSymbol(t, store, ws, "c.ts", "getUserNames", extract.KindFunction, 2)

	res := New(store)
	res.FindAll = true
	workspaces := []graphstore.Workspace{ws}

	matches, err := res.Resolve(context.Background(), workspaces, "getUserName")
	require.NoError(t, err)
	require.Len(t, matches, 3)

	byID := map[string]Tier{}
	for _, m := range matches {
		byID[m.Symbol.ID] = m.Tier
	}
	assert.Equal(t, TierExact, byID[exact.ID])
	assert.Equal(t, TierConvention, byID[conv.ID])
	assert.Equal(t, TierFuzzy, byID[fuzzy.ID])

	// Exact confidence ranks first.
	assert.Equal(t, exact.ID, matches[0].Symbol.ID)
}
