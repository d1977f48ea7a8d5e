package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/db"
	"codegraph/internal/graphstore"
	"codegraph/internal/pipeline"
)

func newTestWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	store, err := graphstore.Open(context.Background(), db.Config{Driver: db.DriverModernc, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	w, err := New(pipeline.New(store), root)
	require.NoError(t, err)
	w.Debounce = 50 * time.Millisecond
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherTriggersPassOnWrite(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))

	w := newTestWatcher(t, root)
	passes := make(chan *pipeline.Summary, 4)
	w.OnPass = func(s *pipeline.Summary) { passes <- s }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, "util.go"), []byte("package main\n\nfunc helper() {}\n"), 0o644))

	select {
	case summary := <-passes:
		assert.GreaterOrEqual(t, summary.FilesScanned, 2)
	case <-time.After(10 * time.Second):
		t.Fatal("no pass triggered after file write")
	}
}

func TestRelevantFiltersEvents(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root)

	cases := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{"main.go", fsnotify.Write, true},
		{"script.py", fsnotify.Create, true},
		{"query.sql", fsnotify.Remove, true},
		{"README.md", fsnotify.Write, false},
		{"main.go", fsnotify.Chmod, false},
		{"node_modules/dep.js", fsnotify.Write, false},
		{".git/index.go", fsnotify.Write, false},
	}
	for _, tc := range cases {
		event := fsnotify.Event{Name: filepath.Join(root, filepath.FromSlash(tc.name)), Op: tc.op}
		assert.Equal(t, tc.want, w.relevant(event), "%s %v", tc.name, tc.op)
	}
}

func TestWatcherIgnoresDeniedDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	w := newTestWatcher(t, root)
	passes := make(chan *pipeline.Summary, 4)
	w.OnPass = func(s *pipeline.Summary) { passes <- s }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "pkg", "index.js"), []byte("module.exports = {}\n"), 0o644))

	select {
	case <-passes:
		t.Fatal("pass triggered for denied directory")
	case <-time.After(500 * time.Millisecond):
	}
}
