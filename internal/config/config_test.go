package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/db"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, string(db.DriverModernc), cfg.Store.Driver)
	assert.Equal(t, ".codegraph/index.db", cfg.Store.Path)
	assert.Equal(t, 0.8, cfg.Resolve.FuzzyThreshold)
	assert.Equal(t, 20, cfg.Resolve.MaxResults)
	assert.Equal(t, 500, cfg.Watch.DebounceMs)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".codegraph"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".codegraph", "config.yml"), []byte(`
store:
  driver: modernc
  path: custom/graph.db
index:
  workers: 4
resolve:
  fuzzy_threshold: 0.9
log:
  level: debug
`), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "custom/graph.db", cfg.Store.Path)
	assert.Equal(t, 4, cfg.Index.Workers)
	assert.Equal(t, 0.9, cfg.Resolve.FuzzyThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 20, cfg.Resolve.MaxResults)
}

func TestEnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".codegraph"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".codegraph", "config.yml"), []byte("log:\n  level: warn\n"), 0o644))

	t.Setenv("CODEGRAPH_LOG_LEVEL", "error")
	t.Setenv("CODEGRAPH_INDEX_WORKERS", "8")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Index.Workers)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }},
		{"missing sqlite path", func(c *Config) { c.Store.Path = "" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = string(db.DriverPostgres) }},
		{"threshold above one", func(c *Config) { c.Resolve.FuzzyThreshold = 1.5 }},
		{"zero max results", func(c *Config) { c.Resolve.MaxResults = 0 }},
		{"negative workers", func(c *Config) { c.Index.Workers = -1 }},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestStoreDBConfigRootsRelativePath(t *testing.T) {
	cfg := Default()
	dbCfg := cfg.StoreDBConfig("/ws/project")
	assert.Equal(t, filepath.Join("/ws/project", ".codegraph", "index.db"), dbCfg.Path)

	cfg.Store.Path = "/abs/graph.db"
	assert.Equal(t, "/abs/graph.db", cfg.StoreDBConfig("/ws/project").Path)

	cfg.Store.Path = ":memory:"
	assert.Equal(t, ":memory:", cfg.StoreDBConfig("/ws/project").Path)
}
