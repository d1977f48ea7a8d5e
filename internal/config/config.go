// Package config loads engine configuration from defaults, an
// optional .codegraph/config.yml, and CODEGRAPH_* environment
// variables, with the environment winning.
package config

import (
	"fmt"

	"codegraph/internal/db"
)

// Config is the full engine configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Index   IndexConfig   `yaml:"index" mapstructure:"index"`
	Resolve ResolveConfig `yaml:"resolve" mapstructure:"resolve"`
	Watch   WatchConfig   `yaml:"watch" mapstructure:"watch"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and locates the graph store backend.
type StoreConfig struct {
	// Driver is "modernc" (embedded SQLite) or "postgres".
	Driver string `yaml:"driver" mapstructure:"driver"`

	// Path is the SQLite database path, relative to the workspace
	// root unless absolute.
	Path string `yaml:"path" mapstructure:"path"`

	// DSN is the Postgres connection string. Ignored for SQLite.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// IndexConfig tunes indexing passes.
type IndexConfig struct {
	// Workers caps the extraction pool. Zero means one per CPU.
	Workers int `yaml:"workers" mapstructure:"workers"`

	// IncludeHidden walks dotfiles and dot-directories.
	IncludeHidden bool `yaml:"include_hidden" mapstructure:"include_hidden"`

	// MaxRetries bounds merge retries on store transaction errors.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
}

// ResolveConfig tunes cross-language name resolution.
type ResolveConfig struct {
	// FuzzyThreshold is the minimum similarity for a fuzzy match,
	// in [0, 1].
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`

	// MaxResults caps matches returned per query.
	MaxResults int `yaml:"max_results" mapstructure:"max_results"`
}

// WatchConfig tunes the filesystem watcher.
type WatchConfig struct {
	// DebounceMs is how long to wait after the last event before
	// triggering a pass.
	DebounceMs int `yaml:"debounce_ms" mapstructure:"debounce_ms"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" mapstructure:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: string(db.DriverModernc),
			Path:   ".codegraph/index.db",
		},
		Index: IndexConfig{
			Workers:    0,
			MaxRetries: 3,
		},
		Resolve: ResolveConfig{
			FuzzyThreshold: 0.8,
			MaxResults:     20,
		},
		Watch: WatchConfig{
			DebounceMs: 500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func Validate(cfg *Config) error {
	switch db.Driver(cfg.Store.Driver) {
	case db.DriverModernc:
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path required for driver %q", cfg.Store.Driver)
		}
	case db.DriverPostgres:
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn required for driver %q", cfg.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Resolve.FuzzyThreshold < 0 || cfg.Resolve.FuzzyThreshold > 1 {
		return fmt.Errorf("resolve.fuzzy_threshold %v out of range [0, 1]", cfg.Resolve.FuzzyThreshold)
	}
	if cfg.Resolve.MaxResults <= 0 {
		return fmt.Errorf("resolve.max_results must be positive, got %d", cfg.Resolve.MaxResults)
	}
	if cfg.Index.Workers < 0 {
		return fmt.Errorf("index.workers must not be negative, got %d", cfg.Index.Workers)
	}
	if cfg.Watch.DebounceMs < 0 {
		return fmt.Errorf("watch.debounce_ms must not be negative, got %d", cfg.Watch.DebounceMs)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return nil
}

// StoreDBConfig converts the store section into a db.Config, rooting
// a relative SQLite path under workspaceRoot.
func (c *Config) StoreDBConfig(workspaceRoot string) db.Config {
	cfg := db.Config{
		Driver: db.Driver(c.Store.Driver),
		Path:   c.Store.Path,
		DSN:    c.Store.DSN,
	}
	if cfg.Driver == db.DriverModernc && cfg.Path != "" && cfg.Path != ":memory:" {
		cfg.Path = resolveUnder(workspaceRoot, cfg.Path)
	}
	return cfg
}
