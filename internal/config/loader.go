package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration for a workspace root with priority, from
// highest to lowest: CODEGRAPH_* environment variables, then
// .codegraph/config.yml under the root, then defaults.
func Load(rootDir string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(rootDir, ".codegraph"))

	v.SetEnvPrefix("CODEGRAPH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"store.driver",
		"store.path",
		"store.dsn",
		"index.workers",
		"index.include_hidden",
		"index.max_retries",
		"resolve.fuzzy_threshold",
		"resolve.max_results",
		"watch.debounce_ms",
		"log.level",
		"log.format",
	} {
		v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("store.driver", defaults.Store.Driver)
	v.SetDefault("store.path", defaults.Store.Path)
	v.SetDefault("store.dsn", defaults.Store.DSN)

	v.SetDefault("index.workers", defaults.Index.Workers)
	v.SetDefault("index.include_hidden", defaults.Index.IncludeHidden)
	v.SetDefault("index.max_retries", defaults.Index.MaxRetries)

	v.SetDefault("resolve.fuzzy_threshold", defaults.Resolve.FuzzyThreshold)
	v.SetDefault("resolve.max_results", defaults.Resolve.MaxResults)

	v.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
}

func resolveUnder(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, filepath.FromSlash(path))
}
