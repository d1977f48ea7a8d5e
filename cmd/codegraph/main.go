package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"codegraph/internal/config"
	"codegraph/internal/graphstore"
	"codegraph/internal/logging"
)

const version = "0.1.0"

var (
	flagRoot   string
	flagFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "codegraph",
	Short:         "Cross-language code intelligence indexer",
	Long:          "Codegraph parses source trees with tree-sitter, stores symbols and relationships in SQLite or Postgres, and resolves names across language naming conventions.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagFormat != "json" && flagFormat != "text" {
			return fmt.Errorf("unknown format %q (want json or text)", flagFormat)
		}
		return nil
	},
	// No Run, prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", ".", "workspace root directory")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the codegraph version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codegraph v%s\n", version)
	},
}

// openEngine loads the workspace configuration and opens the graph
// store it points at. Callers own closing the store.
func openEngine(cmd *cobra.Command) (*config.Config, *graphstore.Store, string, error) {
	absRoot, err := filepath.Abs(flagRoot)
	if err != nil {
		return nil, nil, "", err
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, nil, "", fmt.Errorf("not a directory: %s", absRoot)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, nil, "", err
	}
	applyLogConfig(cfg)

	store, err := graphstore.Open(cmd.Context(), cfg.StoreDBConfig(absRoot))
	if err != nil {
		return nil, nil, "", fmt.Errorf("open store: %w", err)
	}
	return cfg, store, absRoot, nil
}

// applyLogConfig forwards file-configured log settings through the
// environment, where the logging package reads them. Explicit env
// vars were already applied by config precedence.
func applyLogConfig(cfg *config.Config) {
	if os.Getenv(logging.EnvLogLevel) == "" {
		os.Setenv(logging.EnvLogLevel, cfg.Log.Level)
	}
	if os.Getenv(logging.EnvLogFormat) == "" {
		os.Setenv(logging.EnvLogFormat, cfg.Log.Format)
	}
}
