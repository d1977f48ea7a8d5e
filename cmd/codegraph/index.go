package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"codegraph/internal/pipeline"
)

var (
	flagFull      bool
	flagReference bool
	flagWorkers   int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the workspace incrementally",
	Long:  "Scans the workspace, re-extracts files whose content changed, removes symbols of deleted files, and resolves pending cross-file relationships.",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagFull, "full", false, "re-extract every file regardless of fingerprints")
	indexCmd.Flags().BoolVar(&flagReference, "reference", false, "index as a lookup-only reference workspace")
	indexCmd.Flags().IntVar(&flagWorkers, "workers", 0, "extraction workers (0 = one per CPU)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, store, root, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ix := pipeline.New(store)
	ix.Workers = cfg.Index.Workers
	ix.MaxRetries = cfg.Index.MaxRetries
	if flagWorkers > 0 {
		ix.Workers = flagWorkers
	}

	summary, err := ix.IndexWorkspace(cmd.Context(), root, pipeline.Options{
		Full:      flagFull,
		Reference: flagReference,
	})
	if err != nil {
		return err
	}
	return printSummary(summary)
}

func printSummary(summary *pipeline.Summary) error {
	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	if summary.Unchanged {
		fmt.Printf("Workspace unchanged (%d files)\n", summary.FilesScanned)
		return nil
	}
	fmt.Printf("Indexed %s in %s\n", summary.Root, summary.Duration.Round(time.Millisecond))
	fmt.Printf("  scanned:  %d files\n", summary.FilesScanned)
	fmt.Printf("  added:    %d, modified: %d, deleted: %d, failed: %d\n",
		summary.FilesAdded, summary.FilesModified, summary.FilesDeleted, summary.FilesFailed)
	fmt.Printf("  edges:    %d resolved, %d dropped\n", summary.EdgesResolved, summary.EdgesDropped)
	return nil
}
