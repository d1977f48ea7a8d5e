package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codegraph/internal/pipeline"
	"codegraph/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workspace and reindex on change",
	Long:  "Runs an initial indexing pass, then watches the filesystem and triggers incremental passes when supported source files change. Stops on SIGINT or SIGTERM.",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, store, root, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ix := pipeline.New(store)
	ix.Workers = cfg.Index.Workers
	ix.MaxRetries = cfg.Index.MaxRetries

	summary, err := ix.IndexWorkspace(cmd.Context(), root, pipeline.Options{})
	if err != nil {
		return err
	}
	if err := printSummary(summary); err != nil {
		return err
	}

	w, err := watcher.New(ix, root)
	if err != nil {
		return err
	}
	defer w.Stop()
	if cfg.Watch.DebounceMs > 0 {
		w.Debounce = time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	}
	w.OnPass = func(s *pipeline.Summary) {
		if !s.Unchanged {
			fmt.Fprintf(os.Stderr, "reindexed in %s (+%d ~%d -%d)\n",
				s.Duration.Round(time.Millisecond), s.FilesAdded, s.FilesModified, s.FilesDeleted)
		}
	}

	w.Start(cmd.Context())
	fmt.Fprintf(os.Stderr, "watching %s\n", root)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-cmd.Context().Done():
	case <-sigCh:
	}
	return nil
}
