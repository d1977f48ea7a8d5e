package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"codegraph/internal/graphstore"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics per workspace",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

type workspaceStats struct {
	Root      string           `json:"root"`
	Reference bool             `json:"reference"`
	Stats     graphstore.Stats `json:"stats"`
}

func runStats(cmd *cobra.Command, args []string) error {
	_, store, _, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	workspaces, err := store.Workspaces(cmd.Context())
	if err != nil {
		return err
	}

	var out []workspaceStats
	for _, ws := range workspaces {
		stats, err := store.WorkspaceStats(cmd.Context(), ws.ID)
		if err != nil {
			return err
		}
		out = append(out, workspaceStats{Root: ws.Root, Reference: ws.IsReference, Stats: stats})
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(out) == 0 {
		fmt.Println("No indexed workspaces")
		return nil
	}
	for _, ws := range out {
		label := ""
		if ws.Reference {
			label = " (reference)"
		}
		fmt.Printf("%s%s\n", ws.Root, label)
		fmt.Printf("  files: %d, symbols: %d, relationships: %d (%d pending)\n",
			ws.Stats.Files, ws.Stats.Symbols, ws.Stats.Relationships, ws.Stats.Pending)
		printCounts("  by language:", ws.Stats.ByLanguage)
		printCounts("  by kind:", ws.Stats.ByKind)
	}
	return nil
}

func printCounts(header string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println(header)
	for _, k := range keys {
		fmt.Printf("    %-12s %d\n", k, counts[k])
	}
}
