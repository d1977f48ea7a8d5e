package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codegraph/internal/extract"
	"codegraph/internal/resolver"
)

var flagKind string

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Resolve a symbol name across languages and conventions",
	Long:  "Looks a name up exactly, then through naming-convention variants (getUserName, get_user_name, GetUserName, ...), then fuzzily. Primary workspaces rank above reference workspaces.",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&flagKind, "kind", "", "restrict to one symbol kind (function, class, table, ...)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, store, _, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	workspaces, err := store.Workspaces(cmd.Context())
	if err != nil {
		return err
	}
	if len(workspaces) == 0 {
		return fmt.Errorf("no indexed workspaces, run codegraph index first")
	}

	res := resolver.New(store)
	res.FuzzyThreshold = cfg.Resolve.FuzzyThreshold
	res.MaxResults = cfg.Resolve.MaxResults

	matches, err := res.ResolveKind(cmd.Context(), workspaces, args[0], extract.SymbolKind(flagKind))
	if err != nil {
		return err
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}

	if len(matches) == 0 {
		fmt.Printf("No matches for %q\n", args[0])
		return nil
	}
	for _, m := range matches {
		fmt.Printf("%-10s %.2f  %s %s  %s:%d (%s)\n",
			m.Tier, m.Confidence, m.Symbol.Kind, m.Symbol.Name,
			m.Symbol.Path, m.Symbol.StartLine, m.Symbol.Language)
	}
	return nil
}
