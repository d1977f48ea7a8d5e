package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"codegraph/internal/pipeline"
)

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the workspace from the index",
	Long:  "Cancels any in-flight indexing pass for the workspace and deletes its symbols, relationships, and file fingerprints from the store.",
	Args:  cobra.NoArgs,
	RunE:  runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	_, store, root, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := pipeline.New(store).RemoveWorkspace(cmd.Context(), root); err != nil {
		return err
	}
	fmt.Printf("Removed %s from the index\n", root)
	return nil
}
