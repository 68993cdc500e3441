package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "mediadedupe",
		Short:   "Find, review, and merge near-duplicate photos and videos",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newScanCmd())
	root.AddCommand(newGroupsCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newUndoCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newIgnoreCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
