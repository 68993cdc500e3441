package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type groupsOptions struct {
	storeFlags
}

func newGroupsCmd() *cobra.Command {
	opts := &groupsOptions{}

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List duplicate groups from the last scan",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runGroups(opts)
		},
	}

	cmd.Flags().StringVar(&opts.storeRoot, "store-root", "", "Root directory the store.db lives under (required)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Override store.db path")
	_ = cmd.MarkFlagRequired("store-root")

	return cmd
}

func runGroups(opts *groupsOptions) error {
	eng, err := openEngine(opts.storeFlags)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	groups, err := eng.ListGroups()
	if err != nil {
		return err
	}
	for _, g := range groups {
		keeper := "(none)"
		if g.HasKeeper {
			keeper = g.SuggestedKeeper.String()
		}
		fmt.Printf("%s  members=%d confidence=%.2f kind=%s keeper=%s incomplete=%v\n",
			g.GroupID, len(g.Members), g.Confidence, g.Kind, keeper, g.Incomplete)
		for _, m := range g.Members {
			if rec, ok := eng.LookupRecord(m); ok {
				fmt.Printf("    %s  %s  %s\n", m, humanize.Bytes(uint64(rec.Size)), rec.Path)
				continue
			}
			fmt.Printf("    %s\n", m)
		}
		for _, line := range g.RationaleLines {
			fmt.Printf("    - %s\n", line)
		}
	}
	return nil
}
