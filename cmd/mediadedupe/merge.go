package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darianrose/mediadedupe/internal/types"
)

type mergeOptions struct {
	storeFlags
	keeper string
	dryRun bool
}

func newMergeCmd() *cobra.Command {
	opts := &mergeOptions{}

	cmd := &cobra.Command{
		Use:   "merge <group-id>",
		Short: "Plan and execute a merge for one duplicate group",
		Long: `Computes the field-level merge matrix for the group (spec.md §4.7) and,
unless --dry-run is given, executes it: writes merged metadata to the
keeper, moves losers to the recycle location, and records a transaction
that undo can reverse later.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runMerge(args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.storeRoot, "store-root", "", "Root directory the store.db and recycle bin live under (required)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Override store.db path")
	cmd.Flags().StringVar(&opts.keeper, "keeper", "", "Override the suggested keeper's file_id")
	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "Compute the plan and would-be transaction without touching the filesystem")
	_ = cmd.MarkFlagRequired("store-root")

	return cmd
}

func runMerge(groupIDStr string, opts *mergeOptions) error {
	groupID, err := parseGroupID(groupIDStr)
	if err != nil {
		return fmt.Errorf("invalid group id: %w", err)
	}

	eng, err := openEngine(opts.storeFlags)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	var keeperOverride *types.FileID
	if opts.keeper != "" {
		id, err := parseFileID(opts.keeper)
		if err != nil {
			return fmt.Errorf("invalid --keeper: %w", err)
		}
		keeperOverride = &id
	}

	plan, err := eng.PlanMerge(groupID, keeperOverride, opts.dryRun)
	if err != nil {
		return err
	}

	tx, err := eng.ExecuteMerge(plan)
	if err != nil {
		return err
	}

	fmt.Printf("tx_id=%s status=%s keeper=%s losers=%d writes=%d dry_run=%v\n",
		tx.TxID, tx.Status, tx.KeeperID, len(tx.Losers), len(tx.Writes), plan.DryRun)
	for _, w := range tx.Writes {
		fmt.Printf("  write %s = %q (from %s)\n", w.Field, w.NewValue, w.SourceFile)
	}
	for _, l := range tx.Losers {
		fmt.Printf("  moved %s -> %s\n", l.OriginalPath, l.RecyclePath)
	}
	return nil
}
