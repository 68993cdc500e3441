package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/darianrose/mediadedupe/internal/types"
)

type historyOptions struct {
	storeFlags
	since string
	until string
}

func newHistoryCmd() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the merge/undo transaction log",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runHistory(opts)
		},
	}

	cmd.Flags().StringVar(&opts.storeRoot, "store-root", "", "Root directory the store.db lives under (required)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Override store.db path")
	cmd.Flags().StringVar(&opts.since, "since", "", "Only show transactions at or after this RFC3339 timestamp")
	cmd.Flags().StringVar(&opts.until, "until", "", "Only show transactions at or before this RFC3339 timestamp")
	_ = cmd.MarkFlagRequired("store-root")

	return cmd
}

func runHistory(opts *historyOptions) error {
	eng, err := openEngine(opts.storeFlags)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	var window types.TimeWindow
	if opts.since != "" {
		t, err := time.Parse(time.RFC3339, opts.since)
		if err != nil {
			return fmt.Errorf("--since: %w", err)
		}
		window.Since = t
	}
	if opts.until != "" {
		t, err := time.Parse(time.RFC3339, opts.until)
		if err != nil {
			return fmt.Errorf("--until: %w", err)
		}
		window.Until = t
	}

	txs, err := eng.History(window)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		undo := ""
		if tx.HasUndoOf {
			undo = fmt.Sprintf(" undo_of=%s", tx.UndoOf)
		}
		fmt.Printf("%s  %s  status=%s group=%s keeper=%s losers=%d%s\n",
			tx.Timestamp.Format("2006-01-02T15:04:05Z07:00"), tx.TxID, tx.Status, tx.GroupID, tx.KeeperID, len(tx.Losers), undo)
		if tx.Note != "" {
			fmt.Printf("    note: %s\n", tx.Note)
		}
	}
	return nil
}
