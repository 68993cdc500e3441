package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darianrose/mediadedupe/internal/types"
)

type undoOptions struct {
	storeFlags
	txID string
}

func newUndoCmd() *cobra.Command {
	opts := &undoOptions{}

	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Undo the most recent merge, or a specific transaction",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runUndo(opts)
		},
	}

	cmd.Flags().StringVar(&opts.storeRoot, "store-root", "", "Root directory the store.db and recycle bin live under (required)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Override store.db path")
	cmd.Flags().StringVar(&opts.txID, "tx", "", "Transaction id to undo (default: most recently committed)")
	_ = cmd.MarkFlagRequired("store-root")

	return cmd
}

func runUndo(opts *undoOptions) error {
	eng, err := openEngine(opts.storeFlags)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	var txID *types.TxID
	if opts.txID != "" {
		id, err := parseFileID(opts.txID)
		if err != nil {
			return fmt.Errorf("invalid --tx: %w", err)
		}
		txID = &id
	}

	tx, err := eng.Undo(txID)
	if err != nil {
		return err
	}
	fmt.Printf("undone tx_id=%s group=%s restored=%d losers\n", tx.TxID, tx.GroupID, len(tx.Losers))
	return nil
}
