package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type ignoreOptions struct {
	storeFlags
	remove bool
}

func newIgnoreCmd() *cobra.Command {
	opts := &ignoreOptions{}

	cmd := &cobra.Command{
		Use:   "ignore <file-id-a> <file-id-b>",
		Short: "Add or remove a permanent ignore pair between two files",
		Long: `Records that two files should never be grouped as duplicates of each
other again (spec.md §3's IgnorePair), or removes that decision with
--remove.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runIgnore(args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVar(&opts.storeRoot, "store-root", "", "Root directory the store.db lives under (required)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Override store.db path")
	cmd.Flags().BoolVar(&opts.remove, "remove", false, "Remove an existing ignore pair instead of adding one")
	_ = cmd.MarkFlagRequired("store-root")

	return cmd
}

func runIgnore(aStr, bStr string, opts *ignoreOptions) error {
	a, err := parseFileID(aStr)
	if err != nil {
		return fmt.Errorf("invalid first file id: %w", err)
	}
	b, err := parseFileID(bStr)
	if err != nil {
		return fmt.Errorf("invalid second file id: %w", err)
	}

	eng, err := openEngine(opts.storeFlags)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if opts.remove {
		if err := eng.RemoveIgnorePair(a, b); err != nil {
			return err
		}
		fmt.Println("ignore pair removed")
		return nil
	}
	if err := eng.AddIgnorePair(a, b); err != nil {
		return err
	}
	fmt.Println("ignore pair added")
	return nil
}
