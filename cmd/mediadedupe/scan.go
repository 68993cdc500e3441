package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type scanOptions struct {
	storeFlags
	minSize string
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Scan roots and rebuild duplicate groups",
		Long: `Walks the given roots, extracts content signatures, and recomputes
duplicate groups (spec.md §4.1-§4.6). Re-running scan on an unchanged
tree reproduces identical group identities.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runScan(args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.storeRoot, "store-root", "", "Root directory the store.db and recycle bin live under (required)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Override store.db path (default: <store-root>/.mediadedupe/store.db)")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to signature hash cache (enables caching)")
	cmd.Flags().StringVar(&opts.minSize, "min-size", "", "Skip files smaller than this (e.g. \"10KiB\"); overrides config.json")
	_ = cmd.MarkFlagRequired("store-root")

	return cmd
}

func runScan(paths []string, opts *scanOptions) error {
	eng, err := openEngine(opts.storeFlags)
	if err != nil {
		return err
	}
	if opts.minSize != "" {
		n, err := humanize.ParseBytes(opts.minSize)
		if err != nil {
			return fmt.Errorf("invalid --min-size: %w", err)
		}
		eng.SetMinFileSize(int64(n))
	}
	defer func() { _ = eng.Close() }()

	events := eng.StartScan(context.Background(), rootHandles(paths))
	for ev := range events {
		if ev.Err != nil {
			fmt.Printf("[%s] error: %v\n", ev.Stage, ev.Err)
			continue
		}
		fmt.Printf("[%s] %s\n", ev.Stage, ev.Message)
	}
	return nil
}
