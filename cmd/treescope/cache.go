package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/treescope/treescope/internal/gitops"
	"github.com/treescope/treescope/internal/objectdb"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the dependency index",
	}
	cmd.AddCommand(newCacheStatsCmd(), newCacheClearCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report object-database entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd.Context())
		},
	}
}

func runCacheStats(ctx context.Context) error {
	store, err := openLocalStore(ctx)
	if err != nil {
		return err
	}
	count, err := store.EstimateEntryCount()
	if err != nil {
		return err
	}
	fmt.Printf("object database entries: %d\n", count)
	return nil
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard every cached resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(cmd.Context())
		},
	}
}

func runCacheClear(ctx context.Context) error {
	store, err := openLocalStore(ctx)
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Object database cleared.")
	return nil
}

func openLocalStore(ctx context.Context) (*objectdb.BadgerStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	repo, err := gitops.Open(ctx, wd)
	if err != nil {
		return nil, err
	}
	return objectdb.OpenBadger(filepath.Join(repo.CommonDir(), "focus", "index"), 0)
}
