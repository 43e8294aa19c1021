package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treescope/treescope/internal/gitops"
	"github.com/treescope/treescope/internal/snapshot"
	"github.com/treescope/treescope/pkg/config"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Preserve and restore uncommitted work",
	}
	cmd.AddCommand(newSnapshotCreateCmd(), newSnapshotApplyCmd())
	return cmd
}

func newSnapshotCreateCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Archive pending changes and reset the tree clean",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotCreate(cmd.Context(), output)
		},
	}
	cmd.Flags().StringVar(&output, "output-dir", "", "Directory for the archive (default: the repo's snapshot cache)")
	return cmd
}

func runSnapshotCreate(ctx context.Context, outputDir string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	repo, err := gitops.Open(ctx, wd)
	if err != nil {
		return err
	}

	destDir := outputDir
	if destDir == "" {
		id, err := repo.EnsureUUID(ctx)
		if err != nil {
			return err
		}
		destDir = config.SnapshotDir(id)
	}
	archive, err := snapshot.Create(ctx, repo, destDir)
	if err != nil {
		return err
	}
	if archive == "" {
		fmt.Fprintln(os.Stderr, "Working tree is clean; nothing to snapshot.")
		return nil
	}
	fmt.Println(archive)
	return nil
}

func newSnapshotApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <archive>",
		Short: "Restore an archived snapshot over a clean tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotApply(cmd.Context(), args[0])
		},
	}
}

func runSnapshotApply(ctx context.Context, archive string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	repo, err := gitops.Open(ctx, wd)
	if err != nil {
		return err
	}
	if err := snapshot.Apply(ctx, archive, repo); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Snapshot restored.")
	return nil
}
