package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treescope/treescope/internal/gitops"
	"github.com/treescope/treescope/internal/syncer"
	"github.com/treescope/treescope/pkg/selection"
)

func newAddCmd() *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "add <project-or-target>...",
		Short: "Add projects or targets to the selection and sync",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutate(cmd.Context(), selection.Add, args, noSync)
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Mutate the selection without syncing")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "remove <project-or-target>...",
		Short: "Remove projects or targets from the selection and sync",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutate(cmd.Context(), selection.Remove, args, noSync)
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Mutate the selection without syncing")
	return cmd
}

// runMutate applies the selection change with mutate-and-sync semantics: a
// failed sync reverts the selection file.
func runMutate(ctx context.Context, action selection.Action, items []string, noSync bool) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	repo, err := gitops.Open(ctx, wd)
	if err != nil {
		return err
	}

	mgr, err := selection.NewManager(repo.Root())
	if err != nil {
		return err
	}

	backup, err := mgr.NewBackup()
	if err != nil {
		return err
	}
	defer backup.Release()

	changed, err := mgr.Mutate(action, items)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Fprintln(os.Stderr, "Selection unchanged.")
		backup.Discard()
		return nil
	}
	if err := mgr.Save(); err != nil {
		return err
	}

	if noSync {
		backup.Discard()
		return nil
	}

	result, err := syncer.Run(ctx, syncer.Options{RepoPath: repo.Root()})
	if err != nil {
		// The deferred backup release restores the prior selection.
		return fmt.Errorf("selection reverted, sync failed: %w", err)
	}
	backup.Discard()

	if result.CheckedOut {
		fmt.Fprintf(os.Stderr, "Synced to %s.\n", short(result.CommitID))
	}
	return nil
}
