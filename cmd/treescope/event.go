package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/treescope/treescope/internal/hooks"
	"github.com/treescope/treescope/internal/syncer"
)

func newEventCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "event <hook-name>",
		Short:  "Dispatch a git hook event (installed by init)",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(cmd.Context(), args[0])
		},
	}
}

// runEvent reacts to upstream updates. Failures are logged and reported
// as nonzero exit without corrupting repo state.
func runEvent(ctx context.Context, hookName string) error {
	if !hooks.IsKnown(hookName) {
		return fmt.Errorf("unknown hook event %q", hookName)
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	switch hookName {
	case "post-merge":
		result, err := syncer.Run(ctx, syncer.Options{RepoPath: wd})
		if err != nil {
			log.Printf("post-merge sync failed: %v", err)
			return err
		}
		if result.CheckedOut {
			fmt.Fprintf(os.Stderr, "Synced to %s.\n", short(result.CommitID))
		}
	case "post-commit":
		// Opportunistically warm caches; skips unless enabled in config.
		if _, err := syncer.Run(ctx, syncer.Options{RepoPath: wd, Mode: syncer.Preemptive}); err != nil {
			log.Printf("post-commit preemptive sync failed: %v", err)
			return err
		}
	}
	return nil
}
