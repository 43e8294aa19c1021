// Package main provides the treescope CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

// exit codes for callers scripting the tool.
const (
	exitFailure           = 1
	exitBuildGraphChanged = 2
)

// errBuildGraphChanged distinguishes drift detection's nonzero exit from
// ordinary failures.
var errBuildGraphChanged = errors.New("build graph changed since last sync")

func main() {
	rootCmd := &cobra.Command{
		Use:   "treescope",
		Short: "Focused development in large monorepos",
		Long: `Treescope materializes exactly the slice of a monorepo needed to build
your selected projects and targets, and keeps that slice in sync as the
selection and upstream history evolve.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newInitCmd(),
		newSyncCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newProjectsCmd(),
		newStatusCmd(),
		newDetectChangesCmd(),
		newEventCmd(),
		newSnapshotCmd(),
		newCacheCmd(),
	)

	// Subprocesses (resolver queries, git) are killed when the parent is
	// signalled; the profile backup rolls back any partial writes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errBuildGraphChanged) {
			os.Exit(exitBuildGraphChanged)
		}
		os.Exit(exitFailure)
	}
}
