package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/treescope/treescope/internal/syncer"
	"github.com/treescope/treescope/pkg/config"
)

func newSyncCmd() *cobra.Command {
	var (
		repoPath         string
		preemptive       bool
		force            bool
		fromProjectCache bool
		snapshotDirty    bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the working tree with the current selection",
		Long: `Resolves the selection to the set of required directories, rewrites the
sparse profile, and drives git to add/remove files on disk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), syncOpts{
				repoPath:         repoPath,
				preemptive:       preemptive,
				force:            force,
				fromProjectCache: fromProjectCache,
				snapshotDirty:    snapshotDirty,
			})
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "Path inside the repository (default: current directory)")
	cmd.Flags().BoolVar(&preemptive, "preemptive", false, "Warm caches against the prefetched upstream commit")
	cmd.Flags().BoolVar(&force, "force", false, "Run a preemptive sync even if the prefetch commit is already synced")
	cmd.Flags().BoolVar(&fromProjectCache, "from-project-cache", false, "Require precomputed pattern sets from the project cache")
	cmd.Flags().BoolVar(&snapshotDirty, "snapshot", false, "Snapshot and restore uncommitted changes instead of refusing a dirty tree")

	return cmd
}

type syncOpts struct {
	repoPath         string
	preemptive       bool
	force            bool
	fromProjectCache bool
	snapshotDirty    bool
}

func runSync(ctx context.Context, opts syncOpts) error {
	repoPath := opts.repoPath
	if repoPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		repoPath = wd
	}

	cfg, err := config.LoadForRepo(repoPath)
	if err != nil {
		return err
	}

	mode := syncer.Incremental
	switch {
	case opts.preemptive && opts.fromProjectCache:
		return fmt.Errorf("--preemptive and --from-project-cache are mutually exclusive")
	case opts.preemptive:
		mode = syncer.Preemptive
	case opts.fromProjectCache:
		mode = syncer.RequireProjectCache
	}

	result, err := syncer.Run(ctx, syncer.Options{
		RepoPath:        repoPath,
		Mode:            mode,
		Force:           opts.force,
		Snapshot:        opts.snapshotDirty || cfg.Sync.SnapshotDirtyTrees,
		IndexTTL:        time.Duration(cfg.Index.TTLDays) * 24 * time.Hour,
		PreserveSandbox: cfg.Sync.PreserveSandbox,
	})
	if err != nil {
		return err
	}

	switch {
	case result.Skipped:
		fmt.Fprintln(os.Stderr, "Sync skipped.")
	case result.CheckedOut:
		fmt.Fprintf(os.Stderr, "Synced to %s (%s).\n", short(result.CommitID), result.Mechanism)
	default:
		fmt.Fprintln(os.Stderr, "Already up to date.")
	}
	return nil
}

func short(commit string) string {
	if len(commit) > 10 {
		return commit[:10]
	}
	return commit
}
