package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/treescope/treescope/internal/gitops"
	"github.com/treescope/treescope/internal/hooks"
	"github.com/treescope/treescope/pkg/patterns"
)

func newInitCmd() *cobra.Command {
	var repoPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Turn an existing clone into a focused repository",
		Long: `Enables sparse checkout with the empty selection, installs the sync
hooks, persists the repository identity, and attaches the outlining
worktree used for build-graph queries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), repoPath)
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", "", "Path inside the repository (default: current directory)")
	return cmd
}

func runInit(ctx context.Context, repoPath string) error {
	if repoPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		repoPath = wd
	}

	repo, err := gitops.Open(ctx, repoPath)
	if err != nil {
		return err
	}
	wt := repo.WorkingTree()

	clean, err := wt.IsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return fmt.Errorf("refusing to initialize over uncommitted changes")
	}

	if err := wt.Configure(ctx); err != nil {
		return err
	}

	// Keep the engine's state files out of status output.
	excludePath := filepath.Join(repo.GitDir(), "info", "exclude")
	if err := appendLineOnce(excludePath, ".focus/"); err != nil {
		return err
	}

	// The empty selection still materializes the mandatory section.
	if err := wt.WriteSparseProfile(patterns.NewSet().Render()); err != nil {
		return err
	}
	if err := wt.ApplySparseProfile(ctx); err != nil {
		return err
	}

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating own binary for hooks: %w", err)
	}
	if err := hooks.Install(repo.GitDir(), binary); err != nil {
		return err
	}

	id, err := repo.EnsureUUID(ctx)
	if err != nil {
		return err
	}

	outlining, err := repo.EnsureOutliningTree(ctx)
	if err != nil {
		return err
	}
	if err := hooks.Install(outlining.GitDir(), binary); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Initialized focused repository %s (outlining tree at %s).\n", id, outlining.Root())
	return nil
}

func appendLineOnce(path, line string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	for _, l := range strings.Split(string(existing), "\n") {
		if l == line {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return nil
}
