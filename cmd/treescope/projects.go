package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treescope/treescope/internal/drift"
	"github.com/treescope/treescope/internal/gitops"
	"github.com/treescope/treescope/pkg/selection"
)

func newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the project catalog and the current selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjects(cmd.Context())
		},
	}
}

func runProjects(ctx context.Context) error {
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

	selected := map[string]bool{}
	for _, name := range mgr.ProjectNames() {
		selected[name] = true
	}

	fmt.Println("Projects:")
	for _, name := range mgr.Catalog().OptionalNames() {
		project, _ := mgr.Catalog().Find(name)
		marker := " "
		if selected[name] {
			marker = "*"
		}
		fmt.Printf("  %s %-48s %s (%d targets)\n", marker, name, project.Description, len(project.Targets))
	}
	for _, project := range mgr.Catalog().MandatoryProjects() {
		fmt.Printf("  + %-48s %s (mandatory)\n", project.Name, project.Description)
	}

	targets := mgr.TargetStrings()
	if len(targets) > 0 {
		fmt.Println("\nTargets:")
		for _, t := range targets {
			fmt.Printf("  %s\n", t)
		}
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync point and working-tree state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	repo, err := gitops.Open(ctx, wd)
	if err != nil {
		return err
	}

	head, err := repo.HeadCommit(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("HEAD:       %s\n", short(head))

	if syncPoint, ok, _ := repo.ReadSyncPoint(); ok {
		fmt.Printf("Sync point: %s\n", short(syncPoint))
	} else {
		fmt.Println("Sync point: (never synced)")
	}
	if preemptive, ok, _ := repo.ReadPreemptiveSyncPoint(); ok {
		fmt.Printf("Preemptive: %s\n", short(preemptive))
	}

	clean, err := repo.WorkingTree().IsClean(ctx)
	if err != nil {
		return err
	}
	if clean {
		fmt.Println("Tree:       clean")
	} else {
		fmt.Println("Tree:       has uncommitted changes")
	}
	return nil
}

func newDetectChangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect-changes",
		Short: "Exit nonzero if the build graph drifted since the last sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetectChanges(cmd.Context())
		},
	}
}

func runDetectChanges(ctx context.Context) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	repo, err := gitops.Open(ctx, wd)
	if err != nil {
		return err
	}

	report, err := drift.Detect(ctx, repo)
	if err != nil {
		return err
	}
	if !report.Changed() {
		fmt.Fprintln(os.Stderr, "Build graph is unchanged since the last sync.")
		return nil
	}

	for _, p := range report.Committed {
		fmt.Fprintf(os.Stderr, "committed change affects the build graph: %s\n", p)
	}
	for _, p := range report.Uncommitted {
		fmt.Fprintf(os.Stderr, "uncommitted change affects the build graph: %s\n", p)
	}
	return errBuildGraphChanged
}
