// Package drift detects build-graph-affecting changes made since the last
// successful sync, both committed (sync point..HEAD) and uncommitted.
// The two scans run concurrently and join on channels.
package drift

import (
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/treescope/treescope/internal/gitops"
)

// Report lists the build-graph-affecting paths found by each scan.
type Report struct {
	Committed   []string
	Uncommitted []string
}

// Changed reports whether the build graph drifted since the sync point.
func (r *Report) Changed() bool {
	return len(r.Committed) > 0 || len(r.Uncommitted) > 0
}

// Detect runs both scans against the repository.
func Detect(ctx context.Context, repo *gitops.Repo) (*Report, error) {
	syncPoint, ok, err := repo.ReadSyncPoint()
	if err != nil {
		return nil, err
	}
	if !ok {
		// Fall back to the legacy config form.
		legacy, found, err := repo.ConfigGet(ctx, gitops.ConfigSyncPoint)
		if err != nil {
			return nil, err
		}
		if !found || legacy == "" {
			return nil, fmt.Errorf("no sync point recorded: %w", gitops.ErrRefNotFound)
		}
		syncPoint = legacy
	}

	committedCh := make(chan []string, 1)
	uncommittedCh := make(chan []string, 1)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		paths, err := committedChanges(ctx, repo, syncPoint)
		if err != nil {
			return err
		}
		committedCh <- paths
		return nil
	})
	g.Go(func() error {
		paths, err := uncommittedChanges(ctx, repo)
		if err != nil {
			return err
		}
		uncommittedCh <- paths
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Report{
		Committed:   filterBuildGraphPaths(<-committedCh),
		Uncommitted: filterBuildGraphPaths(<-uncommittedCh),
	}, nil
}

func committedChanges(ctx context.Context, repo *gitops.Repo, syncPoint string) ([]string, error) {
	out, err := repo.DiffNames(ctx, syncPoint, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("diffing %s..HEAD: %w", syncPoint, err)
	}
	return out, nil
}

func uncommittedChanges(ctx context.Context, repo *gitops.Repo) ([]string, error) {
	status, err := repo.WorkingTree().Status(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range status.Entries {
		paths = append(paths, entry.Path)
		if entry.OriginalPath != "" {
			paths = append(paths, entry.OriginalPath)
		}
	}
	return paths, nil
}

// filterBuildGraphPaths keeps paths whose change can alter the build
// graph: build-definition files, macro files, and workspace configuration.
func filterBuildGraphPaths(paths []string) []string {
	var out []string
	for _, p := range paths {
		if IsBuildGraphPath(p) {
			out = append(out, p)
		}
	}
	return out
}

// IsBuildGraphPath reports whether a repository path participates in the
// build graph's definition: any BUILD or WORKSPACE file regardless of
// extension variant (BUILD.bazel, WORKSPACE.bzlmod, ...), or a .bzl
// macro file.
func IsBuildGraphPath(p string) bool {
	base := path.Base(p)
	stem := base
	// The stem is everything before the last dot; a leading dot
	// (.bazelrc) is part of the name, not an extension separator.
	if i := strings.LastIndex(base, "."); i > 0 {
		stem = base[:i]
	}
	if stem == "BUILD" || stem == "WORKSPACE" {
		return true
	}
	return strings.HasSuffix(base, ".bzl")
}
