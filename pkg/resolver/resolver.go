// Package resolver translates selection targets into the set of
// repository paths required to build them. Directory targets resolve
// verbatim; Bazel targets resolve by querying the external build graph
// inside the outlining worktree.
package resolver

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/treescope/treescope/pkg/index"
	"github.com/treescope/treescope/pkg/target"
)

// Request asks for the paths required by a set of targets. RepoPath is
// the worktree queries run in; for Bazel targets it must be the fully
// materialized outlining tree.
type Request struct {
	RepoPath string
	Targets  target.Set
}

// Result is the set of paths to materialize plus the dependency edges
// discovered along the way, keyed for the object database.
type Result struct {
	paths       map[string]bool
	PackageDeps map[index.DependencyKey]index.DependencyValue
}

// NewResult constructs an empty result.
func NewResult() *Result {
	return &Result{
		paths:       make(map[string]bool),
		PackageDeps: make(map[index.DependencyKey]index.DependencyValue),
	}
}

// AddPath records a repository-relative path to materialize.
func (r *Result) AddPath(path string) {
	if path != "" {
		r.paths[path] = true
	}
}

// Paths returns the sorted set of paths.
func (r *Result) Paths() []string {
	out := make([]string, 0, len(r.paths))
	for p := range r.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Merge folds other into r.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	for p := range other.paths {
		r.paths[p] = true
	}
	for k, v := range other.PackageDeps {
		r.PackageDeps[k] = v
	}
}

// CacheOptions dictates whether a resolver may read from and write to the
// object database.
type CacheOptions struct {
	AcceptCached  bool
	StoreResponse bool
}

// DefaultCacheOptions enables both directions.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{AcceptCached: true, StoreResponse: true}
}

// Resolver resolves a target set to paths.
type Resolver interface {
	Resolve(ctx context.Context, req Request, opts CacheOptions) (*Result, error)
}

// RoutingResolver splits a request by target kind and dispatches each
// sub-request to its kind-specific resolver in parallel, reducing the
// partial results.
type RoutingResolver struct {
	Bazel     Resolver
	Directory Resolver
	Pants     Resolver
}

// NewRoutingResolver wires the standard sub-resolvers.
func NewRoutingResolver() *RoutingResolver {
	return &RoutingResolver{
		Bazel:     NewBazelResolver(),
		Directory: &DirectoryResolver{},
		Pants:     &PantsResolver{},
	}
}

func (r *RoutingResolver) Resolve(ctx context.Context, req Request, opts CacheOptions) (*Result, error) {
	bazelTargets := target.NewSet()
	directoryTargets := target.NewSet()
	pantsTargets := target.NewSet()
	for _, t := range req.Targets {
		switch t.(type) {
		case target.Label:
			bazelTargets.Insert(t)
		case target.Directory:
			directoryTargets.Insert(t)
		case target.Pants:
			pantsTargets.Insert(t)
		}
	}

	type subRequest struct {
		resolver Resolver
		targets  target.Set
	}
	subs := []subRequest{
		{r.Bazel, bazelTargets},
		{r.Directory, directoryTargets},
		{r.Pants, pantsTargets},
	}

	results := make([]*Result, len(subs))
	g, ctx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		if len(sub.targets) == 0 {
			continue
		}
		g.Go(func() error {
			res, err := sub.resolver.Resolve(ctx, Request{RepoPath: req.RepoPath, Targets: sub.targets}, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := NewResult()
	for _, res := range results {
		merged.Merge(res)
	}
	return merged, nil
}
