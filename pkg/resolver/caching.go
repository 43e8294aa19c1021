package resolver

import (
	"context"
	"fmt"

	"github.com/treescope/treescope/pkg/index"
	"github.com/treescope/treescope/pkg/target"
)

// CachingResolver memoizes resolution through the object database. Every
// target's dependency key is hashed against the current tree; keys whose
// values are already present short-circuit, and only the residual targets
// reach the underlying resolver. A request that fully hits the cache
// skips the external query entirely.
type CachingResolver struct {
	Underlying Resolver
	DB         index.ObjectDatabase
	HashCtx    *index.HashContext
}

// NewCachingResolver wires the cache in front of underlying.
func NewCachingResolver(underlying Resolver, db index.ObjectDatabase, hashCtx *index.HashContext) *CachingResolver {
	return &CachingResolver{Underlying: underlying, DB: db, HashCtx: hashCtx}
}

func (c *CachingResolver) Resolve(ctx context.Context, req Request, opts CacheOptions) (*Result, error) {
	if c.DB == nil || c.HashCtx == nil || (!opts.AcceptCached && !opts.StoreResponse) {
		return c.Underlying.Resolve(ctx, req, opts)
	}

	cached := NewResult()
	residual := target.NewSet()

	for _, t := range req.Targets {
		key := index.KeyForTarget(t)
		if key == nil || !opts.AcceptCached {
			residual.Insert(t)
			continue
		}
		hash, err := c.HashCtx.Hash(key)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", key, err)
		}
		value, ok, err := c.DB.Get(hash)
		if err != nil {
			return nil, fmt.Errorf("consulting object database for %s: %w", key, err)
		}
		if !ok {
			residual.Insert(t)
			continue
		}
		incorporate(cached, key, value)
	}

	if len(residual) == 0 {
		return cached, nil
	}

	fresh, err := c.Underlying.Resolve(ctx, Request{RepoPath: req.RepoPath, Targets: residual}, opts)
	if err != nil {
		return nil, err
	}

	if opts.StoreResponse {
		for key, value := range fresh.PackageDeps {
			hash, err := c.HashCtx.Hash(key)
			if err != nil {
				return nil, fmt.Errorf("hashing %s: %w", key, err)
			}
			if err := c.DB.Insert(hash, value); err != nil {
				return nil, fmt.Errorf("storing resolution for %s: %w", key, err)
			}
		}
	}

	cached.Merge(fresh)
	return cached, nil
}

// incorporate replays a cached value into the result.
func incorporate(result *Result, key index.DependencyKey, value index.DependencyValue) {
	result.PackageDeps[key] = value
	switch v := value.(type) {
	case index.PathValue:
		result.AddPath(v.Path)
	case index.PackageValue:
		if pkg, ok := key.(index.BazelPackageKey); ok && pkg.ExternalRepository == "" {
			result.AddPath(pkg.Path)
		}
		for _, dep := range v.Deps {
			switch dep := dep.(type) {
			case index.BazelPackageKey:
				if dep.ExternalRepository == "" {
					result.AddPath(dep.Path)
				}
			case index.PathKey:
				result.AddPath(dep.Path)
			case index.BazelBuildFileKey:
				// Build files materialize with their package directory.
			}
		}
	}
}
