package resolver

import (
	"context"

	"github.com/treescope/treescope/pkg/index"
	"github.com/treescope/treescope/pkg/target"
)

// DirectoryResolver resolves directory targets verbatim; no query needed.
type DirectoryResolver struct{}

func (d *DirectoryResolver) Resolve(ctx context.Context, req Request, _ CacheOptions) (*Result, error) {
	result := NewResult()
	for _, t := range req.Targets {
		dir, ok := t.(target.Directory)
		if !ok {
			continue
		}
		result.AddPath(dir.Path)
		result.PackageDeps[index.PathKey{Path: dir.Path}] = index.PathValue{Path: dir.Path}
	}
	return result, nil
}
