package resolver

import (
	"context"
	"errors"
	"fmt"
)

// ErrPantsUnsupported reports that Pants resolution is not wired up.
// Pants addresses parse and persist, but cannot be outlined.
var ErrPantsUnsupported = errors.New("pants target resolution is not supported")

// PantsResolver rejects Pants targets with a distinguished error.
type PantsResolver struct{}

func (p *PantsResolver) Resolve(_ context.Context, req Request, _ CacheOptions) (*Result, error) {
	if len(req.Targets) == 0 {
		return NewResult(), nil
	}
	return nil, fmt.Errorf("resolving %d pants target(s): %w", len(req.Targets), ErrPantsUnsupported)
}
