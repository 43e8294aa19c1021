package objectdb

import (
	"log"

	"github.com/treescope/treescope/pkg/index"
)

// Layered composes a local store with a best-effort remote cache. Local
// misses fall through to the remote; remote hits are backfilled locally.
// Remote failures degrade to misses and never fail the caller.
type Layered struct {
	local  index.ObjectDatabase
	remote index.ObjectDatabase
}

// NewLayered builds the composition. remote may be nil.
func NewLayered(local, remote index.ObjectDatabase) *Layered {
	return &Layered{local: local, remote: remote}
}

func (l *Layered) Get(hash index.ContentHash) (index.DependencyValue, bool, error) {
	value, ok, err := l.local.Get(hash)
	if err != nil || ok {
		return value, ok, err
	}
	if l.remote == nil {
		return nil, false, nil
	}

	value, ok, err = l.remote.Get(hash)
	if err != nil {
		log.Printf("remote cache read failed, treating as miss: %v", err)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	if err := l.local.Insert(hash, value); err != nil {
		log.Printf("backfilling local cache for %s: %v", hash, err)
	}
	return value, true, nil
}

func (l *Layered) Insert(hash index.ContentHash, value index.DependencyValue) error {
	if err := l.local.Insert(hash, value); err != nil {
		return err
	}
	if l.remote != nil {
		if err := l.remote.Insert(hash, value); err != nil {
			log.Printf("remote cache write failed: %v", err)
		}
	}
	return nil
}

func (l *Layered) Clear() error {
	return l.local.Clear()
}
