// Package fileutil provides atomic file replacement and restore-on-failure
// backups used by the sync engine.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWrite replaces path with data via a sibling tempfile and rename,
// so readers never observe a partial profile.
func AtomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating tempfile in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("setting mode on %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming %s over %s: %w", tmpName, path, err)
	}
	return nil
}

// BackedUpFile snapshots a file's content at construction and restores it
// on Release unless Discard was called first. It gives mutate-and-sync
// operations their all-or-nothing semantics.
type BackedUpFile struct {
	path     string
	content  []byte
	mode     os.FileMode
	existed  bool
	restore  bool
	released bool
}

// NewBackedUpFile captures the current state of path. A missing file is
// recorded as absent and restored by deletion.
func NewBackedUpFile(path string) (*BackedUpFile, error) {
	b := &BackedUpFile{path: path, mode: 0o644, restore: true}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		b.existed = true
		b.mode = info.Mode().Perm()
		b.content, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("backing up %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("backing up %s: %w", path, err)
	}
	return b, nil
}

// Path returns the guarded file's path.
func (b *BackedUpFile) Path() string { return b.path }

// Content returns the captured bytes (nil if the file was absent).
func (b *BackedUpFile) Content() []byte { return b.content }

// Discard marks the backup as no longer needed; Release becomes a no-op.
func (b *BackedUpFile) Discard() { b.restore = false }

// Release restores the captured state unless Discard was called. Safe to
// call more than once.
func (b *BackedUpFile) Release() error {
	if b.released || !b.restore {
		b.released = true
		return nil
	}
	b.released = true
	if !b.existed {
		if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("restoring %s by removal: %w", b.path, err)
		}
		return nil
	}
	if err := AtomicWrite(b.path, b.content, b.mode); err != nil {
		return fmt.Errorf("restoring %s: %w", b.path, err)
	}
	return nil
}
