// Package config carries the tool-level settings read from an optional
// .treescope/config.yaml, and lays out the per-repository data directory
// keyed by the repo's persistent identity. Repo-local settings live in
// git config and are owned by internal/gitops.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level tool configuration.
type Config struct {
	Sync  SyncConfig  `yaml:"sync"`
	Index IndexConfig `yaml:"index"`
}

// SyncConfig controls synchronization behavior.
type SyncConfig struct {
	// SnapshotDirtyTrees snapshots and restores pending changes instead
	// of refusing to sync a dirty tree.
	SnapshotDirtyTrees bool `yaml:"snapshot_dirty_trees"`

	// PreserveSandbox keeps per-invocation scratch directories for
	// debugging.
	PreserveSandbox bool `yaml:"preserve_sandbox"`
}

// IndexConfig controls object-database defaults.
type IndexConfig struct {
	// TTLDays bounds local cache retention; 0 falls back to the sync
	// engine's 90-day default.
	TTLDays int `yaml:"ttl_days"`
}

const configRelPath = ".treescope/config.yaml"

// LoadForRepo returns the configuration governing dir: the nearest
// .treescope/config.yaml at or above dir, decoded strictly over the
// defaults. With no config file anywhere up the tree, the defaults apply.
func LoadForRepo(dir string) (*Config, error) {
	cfg := &Config{
		Index: IndexConfig{TTLDays: 90},
	}

	path, ok := locate(dir)
	if !ok {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// locate climbs from dir toward the filesystem root until it finds a
// config file.
func locate(dir string) (string, bool) {
	for {
		candidate := filepath.Join(dir, filepath.FromSlash(configRelPath))
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
		next := filepath.Dir(dir)
		if next == dir {
			return "", false
		}
		dir = next
	}
}

// DataDir is where the engine keeps per-repository state that must not
// live inside the working tree. Entries are keyed by the repo's
// persistent UUID (gitops.Repo.EnsureUUID) so they survive the checkout
// being moved. A fresh clone has no recorded UUID and gets a new one.
func DataDir(repoID string) string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "treescope", "repos", repoID)
}

// SnapshotDir holds a repository's working-tree snapshot archives.
func SnapshotDir(repoID string) string {
	return filepath.Join(DataDir(repoID), "snapshots")
}
