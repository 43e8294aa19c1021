package gitops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/treescope/treescope/internal/fileutil"
)

// OutliningTreeRelPath is where the outlining worktree lives, relative to
// the user-facing working-tree root.
const OutliningTreeRelPath = ".focus/outlining-tree"

// WorkingTree is one checkout of the repository: the user-facing tree or
// the outlining tree. Each worktree exclusively owns its index file,
// sparse profile, and hooks.
type WorkingTree struct {
	root   string
	gitDir string
}

// Root returns the worktree root directory.
func (w *WorkingTree) Root() string { return w.root }

// GitDir returns the worktree's git dir.
func (w *WorkingTree) GitDir() string { return w.gitDir }

// SparseProfilePath returns the worktree's sparse-checkout pattern file.
func (w *WorkingTree) SparseProfilePath() string {
	return filepath.Join(w.gitDir, "info", "sparse-checkout")
}

// ReadSparseProfile returns the current profile bytes, nil when absent.
func (w *WorkingTree) ReadSparseProfile() ([]byte, error) {
	data, err := os.ReadFile(w.SparseProfilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sparse profile: %w", err)
	}
	return data, nil
}

// WriteSparseProfile replaces the profile atomically.
func (w *WorkingTree) WriteSparseProfile(content []byte) error {
	infoDir := filepath.Join(w.gitDir, "info")
	if err := os.MkdirAll(infoDir, 0o755); err != nil {
		return fmt.Errorf("creating info dir: %w", err)
	}
	if err := fileutil.AtomicWrite(w.SparseProfilePath(), content, 0o644); err != nil {
		return fmt.Errorf("writing sparse profile: %w", err)
	}
	return nil
}

// ApplySparseProfile makes git re-read the profile and add/remove files on
// disk accordingly.
func (w *WorkingTree) ApplySparseProfile(ctx context.Context) error {
	if _, err := runGit(ctx, w.root, "sparse-checkout", "reapply"); err != nil {
		return fmt.Errorf("applying sparse profile: %w", err)
	}
	return nil
}

// Status parses the worktree's porcelain-v2 state.
func (w *WorkingTree) Status(ctx context.Context) (*Status, error) {
	raw, err := runGitRaw(ctx, w.root, "status", "--porcelain=v2", "-z", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("reading worktree status: %w", err)
	}
	return ParseStatus(raw)
}

// IsClean reports whether the worktree has no pending changes.
func (w *WorkingTree) IsClean(ctx context.Context) (bool, error) {
	status, err := w.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.IsEmpty(), nil
}

// Configure enables the features a focused worktree depends on: sparse
// checkout with a sparse index, and the untracked cache.
func (w *WorkingTree) Configure(ctx context.Context) error {
	settings := [][2]string{
		{"core.sparseCheckout", "true"},
		{"index.sparse", "true"},
		{"core.untrackedCache", "true"},
	}
	for _, kv := range settings {
		if _, err := runGit(ctx, w.root, "config", kv[0], kv[1]); err != nil {
			return fmt.Errorf("configuring worktree %s: %w", kv[0], err)
		}
	}
	return nil
}

// EnsureOutliningTree attaches (or returns) the outlining worktree: a full
// checkout used only for running build-graph queries.
func (r *Repo) EnsureOutliningTree(ctx context.Context) (*WorkingTree, error) {
	path := filepath.Join(r.root, filepath.FromSlash(OutliningTreeRelPath))
	if _, err := os.Stat(path); err == nil {
		return openOutliningTree(ctx, path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("probing outlining tree: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating outlining parent dir: %w", err)
	}
	if _, err := runGit(ctx, r.root, "worktree", "add", "--no-checkout", path, "HEAD"); err != nil {
		return nil, fmt.Errorf("attaching outlining worktree: %w", err)
	}
	// The outlining tree needs the entire repository materialized.
	if _, err := runGit(ctx, path, "sparse-checkout", "disable"); err != nil {
		return nil, fmt.Errorf("disabling sparse checkout in outlining tree: %w", err)
	}
	if _, err := runGit(ctx, path, "checkout", "--force", "HEAD"); err != nil {
		return nil, fmt.Errorf("checking out outlining tree: %w", err)
	}
	return openOutliningTree(ctx, path)
}

// OutliningTree returns the outlining worktree if it exists.
func (r *Repo) OutliningTree(ctx context.Context) (*WorkingTree, bool, error) {
	path := filepath.Join(r.root, filepath.FromSlash(OutliningTreeRelPath))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("probing outlining tree: %w", err)
	}
	wt, err := openOutliningTree(ctx, path)
	if err != nil {
		return nil, false, err
	}
	return wt, true, nil
}

// UpdateOutliningTree moves the outlining tree to the given commit so
// queries see the tree state being synchronized.
func (r *Repo) UpdateOutliningTree(ctx context.Context, commitID string) error {
	wt, ok, err := r.OutliningTree(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("outlining tree does not exist")
	}
	if _, err := runGit(ctx, wt.Root(), "checkout", "--force", commitID); err != nil {
		return fmt.Errorf("updating outlining tree to %s: %w", commitID, err)
	}
	return nil
}

func openOutliningTree(ctx context.Context, path string) (*WorkingTree, error) {
	gitDir, err := runGit(ctx, path, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, fmt.Errorf("resolving outlining git dir: %w", err)
	}
	return &WorkingTree{root: path, gitDir: gitDir}, nil
}
