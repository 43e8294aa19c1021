package gitops

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
)

// Repo-local configuration keys.
const (
	ConfigUUID                  = "focus.uuid"
	ConfigSyncPoint             = "focus.sync-point" // legacy string form
	ConfigPreemptiveSyncEnabled = "focus.preemptive-sync.enabled"
	ConfigIdleThreshold         = "focus.preemptive-sync.idle-threshold"
	ConfigProjectCacheEndpoint  = "focus.project-cache.endpoint"
	ConfigIndexEnabled          = "focus.index.enabled"
	ConfigIndexRemote           = "focus.index.remote"
)

// Sync-point refs, one commit id each.
const (
	SyncPointRef           = "refs/focus/sync"
	PreemptiveSyncPointRef = "refs/focus/preemptive-sync"
)

// ErrRefNotFound reports a missing ref where one was required.
var ErrRefNotFound = errors.New("ref not found")

// Repo is an opened focused repository rooted at its user-facing working
// tree. The Repo owns the shared object database; worktrees own only
// their local state.
type Repo struct {
	root      string
	gitDir    string
	commonDir string
	gitRepo   *git.Repository
}

// Open resolves the repository containing path.
func Open(ctx context.Context, path string) (*Repo, error) {
	root, err := runGit(ctx, path, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("locating repository from %s: %w", path, err)
	}
	gitDir, err := runGit(ctx, root, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, fmt.Errorf("locating git dir: %w", err)
	}
	commonDir, err := runGit(ctx, root, "rev-parse", "--git-common-dir")
	if err != nil {
		return nil, fmt.Errorf("locating common git dir: %w", err)
	}
	if !filepath.IsAbs(commonDir) {
		commonDir = filepath.Join(root, commonDir)
	}

	gitRepo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", root, err)
	}

	return &Repo{root: root, gitDir: gitDir, commonDir: commonDir, gitRepo: gitRepo}, nil
}

// Root returns the working-tree root.
func (r *Repo) Root() string { return r.root }

// Underlying exposes the go-git repository for object-model access.
func (r *Repo) Underlying() *git.Repository { return r.gitRepo }

// GitDir returns the worktree-specific git dir.
func (r *Repo) GitDir() string { return r.gitDir }

// CommonDir returns the git dir shared by all worktrees.
func (r *Repo) CommonDir() string { return r.commonDir }

// WorkingTree returns the user-facing working tree.
func (r *Repo) WorkingTree() *WorkingTree {
	return &WorkingTree{root: r.root, gitDir: r.gitDir}
}

// HeadCommit resolves HEAD to a commit id.
func (r *Repo) HeadCommit(ctx context.Context) (string, error) {
	out, err := runGit(ctx, r.root, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return out, nil
}

// HeadTree returns the tree of the HEAD commit via go-git.
func (r *Repo) HeadTree() (*object.Tree, error) {
	head, err := r.gitRepo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	return r.CommitTree(head.Hash().String())
}

// CommitTree returns the tree of the given commit.
func (r *Repo) CommitTree(commitID string) (*object.Tree, error) {
	commit, err := r.gitRepo.CommitObject(plumbing.NewHash(commitID))
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", commitID, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree of %s: %w", commitID, err)
	}
	return tree, nil
}

// DiffNames lists the paths that changed between two commits.
func (r *Repo) DiffNames(ctx context.Context, from, to string) ([]string, error) {
	out, err := runGit(ctx, r.root, "diff", "--name-only", from, to)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// PrimaryBranchName reports whether the repository uses master or main.
func (r *Repo) PrimaryBranchName() (string, error) {
	for _, name := range []string{"master", "main"} {
		if _, err := r.gitRepo.Reference(plumbing.NewBranchReferenceName(name), false); err == nil {
			return name, nil
		}
	}
	return "", errors.New("could not determine primary branch name (no master or main)")
}

// PrefetchHeadCommit returns the commit most recently fetched by git's
// background prefetch for the given remote branch, if any.
func (r *Repo) PrefetchHeadCommit(remote, branch string) (string, bool) {
	name := plumbing.ReferenceName(fmt.Sprintf("refs/prefetch/remotes/%s/%s", remote, branch))
	ref, err := r.gitRepo.Reference(name, true)
	if err != nil {
		return "", false
	}
	return ref.Hash().String(), true
}

// ReadRef reads a plain ref, reporting absence without error.
func (r *Repo) ReadRef(name string) (string, bool, error) {
	ref, err := r.gitRepo.Reference(plumbing.ReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading ref %s: %w", name, err)
	}
	return ref.Hash().String(), true, nil
}

// WriteRef points a plain ref at a commit id.
func (r *Repo) WriteRef(name, commitID string) error {
	ref := plumbing.NewHashReference(plumbing.ReferenceName(name), plumbing.NewHash(commitID))
	if err := r.gitRepo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("writing ref %s: %w", name, err)
	}
	return nil
}

// ConfigGet reads a repo-local configuration value; absence is ok=false.
func (r *Repo) ConfigGet(ctx context.Context, key string) (string, bool, error) {
	out, err := runGit(ctx, r.root, "config", "--local", "--get", key)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading config %s: %w", key, err)
	}
	return out, true, nil
}

// ConfigSet writes a repo-local configuration value.
func (r *Repo) ConfigSet(ctx context.Context, key, value string) error {
	if _, err := runGit(ctx, r.root, "config", "--local", key, value); err != nil {
		return fmt.Errorf("writing config %s: %w", key, err)
	}
	return nil
}

// ConfigBool reads a boolean config key, defaulting when absent.
func (r *Repo) ConfigBool(ctx context.Context, key string, def bool) (bool, error) {
	raw, ok, err := r.ConfigGet(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("config %s has non-boolean value %q", key, raw)
	}
	return v, nil
}

// EnsureUUID returns the repository's persistent identity, minting and
// persisting one on first use.
func (r *Repo) EnsureUUID(ctx context.Context) (string, error) {
	existing, ok, err := r.ConfigGet(ctx, ConfigUUID)
	if err != nil {
		return "", err
	}
	if ok && existing != "" {
		return existing, nil
	}
	id := uuid.NewString()
	if err := r.ConfigSet(ctx, ConfigUUID, id); err != nil {
		return "", err
	}
	return id, nil
}

// ReadSyncPoint reads the commit last successfully synchronized.
func (r *Repo) ReadSyncPoint() (string, bool, error) {
	return r.ReadRef(SyncPointRef)
}

// WriteSyncPoint records the commit just synchronized.
func (r *Repo) WriteSyncPoint(commitID string) error {
	return r.WriteRef(SyncPointRef, commitID)
}

// ReadPreemptiveSyncPoint reads the last speculatively synchronized commit.
func (r *Repo) ReadPreemptiveSyncPoint() (string, bool, error) {
	return r.ReadRef(PreemptiveSyncPointRef)
}

// WritePreemptiveSyncPoint records a speculative sync point.
func (r *Repo) WritePreemptiveSyncPoint(commitID string) error {
	return r.WriteRef(PreemptiveSyncPointRef, commitID)
}
