// Package syncer drives the full selection → paths → profile → checkout
// flow under the repository sync lock, with restore-on-failure backups of
// the sparse profile.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/treescope/treescope/internal/fileutil"
	"github.com/treescope/treescope/internal/gitops"
	"github.com/treescope/treescope/internal/locking"
	"github.com/treescope/treescope/internal/objectdb"
	"github.com/treescope/treescope/internal/projectcache"
	"github.com/treescope/treescope/internal/sandbox"
	"github.com/treescope/treescope/internal/snapshot"
	"github.com/treescope/treescope/pkg/index"
	"github.com/treescope/treescope/pkg/patterns"
	"github.com/treescope/treescope/pkg/resolver"
	"github.com/treescope/treescope/pkg/selection"
	"github.com/treescope/treescope/pkg/target"
)

// Mode selects the synchronization strategy.
type Mode int

const (
	// Incremental synchronizes the user-facing tree to HEAD.
	Incremental Mode = iota
	// Preemptive warms caches against the latest prefetched commit and
	// never modifies the user's working tree.
	Preemptive
	// RequireProjectCache refuses to resolve locally: every selected
	// project must be served by the remote project cache.
	RequireProjectCache
)

// Mechanism reports how patterns were obtained.
type Mechanism string

const (
	MechanismLocalResolution Mechanism = "local-resolution"
	MechanismProjectCache    Mechanism = "project-cache"
)

// Options parameterize one sync run.
type Options struct {
	RepoPath string
	Mode     Mode

	// Force makes a preemptive sync run even when the prefetch commit
	// matches a recorded sync point.
	Force bool

	// Snapshot preserves a dirty working tree across the sync instead of
	// refusing to run.
	Snapshot bool

	// IndexTTL bounds local object-database retention; zero uses the
	// default.
	IndexTTL time.Duration

	// PreserveSandbox keeps the invocation's scratch directory around
	// for debugging.
	PreserveSandbox bool

	// Resolver overrides the resolver stack; tests use this.
	Resolver resolver.Resolver
}

// Result is the outcome of a sync.
type Result struct {
	CheckedOut bool
	CommitID   string
	Skipped    bool
	Mechanism  Mechanism
}

// Distinguished failures.
var (
	ErrNotFocusedRepo   = errors.New("this does not appear to be a focused repo: missing sparse checkout profile")
	ErrDirtyWorkingTree = errors.New("working tree has uncommitted changes")
)

// objectDatabaseTTL bounds local cache growth across commits.
const objectDatabaseTTL = 90 * 24 * time.Hour

// Run executes the sync state machine.
func Run(ctx context.Context, opts Options) (result *Result, err error) {
	repo, err := gitops.Open(ctx, opts.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("opening repo: %w", err)
	}
	wt := repo.WorkingTree()

	current, err := wt.ReadSparseProfile()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFocusedRepo
	}

	lock, err := locking.Acquire(filepath.Join(repo.GitDir(), "sync.lock"), locking.ProcessDescription())
	if err != nil {
		return nil, fmt.Errorf("obtaining synchronization lock: %w", err)
	}
	defer lock.Release()

	if opts.Mode == Preemptive {
		enabled, err := repo.ConfigBool(ctx, gitops.ConfigPreemptiveSyncEnabled, false)
		if err != nil {
			return nil, err
		}
		if !enabled {
			return &Result{Skipped: true}, nil
		}
		if !opts.Force {
			recent, err := preemptiveRanRecently(ctx, repo)
			if err != nil {
				return nil, err
			}
			if recent {
				return &Result{Skipped: true}, nil
			}
		}
		defer stampPreemptiveRun(repo)
	}

	commit, skip, err := commitToSync(ctx, repo, opts)
	if err != nil {
		return nil, err
	}
	if skip {
		return &Result{CommitID: commit, Skipped: true}, nil
	}

	var backup *fileutil.BackedUpFile
	var snapshotPath string
	if opts.Mode != Preemptive {
		clean, err := wt.IsClean(ctx)
		if err != nil {
			return nil, fmt.Errorf("determining working tree cleanliness: %w", err)
		}
		if !clean {
			if !opts.Snapshot {
				return nil, ErrDirtyWorkingTree
			}
			snapshotPath, err = snapshot.Create(ctx, repo, filepath.Join(repo.GitDir(), "focus", "snapshots"))
			if err != nil {
				return nil, fmt.Errorf("snapshotting working tree: %w", err)
			}
		}

		backup, err = fileutil.NewBackedUpFile(wt.SparseProfilePath())
		if err != nil {
			return nil, err
		}
		// Any failure from here on restores the prior profile.
		defer func() {
			if restoreErr := backup.Release(); restoreErr != nil && err == nil {
				err = restoreErr
			}
		}()
	}

	mgr, err := selection.NewManager(repo.Root())
	if err != nil {
		return nil, err
	}
	sel, err := mgr.ComputedSelection()
	if err != nil {
		return nil, err
	}
	targets, err := sel.TargetSet()
	if err != nil {
		return nil, err
	}

	set, mechanism, err := resolvePatterns(ctx, repo, sel, targets, commit, opts)
	if err != nil {
		return nil, err
	}

	newContent := set.Render()
	if bytes.Equal(newContent, current) {
		// Nothing to do; leave the profile mtime and sync point alone.
		if backup != nil {
			backup.Discard()
		}
		if opts.Mode == Preemptive {
			if err := repo.WritePreemptiveSyncPoint(commit); err != nil {
				return nil, err
			}
		}
		return &Result{CheckedOut: false, CommitID: commit, Mechanism: mechanism}, nil
	}

	if opts.Mode == Preemptive {
		// Cache warming only; the user's tree is untouched.
		if err := repo.WritePreemptiveSyncPoint(commit); err != nil {
			return nil, err
		}
		return &Result{CheckedOut: false, CommitID: commit, Mechanism: mechanism}, nil
	}

	if err := wt.WriteSparseProfile(newContent); err != nil {
		return nil, err
	}
	if err := wt.ApplySparseProfile(ctx); err != nil {
		// The sync point stays untouched; the next sync retries from the
		// prior known-good commit.
		return nil, fmt.Errorf("updating working tree: %w", err)
	}

	if err := repo.WriteSyncPoint(commit); err != nil {
		return nil, err
	}
	if err := repo.ConfigSet(ctx, gitops.ConfigSyncPoint, commit); err != nil {
		log.Printf("recording legacy sync point: %v", err)
	}

	if snapshotPath != "" {
		if err := snapshot.Apply(ctx, snapshotPath, repo); err != nil {
			return nil, fmt.Errorf("restoring working tree snapshot: %w", err)
		}
	}

	backup.Discard()
	return &Result{CheckedOut: true, CommitID: commit, Mechanism: mechanism}, nil
}

// preemptiveRanRecently rate-limits preemptive syncs by the configured
// idle threshold (milliseconds), using a stamp file's mtime.
func preemptiveRanRecently(ctx context.Context, repo *gitops.Repo) (bool, error) {
	raw, ok, err := repo.ConfigGet(ctx, gitops.ConfigIdleThreshold)
	if err != nil || !ok {
		return false, err
	}
	thresholdMs, err := strconv.Atoi(raw)
	if err != nil || thresholdMs <= 0 {
		return false, nil
	}

	info, err := os.Stat(preemptiveStampPath(repo))
	if err != nil {
		return false, nil
	}
	return time.Since(info.ModTime()) < time.Duration(thresholdMs)*time.Millisecond, nil
}

func stampPreemptiveRun(repo *gitops.Repo) {
	path := preemptiveStampPath(repo)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		log.Printf("writing preemptive sync stamp: %v", err)
	}
}

func preemptiveStampPath(repo *gitops.Repo) string {
	return filepath.Join(repo.GitDir(), "focus", "preemptive-sync-stamp")
}

// commitToSync picks the commit to materialize and whether the run can be
// skipped outright.
func commitToSync(ctx context.Context, repo *gitops.Repo, opts Options) (string, bool, error) {
	if opts.Mode != Preemptive {
		commit, err := repo.HeadCommit(ctx)
		return commit, false, err
	}

	branch, err := repo.PrimaryBranchName()
	if err != nil {
		return "", false, err
	}
	commit, ok := repo.PrefetchHeadCommit("origin", branch)
	if !ok {
		return "", false, fmt.Errorf("no prefetch commit found for preemptive sync")
	}
	if opts.Force {
		return commit, false, nil
	}

	if syncPoint, ok, _ := repo.ReadSyncPoint(); ok && syncPoint == commit {
		return commit, true, nil
	}
	if preemptive, ok, _ := repo.ReadPreemptiveSyncPoint(); ok && preemptive == commit {
		return commit, true, nil
	}
	return commit, false, nil
}

// resolvePatterns turns the computed selection into a pattern set, either
// via the project cache or by local resolution in the outlining tree.
func resolvePatterns(ctx context.Context, repo *gitops.Repo, sel selection.Selection, targets target.Set, commit string, opts Options) (*patterns.Set, Mechanism, error) {
	if opts.Mode == RequireProjectCache {
		set, err := patternsFromProjectCache(ctx, repo, sel, commit)
		if err != nil {
			return nil, MechanismProjectCache, err
		}
		return set, MechanismProjectCache, nil
	}
	set, err := patternsFromLocalResolution(ctx, repo, targets, commit, opts)
	if err != nil {
		return nil, MechanismLocalResolution, err
	}
	return set, MechanismLocalResolution, nil
}

func patternsFromLocalResolution(ctx context.Context, repo *gitops.Repo, targets target.Set, commit string, opts Options) (*patterns.Set, error) {
	tree, err := repo.CommitTree(commit)
	if err != nil {
		return nil, err
	}
	treeReader := index.GitTree{Tree: tree}

	res := opts.Resolver
	repoPath := repo.Root()
	if res == nil {
		outlining, err := repo.EnsureOutliningTree(ctx)
		if err != nil {
			return nil, fmt.Errorf("preparing outlining tree: %w", err)
		}
		if err := repo.UpdateOutliningTree(ctx, commit); err != nil {
			return nil, err
		}
		repoPath = outlining.Root()

		sb, err := sandbox.New(opts.PreserveSandbox)
		if err != nil {
			return nil, err
		}
		defer sb.Cleanup()

		db, err := openObjectDatabase(ctx, repo, opts.IndexTTL)
		if err != nil {
			return nil, err
		}
		routing := resolver.NewRoutingResolver()
		routing.Bazel = &resolver.BazelResolver{QueryDir: sb.Dir()}
		if db != nil {
			res = resolver.NewCachingResolver(routing, db, index.NewHashContext(treeReader, db))
		} else {
			res = routing
		}
	}

	result, err := res.Resolve(ctx, resolver.Request{RepoPath: repoPath, Targets: targets}, resolver.DefaultCacheOptions())
	if err != nil {
		return nil, fmt.Errorf("resolving targets: %w", err)
	}

	paths := result.Paths()
	buildFiles, err := discoverBuildFiles(treeReader, paths)
	if err != nil {
		return nil, err
	}
	return patterns.FromResolution(paths, buildFiles), nil
}

// discoverBuildFiles probes the commit tree for each resolved package's
// build-definition file so the profile pins it explicitly.
func discoverBuildFiles(tree index.TreeReader, paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		for _, candidate := range []string{p + "/BUILD", p + "/BUILD.bazel"} {
			_, ok, err := tree.EntryOID(candidate)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, candidate)
				break
			}
		}
	}
	return out, nil
}

// openObjectDatabase builds the configured object-database stack: Badger
// locally, layered with a remote cache when one is configured. Returns nil
// when the index is disabled.
func openObjectDatabase(ctx context.Context, repo *gitops.Repo, ttl time.Duration) (index.ObjectDatabase, error) {
	enabled, err := repo.ConfigBool(ctx, gitops.ConfigIndexEnabled, true)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}

	if ttl == 0 {
		ttl = objectDatabaseTTL
	}
	var local index.ObjectDatabase
	local, err = objectdb.OpenBadger(filepath.Join(repo.CommonDir(), "focus", "index"), ttl)
	if err != nil {
		// Another process may hold the store open; fall back to the slow
		// repo-backed store rather than failing the sync.
		log.Printf("local object database unavailable (%v); using repo-backed store", err)
		local = objectdb.NewGitStore(repo.Underlying())
	}

	endpoint, ok, err := repo.ConfigGet(ctx, gitops.ConfigIndexRemote)
	if err != nil {
		return nil, err
	}
	if !ok || endpoint == "" {
		return local, nil
	}
	remote, err := objectdb.NewRemoteCache(ctx, endpoint)
	if err != nil {
		log.Printf("ignoring invalid index remote %q: %v", endpoint, err)
		return local, nil
	}
	return objectdb.NewLayered(local, remote), nil
}

func patternsFromProjectCache(ctx context.Context, repo *gitops.Repo, sel selection.Selection, commit string) (*patterns.Set, error) {
	endpoint, ok, err := repo.ConfigGet(ctx, gitops.ConfigProjectCacheEndpoint)
	if err != nil {
		return nil, err
	}
	if !ok || endpoint == "" {
		return nil, fmt.Errorf("no project cache endpoint configured: %w", projectcache.ErrProjectCacheRequired)
	}

	host, repoName := cacheNamespace(ctx, repo)
	client, err := projectcache.NewClient(endpoint, host, repoName)
	if err != nil {
		return nil, err
	}

	buildGraphHash, ok, err := client.GetBuildGraphHash(ctx, commit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("commit %s has no cached build-graph hash: %w", commit, projectcache.ErrProjectCacheRequired)
	}

	merged := patterns.NewSet()
	mandatory, ok, err := client.GetPatternSet(ctx, projectcache.MandatoryPatternSetKey(buildGraphHash))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("mandatory pattern set missing: %w", projectcache.ErrProjectCacheRequired)
	}
	merged.Extend(mandatory)

	for _, project := range sel.Projects {
		if project.Mandatory {
			continue
		}
		set, ok, err := client.GetPatternSet(ctx, projectcache.OptionalPatternSetKey(buildGraphHash, project.Name))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("project %q not present in cache: %w", project.Name, projectcache.ErrProjectCacheRequired)
		}
		merged.Extend(set)
	}

	// Individually selected targets are never project-cached.
	if len(sel.Targets) > 0 {
		return nil, fmt.Errorf("selection contains %d individual target(s): %w", len(sel.Targets), projectcache.ErrProjectCacheRequired)
	}
	return merged, nil
}

// cacheNamespace derives the (host, repo) pair namespacing this repo's
// project-cache entries from the origin remote, falling back to the local
// directory name.
func cacheNamespace(ctx context.Context, repo *gitops.Repo) (string, string) {
	host := "local"
	name := filepath.Base(repo.Root())

	originURL, ok, err := repo.ConfigGet(ctx, "remote.origin.url")
	if err != nil || !ok {
		return host, name
	}
	if u, err := url.Parse(originURL); err == nil && u.Host != "" {
		host = u.Host
		if base := strings.TrimSuffix(filepath.Base(u.Path), ".git"); base != "" && base != "." {
			name = base
		}
	}
	return host, name
}
