package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/treescope/treescope/pkg/index"
	"github.com/treescope/treescope/pkg/target"
)

// outliningBazelrcRelPath is the bespoke configuration used for outlining
// queries when present in the repository.
const outliningBazelrcRelPath = "focus/outlining.bazelrc"

// Exit code 3 is Bazel's partial analysis failure. Tolerated because
// --nofetch makes reachable-but-unfetched repositories fail analysis.
var acceptableQueryExitCodes = map[int]bool{0: true, 3: true}

// BazelResolver resolves Bazel labels by composing a single deps+buildfiles
// query and running the external build-graph tool inside the request's
// worktree. The tool locks its own state directory, so at most one query
// runs at a time.
type BazelResolver struct {
	mu sync.Mutex

	// QueryDir overrides where query files are written; empty uses the
	// system temp directory.
	QueryDir string
}

// NewBazelResolver constructs a resolver.
func NewBazelResolver() *BazelResolver {
	return &BazelResolver{}
}

func (b *BazelResolver) Resolve(ctx context.Context, req Request, _ CacheOptions) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	labels := make([]target.Label, 0, len(req.Targets))
	for _, t := range req.Targets {
		if label, ok := t.(target.Label); ok {
			labels = append(labels, label)
		}
	}
	if len(labels) == 0 {
		return NewResult(), nil
	}

	query := buildQuery(labels)
	lines, err := b.runPackageQuery(ctx, req.RepoPath, query)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	deps := make([]index.DependencyKey, 0, len(lines))
	for _, line := range lines {
		result.AddPath(line)
		deps = append(deps, index.BazelPackageKey{Path: line})
	}

	// Attribute the discovered package set to every queried label, so a
	// later sync at the same tree state can skip the query entirely.
	for _, label := range labels {
		key := index.BazelPackageKey{
			ExternalRepository: label.ExternalRepository,
			Path:               label.Path(),
		}
		result.PackageDeps[key] = index.PackageValue{Deps: deps}
	}
	return result, nil
}

// buildQuery composes the outlining query over the label set. The shape is
// the contract: deps of the selection plus the build files those deps
// load, restricted to in-repo rules.
func buildQuery(labels []target.Label) string {
	set := makeSet(labels)
	return fmt.Sprintf("deps(%s) union kind(rule, filter('^//', buildfiles(deps(%s))))", set, set)
}

// makeSet renders a deterministic set() expression; labels are quoted
// because Bazel lexes some characters specially.
func makeSet(labels []target.Label) string {
	quoted := make([]string, 0, len(labels))
	for _, l := range labels {
		quoted = append(quoted, fmt.Sprintf("%q", l.Display()))
	}
	sort.Strings(quoted)
	return "set(" + strings.Join(quoted, " ") + ")"
}

// locateBazelBinary prefers the repository's own wrapper script. The
// wrapper rejects absolute invocation paths, so it is used relatively.
func locateBazelBinary(repoPath string) string {
	if info, err := os.Stat(filepath.Join(repoPath, "bazel")); err == nil && info.Mode().IsRegular() {
		return "./bazel"
	}
	return "bazel"
}

func (b *BazelResolver) runPackageQuery(ctx context.Context, repoPath, query string) ([]string, error) {
	queryFile, err := b.writeQueryFile(query)
	if err != nil {
		return nil, err
	}
	defer os.Remove(queryFile)

	var args []string
	if _, err := os.Stat(filepath.Join(repoPath, filepath.FromSlash(outliningBazelrcRelPath))); err == nil {
		args = append(args, "--noworkspace_rc", "--bazelrc="+outliningBazelrcRelPath)
	}
	args = append(args,
		"query",
		"--output=package",
		"--order_output=no",
		"--noimplicit_deps",
		"--nofetch",
		"--query_file", queryFile,
	)

	cmd := exec.CommandContext(ctx, locateBazelBinary(repoPath), args...)
	cmd.Dir = repoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || !acceptableQueryExitCodes[exitErr.ExitCode()] {
			return nil, fmt.Errorf("bazel query failed: %w\nstderr: %s", err, tail(stderr.String(), 4096))
		}
	}

	return parsePackageOutput(stdout.String()), nil
}

func (b *BazelResolver) writeQueryFile(query string) (string, error) {
	dir := b.QueryDir
	if dir == "" {
		dir = os.TempDir()
	}
	file, err := os.CreateTemp(dir, "bazel_query*")
	if err != nil {
		return "", fmt.Errorf("creating query file: %w", err)
	}
	if _, err := file.WriteString(query); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("writing query file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("closing query file: %w", err)
	}
	return file.Name(), nil
}

// parsePackageOutput keeps repository-relative package lines and drops
// external-repo references.
func parsePackageOutput(out string) []string {
	var packages []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "@") {
			continue
		}
		packages = append(packages, line)
	}
	return packages
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
