package drift

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/treescope/treescope/internal/gitops"
)

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func syncedRepo(t *testing.T) *gitops.Repo {
	t.Helper()
	dir := t.TempDir()
	git(t, dir, "init")
	git(t, dir, "config", "user.email", "dev@example.com")
	git(t, dir, "config", "user.name", "Dev")
	write(t, filepath.Join(dir, "x", "BUILD.bazel"), "filegroup(name='x')\n")
	write(t, filepath.Join(dir, "x", "code.txt"), "v1\n")
	git(t, dir, "add", ".")
	git(t, dir, "commit", "-m", "initial")

	repo, err := gitops.Open(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	head, err := repo.HeadCommit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.WriteSyncPoint(head); err != nil {
		t.Fatal(err)
	}
	return repo
}

func TestNoDriftAtSyncPoint(t *testing.T) {
	repo := syncedRepo(t)
	report, err := Detect(context.Background(), repo)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if report.Changed() {
		t.Errorf("unexpected drift: %+v", report)
	}
}

func TestCommittedBuildFileChangeIsDetected(t *testing.T) {
	repo := syncedRepo(t)
	write(t, filepath.Join(repo.Root(), "x", "BUILD.bazel"), "filegroup(name='renamed')\n")
	git(t, repo.Root(), "add", ".")
	git(t, repo.Root(), "commit", "-m", "touch build file")

	report, err := Detect(context.Background(), repo)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(report.Committed) != 1 || report.Committed[0] != "x/BUILD.bazel" {
		t.Errorf("committed drift = %v", report.Committed)
	}
	if len(report.Uncommitted) != 0 {
		t.Errorf("uncommitted drift = %v", report.Uncommitted)
	}
}

func TestUncommittedBuildFileChangeIsDetected(t *testing.T) {
	repo := syncedRepo(t)
	write(t, filepath.Join(repo.Root(), "x", "BUILD.bazel"), "filegroup(name='dirty')\n")

	report, err := Detect(context.Background(), repo)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(report.Uncommitted) != 1 || report.Uncommitted[0] != "x/BUILD.bazel" {
		t.Errorf("uncommitted drift = %v", report.Uncommitted)
	}
}

func TestNonBuildChangesAreIgnored(t *testing.T) {
	repo := syncedRepo(t)
	write(t, filepath.Join(repo.Root(), "x", "code.txt"), "v2\n")
	git(t, repo.Root(), "add", ".")
	git(t, repo.Root(), "commit", "-m", "plain edit")

	report, err := Detect(context.Background(), repo)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if report.Changed() {
		t.Errorf("plain edits reported as drift: %+v", report)
	}
}

func TestMissingSyncPointFails(t *testing.T) {
	dir := t.TempDir()
	git(t, dir, "init")
	git(t, dir, "config", "user.email", "dev@example.com")
	git(t, dir, "config", "user.name", "Dev")
	write(t, filepath.Join(dir, "f"), "x\n")
	git(t, dir, "add", ".")
	git(t, dir, "commit", "-m", "initial")

	repo, err := gitops.Open(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Detect(context.Background(), repo); !errors.Is(err, gitops.ErrRefNotFound) {
		t.Fatalf("expected ErrRefNotFound, got %v", err)
	}
}

func TestIsBuildGraphPath(t *testing.T) {
	cases := map[string]bool{
		"x/BUILD":            true,
		"x/BUILD.bazel":      true,
		"x/BUILD.oss":        true,
		"WORKSPACE":          true,
		"WORKSPACE.bzlmod":   true,
		"tools/defs.bzl":     true,
		".bazelrc":           false,
		".bazelversion":      false,
		"x/main.go":          false,
		"x/bzl/notes.txt":    false,
		"x/BUILDING.md":      false,
		"x/prebuild.sh":      false,
		"x/WORKSPACE_old/go": false,
	}
	for p, want := range cases {
		if got := IsBuildGraphPath(p); got != want {
			t.Errorf("IsBuildGraphPath(%q) = %v, want %v", p, got, want)
		}
	}
}
