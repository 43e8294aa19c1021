package snapshot

import (
	"context"
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

// scratchRepo creates a repository with one committed file.
func scratchRepo(t *testing.T) *gitops.Repo {
	t.Helper()
	dir := t.TempDir()
	git(t, dir, "init")
	git(t, dir, "config", "user.email", "dev@example.com")
	git(t, dir, "config", "user.name", "Dev")
	if err := os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("v1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	git(t, dir, "add", ".")
	git(t, dir, "commit", "-m", "initial")

	repo, err := gitops.Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("opening scratch repo: %v", err)
	}
	return repo
}

func TestCreateReturnsNothingForCleanTree(t *testing.T) {
	repo := scratchRepo(t)
	archive, err := Create(context.Background(), repo, t.TempDir())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if archive != "" {
		t.Errorf("clean tree produced archive %s", archive)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	repo := scratchRepo(t)
	ctx := context.Background()

	// Dirty the tree: modify a tracked file and add an untracked one.
	tracked := filepath.Join(repo.Root(), "tracked.txt")
	if err := os.WriteFile(tracked, []byte("v2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	untracked := filepath.Join(repo.Root(), "notes", "scratch.txt")
	if err := os.MkdirAll(filepath.Dir(untracked), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(untracked, []byte("wip\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	archive, err := Create(ctx, repo, t.TempDir())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if archive == "" {
		t.Fatal("dirty tree produced no archive")
	}

	// Create must leave the tree clean.
	clean, err := repo.WorkingTree().IsClean(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !clean {
		t.Fatal("tree not clean after snapshot")
	}
	if data, _ := os.ReadFile(tracked); string(data) != "v1\n" {
		t.Errorf("tracked file not reset: %q", data)
	}

	if err := Apply(ctx, archive, repo); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if data, err := os.ReadFile(tracked); err != nil || string(data) != "v2\n" {
		t.Errorf("tracked change not restored: %q err=%v", data, err)
	}
	data, err := os.ReadFile(untracked)
	if err != nil || string(data) != "wip\n" {
		t.Errorf("untracked file not restored: %q err=%v", data, err)
	}
	info, err := os.Stat(untracked)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("untracked file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestApplyRefusesDirtyTree(t *testing.T) {
	repo := scratchRepo(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(repo.Root(), "tracked.txt"), []byte("v2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	archive, err := Create(ctx, repo, t.TempDir())
	if err != nil || archive == "" {
		t.Fatalf("Create: archive=%q err=%v", archive, err)
	}

	// Dirty the tree again before applying.
	if err := os.WriteFile(filepath.Join(repo.Root(), "tracked.txt"), []byte("v3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Apply(ctx, archive, repo); err == nil {
		t.Fatal("expected Apply over a dirty tree to fail")
	}
}
