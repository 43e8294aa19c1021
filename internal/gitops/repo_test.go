package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func scratchRepo(t *testing.T) *Repo {
	t.Helper()
	dir := t.TempDir()
	gitRun(t, dir, "init")
	gitRun(t, dir, "config", "user.email", "dev@example.com")
	gitRun(t, dir, "config", "user.name", "Dev")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitRun(t, dir, "add", ".")
	gitRun(t, dir, "commit", "-m", "initial")

	repo, err := Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return repo
}

func TestOpenResolvesDirsFromSubdirectory(t *testing.T) {
	repo := scratchRepo(t)
	sub := filepath.Join(repo.Root(), "nested", "deep")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(context.Background(), sub)
	if err != nil {
		t.Fatalf("Open from subdirectory: %v", err)
	}
	if reopened.Root() != repo.Root() {
		t.Errorf("root = %s, want %s", reopened.Root(), repo.Root())
	}
	if reopened.GitDir() != repo.GitDir() {
		t.Errorf("git dir = %s, want %s", reopened.GitDir(), repo.GitDir())
	}
}

func TestSyncPointRefsRoundTrip(t *testing.T) {
	repo := scratchRepo(t)
	head, err := repo.HeadCommit(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := repo.ReadSyncPoint(); err != nil || ok {
		t.Fatalf("expected no sync point, got ok=%v err=%v", ok, err)
	}
	if err := repo.WriteSyncPoint(head); err != nil {
		t.Fatalf("WriteSyncPoint: %v", err)
	}
	got, ok, err := repo.ReadSyncPoint()
	if err != nil || !ok || got != head {
		t.Errorf("ReadSyncPoint = %q ok=%v err=%v, want %q", got, ok, err, head)
	}

	if err := repo.WritePreemptiveSyncPoint(head); err != nil {
		t.Fatal(err)
	}
	if got, ok, _ := repo.ReadPreemptiveSyncPoint(); !ok || got != head {
		t.Errorf("preemptive sync point = %q ok=%v", got, ok)
	}
}

func TestConfigRoundTripAndDefaults(t *testing.T) {
	repo := scratchRepo(t)
	ctx := context.Background()

	if _, ok, err := repo.ConfigGet(ctx, ConfigProjectCacheEndpoint); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}
	if err := repo.ConfigSet(ctx, ConfigProjectCacheEndpoint, "https://cache.example.com"); err != nil {
		t.Fatal(err)
	}
	got, ok, err := repo.ConfigGet(ctx, ConfigProjectCacheEndpoint)
	if err != nil || !ok || got != "https://cache.example.com" {
		t.Errorf("ConfigGet = %q ok=%v err=%v", got, ok, err)
	}

	enabled, err := repo.ConfigBool(ctx, ConfigPreemptiveSyncEnabled, false)
	if err != nil || enabled {
		t.Errorf("absent bool = %v err=%v, want default false", enabled, err)
	}
	if err := repo.ConfigSet(ctx, ConfigPreemptiveSyncEnabled, "true"); err != nil {
		t.Fatal(err)
	}
	enabled, err = repo.ConfigBool(ctx, ConfigPreemptiveSyncEnabled, false)
	if err != nil || !enabled {
		t.Errorf("set bool = %v err=%v, want true", enabled, err)
	}
}

func TestEnsureUUIDIsStable(t *testing.T) {
	repo := scratchRepo(t)
	ctx := context.Background()

	first, err := repo.EnsureUUID(ctx)
	if err != nil || first == "" {
		t.Fatalf("EnsureUUID: %q err=%v", first, err)
	}
	second, err := repo.EnsureUUID(ctx)
	if err != nil || second != first {
		t.Errorf("EnsureUUID changed: %q then %q (err=%v)", first, second, err)
	}
}

func TestHeadTreeFindsCommittedEntries(t *testing.T) {
	repo := scratchRepo(t)
	tree, err := repo.HeadTree()
	if err != nil {
		t.Fatalf("HeadTree: %v", err)
	}
	if _, err := tree.FindEntry("f.txt"); err != nil {
		t.Errorf("committed entry not found: %v", err)
	}
}

func TestEnsureOutliningTreeAttachesFullCheckout(t *testing.T) {
	repo := scratchRepo(t)
	ctx := context.Background()

	wt, err := repo.EnsureOutliningTree(ctx)
	if err != nil {
		t.Fatalf("EnsureOutliningTree: %v", err)
	}
	if _, err := os.Stat(filepath.Join(wt.Root(), "f.txt")); err != nil {
		t.Errorf("outlining tree not fully materialized: %v", err)
	}

	// A second call returns the existing tree.
	again, err := repo.EnsureOutliningTree(ctx)
	if err != nil {
		t.Fatalf("second EnsureOutliningTree: %v", err)
	}
	if again.Root() != wt.Root() {
		t.Errorf("outlining tree moved: %s vs %s", again.Root(), wt.Root())
	}
}

func TestPrimaryBranchName(t *testing.T) {
	repo := scratchRepo(t)
	name, err := repo.PrimaryBranchName()
	if err != nil {
		t.Fatalf("PrimaryBranchName: %v", err)
	}
	if name != "master" && name != "main" {
		t.Errorf("primary branch = %q", name)
	}
}
