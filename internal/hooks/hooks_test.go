package hooks

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInstallWritesExecutableHooks(t *testing.T) {
	gitDir := t.TempDir()
	if err := Install(gitDir, "/usr/local/bin/treescope"); err != nil {
		t.Fatalf("Install: %v", err)
	}

	for _, name := range []string{"post-merge", "post-commit"} {
		path := filepath.Join(gitDir, "hooks", name)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("%s hook missing: %v", name, err)
		}
		if info.Mode().Perm() != 0o755 {
			t.Errorf("%s hook mode = %v, want 0755", name, info.Mode().Perm())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "event "+name) {
			t.Errorf("%s hook does not dispatch its event: %q", name, data)
		}
	}
}

func TestIsKnown(t *testing.T) {
	if !IsKnown("post-merge") || !IsKnown("post-commit") {
		t.Error("standard hooks not recognized")
	}
	if IsKnown("pre-push") {
		t.Error("unexpected hook recognized")
	}
}
