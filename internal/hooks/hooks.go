// Package hooks installs the engine's git hook programs so upstream
// updates trigger a re-sync, and dispatches hook events back into the
// engine.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
)

// Hook names the engine installs.
var hookNames = []string{"post-merge", "post-commit"}

// Install writes the hook scripts under the worktree's hooks directory.
// Each script invokes the engine binary's event dispatcher.
func Install(gitDir, binaryPath string) error {
	hooksDir := filepath.Join(gitDir, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return fmt.Errorf("creating hooks dir: %w", err)
	}
	for _, name := range hookNames {
		script := fmt.Sprintf("#!/bin/sh\nexec %q event %s \"$@\"\n", binaryPath, name)
		path := filepath.Join(hooksDir, name)
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			return fmt.Errorf("installing %s hook: %w", name, err)
		}
	}
	return nil
}

// IsKnown reports whether the engine dispatches the named hook.
func IsKnown(name string) bool {
	for _, n := range hookNames {
		if n == name {
			return true
		}
	}
	return false
}
