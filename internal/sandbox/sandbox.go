// Package sandbox gives each invocation a scratch directory for query
// files. Sandboxes are
// normally deleted on Cleanup; preserved ones are left behind for
// debugging and their path is logged.
package sandbox

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is a per-invocation scratch directory.
type Sandbox struct {
	dir      string
	preserve bool

	mu      sync.Mutex
	serials map[string]int
}

// New creates a sandbox under the user cache directory. When preserve is
// set the directory survives Cleanup.
func New(preserve bool) (*Sandbox, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "treescope", "sandbox", uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sandbox %s: %w", dir, err)
	}
	return &Sandbox{dir: dir, preserve: preserve, serials: make(map[string]int)}, nil
}

// Dir returns the sandbox root.
func (s *Sandbox) Dir() string { return s.dir }

// CreateFile opens a new file named from prefix and extension, with a
// serial suffix keeping repeated names distinct.
func (s *Sandbox) CreateFile(prefix, extension string) (*os.File, string, error) {
	s.mu.Lock()
	serial := s.serials[prefix]
	s.serials[prefix] = serial + 1
	s.mu.Unlock()

	name := fmt.Sprintf("%s-%d", prefix, serial)
	if extension != "" {
		name += "." + extension
	}
	path := filepath.Join(s.dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("creating sandbox file %s: %w", path, err)
	}
	return file, path, nil
}

// Cleanup removes the sandbox unless it is preserved.
func (s *Sandbox) Cleanup() {
	if s.preserve {
		log.Printf("sandbox preserved at %s", s.dir)
		return
	}
	if err := os.RemoveAll(s.dir); err != nil {
		log.Printf("removing sandbox %s: %v", s.dir, err)
	}
}
