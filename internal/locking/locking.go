// Package locking provides per-repository advisory lock files. A lock
// records its holder's process description so a contending invocation can
// name who is in the way.
package locking

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrContended reports that another process holds the lock.
var ErrContended = errors.New("lock is held by another process")

// Lock is an exclusively flock'd file. The advisory lock releases on
// process exit even if Release is never called.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes a non-blocking exclusive lock on path, writing the given
// holder description into the file. A held lock fails immediately with an
// error that names the current holder.
func Acquire(path, description string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder, readErr := os.ReadFile(path)
		file.Close()
		if readErr != nil || len(holder) == 0 {
			return nil, fmt.Errorf("acquiring lock %s: %w", path, ErrContended)
		}
		return nil, fmt.Errorf("acquiring lock %s (held by %s): %w", path, strings.TrimSpace(string(holder)), ErrContended)
	}

	// We own the lock; record who we are.
	if err := file.Truncate(0); err != nil {
		release(file, path)
		return nil, fmt.Errorf("truncating lock file %s: %w", path, err)
	}
	if _, err := file.WriteAt([]byte(description+"\n"), 0); err != nil {
		release(file, path)
		return nil, fmt.Errorf("writing holder description to %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		release(file, path)
		return nil, fmt.Errorf("syncing lock file %s: %w", path, err)
	}

	return &Lock{path: path, file: file}, nil
}

// ProcessDescription identifies the current process for lock files.
func ProcessDescription() string {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("%s (pid %d) on %s", exe, os.Getpid(), host)
}

// Release removes the lock file and drops the advisory lock. Safe to call
// once; subsequent calls are no-ops.
func (l *Lock) Release() {
	if l.file == nil {
		return
	}
	release(l.file, l.path)
	l.file = nil
}

func release(file *os.File, path string) {
	// Remove before unlocking so a waiter never reads a stale holder.
	os.Remove(path)
	unix.Flock(int(file.Fd()), unix.LOCK_UN)
	file.Close()
}
