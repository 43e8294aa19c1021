package locking

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")

	lock, err := Acquire(path, "tester")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lock.Release()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file not removed on release")
	}
}

func TestSecondAcquireFailsNamingHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")

	first, err := Acquire(path, "first-holder")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	_, err = Acquire(path, "second")
	if !errors.Is(err, ErrContended) {
		t.Fatalf("expected ErrContended, got %v", err)
	}
	if !strings.Contains(err.Error(), "first-holder") {
		t.Errorf("contention error does not name the holder: %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")
	lock, err := Acquire(path, "tester")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lock.Release()
	lock.Release()
}
