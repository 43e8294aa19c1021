package objectdb

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/treescope/treescope/pkg/index"
)

func testHash(b byte) index.ContentHash {
	var h index.ContentHash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestGitStoreRoundTrip(t *testing.T) {
	repo, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	store := NewGitStore(repo)

	hash := testHash(1)
	if _, ok, err := store.Get(hash); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	value := index.PackageValue{Deps: []index.DependencyKey{
		index.BazelPackageKey{Path: "project_a"},
	}}
	if err := store.Insert(hash, value); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := store.Get(hash)
	if err != nil || !ok {
		t.Fatalf("Get after insert: ok=%v err=%v", ok, err)
	}
	if !index.ValuesEqual(value, got) {
		t.Errorf("round trip mismatch: %#v vs %#v", value, got)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := store.Get(hash); ok {
		t.Error("entry survived Clear")
	}
}

func TestHTTPRemoteCache(t *testing.T) {
	var mu sync.Mutex
	blobs := map[string][]byte{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			body := make([]byte, r.ContentLength)
			r.Body.Read(body)
			blobs[r.URL.Path] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			data, ok := blobs[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(data)
		}
	}))
	defer server.Close()

	cache, err := NewRemoteCache(t.Context(), server.URL)
	if err != nil {
		t.Fatalf("NewRemoteCache: %v", err)
	}

	hash := testHash(2)
	if _, ok, err := cache.Get(hash); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	value := index.PathValue{Path: "library_a"}
	if err := cache.Insert(hash, value); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok, err := cache.Get(hash)
	if err != nil || !ok {
		t.Fatalf("Get after insert: ok=%v err=%v", ok, err)
	}
	if !index.ValuesEqual(value, got) {
		t.Errorf("round trip mismatch: %#v vs %#v", value, got)
	}
}

func TestRemoteCacheRejectsUnknownScheme(t *testing.T) {
	if _, err := NewRemoteCache(t.Context(), "ftp://cache.example.com"); err == nil {
		t.Error("expected unsupported scheme to fail")
	}
}

func TestLayeredBackfillsLocal(t *testing.T) {
	local := index.NewMemoryDB()
	remote := index.NewMemoryDB()
	layered := NewLayered(local, remote)

	hash := testHash(3)
	value := index.PathValue{Path: "p"}
	if err := remote.Insert(hash, value); err != nil {
		t.Fatal(err)
	}

	got, ok, err := layered.Get(hash)
	if err != nil || !ok {
		t.Fatalf("layered get: ok=%v err=%v", ok, err)
	}
	if !index.ValuesEqual(value, got) {
		t.Error("layered get returned wrong value")
	}

	// The remote hit must now be present locally.
	if _, ok, _ := local.Get(hash); !ok {
		t.Error("remote hit was not backfilled into the local store")
	}
}

func TestLayeredToleratesMissingRemote(t *testing.T) {
	layered := NewLayered(index.NewMemoryDB(), nil)
	hash := testHash(4)
	if err := layered.Insert(hash, index.PathValue{Path: "p"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, ok, err := layered.Get(hash); err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
}
