package projectcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/treescope/treescope/pkg/patterns"
)

func newServer(t *testing.T) (*httptest.Server, map[string][]byte) {
	t.Helper()
	var mu sync.Mutex
	store := map[string][]byte{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			body := make([]byte, r.ContentLength)
			r.Body.Read(body)
			store[r.URL.Path] = body
		case http.MethodGet:
			data, ok := store[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(data)
		}
	}))
	t.Cleanup(server.Close)
	return server, store
}

func TestKeyURLLayout(t *testing.T) {
	c, err := NewClient("https://cache.example.com", "git.example.com", "monorepo")
	if err != nil {
		t.Fatal(err)
	}
	got := c.keyURL(CommitKey("abc123"))
	want := "https://cache.example.com/git.example.com/monorepo/v1/commit-to-build-graph-hash:commit=abc123"
	if got != want {
		t.Errorf("keyURL = %q\nwant     %q", got, want)
	}
}

func TestRejectsNonHTTPEndpoint(t *testing.T) {
	if _, err := NewClient("file:///tmp/cache", "h", "r"); err == nil {
		t.Error("expected non-http endpoint to be rejected")
	}
}

func TestBuildGraphHashRoundTrip(t *testing.T) {
	server, _ := newServer(t)
	c, err := NewClient(server.URL, "host", "repo")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, ok, err := c.GetBuildGraphHash(ctx, "c0ffee"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := c.PutBuildGraphHash(ctx, "c0ffee", "deadbeef"); err != nil {
		t.Fatal(err)
	}
	hash, ok, err := c.GetBuildGraphHash(ctx, "c0ffee")
	if err != nil || !ok || hash != "deadbeef" {
		t.Errorf("GetBuildGraphHash = %q ok=%v err=%v", hash, ok, err)
	}
}

func TestPatternSetRoundTrip(t *testing.T) {
	server, _ := newServer(t)
	c, err := NewClient(server.URL, "host", "repo")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	set := patterns.FromResolution([]string{"project_a", "library_a"}, []string{"project_a/BUILD"})
	key := OptionalPatternSetKey("deadbeef", "team_banzai/project_a")
	if err := c.PutPatternSet(ctx, key, set); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.GetPatternSet(ctx, key)
	if err != nil || !ok {
		t.Fatalf("GetPatternSet: ok=%v err=%v", ok, err)
	}
	if string(got.Render()) != string(set.Render()) {
		t.Error("pattern set did not survive the round trip")
	}
}

func TestDistinguishedErrorMessage(t *testing.T) {
	if !strings.Contains(ErrProjectCacheRequired.Error(), "project cache") {
		t.Error("distinguished error lost its message")
	}
}
