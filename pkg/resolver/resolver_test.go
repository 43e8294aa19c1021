package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/treescope/treescope/pkg/index"
	"github.com/treescope/treescope/pkg/target"
)

// fakeResolver records calls and returns a canned result.
type fakeResolver struct {
	calls   int
	targets []target.Set
	result  *Result
	err     error
}

func (f *fakeResolver) Resolve(_ context.Context, req Request, _ CacheOptions) (*Result, error) {
	f.calls++
	f.targets = append(f.targets, req.Targets)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return NewResult(), nil
}

func mustParseSet(t *testing.T, specs ...string) target.Set {
	t.Helper()
	set, err := target.ParseSet(specs)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func TestDirectoryResolverReturnsPathsVerbatim(t *testing.T) {
	req := Request{Targets: mustParseSet(t, "directory:tools/implicit_deps", "directory:scripts")}

	result, err := (&DirectoryResolver{}).Resolve(context.Background(), req, DefaultCacheOptions())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	paths := result.Paths()
	if len(paths) != 2 || paths[0] != "scripts" || paths[1] != "tools/implicit_deps" {
		t.Errorf("paths = %v", paths)
	}

	key := index.PathKey{Path: "scripts"}
	value, ok := result.PackageDeps[key]
	if !ok {
		t.Fatal("missing PathKey dependency entry")
	}
	if pv, ok := value.(index.PathValue); !ok || pv.Path != "scripts" {
		t.Errorf("dependency value = %#v", value)
	}
}

func TestRoutingResolverSplitsByKindAndMerges(t *testing.T) {
	bazelResult := NewResult()
	bazelResult.AddPath("project_a")
	bazel := &fakeResolver{result: bazelResult}
	directory := &fakeResolver{result: func() *Result {
		r := NewResult()
		r.AddPath("tools")
		return r
	}()}
	pants := &fakeResolver{}

	routing := &RoutingResolver{Bazel: bazel, Directory: directory, Pants: pants}
	req := Request{Targets: mustParseSet(t, "bazel://project_a/...", "directory:tools")}

	result, err := routing.Resolve(context.Background(), req, DefaultCacheOptions())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	paths := result.Paths()
	if len(paths) != 2 || paths[0] != "project_a" || paths[1] != "tools" {
		t.Errorf("merged paths = %v", paths)
	}
	if bazel.calls != 1 || directory.calls != 1 {
		t.Errorf("sub-resolver calls: bazel=%d directory=%d", bazel.calls, directory.calls)
	}
	if pants.calls != 0 {
		t.Error("pants resolver called with no pants targets")
	}
}

func TestRoutingResolverPropagatesSubResolverFailure(t *testing.T) {
	boom := errors.New("query exploded")
	routing := &RoutingResolver{
		Bazel:     &fakeResolver{err: boom},
		Directory: &fakeResolver{},
		Pants:     &fakeResolver{},
	}
	req := Request{Targets: mustParseSet(t, "bazel://project_a/...", "directory:tools")}

	if _, err := routing.Resolve(context.Background(), req, DefaultCacheOptions()); !errors.Is(err, boom) {
		t.Fatalf("expected sub-resolver failure, got %v", err)
	}
}

func TestPantsResolverRejectsTargets(t *testing.T) {
	req := Request{Targets: mustParseSet(t, "pants:foo/bar:baz")}
	if _, err := (&PantsResolver{}).Resolve(context.Background(), req, DefaultCacheOptions()); !errors.Is(err, ErrPantsUnsupported) {
		t.Fatalf("expected ErrPantsUnsupported, got %v", err)
	}
}

func TestBazelQueryShape(t *testing.T) {
	labels := []target.Label{
		{PathComponents: []string{"project_a"}, Recursive: true},
		{PathComponents: []string{"library_a"}, Recursive: true},
	}

	query := buildQuery(labels)
	want := `deps(set("//library_a/..." "//project_a/...")) union kind(rule, filter('^//', buildfiles(deps(set("//library_a/..." "//project_a/...")))))`
	if query != want {
		t.Errorf("query = %s\nwant  %s", query, want)
	}
}

func TestParsePackageOutputDropsExternalRepos(t *testing.T) {
	out := "project_a\n@remote_jdk//something\nlibrary_a\n\n@maven//:guava\n"
	got := parsePackageOutput(out)
	if len(got) != 2 || got[0] != "project_a" || got[1] != "library_a" {
		t.Errorf("parsed packages = %v", got)
	}
}
