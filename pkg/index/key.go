// Package index implements the dependency index: content hashing of
// dependency keys against a commit's tree, and the object database that
// memoizes resolution results across commits.
package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/treescope/treescope/pkg/target"
)

// DependencyKey is the index's unit of memoization: a question of the form
// "what does this path or package pull in?". Keys are structural; equality
// follows the canonical string form.
type DependencyKey interface {
	// String returns the canonical form used in hash framing and logs.
	String() string

	isDependencyKey()
}

// BazelPackageKey identifies a Bazel package by repository-relative path.
type BazelPackageKey struct {
	// ExternalRepository carries the `@repo` component for external
	// packages; empty for packages in the main repository.
	ExternalRepository string
	Path               string
}

func (k BazelPackageKey) isDependencyKey() {}

func (k BazelPackageKey) String() string {
	return fmt.Sprintf("BazelPackage(%s//%s)", k.ExternalRepository, k.Path)
}

// PathKey identifies a plain directory dependency.
type PathKey struct {
	Path string
}

func (k PathKey) isDependencyKey() {}

func (k PathKey) String() string { return fmt.Sprintf("Path(%s)", k.Path) }

// BazelBuildFileKey identifies a build-definition file dependency.
type BazelBuildFileKey struct {
	Path string
}

func (k BazelBuildFileKey) isDependencyKey() {}

func (k BazelBuildFileKey) String() string {
	return fmt.Sprintf("BazelBuildFile(%s)", k.Path)
}

// DummyKey wraps another key. It exists only to exercise recursive hash
// framing in tests.
type DummyKey struct {
	Inner DependencyKey
}

func (k DummyKey) isDependencyKey() {}

func (k DummyKey) String() string { return fmt.Sprintf("Dummy(%s)", k.Inner) }

// KeyForTarget maps a selection target onto its dependency key, or nil for
// target kinds that carry no key (Pants).
func KeyForTarget(t target.Target) DependencyKey {
	switch t := t.(type) {
	case target.Label:
		return BazelPackageKey{
			ExternalRepository: t.ExternalRepository,
			Path:               t.Path(),
		}
	case target.Directory:
		return PathKey{Path: t.Path}
	default:
		return nil
	}
}

// DependencyValue is the resolved content for a key: either the path
// itself for directory keys, or the set of dependency edges discovered by
// a build-graph query for package keys.
type DependencyValue interface {
	isDependencyValue()
}

// PathValue resolves a PathKey: the directory must be materialized.
type PathValue struct {
	Path string
}

func (v PathValue) isDependencyValue() {}

// PackageValue resolves a Bazel key: the transitive dependency edges the
// query discovered for it.
type PackageValue struct {
	Deps []DependencyKey
}

func (v PackageValue) isDependencyValue() {}

// ValuesEqual reports structural equality of two dependency values.
// PackageValue deps compare as sets.
func ValuesEqual(a, b DependencyValue) bool {
	switch a := a.(type) {
	case PathValue:
		b, ok := b.(PathValue)
		return ok && a.Path == b.Path
	case PackageValue:
		b, ok := b.(PackageValue)
		if !ok || len(a.Deps) != len(b.Deps) {
			return false
		}
		return strings.Join(sortedKeyStrings(a.Deps), "\x00") == strings.Join(sortedKeyStrings(b.Deps), "\x00")
	default:
		return false
	}
}

func sortedKeyStrings(keys []DependencyKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	sort.Strings(out)
	return out
}
