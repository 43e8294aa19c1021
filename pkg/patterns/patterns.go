// Package patterns converts resolved repository paths into the
// sparse-checkout pattern set that drives the working tree. Rendering is
// byte-deterministic: the sync engine compares rendered profiles to decide
// whether a checkout is needed at all.
package patterns

import (
	"bytes"
	"sort"
	"strings"
)

// mandatoryPatterns is the leading section of every profile: the top-level
// files, the project catalog, and the Bazel workspace configuration that
// must always be materialized.
var mandatoryPatterns = []string{
	"/*",
	"!/*/",
	"/focus/",
	"/.bazelrc",
	"/.bazelversion",
	"/BUILD",
	"/BUILD.bazel",
	"/WORKSPACE",
	"/WORKSPACE.bazel",
}

// Pattern is a single sparse-checkout include: a whole directory or an
// exact file.
type Pattern struct {
	Path   string
	IsFile bool
}

// Directory builds a directory pattern for a repository-relative path.
func Directory(path string) Pattern {
	return Pattern{Path: normalize(path)}
}

// File builds an exact-file pattern, used for build-definition files so
// that non-build siblings are not checked out.
func File(path string) Pattern {
	return Pattern{Path: normalize(path), IsFile: true}
}

func normalize(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

func (p Pattern) String() string {
	if p.IsFile {
		return "/" + p.Path
	}
	return "/" + p.Path + "/"
}

// Set is an ordered, deduplicated collection of patterns.
type Set struct {
	members map[string]Pattern
}

// NewSet builds a set from the given patterns.
func NewSet(patterns ...Pattern) *Set {
	s := &Set{members: make(map[string]Pattern, len(patterns))}
	for _, p := range patterns {
		s.Add(p)
	}
	return s
}

// Add inserts a pattern, ignoring duplicates and empty paths.
func (s *Set) Add(p Pattern) {
	if p.Path == "" {
		return
	}
	s.members[p.String()] = p
}

// Extend inserts every pattern from other.
func (s *Set) Extend(other *Set) {
	for k, v := range other.members {
		s.members[k] = v
	}
}

// Len returns the number of distinct patterns, excluding the mandatory
// section.
func (s *Set) Len() int { return len(s.members) }

// Sorted returns the member pattern strings in lexicographic order.
func (s *Set) Sorted() []string {
	out := make([]string, 0, len(s.members))
	for k := range s.members {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Render produces the sparse-profile file content: the mandatory section
// followed by the sorted member patterns, one per line.
func (s *Set) Render() []byte {
	var buf bytes.Buffer
	for _, p := range mandatoryPatterns {
		buf.WriteString(p)
		buf.WriteByte('\n')
	}
	for _, p := range s.Sorted() {
		buf.WriteString(p)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// FromStrings rebuilds a set from rendered member pattern strings, as
// exchanged with the project cache. Mandatory entries are skipped; they
// are re-prepended by Render.
func FromStrings(entries []string) *Set {
	s := NewSet()
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" || isMandatory(e) {
			continue
		}
		if strings.HasSuffix(e, "/") {
			s.Add(Directory(e))
		} else {
			s.Add(File(e))
		}
	}
	return s
}

func isMandatory(entry string) bool {
	for _, m := range mandatoryPatterns {
		if entry == m {
			return true
		}
	}
	return false
}

// FromResolution emits a directory pattern per resolved path and an
// exact-file pattern per discovered build-definition file.
func FromResolution(paths []string, buildFiles []string) *Set {
	s := NewSet()
	for _, p := range paths {
		s.Add(Directory(p))
	}
	for _, f := range buildFiles {
		s.Add(File(f))
	}
	return s
}
