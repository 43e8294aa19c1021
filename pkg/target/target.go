// Package target defines the user-facing selection units: Bazel labels,
// plain repository directories, and Pants addresses. Targets are parsed
// from scheme-prefixed strings such as "bazel://project_a/..." or
// "directory:tools/implicit_deps".
package target

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Parse errors. Callers match with errors.Is to distinguish malformed
// target strings from other failures.
var (
	ErrNoScheme          = errors.New("no target scheme provided")
	ErrUnsupportedScheme = errors.New("scheme not supported")
	ErrEmptyLabel        = errors.New("empty label")
)

// Target identifies a unit of selection. Exactly three implementations
// exist: Label, Directory, and Pants. The canonical string form returned
// by String round-trips through Parse.
type Target interface {
	// String returns the scheme-qualified canonical form, e.g.
	// "bazel://foo/bar:baz".
	String() string

	isTarget()
}

// Directory selects a repository directory verbatim.
type Directory struct {
	Path string
}

func (d Directory) String() string { return "directory:" + d.Path }
func (d Directory) isTarget()      {}

// Pants selects a Pants address. Pants resolution is not part of the
// supported resolver set, but addresses parse and persist.
type Pants struct {
	Address string
}

func (p Pants) String() string { return "pants:" + p.Address }
func (p Pants) isTarget()      {}

// Label is a Bazel label referring to a specific target, or to an entire
// subtree when Recursive is set.
//
// See https://bazel.build/concepts/labels. Note that a label does *not*
// refer to a package.
type Label struct {
	// For a label like `@foo//bar:baz`, this is "@foo". Empty if there is
	// no `@`-component.
	ExternalRepository string

	// The directory components of the path after `//`. May be empty for
	// labels addressing the workspace root.
	PathComponents []string

	// The target name. If no explicit name is given it is inferred from
	// the last path component: `//foo/bar` means `//foo/bar:bar`. Empty
	// when Recursive is set.
	Name string

	// Recursive marks a `/...` label selecting the whole subtree.
	Recursive bool
}

func (l Label) isTarget() {}

func (l Label) String() string {
	return "bazel:" + l.Display()
}

// Display renders the label without the target scheme, the way Bazel
// itself prints it.
func (l Label) Display() string {
	var sb strings.Builder
	sb.WriteString(l.ExternalRepository)
	sb.WriteString("//")
	sb.WriteString(strings.Join(l.PathComponents, "/"))
	if l.Recursive {
		sb.WriteString("/...")
	} else {
		sb.WriteString(":")
		sb.WriteString(l.Name)
	}
	return sb.String()
}

// Path returns the slash-joined package path of the label.
func (l Label) Path() string {
	return strings.Join(l.PathComponents, "/")
}

// Parse converts a scheme-prefixed string into a Target. Scheme matching
// is case-insensitive.
func Parse(s string) (Target, error) {
	scheme, rest, found := strings.Cut(s, ":")
	if !found {
		return nil, fmt.Errorf("parsing target %q: %w", s, ErrNoScheme)
	}
	switch {
	case strings.EqualFold(scheme, "bazel"):
		label, err := ParseLabel(rest)
		if err != nil {
			return nil, fmt.Errorf("parsing target %q: %w", s, err)
		}
		return label, nil
	case strings.EqualFold(scheme, "directory"):
		return Directory{Path: rest}, nil
	case strings.EqualFold(scheme, "pants"):
		return Pants{Address: rest}, nil
	default:
		return nil, fmt.Errorf("parsing target %q: scheme %q: %w", s, scheme, ErrUnsupportedScheme)
	}
}

// ParseLabel parses a Bazel label. The leading `//` is optional: `foo/bar`
// is interpreted as `//foo/bar`, never as a relative label.
func ParseLabel(s string) (Label, error) {
	var external, rest string
	switch before, after, found := strings.Cut(s, "//"); {
	case !found:
		rest = s
	case before == "":
		rest = after
	default:
		external, rest = before, after
	}

	pkg, name, hasName := strings.Cut(rest, ":")
	components := strings.Split(pkg, "/")

	if !hasName {
		last := components[len(components)-1]
		if last == "" {
			return Label{}, ErrEmptyLabel
		}
		name = last
	}

	if name == "..." {
		return Label{
			ExternalRepository: external,
			PathComponents:     components[:len(components)-1],
			Recursive:          true,
		}, nil
	}
	return Label{
		ExternalRepository: external,
		PathComponents:     components,
		Name:               name,
	}, nil
}

// Set is an unordered collection of targets deduplicated by canonical
// string form.
type Set map[string]Target

// NewSet builds a set from the given targets.
func NewSet(targets ...Target) Set {
	s := make(Set, len(targets))
	for _, t := range targets {
		s.Insert(t)
	}
	return s
}

// ParseSet parses each string and collects the results, failing on the
// first malformed entry.
func ParseSet(specs []string) (Set, error) {
	s := make(Set, len(specs))
	for _, spec := range specs {
		t, err := Parse(spec)
		if err != nil {
			return nil, err
		}
		s.Insert(t)
	}
	return s, nil
}

// Insert adds a target, deduplicating by canonical form.
func (s Set) Insert(t Target) {
	s[t.String()] = t
}

// Contains reports whether an equal target is present.
func (s Set) Contains(t Target) bool {
	_, ok := s[t.String()]
	return ok
}

// Extend adds every target from other.
func (s Set) Extend(other Set) {
	for k, v := range other {
		s[k] = v
	}
}

// Strings returns the sorted canonical forms of all members.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
