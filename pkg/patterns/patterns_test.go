package patterns

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderIsDeterministic(t *testing.T) {
	a := FromResolution([]string{"project_a", "library_a"}, []string{"project_a/BUILD"})
	b := FromResolution([]string{"library_a", "project_a"}, []string{"project_a/BUILD"})

	if !bytes.Equal(a.Render(), b.Render()) {
		t.Errorf("renders differ for identical inputs:\n%s\nvs\n%s", a.Render(), b.Render())
	}
}

func TestRenderPrependsMandatorySection(t *testing.T) {
	rendered := string(NewSet(Directory("project_a")).Render())

	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	if lines[0] != "/*" || lines[1] != "!/*/" {
		t.Fatalf("mandatory section missing or reordered: %q", lines[:2])
	}
	if lines[len(lines)-1] != "/project_a/" {
		t.Errorf("member pattern missing, got %q", lines[len(lines)-1])
	}
}

func TestDirectoryAndFileForms(t *testing.T) {
	if got, want := Directory("foo/bar").String(), "/foo/bar/"; got != want {
		t.Errorf("Directory = %q, want %q", got, want)
	}
	if got, want := File("foo/bar/BUILD").String(), "/foo/bar/BUILD"; got != want {
		t.Errorf("File = %q, want %q", got, want)
	}
	// Leading and trailing slashes normalize away.
	if got, want := Directory("/foo/bar/").String(), "/foo/bar/"; got != want {
		t.Errorf("Directory = %q, want %q", got, want)
	}
}

func TestSetDeduplicates(t *testing.T) {
	s := NewSet(Directory("p"), Directory("p/"), File("p/BUILD"))
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2: %v", s.Len(), s.Sorted())
	}
}

func TestFromStringsRoundTrip(t *testing.T) {
	original := FromResolution([]string{"project_a"}, []string{"project_a/BUILD"})
	rebuilt := FromStrings(original.Sorted())

	if !bytes.Equal(original.Render(), rebuilt.Render()) {
		t.Error("set did not survive the string round trip")
	}
}

func TestFromStringsSkipsMandatoryEntries(t *testing.T) {
	s := FromStrings([]string{"/*", "!/*/", "/project_a/"})
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1: %v", s.Len(), s.Sorted())
	}
}
