package target

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseLabels(t *testing.T) {
	cases := []struct {
		in   string
		want Target
	}{
		{
			in: "bazel://a:b",
			want: Label{
				PathComponents: []string{"a"},
				Name:           "b",
			},
		},
		{
			in: "bazel://foo",
			want: Label{
				PathComponents: []string{"foo"},
				Name:           "foo",
			},
		},
		{
			in: "bazel://foo/bar/...",
			want: Label{
				PathComponents: []string{"foo", "bar"},
				Recursive:      true,
			},
		},
		{
			in: "bazel:@foo//bar:qux",
			want: Label{
				ExternalRepository: "@foo",
				PathComponents:     []string{"bar"},
				Name:               "qux",
			},
		},
		{
			in: "bazel://foo/bar:baz/qux.py",
			want: Label{
				PathComponents: []string{"foo", "bar"},
				Name:           "baz/qux.py",
			},
		},
		{
			in:   "directory:some/path",
			want: Directory{Path: "some/path"},
		},
		{
			in:   "pants:foo/bar:baz",
			want: Pants{Address: "foo/bar:baz"},
		},
	}

	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tc.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Parse(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"whatever", ErrNoScheme},
		{"bogus:whatever", ErrUnsupportedScheme},
		{"bazel://", ErrEmptyLabel},
	}
	for _, tc := range cases {
		_, err := Parse(tc.in)
		if !errors.Is(err, tc.want) {
			t.Errorf("Parse(%q) error = %v, want %v", tc.in, err, tc.want)
		}
	}
}

func TestLabelRoundTrip(t *testing.T) {
	for _, s := range []string{
		"bazel://a:b",
		"bazel://foo/bar/...",
		"bazel:@foo//bar:qux",
		"directory:some/path",
		"pants:foo/bar:baz",
	} {
		parsed, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", s, err)
		}
		if got := parsed.String(); got != s {
			t.Errorf("Parse(%q).String() = %q", s, got)
		}
	}
}

func TestLabelDisplayInfersName(t *testing.T) {
	l, err := ParseLabel("//foo/bar")
	if err != nil {
		t.Fatalf("ParseLabel error: %v", err)
	}
	if got, want := l.Display(), "//foo/bar:bar"; got != want {
		t.Errorf("Display() = %q, want %q", got, want)
	}
}

func TestSetDeduplicates(t *testing.T) {
	a, _ := Parse("bazel://library_a/...")
	b, _ := Parse("bazel://library_a/...")
	c, _ := Parse("directory:tools")

	s := NewSet(a, b, c)
	if len(s) != 2 {
		t.Fatalf("expected 2 members, got %d: %v", len(s), s.Strings())
	}
	if !s.Contains(a) || !s.Contains(c) {
		t.Error("set is missing an inserted member")
	}
}

func TestParseSetStopsOnMalformed(t *testing.T) {
	_, err := ParseSet([]string{"bazel://ok/...", "whatever"})
	if !errors.Is(err, ErrNoScheme) {
		t.Fatalf("expected ErrNoScheme, got %v", err)
	}
}
