package main

import (
	"testing"
)

func TestSyncCmdFlags(t *testing.T) {
	cmd := newSyncCmd()
	f := cmd.Flags()

	for _, flag := range []string{"repo", "preemptive", "force", "from-project-cache", "snapshot"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}

	preemptive, _ := f.GetBool("preemptive")
	if preemptive {
		t.Error("preemptive defaults on")
	}
}

func TestSelectionCmdsRequireArgs(t *testing.T) {
	for _, cmd := range []struct {
		name string
		args func() error
	}{
		{"add", func() error { return newAddCmd().Args(newAddCmd(), nil) }},
		{"remove", func() error { return newRemoveCmd().Args(newRemoveCmd(), nil) }},
	} {
		if err := cmd.args(); err == nil {
			t.Errorf("%s accepted zero arguments", cmd.name)
		}
	}
}

func TestEventCmdIsHidden(t *testing.T) {
	if !newEventCmd().Hidden {
		t.Error("event command should be hidden from help")
	}
}

func TestShortCommit(t *testing.T) {
	if got := short("0123456789abcdef"); got != "0123456789" {
		t.Errorf("short = %q", got)
	}
	if got := short("abc"); got != "abc" {
		t.Errorf("short = %q", got)
	}
}
