// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestResolve_NoBuildInfo(t *testing.T) {
	got := resolve(nil)
	if got.commit != GitCommit || got.time != BuildTime || got.dirty {
		t.Errorf("resolve(nil) = %+v, want the ldflags defaults", got)
	}
}

func TestResolve_VCSSettings(t *testing.T) {
	info := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
	}}

	got := resolve(info)
	if got.commit != "0123456789ab" {
		t.Errorf("commit = %q, want the first 12 characters of the revision", got.commit)
	}
	if !got.dirty {
		t.Error("dirty = false with vcs.modified=true")
	}
	if got.time != "2026-10-01T12:00:00Z" {
		t.Errorf("time = %q", got.time)
	}
	if want := Version + " (0123456789ab-dirty, 2026-10-01T12:00:00Z)"; got.info() != want {
		t.Errorf("info() = %q, want %q", got.info(), want)
	}
}

func TestResolve_LinkerFlagsWin(t *testing.T) {
	saved := GitCommit
	GitCommit = "abc1234"
	defer func() { GitCommit = saved }()

	info := &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffffffffffffffff"}}}
	if got := resolve(info); got.commit != "abc1234" {
		t.Errorf("commit = %q, want the injected value", got.commit)
	}
}

func TestFull(t *testing.T) {
	full := Full()
	if !strings.HasPrefix(full, Version) {
		t.Errorf("Full() = %q, want it to start with %q", full, Version)
	}
	for _, want := range []string{"Go: go", "Platform: "} {
		if !strings.Contains(full, want) {
			t.Errorf("Full() = %q, missing %q", full, want)
		}
	}
	if Short() != Version {
		t.Errorf("Short() = %q", Short())
	}
	if Commit() == "" {
		t.Error("Commit() is empty")
	}
}
