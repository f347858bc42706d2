// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

type stamp struct {
	commit string
	dirty  bool
	time   string
}

var buildStamp = sync.OnceValue(func() stamp {
	info, _ := debug.ReadBuildInfo()
	return resolve(info)
})

// resolve merges the ldflags variables with the toolchain's VCS
// settings. Injected values win.
func resolve(info *debug.BuildInfo) stamp {
	result := stamp{commit: GitCommit, dirty: GitDirty == "true", time: BuildTime}
	if info == nil {
		return result
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if result.commit == "unknown" && setting.Value != "" {
				result.commit = setting.Value
				if len(result.commit) > 12 {
					result.commit = result.commit[:12]
				}
			}
		case "vcs.modified":
			if GitDirty == "false" && setting.Value == "true" {
				result.dirty = true
			}
		case "vcs.time":
			if result.time == "unknown" && setting.Value != "" {
				result.time = setting.Value
			}
		}
	}
	return result
}

func (s stamp) info() string {
	dirty := ""
	if s.dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, s.commit, dirty, s.time)
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return buildStamp().info()
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// Commit returns the git commit SHA.
func Commit() string {
	return buildStamp().commit
}
