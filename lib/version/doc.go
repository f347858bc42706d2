// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the backtor
// binary.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// When they are not injected, as with `go install`, the VCS stamp
// recorded by the Go toolchain is used instead where available.
//
//	go build -ldflags "-X github.com/backtor/backtor/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/backtor
package version
