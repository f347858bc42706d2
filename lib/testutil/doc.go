// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for backtor packages.
//
// [SocketDir] creates a short temporary directory in /tmp for Unix
// domain sockets, whose paths are limited to 108 bytes. The directory
// is removed when the test completes.
//
// [RequireReceive] and [RequireClosed] encapsulate the
// select-with-timeout pattern so individual tests do not need direct
// time.After calls.
//
// [Transcript] collects a stream on one goroutine and waits for
// expected substrings in order, which is how tests wait for shell
// output relayed through a PTY. [ReadUntil] is the one-shot form.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
