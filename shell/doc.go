// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package shell spawns an interactive shell bound to a pseudo-terminal.
//
// [Spawn] allocates a PTY pair, starts the command as a session leader
// with the PTY slave as its controlling terminal, and returns a
// [Process] whose Read and Write operate on the PTY master. Reads and
// writes are blocking; callers relay them on dedicated goroutines (see
// bridge.Relay).
//
// [Process.Terminate] is best-effort and idempotent: it kills the
// process, closes the master, and reaps the child. Its error is for
// logging only; the session is already ending.
//
// [LoginShell] picks the command to run when none is configured:
// $SHELL, then the login shell recorded in the user database, then
// /bin/sh. On Windows it prefers Windows PowerShell, then PowerShell 7,
// then cmd.exe.
package shell
