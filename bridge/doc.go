// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge copies bytes in both directions between two endpoints
// until either side ends, then unwinds the other side.
//
// Two shapes are provided:
//
//   - [Pipe] connects two endpoints that can be interrupted by closing
//     or cancelling them, such as a network stream and a cancellable
//     terminal reader. It runs one goroutine per direction.
//
//   - [Relay] connects a blocking endpoint (a PTY master) to a network
//     stream. Blocking reads and writes happen only on goroutines
//     dedicated to the blocking endpoint; they hand chunks to the
//     stream side through bounded channels (QueueDepth chunks, 64 by
//     default), so a slow consumer stalls the producer instead of
//     growing memory.
//
// The first direction to observe end-of-data, an I/O error, or the
// escape byte ends the session. The bridge then half-closes the
// destination of that direction (when it supports CloseWrite),
// interrupts both endpoints to unblock the other direction, and
// returns without waiting for a leg that cannot be interrupted. I/O
// errors are not distinguished from a clean EOF: a session ending is
// not an application error.
//
// Endpoints are plain io.Reader + io.Writer values. Optional
// capabilities are discovered by interface assertion: [Flusher] is
// called after every write, [HalfCloser] on clean end of the opposite
// direction, and [Canceler] or io.Closer to interrupt a blocked read.
// [Duplex] joins a separate reader and writer (stdin and stdout) into
// one endpoint.
//
// With Options.Escape set, [EscapeByte] (0x04, Ctrl-D) read from the
// local side of a [Pipe] ends the session. Bytes preceding it in the
// same read are forwarded; the escape byte and everything after it are
// not.
package bridge
