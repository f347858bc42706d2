// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/muesli/cancelreader"
)

// IsExpectedCloseError reports whether err is a normal stream
// termination rather than a fault worth logging:
//
//   - EOF, a closed net.Conn, a closed os.File, or a closed in-memory pipe
//   - EPIPE or ECONNRESET from a peer that closed its side fully
//   - EIO from a PTY master whose shell has exited
//   - a cancelled terminal reader
//
// All of these occur when one side of a bridge disconnects and the
// other side's in-flight read or write fails as a result.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, cancelreader.ErrCanceled) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET || errno == syscall.EIO
	}
	return false
}
