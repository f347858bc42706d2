// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCoder is implemented by errors that carry their own exit status
// and have already reported themselves.
type exitCoder interface {
	ExitCode() int
}

// Exit terminates the process for err. A nil err exits 0. An error
// implementing ExitCode() exits with that code silently; anything else
// is printed as "error: err" and exits 1.
func Exit(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report writes err to w as Exit would and returns the exit status.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}

// Fatal writes "error: err" to stderr and exits with code 1.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
