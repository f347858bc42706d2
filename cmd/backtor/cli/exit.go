// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
)

// ExitError ends the process with Code without printing anything more.
// Commands return it after writing their own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode is checked by main to tell a handled exit from an error to
// display.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// CategoryOf returns the category of the first ToolError in err's
// chain, or CategoryInternal.
func CategoryOf(err error) ErrorCategory {
	var toolError *ToolError
	if errors.As(err, &toolError) {
		return toolError.Category
	}
	return CategoryInternal
}
