// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// backtor serves and connects to remote shells over Tor onion services.
package main

import (
	"os"

	"github.com/backtor/backtor/cmd/backtor/commands"
	"github.com/backtor/backtor/lib/process"
)

func main() {
	process.Exit(commands.Root().Execute(os.Args[1:]))
}
