// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/backtor/backtor/cmd/backtor/cli"
	"github.com/backtor/backtor/lib/version"
)

// Root builds the command tree. Without a command, the root runs serve
// with the same flags.
func Root() *cli.Command {
	serve := serveCommand()
	return &cli.Command{
		Name: "backtor",
		Description: `backtor: a remote shell over Tor onion services.

Run without a command to serve a login shell at a fresh onion address.
Connect to it from anywhere with "backtor connect <address>".`,
		Usage: "backtor [command] [flags]",
		Flags: serve.Flags,
		Run:   serve.Run,
		Subcommands: []*cli.Command{
			serve,
			connectCommand(),
			listCommand(),
			stopCommand(),
			addressCommand(),
			keygenCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					if len(args) > 0 {
						return cli.Validation("version takes no arguments")
					}
					fmt.Fprintf(os.Stdout, "backtor %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Serve a login shell at a new address each run",
				Command:     "backtor",
			},
			{
				Description: "Serve at a stable address from an encrypted key file",
				Command:     "backtor serve --key-file seed.age --identity ~/.config/age/key.txt",
			},
			{
				Description: "Open a session",
				Command:     "backtor connect hnvcppgow2sc2yvdvdicu3ynonsteflxdxrehjr2ybekdc2z3iu63yid.onion",
			},
			{
				Description: "Expose a local SSH daemon instead of a shell",
				Command:     "backtor serve --forward 22=127.0.0.1:22",
			},
		},
	}
}
