// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/pflag"

	"github.com/backtor/backtor/cmd/backtor/cli"
	"github.com/backtor/backtor/lib/hskey"
	"github.com/backtor/backtor/lib/onionaddr"
)

type addressParams struct {
	GlobalFlags
	KeySource
	Fingerprint bool `flag:"fingerprint" desc:"also print the seed's BLAKE3 fingerprint"`
}

func addressCommand() *cli.Command {
	var params addressParams
	return &cli.Command{
		Name:    "address",
		Summary: "Print the onion address for a seed",
		Description: `Derive the v3 onion address a service publishes with the given seed,
without starting tor.`,
		Usage: "backtor address (--key HEX | --key-file PATH) [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("address", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("address takes no positional arguments, got %q", args[0])
			}
			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}
			seed, err := params.KeySource.load(cfg)
			if err != nil {
				return err
			}
			if seed == nil {
				return cli.Validation("address requires --key or --key-file")
			}
			defer seed.Close()
			return printAddress(os.Stdout, seed, params.Fingerprint)
		},
	}
}

func printAddress(w io.Writer, seed *hskey.Seed, fingerprint bool) error {
	keypair := seed.Expand()
	if _, err := fmt.Fprintln(w, onionaddr.WithSuffix(keypair.Address())); err != nil {
		return err
	}
	if fingerprint {
		_, err := fmt.Fprintf(w, "fingerprint %s\n", seed.Fingerprint())
		return err
	}
	return nil
}

type keygenParams struct {
	GlobalFlags
	Output     string   `flag:"output,o" desc:"write the seed to this file (mode 0600) instead of stdout"`
	Recipients []string `flag:"recipient,r" desc:"age recipient to encrypt --output to (repeatable)"`
	Force      bool     `flag:"force" desc:"overwrite an existing --output file"`
}

func keygenCommand() *cli.Command {
	var params keygenParams
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate a seed for a stable onion address",
		Description: `Generate a random 32-byte service seed.

Without --output the seed is printed to stdout as hex, ready for
"backtor serve --key", and the address goes to stderr. With --output the
seed is written to a key file and the address is printed to stdout.
Key files can be encrypted to one or more age recipients.`,
		Usage: "backtor keygen [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("keygen", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("keygen takes no positional arguments, got %q", args[0])
			}
			return runKeygen(&params, os.Stdout, os.Stderr)
		},
		Examples: []cli.Example{
			{
				Description: "Create an age-encrypted key file and serve from it",
				Command:     "backtor keygen -o seed.age -r age1... && backtor serve --key-file seed.age --identity key.txt",
			},
		},
	}
}

func runKeygen(params *keygenParams, stdout, stderr io.Writer) error {
	if len(params.Recipients) > 0 && params.Output == "" {
		return cli.Validation("--recipient requires --output")
	}
	if params.Output != "" && !params.Force {
		if _, err := os.Stat(params.Output); err == nil {
			return cli.Conflict("%s already exists (use --force to overwrite)", params.Output)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return cli.Internal("checking %s: %w", params.Output, err)
		}
	}

	raw, err := hskey.Generate()
	if err != nil {
		return cli.Internal("%w", err)
	}
	seed, err := hskey.NewSeed(raw[:])
	if err != nil {
		return cli.Internal("%w", err)
	}
	defer seed.Close()
	address := onionaddr.WithSuffix(seed.Expand().Address())

	if params.Output == "" {
		secret := seed.Array()
		defer clear(secret[:])
		fmt.Fprintf(stdout, "%x\n", secret[:])
		fmt.Fprintf(stderr, "address: %s\n", address)
		return nil
	}

	if err := hskey.WriteKeyFile(params.Output, seed, params.Recipients); err != nil {
		return cli.Validation("%w", err)
	}
	fmt.Fprintln(stdout, address)
	return nil
}
