// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/backtor/backtor/cmd/backtor/cli"
	"github.com/backtor/backtor/lib/config"
	"github.com/backtor/backtor/lib/hskey"
	"github.com/backtor/backtor/transport/torctl"
)

// torLogVariable forwards tor's control-port traffic to stderr when set
// to 1, independent of -v.
const torLogVariable = "BACKTOR_TOR_LOG"

// GlobalFlags are accepted by every command.
type GlobalFlags struct {
	Verbosity  int
	ConfigPath string
}

// AddFlags registers -v and --config.
func (g *GlobalFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.CountVarP(&g.Verbosity, "verbose", "v", "increase log output (-v info, -vv debug, -vvv tor control traffic)")
	flagSet.StringVar(&g.ConfigPath, "config", "", "configuration file (YAML, or JSONC by extension); defaults to $"+config.EnvironmentVariable)
}

func (g *GlobalFlags) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if g.ConfigPath != "" {
		cfg, err = config.LoadFile(g.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	return cfg, nil
}

func (g *GlobalFlags) logger(command string) *slog.Logger {
	return cli.NewCommandLogger(g.Verbosity).With("command", command)
}

// torConfig builds the tor launch configuration. subdirectory separates
// the client's tor state from a server running in the same directory.
func (g *GlobalFlags) torConfig(cfg *config.Config, subdirectory string, logger *slog.Logger) torctl.Config {
	torConfig := torctl.Config{
		ExePath:   cfg.Tor.Executable,
		DataDir:   filepath.Join(cfg.Tor.DataDirectory, subdirectory),
		ExtraArgs: cfg.Tor.ExtraArgs,
		Logger:    logger,
	}
	if g.Verbosity >= 3 || os.Getenv(torLogVariable) == "1" {
		torConfig.DebugWriter = os.Stderr
	}
	return torConfig
}

// KeySource selects a service seed from the command line, falling back
// to the key file named in the configuration.
type KeySource struct {
	Key      string `flag:"key" desc:"hex-encoded 32-byte seed (64 hex characters) for a stable onion address"`
	KeyFile  string `flag:"key-file" desc:"file holding the seed, plain hex or age-encrypted"`
	Identity string `flag:"identity" desc:"age identity file that decrypts --key-file"`
}

// load returns the selected seed, or nil when none was given. The
// caller closes a non-nil seed.
func (k *KeySource) load(cfg *config.Config) (*hskey.Seed, error) {
	keyFile, identity := k.KeyFile, k.Identity
	if keyFile == "" && k.Key == "" {
		keyFile = cfg.Server.KeyFile
		if identity == "" {
			identity = cfg.Server.Identity
		}
	}

	switch {
	case k.Key != "" && keyFile != "":
		return nil, cli.Validation("--key and --key-file are mutually exclusive")
	case k.Key != "":
		seed, err := hskey.SeedFromHex(k.Key)
		if err != nil {
			return nil, cli.Validation("--key: %w", err)
		}
		return seed, nil
	case keyFile != "":
		seed, err := hskey.ReadKeyFile(keyFile, identity)
		if err != nil {
			return nil, cli.Validation("%w", err)
		}
		return seed, nil
	case identity != "":
		return nil, cli.Validation("--identity requires --key-file")
	}
	return nil, nil
}
