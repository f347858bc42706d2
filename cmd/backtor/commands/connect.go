// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/backtor/backtor/client"
	"github.com/backtor/backtor/cmd/backtor/cli"
	"github.com/backtor/backtor/lib/onionaddr"
	"github.com/backtor/backtor/transport"
	"github.com/backtor/backtor/transport/torctl"
)

type connectParams struct {
	GlobalFlags
	Port uint16 `flag:"port,p" desc:"virtual port to dial (default 23)"`
}

func connectCommand() *cli.Command {
	var params connectParams
	return &cli.Command{
		Name:    "connect",
		Summary: "Open an interactive session to a shell service",
		Description: `Start tor, connect to the shell service at ADDRESS, and attach this
terminal to the remote shell in raw mode.

The session ends when the remote shell exits or when you press Ctrl-D
at the start of a line of input. The terminal is restored either way.`,
		Usage: "backtor connect <address> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("connect", &params)
		},
		Run: func(args []string) error {
			address, err := addressArgument("connect", args)
			if err != nil {
				return err
			}
			return runConnect(&params, address)
		},
		Examples: []cli.Example{
			{Description: "Connect to a service on a non-default port", Command: "backtor connect --port 2323 <address>.onion"},
		},
	}
}

// addressArgument checks that args holds exactly one valid onion
// address and returns it without the suffix.
func addressArgument(command string, args []string) (string, error) {
	if len(args) != 1 {
		return "", cli.Validation("%s requires exactly one onion address, got %d arguments", command, len(args))
	}
	address := onionaddr.TrimSuffix(strings.ToLower(strings.TrimSpace(args[0])))
	if _, err := onionaddr.Decode(address); err != nil {
		return "", cli.Validation("%w", err)
	}
	return address, nil
}

func runConnect(params *connectParams, address string) error {
	cfg, err := params.loadConfig()
	if err != nil {
		return err
	}
	port := cfg.Client.Port
	if params.Port != 0 {
		port = params.Port
	}

	logger := params.logger("connect").With("address", address, "port", port)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	tor, err := torctl.Start(ctx, params.torConfig(cfg, "client", logger))
	if err != nil {
		return cli.Transient("%w", err)
	}
	defer tor.Close()

	return connectSession(ctx, tor, address, port, os.Stdin, os.Stdout, os.Stderr, logger)
}

// connectSession runs one client session over dialer with the given
// terminal streams.
func connectSession(ctx context.Context, dialer transport.Dialer, address string, port uint16, stdin io.Reader, stdout, notices io.Writer, logger *slog.Logger) error {
	session := &client.Session{
		Dialer:  dialer,
		Port:    port,
		Stdin:   stdin,
		Stdout:  stdout,
		Notices: notices,
		Logger:  logger,
	}
	result, err := session.Connect(ctx, address)
	if err != nil {
		return cli.Transient("%w", err)
	}
	logger.Info("session ended",
		"bytes_sent", result.Outbound,
		"bytes_received", result.Inbound,
		"escaped", result.Escaped,
	)
	return nil
}
