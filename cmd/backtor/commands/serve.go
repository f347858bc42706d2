// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/backtor/backtor/cmd/backtor/cli"
	"github.com/backtor/backtor/control"
	"github.com/backtor/backtor/forward"
	"github.com/backtor/backtor/lib/config"
	"github.com/backtor/backtor/onion"
	"github.com/backtor/backtor/shell"
	"github.com/backtor/backtor/transport/torctl"
)

type serveParams struct {
	GlobalFlags
	KeySource
	Forward       []string `flag:"forward" desc:"forward PORT=HOST:PORT to a local TCP target instead of serving a shell (repeatable)"`
	Shell         string   `flag:"shell" desc:"command line run for each session (default: your login shell)"`
	Port          uint16   `flag:"port,p" desc:"virtual port of the shell service (default 23)"`
	ControlSocket string   `flag:"control-socket" desc:"Unix socket answering list and stop"`
}

func serveCommand() *cli.Command {
	var params serveParams
	return &cli.Command{
		Name:    "serve",
		Summary: "Publish a shell service (the default)",
		Description: `Start tor, publish an onion service, and give every connection on the
shell port its own login shell in a pseudo-terminal.

Without --key or --key-file the service gets a new address each run.
With a seed the address is stable, and a registration left in tor by an
earlier run is taken over. With --forward the service forwards each
listed port to a local TCP target instead of running shells.

The address is printed once the service is reachable. serve runs until
SIGINT or SIGTERM, or until "backtor stop" withdraws the service.`,
		Usage: "backtor serve [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("serve", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("serve takes no positional arguments, got %q", args[0])
			}
			return runServe(&params)
		},
		Examples: []cli.Example{
			{Description: "Serve at a stable address", Command: "backtor serve --key $(cat seed.hex)"},
			{Description: "Run a fixed command instead of the login shell", Command: "backtor serve --shell 'tmux new -A -s backtor'"},
		},
	}
}

// applyTo overrides configuration values with the flags that were set.
func (p *serveParams) applyTo(cfg *config.Config) error {
	if p.Shell != "" {
		cfg.Server.Shell = p.Shell
	}
	if p.Port != 0 {
		cfg.Server.ShellPort = p.Port
	}
	if p.ControlSocket != "" {
		cfg.Server.ControlSocket = p.ControlSocket
	}
	if len(p.Forward) > 0 {
		cfg.Server.Forward = p.Forward
	}
	if err := cfg.Validate(); err != nil {
		return cli.Validation("%w", err)
	}
	return nil
}

func parseForwardRules(values []string) ([]forward.Rule, error) {
	rules := make([]forward.Rule, 0, len(values))
	for _, value := range values {
		rule, err := forward.ParseRule(value)
		if err != nil {
			return nil, cli.Validation("%w", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func runServe(params *serveParams) error {
	cfg, err := params.loadConfig()
	if err != nil {
		return err
	}
	if err := params.applyTo(cfg); err != nil {
		return err
	}
	rules, err := parseForwardRules(cfg.Server.Forward)
	if err != nil {
		return err
	}
	seed, err := params.KeySource.load(cfg)
	if err != nil {
		return err
	}
	if seed != nil {
		defer seed.Close()
	}

	logger := params.logger("serve")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tor, err := torctl.Start(ctx, params.torConfig(cfg, "", logger))
	if err != nil {
		return cli.Transient("%w", err)
	}
	defer tor.Close()

	serviceConfig := onion.Config{
		Transport:    tor,
		Seed:         seed,
		ShellPort:    cfg.Server.ShellPort,
		Forward:      rules,
		ShellCommand: cfg.Server.Shell,
		TerminalSize: shell.Size{Rows: cfg.Server.PTYRows, Cols: cfg.Server.PTYCols},
		Announce:     os.Stdout,
		Logger:       logger,
	}
	return runServer(ctx, serviceConfig, cfg.Server.ControlSocket)
}

// runServer launches the service described by serviceConfig with a
// fresh registry, serves that registry on controlSocket, and blocks
// until ctx is done or the service is stopped. Every registered service
// is cancelled on the way out.
func runServer(ctx context.Context, serviceConfig onion.Config, controlSocket string) error {
	logger := serviceConfig.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := onion.NewRegistry()
	serviceConfig.Registry = registry

	controlServer := control.NewServer(controlSocket, logger)
	control.RegisterRegistryActions(controlServer, registry)
	controlContext, stopControl := context.WithCancel(context.WithoutCancel(ctx))
	defer stopControl()
	controlDone := make(chan error, 1)
	go func() {
		controlDone <- controlServer.Serve(controlContext)
	}()

	service, err := onion.Launch(ctx, serviceConfig)
	if err != nil {
		stopControl()
		<-controlDone
		return cli.Transient("%w", err)
	}

	for running := true; running; {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "reason", context.Cause(ctx))
			running = false
		case <-service.Done():
			logger.Info("onion service withdrawn")
			running = false
		case err := <-controlDone:
			controlDone = nil
			if err != nil {
				logger.Error("control socket unavailable, list and stop will not work", "error", err)
			}
		}
	}

	cancelled := registry.CancelAll()
	<-service.Done()
	logger.Info("server stopped",
		"cancelled_services", cancelled,
		"sessions_served", service.TotalSessions(),
		"sessions_open", service.LiveSessions(),
	)

	stopControl()
	if controlDone != nil {
		<-controlDone
	}
	return nil
}
