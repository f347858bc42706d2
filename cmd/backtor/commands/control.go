// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/backtor/backtor/cmd/backtor/cli"
	"github.com/backtor/backtor/control"
	"github.com/backtor/backtor/lib/clock"
	"github.com/backtor/backtor/lib/config"
	"github.com/backtor/backtor/lib/onionaddr"
)

// controlTimeout bounds one request to the control socket.
const controlTimeout = 10 * time.Second

// ControlFlags names the control socket of a running server.
type ControlFlags struct {
	ControlSocket string `flag:"control-socket" desc:"control socket of the running server (default from config)"`
}

func (c *ControlFlags) socketPath(cfg *config.Config) string {
	if c.ControlSocket != "" {
		return c.ControlSocket
	}
	return cfg.Server.ControlSocket
}

type listParams struct {
	GlobalFlags
	ControlFlags
	cli.JSONOutput
}

func listCommand() *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Summary: "List the services of a running server",
		Usage:   "backtor list [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("list takes no positional arguments, got %q", args[0])
			}
			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
			defer cancel()
			return runList(ctx, params.socketPath(cfg), &params.JSONOutput, os.Stdout, clock.Real().Now())
		},
	}
}

func runList(ctx context.Context, socketPath string, output *cli.JSONOutput, stdout io.Writer, now time.Time) error {
	services, err := control.NewClient(socketPath).List(ctx)
	if err != nil {
		return controlError(socketPath, err)
	}
	if done, err := output.EmitJSON(stdout, services); done {
		return err
	}
	if len(services) == 0 {
		fmt.Fprintln(stdout, "No services running.")
		return nil
	}

	writer := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "ADDRESS\tMODE\tPORTS\tUPTIME")
	for _, service := range services {
		ports := make([]string, 0, len(service.Ports))
		for _, port := range service.Ports {
			ports = append(ports, fmt.Sprint(port))
		}
		uptime := now.Sub(service.Started).Truncate(time.Second)
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", service.Onion, service.Mode, strings.Join(ports, ","), uptime)
	}
	return writer.Flush()
}

type stopParams struct {
	GlobalFlags
	ControlFlags
}

func stopCommand() *cli.Command {
	var params stopParams
	return &cli.Command{
		Name:    "stop",
		Summary: "Withdraw a service from a running server",
		Description: `Cancel the service at ADDRESS. It stops accepting connections and is
removed from tor; sessions already open continue until they end.`,
		Usage: "backtor stop <address> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("stop", &params)
		},
		Run: func(args []string) error {
			address, err := addressArgument("stop", args)
			if err != nil {
				return err
			}
			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
			defer cancel()
			return runStop(ctx, params.socketPath(cfg), address, os.Stdout)
		},
	}
}

func runStop(ctx context.Context, socketPath, address string, stdout io.Writer) error {
	result, err := control.NewClient(socketPath).Stop(ctx, address)
	if err != nil {
		return controlError(socketPath, err)
	}
	fmt.Fprintf(stdout, "Stopped %s\n", onionaddr.WithSuffix(result.Address))
	return nil
}

// controlError categorizes a control client failure: the server's own
// refusals are NotFound, anything else means no server answered.
func controlError(socketPath string, err error) error {
	var actionError *control.ActionError
	if errors.As(err, &actionError) {
		return cli.NotFound("%s", actionError.Message)
	}
	return cli.Transient("no backtor server answering on %s: %w", socketPath, err)
}
