// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/muesli/cancelreader"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/backtor/backtor/bridge"
	"github.com/backtor/backtor/lib/onionaddr"
	"github.com/backtor/backtor/transport"
)

// DefaultPort is the virtual port shell services answer on.
const DefaultPort uint16 = 23

const (
	banner       = "Connected. Press Ctrl-D to end the session."
	closedNotice = "\r\nSession closed.\r\n"
)

// Session is one interactive connection from the local terminal to a
// shell service. The zero value with Dialer set connects stdin and
// stdout on DefaultPort.
type Session struct {
	// Dialer opens the stream. Required.
	Dialer transport.Dialer

	// Port is the virtual port to dial. Defaults to DefaultPort.
	Port uint16

	// Stdin is read for keystrokes. Defaults to os.Stdin. Raw mode is
	// entered only when it is an *os.File attached to a terminal.
	Stdin io.Reader

	// Stdout receives the remote output. Defaults to os.Stdout.
	Stdout io.Writer

	// Notices receives the banner and the closing notice. Defaults to
	// os.Stderr.
	Notices io.Writer

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Connect runs one session against address, with or without the
// ".onion" suffix, and returns when it ends. A dial failure is returned
// as an error; the session ending from either side is not.
func (s *Session) Connect(ctx context.Context, address string) (bridge.Result, error) {
	if s.Dialer == nil {
		return bridge.Result{}, errors.New("client: dialer is required")
	}
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	stdin := s.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := s.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	notices := s.Notices
	if notices == nil {
		notices = os.Stderr
	}

	host := onionaddr.WithSuffix(strings.TrimSpace(address))
	logger := s.logger().With("address", host, "port", port)

	logger.Debug("connecting")
	stream, err := s.Dialer.Dial(ctx, host, port)
	if err != nil {
		return bridge.Result{}, fmt.Errorf("connect to %s:%d: %w", host, port, err)
	}
	defer stream.Close()
	logger.Debug("connected")

	output := termenv.NewOutput(notices)
	fmt.Fprintln(notices, output.String(banner).Bold().String())

	restore, err := enterRawMode(stdin)
	if err != nil {
		return bridge.Result{}, err
	}
	defer func() {
		if err := restore(); err != nil {
			logger.Warn("restoring terminal mode failed", "error", err)
		}
		fmt.Fprint(notices, closedNotice)
	}()

	// Regular files and some pipes cannot be polled; those are read
	// directly and closed to interrupt.
	keyboard := stdin
	if cancellable, err := cancelreader.NewReader(stdin); err != nil {
		logger.Debug("stdin is not cancellable", "error", err)
	} else {
		defer cancellable.Close()
		keyboard = cancellable
	}

	result := bridge.Pipe(ctx, bridge.Duplex{Reader: keyboard, Writer: stdout}, stream, bridge.Options{
		Logger: logger,
		Escape: true,
	})
	logger.Debug("session ended",
		"ended_by", result.First.String(),
		"escaped", result.Escaped,
		"bytes_sent", result.Outbound,
		"bytes_received", result.Inbound,
	)
	return result, nil
}

// enterRawMode puts stdin in raw mode when it is a terminal and returns
// the function that undoes it.
func enterRawMode(stdin io.Reader) (func() error, error) {
	file, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return func() error { return nil }, nil
	}
	state, err := term.MakeRaw(int(file.Fd()))
	if err != nil {
		return nil, fmt.Errorf("entering raw mode: %w", err)
	}
	return func() error { return term.Restore(int(file.Fd()), state) }, nil
}
