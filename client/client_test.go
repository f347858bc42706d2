// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/backtor/backtor/bridge"
	"github.com/backtor/backtor/lib/testutil"
	"github.com/backtor/backtor/onion"
	"github.com/backtor/backtor/shell"
	"github.com/backtor/backtor/transport"
)

const testTimeout = 10 * time.Second

// echoShell writes back whatever it is sent.
type echoShell struct {
	reader *io.PipeReader
	writer *io.PipeWriter
}

func spawnEcho(string, shell.Size) (onion.Shell, error) {
	reader, writer := io.Pipe()
	return &echoShell{reader: reader, writer: writer}, nil
}

func (s *echoShell) Read(buffer []byte) (int, error)  { return s.reader.Read(buffer) }
func (s *echoShell) Write(buffer []byte) (int, error) { return s.writer.Write(buffer) }
func (s *echoShell) Terminate() error                 { return s.Close() }

func (s *echoShell) Close() error {
	s.reader.Close()
	return s.writer.Close()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// terminal is the local side of a session under test.
type terminal struct {
	keyboard *io.PipeWriter
	screen   *testutil.Transcript
	notices  *bytes.Buffer
	session  *Session
}

func newTerminal(t *testing.T, dialer transport.Dialer) *terminal {
	t.Helper()
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	t.Cleanup(func() {
		stdinWriter.Close()
		stdoutWriter.Close()
	})
	notices := &bytes.Buffer{}
	return &terminal{
		keyboard: stdinWriter,
		screen:   testutil.NewTranscript(stdoutReader),
		notices:  notices,
		session: &Session{
			Dialer:  dialer,
			Stdin:   stdinReader,
			Stdout:  stdoutWriter,
			Notices: notices,
			Logger:  quietLogger(),
		},
	}
}

type connectResult struct {
	result bridge.Result
	err    error
}

func (term *terminal) connect(ctx context.Context, address string) <-chan connectResult {
	done := make(chan connectResult, 1)
	go func() {
		result, err := term.session.Connect(ctx, address)
		done <- connectResult{result: result, err: err}
	}()
	return done
}

func (term *terminal) typeKeys(t *testing.T, keys string) {
	t.Helper()
	if _, err := term.keyboard.Write([]byte(keys)); err != nil {
		t.Fatalf("typing %q: %v", keys, err)
	}
}

func launch(t *testing.T, network *transport.MemoryNetwork, config onion.Config) *onion.Service {
	t.Helper()
	config.Transport = network
	config.Registry = onion.NewRegistry()
	config.Announce = io.Discard
	config.Logger = quietLogger()
	service, err := onion.Launch(context.Background(), config)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	t.Cleanup(service.Stop)
	return service
}

func TestDefaultPortMatchesServer(t *testing.T) {
	t.Parallel()

	if DefaultPort != onion.DefaultShellPort {
		t.Errorf("client DefaultPort %d does not match server DefaultShellPort %d", DefaultPort, onion.DefaultShellPort)
	}
}

func TestConnect_EscapeEndsSession(t *testing.T) {
	t.Parallel()

	network := transport.NewMemoryNetwork()
	defer network.Close()
	service := launch(t, network, onion.Config{Spawn: spawnEcho})

	term := newTerminal(t, network)
	done := term.connect(context.Background(), service.Address())

	term.typeKeys(t, "echo hi\r")
	term.screen.WaitFor(t, "echo hi", testTimeout)

	term.typeKeys(t, "\x04")
	outcome := testutil.RequireReceive(t, done, testTimeout, "session end after Ctrl-D")
	if outcome.err != nil {
		t.Fatalf("Connect: %v", outcome.err)
	}
	if !outcome.result.Escaped {
		t.Error("Result.Escaped = false after Ctrl-D")
	}
	if outcome.result.First != bridge.Outbound {
		t.Errorf("Result.First = %v, want outbound", outcome.result.First)
	}

	notices := term.notices.String()
	if !strings.HasPrefix(notices, "Connected. Press Ctrl-D to end the session.\n") {
		t.Errorf("notices start with %q, want the banner", notices)
	}
	if !strings.HasSuffix(notices, "\r\nSession closed.\r\n") {
		t.Errorf("notices end with %q, want the closing notice", notices)
	}
}

func TestConnect_RemoteShellExits(t *testing.T) {
	t.Parallel()
	requireShell(t)

	network := transport.NewMemoryNetwork()
	defer network.Close()
	service := launch(t, network, onion.Config{ShellCommand: "/bin/sh"})

	term := newTerminal(t, network)
	done := term.connect(context.Background(), service.Address()+".onion")

	term.typeKeys(t, "echo backtor-$((6*7))\r")
	output := term.screen.WaitFor(t, "backtor-42\n", testTimeout)
	if !strings.Contains(ansi.Strip(output), "backtor-42") {
		t.Errorf("screen output %q does not contain the command result", output)
	}

	term.typeKeys(t, "exit\r")
	outcome := testutil.RequireReceive(t, done, testTimeout, "session end after remote exit")
	if outcome.err != nil {
		t.Fatalf("Connect: %v", outcome.err)
	}
	if outcome.result.Escaped {
		t.Error("Result.Escaped = true without Ctrl-D")
	}
	if outcome.result.First != bridge.Inbound {
		t.Errorf("Result.First = %v, want inbound", outcome.result.First)
	}
}

func TestConnect_DialFailure(t *testing.T) {
	t.Parallel()

	network := transport.NewMemoryNetwork()
	defer network.Close()

	term := newTerminal(t, network)
	_, err := term.session.Connect(context.Background(), "hnvcppgow2sc2yvdvdicu3ynonsteflxdxrehjr2ybekdc2z3iu63yid")
	if !errors.Is(err, transport.ErrUnreachable) {
		t.Fatalf("Connect error = %v, want ErrUnreachable", err)
	}
	if term.notices.Len() != 0 {
		t.Errorf("notices written for a failed connect: %q", term.notices.String())
	}
}

func TestConnect_ContextCancel(t *testing.T) {
	t.Parallel()

	network := transport.NewMemoryNetwork()
	defer network.Close()
	service := launch(t, network, onion.Config{Spawn: spawnEcho})

	ctx, cancel := context.WithCancel(context.Background())
	term := newTerminal(t, network)
	done := term.connect(ctx, service.Address())

	term.typeKeys(t, "ping")
	term.screen.WaitFor(t, "ping", testTimeout)

	cancel()
	outcome := testutil.RequireReceive(t, done, testTimeout, "session end after cancel")
	if outcome.err != nil {
		t.Fatalf("Connect: %v", outcome.err)
	}
	if outcome.result.First != 0 {
		t.Errorf("Result.First = %v, want none", outcome.result.First)
	}
}

// recordingDialer remembers what it was asked to dial and fails.
type recordingDialer struct {
	address string
	port    uint16
}

var errRecorded = errors.New("recorded")

func (d *recordingDialer) Dial(_ context.Context, address string, port uint16) (net.Conn, error) {
	d.address = address
	d.port = port
	return nil, errRecorded
}

func TestConnect_NormalisesAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		port    uint16
		want    string
		wantTo  uint16
	}{
		{"bare", "abc", 0, "abc.onion", DefaultPort},
		{"suffixed", "abc.onion", 0, "abc.onion", DefaultPort},
		{"whitespace", "  abc\n", 0, "abc.onion", DefaultPort},
		{"custom port", "abc", 2222, "abc.onion", 2222},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			dialer := &recordingDialer{}
			session := &Session{Dialer: dialer, Port: test.port, Notices: io.Discard, Logger: quietLogger()}
			if _, err := session.Connect(context.Background(), test.address); !errors.Is(err, errRecorded) {
				t.Fatalf("Connect error = %v", err)
			}
			if dialer.address != test.want || dialer.port != test.wantTo {
				t.Errorf("dialed %s:%d, want %s:%d", dialer.address, dialer.port, test.want, test.wantTo)
			}
		})
	}
}

func TestConnect_RequiresDialer(t *testing.T) {
	t.Parallel()

	if _, err := (&Session{}).Connect(context.Background(), "abc"); err == nil {
		t.Error("Connect without a dialer succeeded")
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	for _, path := range []string{"/bin/sh", "/dev/ptmx"} {
		if _, err := os.Stat(path); err != nil {
			t.Skipf("%s not available: %v", path, err)
		}
	}
}
