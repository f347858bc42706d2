// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package onion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/backtor/backtor/bridge"
	"github.com/backtor/backtor/forward"
	"github.com/backtor/backtor/lib/clock"
	"github.com/backtor/backtor/lib/hskey"
	"github.com/backtor/backtor/lib/onionaddr"
	"github.com/backtor/backtor/shell"
	"github.com/backtor/backtor/transport"
)

const (
	// DefaultShellPort is the virtual port a shell service answers on.
	DefaultShellPort uint16 = 23

	// NicknamePrefix labels every service this package publishes.
	NicknamePrefix = "backtor-shell"
)

// Mode selects what a service does with accepted streams.
type Mode int

const (
	// ModeShell spawns a PTY shell per accepted stream.
	ModeShell Mode = iota

	// ModeForward proxies accepted streams to local TCP targets.
	ModeForward
)

func (m Mode) String() string {
	switch m {
	case ModeShell:
		return "shell"
	case ModeForward:
		return "forward"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Shell is a running interactive process bridged to one stream.
type Shell interface {
	io.ReadWriter
	Terminate() error
}

// Spawner starts a shell for one session.
type Spawner func(command string, size shell.Size) (Shell, error)

// SpawnPTY starts command on a new pseudo-terminal.
func SpawnPTY(command string, size shell.Size) (Shell, error) {
	process, err := shell.Spawn(command, size)
	if err != nil {
		return nil, err
	}
	return process, nil
}

// Config describes a service to launch.
type Config struct {
	// Transport publishes the service. Required.
	Transport transport.Publisher

	// Registry records the running service. Required.
	Registry *Registry

	// Seed is the service identity. Nil publishes an ephemeral
	// identity chosen by the transport. Launch only reads the seed; the
	// caller keeps ownership.
	Seed *hskey.Seed

	// ShellPort is the virtual port of a shell service. Defaults to
	// DefaultShellPort. Ignored in forward mode.
	ShellPort uint16

	// Forward switches the service to forward mode when non-empty.
	Forward []forward.Rule

	// ShellCommand is the command line run per session. Empty runs the
	// user's login shell.
	ShellCommand string

	// TerminalSize is the initial PTY size. Defaults to shell.DefaultSize.
	TerminalSize shell.Size

	// Spawn starts shells. Defaults to SpawnPTY.
	Spawn Spawner

	// Announce receives the one-line reachability announcement.
	// Defaults to os.Stdout.
	Announce io.Writer

	// Bridge tunes each session's relay. Its Logger is replaced by the
	// session logger.
	Bridge bridge.Options

	// Clock stamps the service's start time. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// LaunchError reports a service that could not be brought up.
type LaunchError struct {
	Stage string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching onion service: %s: %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Service is a launched onion service.
type Service struct {
	address  string
	nickname string
	mode     Mode
	ports    []uint16
	started  time.Time

	published transport.Service
	handle    *Handle
	registry  *Registry
	config    Config
	logger    *slog.Logger

	announced chan struct{}
	done      chan struct{}
	sessions  sync.WaitGroup

	liveSessions  atomic.Int64
	totalSessions atomic.Int64
}

// Launch publishes a service, registers it, and starts serving in the
// background. It returns once the service is published; reachability is
// announced later. The service runs until its handle is cancelled or ctx
// is done.
func Launch(ctx context.Context, config Config) (*Service, error) {
	if config.Transport == nil {
		return nil, &LaunchError{Stage: "configure", Err: errors.New("transport is required")}
	}
	if config.Registry == nil {
		return nil, &LaunchError{Stage: "configure", Err: errors.New("registry is required")}
	}
	if config.ShellPort == 0 {
		config.ShellPort = DefaultShellPort
	}
	if config.TerminalSize == (shell.Size{}) {
		config.TerminalSize = shell.DefaultSize
	}
	if config.Spawn == nil {
		config.Spawn = SpawnPTY
	}
	if config.Announce == nil {
		config.Announce = os.Stdout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mode := ModeShell
	ports := []uint16{config.ShellPort}
	if len(config.Forward) > 0 {
		mode = ModeForward
		ports = (&forward.Proxy{Rules: config.Forward}).Ports()
	}

	serviceConfig := transport.ServiceConfig{Nickname: NicknamePrefix, Ports: ports}
	if config.Seed != nil {
		keypair := config.Seed.Expand()
		serviceConfig.Key = &keypair
		serviceConfig.Nickname = NicknamePrefix + "-" + keypair.Address()
	}
	logger = logger.With("nickname", serviceConfig.Nickname, "mode", mode.String())

	published, err := config.Transport.Publish(ctx, serviceConfig)
	if errors.Is(err, transport.ErrAlreadyPublished) {
		logger.Info("identity already published, taking over the existing registration")
		published, err = config.Transport.PublishOrReuse(ctx, serviceConfig)
	}
	if err != nil {
		return nil, &LaunchError{Stage: "publish", Err: err}
	}

	address := published.Address()
	logger = logger.With("address", address)

	service := &Service{
		address:   address,
		nickname:  serviceConfig.Nickname,
		mode:      mode,
		ports:     ports,
		started:   clock.Or(config.Clock).Now(),
		published: published,
		handle:    NewHandle(ctx),
		registry:  config.Registry,
		config:    config,
		logger:    logger,
		announced: make(chan struct{}),
		done:      make(chan struct{}),
	}
	config.Registry.RegisterEntry(Entry{
		Address:  address,
		Nickname: service.nickname,
		Mode:     mode,
		Ports:    ports,
		Started:  service.started,
		Handle:   service.handle,
	})
	logger.Info("onion service published", "ports", ports)

	go service.announce()
	go service.serve()
	return service, nil
}

// Address returns the onion address without suffix.
func (s *Service) Address() string { return s.address }

// Nickname returns the name the service was published under.
func (s *Service) Nickname() string { return s.nickname }

// Mode reports whether the service runs shells or forwards.
func (s *Service) Mode() Mode { return s.mode }

// Ports returns the virtual ports the service answers on.
func (s *Service) Ports() []uint16 { return slices.Clone(s.ports) }

// Started returns when the service was published.
func (s *Service) Started() time.Time { return s.started }

// Handle returns the service's cancellation handle.
func (s *Service) Handle() *Handle { return s.handle }

// Announced is closed once the reachability line has been written.
func (s *Service) Announced() <-chan struct{} { return s.announced }

// Done is closed once the accept loop has exited and the service has
// been withdrawn.
func (s *Service) Done() <-chan struct{} { return s.done }

// Stop cancels the service and waits for its accept loop to exit.
// Running sessions are not interrupted.
func (s *Service) Stop() {
	s.handle.Cancel()
	<-s.done
}

// Wait blocks until the accept loop exits or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitSessions blocks until every session started by the service has
// ended.
func (s *Service) WaitSessions() { s.sessions.Wait() }

// LiveSessions returns the number of sessions currently running.
func (s *Service) LiveSessions() int64 { return s.liveSessions.Load() }

// TotalSessions returns the number of sessions started so far.
func (s *Service) TotalSessions() int64 { return s.totalSessions.Load() }

// announce writes the reachability line the first time the service is
// reported reachable.
func (s *Service) announce() {
	for status := range s.published.StatusEvents(s.handle.Context()) {
		if status != transport.StatusReachable {
			s.logger.Debug("onion service status", "status", status.String())
			continue
		}
		fmt.Fprintf(s.config.Announce, "Shell service available at: %s:%d\n",
			onionaddr.WithSuffix(s.address), s.ports[0])
		s.logger.Info("onion service reachable")
		close(s.announced)
		return
	}
}

func (s *Service) serve() {
	defer close(s.done)
	defer func() {
		if err := s.published.Close(); err != nil {
			s.logger.Warn("withdrawing onion service failed", "error", err)
		}
		s.registry.Remove(s.address, s.handle)
		s.logger.Info("onion service stopped", "sessions", s.totalSessions.Load())
	}()

	ctx := s.handle.Context()
	requests := s.published.Requests()

	if s.mode == ModeForward {
		proxy := &forward.Proxy{Rules: s.config.Forward, Logger: s.logger}
		if err := proxy.HandleRequests(ctx, requests); err != nil {
			s.logger.Error("forwarding failed", "error", err)
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("accept loop cancelled")
			return
		case request, ok := <-requests:
			if !ok {
				s.logger.Debug("request stream ended")
				return
			}
			s.handleRequest(ctx, request)
		}
	}
}

func (s *Service) handleRequest(ctx context.Context, request transport.Request) {
	if request.Port() != s.config.ShellPort {
		s.logger.Debug("rejecting stream for unexpected port", "port", request.Port())
		if err := request.Reject(ctx); err != nil {
			s.logger.Warn("rejecting stream failed", "port", request.Port(), "error", err)
		}
		return
	}
	connection, err := request.Accept(ctx)
	if err != nil {
		s.logger.Error("accepting stream failed", "error", err)
		return
	}

	s.sessions.Add(1)
	s.totalSessions.Add(1)
	s.liveSessions.Add(1)
	go func() {
		defer s.sessions.Done()
		defer s.liveSessions.Add(-1)
		s.runSession(connection)
	}()
}

// runSession bridges one accepted stream to a fresh shell. It is not
// tied to the service's handle.
func (s *Service) runSession(connection net.Conn) {
	logger := s.logger.With("session_id", uuid.NewString())
	defer connection.Close()

	process, err := s.config.Spawn(s.config.ShellCommand, s.config.TerminalSize)
	if err != nil {
		logger.Error("spawning shell failed", "error", err)
		return
	}
	logger.Info("session started")

	options := s.config.Bridge
	options.Logger = logger
	result := bridge.Relay(context.Background(), process, connection, options)

	if err := process.Terminate(); err != nil {
		logger.Debug("terminating shell", "error", err)
	}
	logger.Info("session ended",
		"ended_by", result.First.String(),
		"bytes_to_client", result.Outbound,
		"bytes_from_client", result.Inbound,
	)
}
