// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package torctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	"github.com/cretz/bine/control"
	"github.com/cretz/bine/tor"
	bineed25519 "github.com/cretz/bine/torutil/ed25519"

	"github.com/backtor/backtor/lib/onionaddr"
	"github.com/backtor/backtor/transport"
)

// Compile-time interface checks.
var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Service   = (*service)(nil)
	_ transport.Request   = (*request)(nil)
)

// collisionCode is tor's reply code for an ADD_ONION whose identity is
// already registered.
const collisionCode = 550

// Config controls how tor is launched.
type Config struct {
	// ExePath is the tor executable. Defaults to "tor" on PATH.
	ExePath string

	// DataDir holds tor's state and cached consensus. Reusing it across
	// runs makes bootstrap much faster. Empty means a temporary
	// directory removed on Close.
	DataDir string

	// ExtraArgs are passed to tor verbatim.
	ExtraArgs []string

	// DebugWriter, if set, receives tor's control-port traffic.
	DebugWriter io.Writer

	// Logger receives lifecycle events. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport is a running tor process.
type Transport struct {
	tor    *tor.Tor
	dialer *tor.Dialer
	logger *slog.Logger

	eventsCancel context.CancelFunc
	eventsDone   chan struct{}

	mu       sync.Mutex
	services map[string]*service // key: address without suffix
	closed   bool
}

// Start launches tor and blocks until it has bootstrapped or ctx is
// done.
func Start(ctx context.Context, config Config) (*Transport, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("starting tor", "executable", config.ExePath, "data_dir", config.DataDir)
	instance, err := tor.Start(ctx, &tor.StartConf{
		ExePath:     config.ExePath,
		DataDir:     config.DataDir,
		ExtraArgs:   config.ExtraArgs,
		DebugWriter: config.DebugWriter,
	})
	if err != nil {
		return nil, fmt.Errorf("starting tor: %w", err)
	}

	if err := instance.EnableNetwork(ctx, true); err != nil {
		instance.Close()
		return nil, fmt.Errorf("bootstrapping tor: %w", err)
	}

	dialer, err := instance.Dialer(ctx, nil)
	if err != nil {
		instance.Close()
		return nil, fmt.Errorf("creating tor dialer: %w", err)
	}

	t := &Transport{
		tor:        instance,
		dialer:     dialer,
		logger:     logger,
		eventsDone: make(chan struct{}),
		services:   make(map[string]*service),
	}
	if err := t.watchDescriptors(); err != nil {
		instance.Close()
		return nil, err
	}

	logger.Info("tor bootstrapped")
	return t, nil
}

// watchDescriptors subscribes to HS_DESC events and routes uploads to
// the matching service.
func (t *Transport) watchDescriptors() error {
	events := make(chan control.Event, 64)
	if err := t.tor.Control.AddEventListener(events, control.EventCodeHSDesc); err != nil {
		return fmt.Errorf("subscribing to HS_DESC events: %w", err)
	}

	eventsCtx, cancel := context.WithCancel(context.Background())
	t.eventsCancel = cancel

	go func() {
		if err := t.tor.Control.HandleEvents(eventsCtx); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Debug("tor event loop ended", "error", err)
		}
	}()

	go func() {
		defer close(t.eventsDone)
		for {
			select {
			case event := <-events:
				descriptor, ok := event.(*control.HSDescEvent)
				if !ok {
					continue
				}
				t.handleDescriptor(descriptor)
			case <-eventsCtx.Done():
				t.tor.Control.RemoveEventListener(events, control.EventCodeHSDesc)
				return
			}
		}
	}()
	return nil
}

func (t *Transport) handleDescriptor(event *control.HSDescEvent) {
	address := onionaddr.TrimSuffix(event.Address)
	t.mu.Lock()
	svc, ok := t.services[address]
	t.mu.Unlock()
	if !ok {
		return
	}

	switch event.Action {
	case "UPLOADED":
		t.logger.Debug("onion descriptor uploaded", "address", address, "hsdir", event.HSDir)
		svc.status.Set(transport.StatusReachable)
	case "FAILED":
		t.logger.Debug("onion descriptor upload failed", "address", address, "hsdir", event.HSDir, "reason", event.Reason)
	}
}

// Dial connects to port on the onion service at address through tor's
// SOCKS port.
func (t *Transport) Dial(ctx context.Context, address string, port uint16) (net.Conn, error) {
	target := net.JoinHostPort(onionaddr.WithSuffix(address), strconv.Itoa(int(port)))
	connection, err := t.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", target, err)
	}
	return connection, nil
}

// Publish registers an onion service with tor.
func (t *Transport) Publish(ctx context.Context, config transport.ServiceConfig) (transport.Service, error) {
	return t.publish(ctx, config, false)
}

// PublishOrReuse registers an onion service, first removing an existing
// registration of the same identity.
func (t *Transport) PublishOrReuse(ctx context.Context, config transport.ServiceConfig) (transport.Service, error) {
	return t.publish(ctx, config, true)
}

func (t *Transport) publish(ctx context.Context, config transport.ServiceConfig, takeOver bool) (transport.Service, error) {
	if len(config.Ports) == 0 {
		return nil, fmt.Errorf("publishing %q: at least one port is required", config.Nickname)
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, transport.ErrClosed
	}

	var key control.Key = control.GenKey(control.KeyAlgoED25519V3)
	if config.Key != nil {
		key = &control.ED25519Key{KeyPair: bineed25519.PrivateKey(config.Key.SecretKey()).KeyPair()}
		if takeOver {
			t.takeOver(config.Key.Address())
		}
	}

	listeners := make(map[uint16]net.Listener, len(config.Ports))
	closeListeners := func() {
		for _, listener := range listeners {
			listener.Close()
		}
	}

	request := &control.AddOnionRequest{Key: key}
	if config.Key != nil {
		request.Flags = []string{"DiscardPK"}
	}
	var listenConfig net.ListenConfig
	for _, port := range config.Ports {
		if _, exists := listeners[port]; exists {
			continue
		}
		listener, err := listenConfig.Listen(ctx, "tcp", "127.0.0.1:0")
		if err != nil {
			closeListeners()
			return nil, fmt.Errorf("binding local listener for port %d: %w", port, err)
		}
		listeners[port] = listener
		request.Ports = append(request.Ports, control.NewKeyVal(strconv.Itoa(int(port)), listener.Addr().String()))
	}

	response, err := t.tor.Control.AddOnion(request)
	if err != nil {
		closeListeners()
		if isCollision(err) {
			return nil, fmt.Errorf("publishing %q: %w", config.Nickname, transport.ErrAlreadyPublished)
		}
		return nil, fmt.Errorf("publishing %q: %w", config.Nickname, err)
	}

	svc := &service{
		transport: t,
		address:   onionaddr.TrimSuffix(response.ServiceID),
		listeners: listeners,
		requests:  make(chan transport.Request),
		done:      make(chan struct{}),
		status:    transport.NewStatusFeed(transport.StatusBootstrapping),
	}

	t.mu.Lock()
	t.services[svc.address] = svc
	t.mu.Unlock()

	svc.serve()
	t.logger.Info("onion service registered with tor",
		"nickname", config.Nickname,
		"address", svc.address,
		"ports", config.Ports,
	)
	return svc, nil
}

// takeOver removes an existing registration of address: our own
// service if we hold one, otherwise whatever tor has (a detached
// onion from an earlier run).
func (t *Transport) takeOver(address string) {
	t.mu.Lock()
	existing, ok := t.services[address]
	t.mu.Unlock()
	if ok {
		existing.Close()
		return
	}
	if err := t.tor.Control.DelOnion(address); err != nil {
		t.logger.Debug("no stale onion registration to remove", "address", address, "error", err)
	}
}

func isCollision(err error) bool {
	var protocolError *textproto.Error
	if errors.As(err, &protocolError) && protocolError.Code == collisionCode {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "collision")
}

// Close withdraws every service and stops tor.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	services := make([]*service, 0, len(t.services))
	for _, svc := range t.services {
		services = append(services, svc)
	}
	t.mu.Unlock()

	for _, svc := range services {
		svc.Close()
	}
	t.eventsCancel()
	<-t.eventsDone
	return t.tor.Close()
}

func (t *Transport) forget(svc *service) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.services[svc.address] == svc {
		delete(t.services, svc.address)
	}
}

// service is an onion service published through tor.
type service struct {
	transport *Transport
	address   string
	listeners map[uint16]net.Listener
	requests  chan transport.Request
	done      chan struct{}
	once      sync.Once
	accepting sync.WaitGroup
	status    *transport.StatusFeed
}

// serve starts one accept loop per port. Requests is closed once every
// loop has exited.
func (s *service) serve() {
	for port, listener := range s.listeners {
		s.accepting.Add(1)
		go func() {
			defer s.accepting.Done()
			for {
				connection, err := listener.Accept()
				if err != nil {
					select {
					case <-s.done:
					default:
						s.transport.logger.Error("onion listener failed", "address", s.address, "port", port, "error", err)
					}
					return
				}
				select {
				case s.requests <- &request{port: port, conn: connection}:
				case <-s.done:
					connection.Close()
					return
				}
			}
		}()
	}
	go func() {
		s.accepting.Wait()
		close(s.requests)
	}()
}

func (s *service) Address() string { return s.address }

func (s *service) Requests() <-chan transport.Request { return s.requests }

func (s *service) StatusEvents(ctx context.Context) <-chan transport.Status {
	return s.status.Subscribe(ctx)
}

// Close removes the onion from tor and stops accepting. Idempotent.
func (s *service) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.transport.forget(s)
		if delErr := s.transport.tor.Control.DelOnion(s.address); delErr != nil {
			err = fmt.Errorf("removing onion %s: %w", s.address, delErr)
		}
		for _, listener := range s.listeners {
			listener.Close()
		}
		s.status.Close()
	})
	return err
}

// request is a stream tor has already connected to a local listener.
// Tor only forwards configured ports, so Reject simply ends the
// stream.
type request struct {
	port uint16
	conn net.Conn
}

func (r *request) Port() uint16 { return r.port }

func (r *request) Accept(context.Context) (net.Conn, error) { return r.conn, nil }

func (r *request) Reject(context.Context) error { return r.conn.Close() }
