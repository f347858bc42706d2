// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"slices"
	"sync"

	"github.com/backtor/backtor/lib/hskey"
	"github.com/backtor/backtor/lib/onionaddr"
)

// Compile-time interface checks.
var (
	_ Transport = (*MemoryNetwork)(nil)
	_ Service   = (*MemoryService)(nil)
	_ Request   = (*memoryRequest)(nil)
)

// MemoryNetwork is an in-process Transport for tests. Dialers and
// services sharing one MemoryNetwork exchange streams over net.Pipe,
// bypassing Tor entirely. Every request reaches the service regardless
// of its configured ports, so port filtering is the consumer's job.
type MemoryNetwork struct {
	// ManualStatus makes new services start in StatusBootstrapping
	// instead of StatusReachable; tests advance them with SetStatus.
	ManualStatus bool

	mu       sync.Mutex
	services map[string]*MemoryService // key: address without suffix
	closed   bool
}

// NewMemoryNetwork creates an empty in-process network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{services: make(map[string]*MemoryService)}
}

// Publish registers a service. It returns ErrAlreadyPublished if a
// service with the same identity is open.
func (n *MemoryNetwork) Publish(_ context.Context, config ServiceConfig) (Service, error) {
	return n.publish(config, false)
}

// PublishOrReuse registers a service, closing any open service with the
// same identity first.
func (n *MemoryNetwork) PublishOrReuse(_ context.Context, config ServiceConfig) (Service, error) {
	return n.publish(config, true)
}

func (n *MemoryNetwork) publish(config ServiceConfig, takeOver bool) (*MemoryService, error) {
	address, err := memoryAddress(config.Key)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrClosed
	}
	previous, exists := n.services[address]
	if exists && !takeOver {
		n.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", address, ErrAlreadyPublished)
	}

	status := StatusReachable
	if n.ManualStatus {
		status = StatusBootstrapping
	}
	service := newMemoryService(n, address, config, status)
	n.services[address] = service
	n.mu.Unlock()

	if exists {
		previous.shutdown()
	}
	go service.pump()
	return service, nil
}

// memoryAddress returns the address for key, or a fresh ephemeral one.
func memoryAddress(key *hskey.ExpandedKeypair) (string, error) {
	if key != nil {
		return key.Address(), nil
	}
	seed, err := hskey.Generate()
	if err != nil {
		return "", err
	}
	keypair := hskey.Expand(seed)
	return keypair.Address(), nil
}

// Lookup returns the open service at address.
func (n *MemoryNetwork) Lookup(address string) (*MemoryService, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	service, ok := n.services[onionaddr.TrimSuffix(address)]
	return service, ok
}

// Dial opens a stream to port on the service at address and waits for
// the service to accept or reject it.
func (n *MemoryNetwork) Dial(ctx context.Context, address string, port uint16) (net.Conn, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrClosed
	}
	service, ok := n.services[onionaddr.TrimSuffix(address)]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", address, ErrUnreachable)
	}

	clientSide, serviceSide := net.Pipe()
	request := &memoryRequest{
		port:     port,
		conn:     serviceSide,
		decision: make(chan bool, 1),
	}

	select {
	case service.incoming <- request:
	case <-service.done:
		clientSide.Close()
		serviceSide.Close()
		return nil, fmt.Errorf("%s: %w", address, ErrUnreachable)
	case <-ctx.Done():
		clientSide.Close()
		serviceSide.Close()
		return nil, ctx.Err()
	}

	select {
	case accepted := <-request.decision:
		if !accepted {
			clientSide.Close()
			return nil, fmt.Errorf("%s port %d: %w", address, port, ErrRejected)
		}
		return clientSide, nil
	case <-ctx.Done():
		request.Reject(context.Background())
		clientSide.Close()
		return nil, ctx.Err()
	}
}

// Close shuts every service down and refuses further use.
func (n *MemoryNetwork) Close() error {
	n.mu.Lock()
	n.closed = true
	services := make([]*MemoryService, 0, len(n.services))
	for _, service := range n.services {
		services = append(services, service)
	}
	n.mu.Unlock()

	for _, service := range services {
		service.Close()
	}
	return nil
}

// forget removes service from the network if it is still the one
// registered at its address.
func (n *MemoryNetwork) forget(service *MemoryService) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.services[service.address] == service {
		delete(n.services, service.address)
	}
}

// MemoryService is a service published on a MemoryNetwork.
type MemoryService struct {
	network  *MemoryNetwork
	address  string
	nickname string
	ports    []uint16

	incoming chan *memoryRequest
	requests chan Request
	done     chan struct{}
	once     sync.Once
	status   *StatusFeed
}

func newMemoryService(network *MemoryNetwork, address string, config ServiceConfig, status Status) *MemoryService {
	return &MemoryService{
		network:  network,
		address:  address,
		nickname: config.Nickname,
		ports:    slices.Clone(config.Ports),
		incoming: make(chan *memoryRequest),
		requests: make(chan Request),
		done:     make(chan struct{}),
		status:   NewStatusFeed(status),
	}
}

// pump hands incoming requests to the consumer until the service
// closes, then closes the Requests channel. Dialers never send on the
// consumer-facing channel directly, so closing it cannot race a send.
func (s *MemoryService) pump() {
	defer close(s.requests)
	for {
		select {
		case request := <-s.incoming:
			select {
			case s.requests <- request:
			case <-s.done:
				request.Reject(context.Background())
				return
			}
		case <-s.done:
			return
		}
	}
}

// Address returns the onion address without suffix.
func (s *MemoryService) Address() string { return s.address }

// Nickname returns the nickname the service was published under.
func (s *MemoryService) Nickname() string { return s.nickname }

// Ports returns the configured virtual ports.
func (s *MemoryService) Ports() []uint16 { return slices.Clone(s.ports) }

// Requests delivers incoming streams.
func (s *MemoryService) Requests() <-chan Request { return s.requests }

// Done is closed when the service is closed or replaced.
func (s *MemoryService) Done() <-chan struct{} { return s.done }

// StatusEvents streams status changes, starting with the current one.
func (s *MemoryService) StatusEvents(ctx context.Context) <-chan Status {
	return s.status.Subscribe(ctx)
}

// SetStatus changes the service status and notifies subscribers.
func (s *MemoryService) SetStatus(status Status) {
	s.status.Set(status)
}

// Close withdraws the service. Idempotent.
func (s *MemoryService) Close() error {
	s.network.forget(s)
	s.shutdown()
	return nil
}

func (s *MemoryService) shutdown() {
	s.once.Do(func() {
		close(s.done)
		s.status.Close()
	})
}

// memoryRequest is one pending stream on a MemoryService.
type memoryRequest struct {
	port     uint16
	conn     net.Conn
	decision chan bool
	once     sync.Once
}

func (r *memoryRequest) Port() uint16 { return r.port }

func (r *memoryRequest) Accept(context.Context) (net.Conn, error) {
	accepted := false
	r.once.Do(func() {
		accepted = true
		r.decision <- true
	})
	if !accepted {
		return nil, fmt.Errorf("stream on port %d already decided", r.port)
	}
	return r.conn, nil
}

func (r *memoryRequest) Reject(context.Context) error {
	r.once.Do(func() {
		r.conn.Close()
		r.decision <- false
	})
	return nil
}
