// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"

	"github.com/backtor/backtor/lib/hskey"
)

var (
	// ErrAlreadyPublished is returned by Publish when the requested
	// identity is already registered and still active.
	ErrAlreadyPublished = errors.New("onion service already published")

	// ErrUnreachable is returned by Dial when no service answers at the
	// address.
	ErrUnreachable = errors.New("onion service unreachable")

	// ErrRejected is returned by Dial when the service rejected the
	// stream.
	ErrRejected = errors.New("stream rejected by onion service")

	// ErrClosed is returned by operations on a closed transport or
	// service.
	ErrClosed = errors.New("transport closed")
)

// Dialer opens streams to onion services.
type Dialer interface {
	// Dial connects to port on the onion service at address. The
	// ".onion" suffix is optional.
	Dial(ctx context.Context, address string, port uint16) (net.Conn, error)
}

// Publisher publishes onion services.
type Publisher interface {
	// Publish registers a new onion service. It returns
	// ErrAlreadyPublished when the identity in config is already
	// registered.
	Publish(ctx context.Context, config ServiceConfig) (Service, error)

	// PublishOrReuse publishes the service, taking over an existing
	// registration of the same identity if there is one.
	PublishOrReuse(ctx context.Context, config ServiceConfig) (Service, error)
}

// Transport is a connection to the anonymity network.
type Transport interface {
	Dialer
	Publisher

	// Close shuts the transport down. Published services stop
	// receiving requests.
	Close() error
}

// ServiceConfig describes an onion service to publish.
type ServiceConfig struct {
	// Nickname labels the service in logs and in the transport's own
	// state.
	Nickname string

	// Key is the service identity. Nil asks the transport for an
	// ephemeral identity.
	Key *hskey.ExpandedKeypair

	// Ports are the virtual ports the service answers on. Transports
	// that cannot filter by port deliver requests for every port.
	Ports []uint16
}

// Status is the reachability of a published service.
type Status int

const (
	// StatusUnknown is reported before the transport has said anything.
	StatusUnknown Status = iota

	// StatusBootstrapping means the service exists but its descriptor
	// has not been uploaded yet.
	StatusBootstrapping

	// StatusReachable means at least one descriptor upload succeeded
	// and clients can connect.
	StatusReachable

	// StatusShutdown means the service was closed.
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusBootstrapping:
		return "bootstrapping"
	case StatusReachable:
		return "reachable"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Service is a published onion service.
type Service interface {
	// Address returns the 56-character onion address without the
	// ".onion" suffix.
	Address() string

	// Requests delivers incoming stream requests. The channel is closed
	// when the service is closed.
	Requests() <-chan Request

	// StatusEvents streams reachability changes, starting with the
	// current status. The channel is closed when ctx is done or the
	// service is closed.
	StatusEvents(ctx context.Context) <-chan Status

	// Close withdraws the service from the network. Idempotent.
	Close() error
}

// Request is an incoming stream awaiting a decision.
type Request interface {
	// Port is the virtual port the client asked for.
	Port() uint16

	// Accept completes the stream and returns it.
	Accept(ctx context.Context) (net.Conn, error)

	// Reject refuses the stream and tears down its circuit.
	Reject(ctx context.Context) error
}
