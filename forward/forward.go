// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/backtor/backtor/lib/netutil"
	"github.com/backtor/backtor/transport"
)

// DefaultDialTimeout bounds the connection to a forwarding target.
const DefaultDialTimeout = 10 * time.Second

// Rule maps an onion service virtual port to a local TCP target.
type Rule struct {
	Port   uint16
	Target string
}

func (r Rule) String() string {
	return fmt.Sprintf("%d=%s", r.Port, r.Target)
}

// ParseRule parses "PORT=HOST:PORT", for example "22=127.0.0.1:22".
func ParseRule(value string) (Rule, error) {
	portText, target, ok := strings.Cut(strings.TrimSpace(value), "=")
	if !ok {
		return Rule{}, fmt.Errorf("forward rule %q: expected PORT=HOST:PORT", value)
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil || port == 0 {
		return Rule{}, fmt.Errorf("forward rule %q: invalid onion port %q", value, portText)
	}
	host, targetPort, err := net.SplitHostPort(target)
	if err != nil {
		return Rule{}, fmt.Errorf("forward rule %q: invalid target: %w", value, err)
	}
	if host == "" {
		return Rule{}, fmt.Errorf("forward rule %q: target host is required", value)
	}
	if parsed, err := strconv.ParseUint(targetPort, 10, 16); err != nil || parsed == 0 {
		return Rule{}, fmt.Errorf("forward rule %q: invalid target port %q", value, targetPort)
	}
	return Rule{Port: uint16(port), Target: target}, nil
}

// TargetDialer opens connections to forwarding targets.
type TargetDialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// Proxy forwards accepted streams according to Rules.
type Proxy struct {
	// Rules maps virtual ports to targets. If two rules name the same
	// port, the first wins.
	Rules []Rule

	// Dialer connects to targets. If nil, a transport.TCPDialer with
	// DefaultDialTimeout is used.
	Dialer TargetDialer

	// Logger receives structured log output. If nil, slog.Default() is
	// used. Per-connection events are logged at Debug level.
	Logger *slog.Logger

	connectionCount atomic.Int64
}

func (p *Proxy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Proxy) dialer() TargetDialer {
	if p.Dialer != nil {
		return p.Dialer
	}
	return &transport.TCPDialer{Timeout: DefaultDialTimeout}
}

func (p *Proxy) match(port uint16) (Rule, bool) {
	for _, rule := range p.Rules {
		if rule.Port == port {
			return rule, true
		}
	}
	return Rule{}, false
}

// Ports returns the virtual ports the proxy forwards, in rule order.
func (p *Proxy) Ports() []uint16 {
	ports := make([]uint16, 0, len(p.Rules))
	for _, rule := range p.Rules {
		ports = append(ports, rule.Port)
	}
	return ports
}

// HandleRequests forwards requests until the channel closes or ctx is
// cancelled. Forwarded connections run on their own goroutines and are
// not interrupted by cancellation; they end when either peer closes.
func (p *Proxy) HandleRequests(ctx context.Context, requests <-chan transport.Request) error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("forward: at least one rule is required")
	}
	sessionContext := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger().Debug("forwarding stopped", "reason", context.Cause(ctx))
			return nil
		case request, ok := <-requests:
			if !ok {
				p.logger().Debug("request stream ended")
				return nil
			}
			rule, matched := p.match(request.Port())
			if !matched {
				p.logger().Debug("rejecting stream for unforwarded port", "port", request.Port())
				if err := request.Reject(ctx); err != nil {
					p.logger().Error("rejecting stream failed", "port", request.Port(), "error", err)
				}
				continue
			}
			connection, err := request.Accept(ctx)
			if err != nil {
				p.logger().Error("accepting stream failed", "port", request.Port(), "error", err)
				continue
			}
			connectionID := p.connectionCount.Add(1)
			go p.handleConnection(sessionContext, connection, rule, connectionID)
		}
	}
}

func (p *Proxy) handleConnection(ctx context.Context, stream net.Conn, rule Rule, connectionID int64) {
	defer stream.Close()

	logger := p.logger().With("connection_id", connectionID, "port", rule.Port, "target", rule.Target)
	logger.Debug("stream accepted")

	target, err := p.dialer().DialContext(ctx, rule.Target)
	if err != nil {
		logger.Error("failed to connect to forwarding target", "error", err)
		return
	}
	defer target.Close()

	splice(stream, target, logger)
	logger.Debug("stream closed")
}

// splice copies a and b into each other until both directions end.
// When one direction reaches EOF its destination is half-closed, or
// fully closed if it cannot half-close.
func splice(a, b net.Conn, logger *slog.Logger) {
	var waitGroup sync.WaitGroup
	waitGroup.Add(2)

	copyDirection := func(destination, source net.Conn, label string) {
		defer waitGroup.Done()
		bytesCopied, copyError := io.Copy(destination, source)
		if copyError != nil && !netutil.IsExpectedCloseError(copyError) {
			logger.Debug(label+" copy error",
				"bytes_copied", bytesCopied,
				"error", copyError,
			)
		}
		if halfCloser, ok := destination.(interface{ CloseWrite() error }); ok {
			halfCloser.CloseWrite()
		} else {
			destination.Close()
		}
	}

	go copyDirection(b, a, "stream->target")
	go copyDirection(a, b, "target->stream")

	waitGroup.Wait()
}
