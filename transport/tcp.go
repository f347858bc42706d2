// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer opens TCP connections to local forwarding targets.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection to be
	// established. Zero means only the context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}
