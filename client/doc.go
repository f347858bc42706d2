// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package client connects the invoking terminal to a remote backtor
// shell service.
//
// [Session.Connect] dials the service through a transport.Dialer, prints
// a banner, switches stdin to raw mode when it is a terminal, and runs a
// bridge.Pipe between the terminal and the stream until either side
// ends. Ctrl-D (0x04) typed locally ends the session without being
// forwarded. The terminal mode is restored on every return path.
package client
