// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the anonymity-network capability that the
// onion service lifecycle and the client are written against.
//
// A [Transport] dials onion addresses ([Dialer]) and publishes onion
// services ([Publisher]). Publishing returns a [Service] whose
// Requests channel delivers one [Request] per incoming stream; the
// consumer decides per request whether to Accept it (yielding a
// net.Conn) or Reject it (tearing the circuit down explicitly).
// StatusEvents reports reachability as the service's descriptor is
// uploaded.
//
// Publish returns [ErrAlreadyPublished] when the identity is already
// registered with the network; PublishOrReuse is the fallback that
// takes the registration over.
//
// Two implementations exist. Package transport/torctl drives an
// external tor process through its control port. [MemoryNetwork]
// connects dialers and services inside one process over net.Pipe and
// is used by tests in place of Tor.
//
// [TCPDialer] is a plain TCP dialer for local forwarding targets.
package transport
