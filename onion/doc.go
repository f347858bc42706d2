// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package onion runs the lifecycle of a published onion service: it
// derives the identity, publishes it, announces it once reachable, and
// serves incoming streams until cancelled.
//
// [Launch] moves through these stages:
//
//   - Deriving: with a seed, the expanded keypair and address are
//     computed up front and the nickname is "backtor-shell-<address>";
//     without one the transport supplies an ephemeral identity and the
//     nickname is "backtor-shell".
//   - Publishing: the identity is published. If the transport reports
//     it as already published, Launch falls back to PublishOrReuse. Any
//     other failure is returned as a [*LaunchError] and nothing is
//     registered.
//   - Announcing: a goroutine watches the service's status and writes
//     "Shell service available at: <address>.onion:<port>" to the
//     announce writer the first time the service becomes reachable.
//     Serving does not wait for it.
//   - Serving: in shell mode each request for the shell port is
//     accepted and gets its own PTY shell bridged to the stream by
//     bridge.Relay; requests for any other port are rejected. In forward
//     mode the request stream is handed to a forward.Proxy.
//
// Each launched service is recorded in a [Registry] under its address
// with a cancellation [Handle]. Cancelling the handle (directly, through
// [Registry.Cancel], or with [Service.Stop]) ends the accept loop and
// withdraws the service; shell sessions already running are not
// interrupted and end when their peer or shell does. The registry entry
// is removed when the accept loop exits.
//
// The registry is owned by the caller and passed to every Launch that
// should share it; there is no process-wide instance.
package onion
