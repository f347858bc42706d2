// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package forward reverse-proxies onion service streams to local TCP
// targets.
//
// A [Proxy] consumes a service's request stream. Each request whose
// virtual port matches a [Rule] is accepted and spliced to a fresh TCP
// connection to the rule's target; requests for other ports are
// rejected. Splicing copies both directions independently with
// half-close support (end-of-data on one side becomes CloseWrite on
// the other) and ends when both directions have finished, so a target
// can still answer after the client has finished sending.
//
// Forwarding turns backtor into a transport for an existing daemon,
// typically sshd:
//
//	backtor serve --forward 22=127.0.0.1:22
package forward
