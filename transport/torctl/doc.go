// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package torctl implements transport.Transport by driving an external
// tor executable through its control port (github.com/cretz/bine).
//
// [Start] launches tor with a data directory under the caller's
// control, enables the network, and waits for bootstrap to complete.
// Outbound streams go through tor's SOCKS port. Services are published
// with ADD_ONION, one loopback listener per virtual port so that each
// accepted stream knows which port the client asked for. Keys from
// lib/hskey are handed to tor in expanded form; without a key tor
// generates an ephemeral ED25519-V3 identity.
//
// Tor answers ADD_ONION for an identity that is already registered
// with a 550 collision error, which surfaces as
// transport.ErrAlreadyPublished. PublishOrReuse removes the stale
// registration with DEL_ONION and publishes again.
//
// Reachability comes from HS_DESC events: the first UPLOADED event for
// a service's address moves it to StatusReachable.
package torctl
