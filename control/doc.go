// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package control serves the local control socket of a running
// `backtor serve`.
//
// The protocol is one CBOR request and one CBOR response per
// connection on a Unix socket. Requests are maps with an "action" field
// plus action-specific fields; responses are [Response] envelopes. Two
// actions are registered against an onion.Registry by
// [RegisterRegistryActions]:
//
//   - "list" returns a [ServiceInfo] for every registered service.
//   - "stop" takes an "address" field and cancels that service. The
//     address is validated as a v3 onion address first.
//
// [Client] is the other end, used by `backtor list` and `backtor stop`.
// The socket is created with mode 0600: anyone who can connect can stop
// services.
package control
