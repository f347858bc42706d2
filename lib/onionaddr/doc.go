// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package onionaddr derives and validates version 3 onion service
// addresses.
//
// A v3 address is the lowercase, unpadded RFC 4648 base32 encoding of
// 35 bytes: the 32-byte ed25519 public key, a two-byte checksum, and
// the version byte 0x03. The checksum is the first two bytes of
// SHA3-256(".onion checksum" || public key || 0x03). The encoded form
// is always 56 characters; the ".onion" suffix is carried separately.
//
// [Derive] is the forward mapping and treats a wrong-length key as a
// programming error. [Decode] is the validating inverse for addresses
// that arrive from operators. [WithSuffix] and [TrimSuffix] normalise
// the suffix for dialing and for registry keys respectively.
//
// No Backtor-internal dependencies.
package onionaddr
