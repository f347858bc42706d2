// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package hskey turns a 32-byte operator secret into the onion service
// identity key Tor needs to publish a stable address.
//
// [Expand] performs the RFC 8032 key expansion: SHA-512 of the seed,
// the lower half clamped and reduced to a scalar, the upper half kept
// as the nonce-generation prefix. The result, an [ExpandedKeypair], is
// the 64-byte "expanded secret key" form Tor's control protocol
// accepts for ED25519-V3 services, plus the matching public key. The
// same seed always produces the same keypair and therefore the same
// onion address; nothing else feeds into the mapping.
//
// Seeds reach the process in one of three forms: 64 hex characters on
// the command line ([ParseHex]), a key file holding the same hex
// ([ReadKeyFile]), or an age-encrypted key file decrypted with an
// X25519 identity. Parsed seeds are held in a [Seed], which keeps the
// bytes in locked memory outside the Go heap on Linux and zeroes them
// on Close.
//
// [Fingerprint] produces a short BLAKE3-derived tag for a seed so logs
// can identify which key is loaded without revealing it.
package hskey
