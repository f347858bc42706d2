// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides backtor's standard CBOR encoding configuration.
//
// CBOR is used for the control socket protocol between a running
// `backtor serve` and the `list` and `stop` commands. Every package
// that encodes CBOR goes through this one so both ends agree on the
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// A `cbor` tag marks a type that is only ever serialized as CBOR, such
// as the control protocol envelope. A `json` tag marks a type that is
// also printed as JSON by the CLI; fxamacker/cbor reads `json` tags
// when `cbor` tags are absent, so one tag names the field in both
// formats. Never put both tags on the same field.
package codec
