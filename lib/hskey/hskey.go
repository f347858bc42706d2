// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package hskey

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/zeebo/blake3"

	"github.com/backtor/backtor/lib/onionaddr"
)

const (
	// SeedSize is the length of a raw operator secret.
	SeedSize = 32

	// ExpandedSize is the length of an expanded secret key
	// (scalar || hash prefix).
	ExpandedSize = 64

	fingerprintContext = "backtor 2026-01 seed fingerprint v1"
)

// ErrInvalidKey is returned for seeds with bad encoding or length.
var ErrInvalidKey = errors.New("invalid secret key")

// ExpandedKeypair is an ed25519 identity in expanded form.
type ExpandedKeypair struct {
	secret [ExpandedSize]byte
	public [onionaddr.PublicKeySize]byte
}

// Expand derives the expanded keypair for seed. Every 32-byte value is
// a valid seed.
func Expand(seed [SeedSize]byte) ExpandedKeypair {
	digest := sha512.Sum512(seed[:])
	defer clear(digest[:])

	scalar, err := edwards25519.NewScalar().SetBytesWithClamping(digest[:32])
	if err != nil {
		// SetBytesWithClamping only fails on a wrong-length input.
		panic("hskey: clamping scalar: " + err.Error())
	}
	point := new(edwards25519.Point).ScalarBaseMult(scalar)

	var keypair ExpandedKeypair
	copy(keypair.secret[:32], scalar.Bytes())
	copy(keypair.secret[32:], digest[32:])
	copy(keypair.public[:], point.Bytes())
	return keypair
}

// PublicKey returns a copy of the 32-byte ed25519 public key.
func (k ExpandedKeypair) PublicKey() []byte {
	public := k.public
	return public[:]
}

// Scalar returns a copy of the reduced secret scalar.
func (k ExpandedKeypair) Scalar() []byte {
	scalar := make([]byte, 32)
	copy(scalar, k.secret[:32])
	return scalar
}

// HashPrefix returns a copy of the nonce-generation prefix.
func (k ExpandedKeypair) HashPrefix() []byte {
	prefix := make([]byte, 32)
	copy(prefix, k.secret[32:])
	return prefix
}

// SecretKey returns a copy of the 64-byte expanded secret key.
func (k ExpandedKeypair) SecretKey() []byte {
	secret := k.secret
	return secret[:]
}

// Address returns the onion address (without suffix) for the keypair.
func (k ExpandedKeypair) Address() string {
	return onionaddr.Derive(k.public[:])
}

// ParseHex decodes a 64-character hex seed. Surrounding whitespace is
// ignored.
func ParseHex(encoded string) ([SeedSize]byte, error) {
	var seed [SeedSize]byte

	trimmed := strings.TrimSpace(encoded)
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return seed, fmt.Errorf("%w: invalid hex: %v", ErrInvalidKey, err)
	}
	defer clear(decoded)

	if len(decoded) != SeedSize {
		return seed, fmt.Errorf("%w: key must be exactly %d bytes (%d hex chars), got %d bytes",
			ErrInvalidKey, SeedSize, SeedSize*2, len(decoded))
	}
	copy(seed[:], decoded)
	return seed, nil
}

// Generate returns a fresh random seed.
func Generate() ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return seed, fmt.Errorf("generating seed: %w", err)
	}
	return seed, nil
}

// Fingerprint returns a 16-character tag identifying seed. The tag is
// derived with a BLAKE3 key-derivation context, so it reveals nothing
// about the seed or the onion address.
func Fingerprint(seed [SeedSize]byte) string {
	var tag [8]byte
	blake3.DeriveKey(fingerprintContext, seed[:], tag[:])
	return hex.EncodeToString(tag[:])
}
