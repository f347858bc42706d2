// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package onionaddr

import (
	"bytes"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// Suffix is the top-level pseudo-domain appended to service IDs.
	Suffix = ".onion"

	// Version is the onion service protocol version encoded in the
	// final address byte.
	Version = 3

	// PublicKeySize is the length of an ed25519 public key.
	PublicKeySize = 32

	// EncodedLength is the length of an address without its suffix.
	EncodedLength = 56

	rawLength      = PublicKeySize + 2 + 1
	checksumDomain = ".onion checksum"
)

// ErrInvalidAddress is returned by Decode for any malformed address.
var ErrInvalidAddress = errors.New("invalid onion address")

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Derive returns the 56-character address for an ed25519 public key.
// Panics if publicKey is not exactly 32 bytes.
func Derive(publicKey []byte) string {
	if len(publicKey) != PublicKeySize {
		panic(fmt.Sprintf("onionaddr: public key must be %d bytes, got %d", PublicKeySize, len(publicKey)))
	}

	var raw [rawLength]byte
	copy(raw[:PublicKeySize], publicKey)
	sum := checksum(publicKey)
	raw[PublicKeySize] = sum[0]
	raw[PublicKeySize+1] = sum[1]
	raw[PublicKeySize+2] = Version

	return strings.ToLower(encoding.EncodeToString(raw[:]))
}

// Decode validates address (with or without suffix, any case) and
// returns the embedded public key.
func Decode(address string) ([]byte, error) {
	trimmed := TrimSuffix(strings.ToLower(strings.TrimSpace(address)))
	if len(trimmed) != EncodedLength {
		return nil, fmt.Errorf("%w: %q has %d characters, want %d", ErrInvalidAddress, address, len(trimmed), EncodedLength)
	}

	raw, err := encoding.DecodeString(strings.ToUpper(trimmed))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, address, err)
	}
	if len(raw) != rawLength {
		return nil, fmt.Errorf("%w: %q decodes to %d bytes, want %d", ErrInvalidAddress, address, len(raw), rawLength)
	}
	if raw[rawLength-1] != Version {
		return nil, fmt.Errorf("%w: %q has version %d, want %d", ErrInvalidAddress, address, raw[rawLength-1], Version)
	}

	publicKey := raw[:PublicKeySize]
	sum := checksum(publicKey)
	if !bytes.Equal(raw[PublicKeySize:PublicKeySize+2], sum[:]) {
		return nil, fmt.Errorf("%w: %q has a bad checksum", ErrInvalidAddress, address)
	}
	return bytes.Clone(publicKey), nil
}

// WithSuffix appends ".onion" unless address already ends with it.
func WithSuffix(address string) string {
	if strings.HasSuffix(address, Suffix) {
		return address
	}
	return address + Suffix
}

// TrimSuffix removes a trailing ".onion" if present.
func TrimSuffix(address string) string {
	return strings.TrimSuffix(address, Suffix)
}

func checksum(publicKey []byte) [2]byte {
	hash := sha3.New256()
	hash.Write([]byte(checksumDomain))
	hash.Write(publicKey)
	hash.Write([]byte{Version})
	digest := hash.Sum(nil)
	return [2]byte{digest[0], digest[1]}
}
