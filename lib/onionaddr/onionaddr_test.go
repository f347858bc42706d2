// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package onionaddr

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	decoded, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("decoding %q: %v", s, err)
	}
	return decoded
}

// sampleKeys are fixed public keys whose single-bit perturbations were
// checked for checksum collisions when the test was written.
func sampleKeys(t *testing.T) [][]byte {
	sequential := make([]byte, PublicKeySize)
	for index := range sequential {
		sequential[index] = byte(index)
	}
	return [][]byte{
		make([]byte, PublicKeySize),
		sequential,
		// Public key of the all-zero ed25519 seed (RFC 8032 derivation).
		mustHex(t, "3b6a27bcceb6a42d62a3a8d02a6f0d73653215771de243a63ac048a18b59da29"),
		// Key behind the rend-spec-v3 example address.
		mustHex(t, "79bcc625184b05194975c28b66b66b0469f7f6556fb1ac3189a79b40dda32f1f"),
	}
}

func TestDeriveKnownAddresses(t *testing.T) {
	tests := []struct {
		name      string
		publicKey string
		want      string
	}{
		{
			name:      "zero seed public key",
			publicKey: "3b6a27bcceb6a42d62a3a8d02a6f0d73653215771de243a63ac048a18b59da29",
			want:      "hnvcppgow2sc2yvdvdicu3ynonsteflxdxrehjr2ybekdc2z3iu63yid",
		},
		{
			name:      "rend-spec example",
			publicKey: "79bcc625184b05194975c28b66b66b0469f7f6556fb1ac3189a79b40dda32f1f",
			want:      "pg6mmjiyjmcrsslvykfwnntlaru7p5svn6y2ymmju6nubxndf4pscryd",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Derive(mustHex(t, test.publicKey))
			if got != test.want {
				t.Errorf("Derive = %q, want %q", got, test.want)
			}
		})
	}
}

func TestDeriveShapeAndRoundTrip(t *testing.T) {
	for _, publicKey := range sampleKeys(t) {
		address := Derive(publicKey)
		if len(address) != EncodedLength {
			t.Fatalf("address %q has length %d, want %d", address, len(address), EncodedLength)
		}
		if address != strings.ToLower(address) {
			t.Errorf("address %q is not lowercase", address)
		}
		if again := Derive(publicKey); again != address {
			t.Errorf("Derive not deterministic: %q then %q", address, again)
		}

		decoded, err := Decode(address)
		if err != nil {
			t.Fatalf("Decode(%q): %v", address, err)
		}
		if !bytes.Equal(decoded, publicKey) {
			t.Errorf("Decode(%q) = %x, want %x", address, decoded, publicKey)
		}
	}
}

func TestChecksumChangesOnSingleBitFlip(t *testing.T) {
	for _, publicKey := range sampleKeys(t) {
		original := checksum(publicKey)
		for bit := 0; bit < PublicKeySize*8; bit++ {
			perturbed := bytes.Clone(publicKey)
			perturbed[bit/8] ^= 1 << (bit % 8)
			if checksum(perturbed) == original {
				t.Errorf("key %x: flipping bit %d left checksum %x unchanged", publicKey, bit, original)
			}
		}
	}
}

func TestDerivePanicsOnWrongLength(t *testing.T) {
	for _, length := range []int{0, 31, 33, 64} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Derive with %d-byte key did not panic", length)
				}
			}()
			Derive(make([]byte, length))
		}()
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid := Derive(make([]byte, PublicKeySize))

	// Corrupt one character of the key portion so the checksum no
	// longer matches.
	corrupted := []byte(valid)
	if corrupted[0] == 'a' {
		corrupted[0] = 'b'
	} else {
		corrupted[0] = 'a'
	}

	// Replace the version byte: the last two characters encode the low
	// bits of the checksum and the version.
	wrongVersion := valid[:EncodedLength-2] + "aa"

	tests := []struct {
		name    string
		address string
	}{
		{"empty", ""},
		{"too short", valid[:EncodedLength-1]},
		{"too long", valid + "a"},
		{"bad alphabet", "1" + valid[1:]},
		{"bad checksum", string(corrupted)},
		{"wrong version", wrongVersion},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Decode(test.address)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("Decode(%q) error = %v, want ErrInvalidAddress", test.address, err)
			}
		})
	}
}

func TestDecodeAcceptsSuffixAndCase(t *testing.T) {
	publicKey := sampleKeys(t)[2]
	address := Derive(publicKey)

	for _, variant := range []string{
		address + Suffix,
		strings.ToUpper(address),
		"  " + address + Suffix + "\n",
	} {
		decoded, err := Decode(variant)
		if err != nil {
			t.Fatalf("Decode(%q): %v", variant, err)
		}
		if !bytes.Equal(decoded, publicKey) {
			t.Errorf("Decode(%q) = %x, want %x", variant, decoded, publicKey)
		}
	}
}

func TestSuffixNormalisation(t *testing.T) {
	address := Derive(make([]byte, PublicKeySize))

	if got := WithSuffix(address); got != address+".onion" {
		t.Errorf("WithSuffix(bare) = %q", got)
	}
	if got := WithSuffix(address + ".onion"); got != address+".onion" {
		t.Errorf("WithSuffix(suffixed) = %q", got)
	}
	if got := TrimSuffix(address + ".onion"); got != address {
		t.Errorf("TrimSuffix(suffixed) = %q", got)
	}
	if got := TrimSuffix(address); got != address {
		t.Errorf("TrimSuffix(bare) = %q", got)
	}
}
