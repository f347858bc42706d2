// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package hskey

import (
	"fmt"
	"sync"
)

// Seed holds a 32-byte operator secret in protected memory. On Linux
// the backing pages are mmap'd outside the Go heap, locked against
// swap, and excluded from core dumps. Close zeroes and releases them.
//
// A Seed must not be copied after creation. After Close, accessors
// panic. Close is idempotent.
type Seed struct {
	mu      sync.Mutex
	data    []byte
	release func([]byte) error
	closed  bool
}

// NewSeed copies source into protected memory and zeroes source.
func NewSeed(source []byte) (*Seed, error) {
	if len(source) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKey, SeedSize, len(source))
	}

	data, release, err := allocate(SeedSize)
	if err != nil {
		return nil, err
	}
	copy(data, source)
	clear(source)

	return &Seed{data: data, release: release}, nil
}

// SeedFromHex parses a hex seed straight into protected memory.
func SeedFromHex(encoded string) (*Seed, error) {
	raw, err := ParseHex(encoded)
	if err != nil {
		return nil, err
	}
	return NewSeed(raw[:])
}

// Array returns a stack copy of the seed for key expansion. Callers
// should clear the copy once the expansion is done.
func (s *Seed) Array() [SeedSize]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		panic("hskey: read from closed seed")
	}
	var seed [SeedSize]byte
	copy(seed[:], s.data)
	return seed
}

// Expand expands the held seed. See the package-level Expand.
func (s *Seed) Expand() ExpandedKeypair {
	seed := s.Array()
	defer clear(seed[:])
	return Expand(seed)
}

// Fingerprint returns the log-safe tag for the held seed.
func (s *Seed) Fingerprint() string {
	seed := s.Array()
	defer clear(seed[:])
	return Fingerprint(seed)
}

// Close zeroes and releases the seed memory.
func (s *Seed) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	clear(s.data)
	err := s.release(s.data)
	s.data = nil
	return err
}
