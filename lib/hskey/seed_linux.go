// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package hskey

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocate returns size bytes of anonymous memory that is locked into
// RAM and excluded from core dumps.
func allocate(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, nil, fmt.Errorf("hskey: mmap failed: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, nil, fmt.Errorf("hskey: mlock failed: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, nil, fmt.Errorf("hskey: madvise(MADV_DONTDUMP) failed: %w", err)
	}
	return data, release, nil
}

func release(data []byte) error {
	var firstError error
	if err := unix.Munlock(data); err != nil {
		firstError = fmt.Errorf("hskey: munlock failed: %w", err)
	}
	if err := unix.Munmap(data); err != nil && firstError == nil {
		firstError = fmt.Errorf("hskey: munmap failed: %w", err)
	}
	return firstError
}
