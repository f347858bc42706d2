// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package hskey

// allocate falls back to heap memory where mlock and MADV_DONTDUMP are
// not available. The seed is still zeroed on Close.
func allocate(size int) ([]byte, func([]byte) error, error) {
	return make([]byte, size), func([]byte) error { return nil }, nil
}
