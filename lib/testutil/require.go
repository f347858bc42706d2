// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the subset of testing.TB the channel helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch. The test fails if ch
// is closed or nothing arrives within timeout.
//
//	result := testutil.RequireReceive(t, done, 5*time.Second, "bridge result")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, context ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed before a value arrived", describe(context))
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received after %v", describe(context), timeout)
	}
	panic("unreachable")
}

// RequireClosed waits until ch is closed (or yields a value).
//
//	testutil.RequireClosed(t, service.Done(), 5*time.Second, "service stopped")
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, context ...any) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: channel still open after %v", describe(context), timeout)
	}
}

// describe renders the optional trailing arguments of the helpers: a
// plain message, or a format string followed by its operands.
func describe(context []any) string {
	switch {
	case len(context) == 0:
		return "waiting on channel"
	case len(context) == 1:
		return fmt.Sprint(context[0])
	}
	if format, ok := context[0].(string); ok {
		return fmt.Sprintf(format, context[1:]...)
	}
	return fmt.Sprint(context...)
}
