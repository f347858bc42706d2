// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable source of the current time.
//
// Components that stamp records with wall-clock time (service start
// times in the registry, uptimes on the control socket) take a Clock
// instead of calling time.Now, so tests can pin the time:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	service, err := onion.Launch(ctx, onion.Config{Clock: c, ...})
//	c.Advance(90 * time.Second)
//
// Production code passes Real(), or leaves the field nil where the
// component defaults to it.
package clock
