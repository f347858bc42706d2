// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies errors that occur during normal teardown
// of bridged streams, so that callers can keep them out of error logs.
package netutil
