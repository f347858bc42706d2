// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint helper for backtor: it
// turns the error returned by the command tree into an exit status,
// writing to stderr directly because the structured logger may not
// exist yet.
package process
