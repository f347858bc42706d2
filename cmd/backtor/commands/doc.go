// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the backtor command tree.
//
// "backtor" with no command runs serve. serve publishes a shell (or
// forwarding) onion service through a tor process and exposes the
// service registry on a control socket, which list and stop talk to.
// connect opens an interactive session to a shell service. address and
// keygen manage the 32-byte seeds that give a service a stable address.
//
// The command bodies are split from flag handling so tests can drive
// them over an in-memory transport instead of tor.
package commands
