// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the backtor binary.
//
// A [Command] tree dispatches on the first positional argument, parses
// pflag flags built from tagged parameter structs ([FlagsFromParams]),
// and suggests the nearest command or flag name on typos. Commands
// return categorized errors ([Validation], [NotFound], [Transient],
// [Internal]) or an [ExitError] when they have already reported
// themselves. [NewCommandLogger] builds the slog logger commands share.
package cli
