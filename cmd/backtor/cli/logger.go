// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// LogLevelVariable overrides the level chosen by -v.
const LogLevelVariable = "BACKTOR_LOG"

// NewCommandLogger creates the logger for a command invocation. Output
// goes to stderr: text when stderr is a terminal, JSON otherwise.
// verbosity is the -v count: 0 logs errors, 1 adds info, 2 or more adds
// debug. BACKTOR_LOG (error, warn, info, debug) takes precedence.
//
//	logger := cli.NewCommandLogger(params.Verbosity).With("command", "serve")
func NewCommandLogger(verbosity int) *slog.Logger {
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), verbosity, os.Getenv(LogLevelVariable))
}

func newLogger(w io.Writer, terminal bool, verbosity int, override string) *slog.Logger {
	options := &slog.HandlerOptions{Level: logLevel(verbosity, override)}
	var handler slog.Handler
	if terminal {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}

func logLevel(verbosity int, override string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(override)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	}
	switch {
	case verbosity <= 0:
		return slog.LevelError
	case verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
