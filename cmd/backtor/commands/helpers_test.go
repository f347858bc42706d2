// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"io"
	"log/slog"
	"time"

	"github.com/backtor/backtor/onion"
	"github.com/backtor/backtor/shell"
)

const testTimeout = 10 * time.Second

// zeroSeedHex and zeroSeedAddress are the all-zero seed and its
// address.
const (
	zeroSeedHex     = "0000000000000000000000000000000000000000000000000000000000000000"
	zeroSeedAddress = "hnvcppgow2sc2yvdvdicu3ynonsteflxdxrehjr2ybekdc2z3iu63yid"
)

// echoShell writes back whatever it is sent.
type echoShell struct {
	reader *io.PipeReader
	writer *io.PipeWriter
}

func spawnEcho(string, shell.Size) (onion.Shell, error) {
	reader, writer := io.Pipe()
	return &echoShell{reader: reader, writer: writer}, nil
}

func (s *echoShell) Read(buffer []byte) (int, error)  { return s.reader.Read(buffer) }
func (s *echoShell) Write(buffer []byte) (int, error) { return s.writer.Write(buffer) }

func (s *echoShell) Terminate() error {
	s.reader.Close()
	return s.writer.Close()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
