// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"io"
	"strings"
	"time"
)

// Transcript accumulates everything read from a stream on a single
// background goroutine, so that a test can wait for several expected
// outputs in turn without two readers racing for the same bytes.
//
// The goroutine runs until the stream returns an error; close the
// underlying stream in test cleanup.
type Transcript struct {
	chunks chan []byte
	output strings.Builder
	offset int
	ended  bool
}

// NewTranscript starts reading from reader.
func NewTranscript(reader io.Reader) *Transcript {
	transcript := &Transcript{chunks: make(chan []byte, 64)}
	go func() {
		defer close(transcript.chunks)
		buffer := make([]byte, 1024)
		for {
			n, err := reader.Read(buffer)
			if n > 0 {
				transcript.chunks <- bytes.Clone(buffer[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	return transcript
}

// WaitFor blocks until want appears in output received after the
// previous match, or fails the test after timeout. Carriage returns
// are ignored when matching, since PTYs translate "\n" to "\r\n". It
// returns the output consumed by this match.
func (tr *Transcript) WaitFor(t TB, want string, timeout time.Duration) string {
	t.Helper()

	deadline := time.After(timeout) //nolint:realclock test hang prevention
	for {
		normalized := strings.ReplaceAll(tr.output.String()[tr.offset:], "\r", "")
		if index := strings.Index(normalized, want); index >= 0 {
			consumed := tr.output.String()[tr.offset:]
			tr.offset = tr.output.Len()
			return consumed
		}
		if tr.ended {
			t.Fatalf("stream ended before %q appeared; got %q", want, tr.output.String()[tr.offset:])
		}

		select {
		case chunk, ok := <-tr.chunks:
			if !ok {
				tr.ended = true
				continue
			}
			tr.output.Write(chunk)
		case <-deadline:
			t.Fatalf("timed out after %v waiting for %q; got %q", timeout, want, tr.output.String()[tr.offset:])
		}
	}
}

// String returns everything received so far.
func (tr *Transcript) String() string {
	return tr.output.String()
}

// ReadUntil is shorthand for a single WaitFor on a new Transcript.
func ReadUntil(t TB, reader io.Reader, want string, timeout time.Duration) string {
	t.Helper()
	return NewTranscript(reader).WaitFor(t, want, timeout)
}
