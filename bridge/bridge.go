// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/backtor/backtor/lib/netutil"
)

// EscapeByte ends a [Pipe] session when read from the local endpoint
// with Options.Escape enabled.
const EscapeByte byte = 0x04

const (
	defaultQueueDepth    = 64
	defaultBlockingChunk = 4096
	defaultStreamChunk   = 4096
	defaultLocalChunk    = 256
	defaultLinger        = time.Second
)

// Endpoint is one side of a bridge.
type Endpoint interface {
	io.Reader
	io.Writer
}

// Flusher is implemented by endpoints that buffer writes.
type Flusher interface {
	Flush() error
}

// HalfCloser is implemented by endpoints that can signal end-of-data
// to their peer while still reading, like *net.TCPConn.
type HalfCloser interface {
	CloseWrite() error
}

// Canceler is implemented by endpoints whose blocked Read can be
// interrupted without closing the underlying file, like a
// cancelreader.CancelReader wrapping stdin.
type Canceler interface {
	Cancel() bool
}

// Duplex joins a reader and a writer into an Endpoint. Interrupting a
// Duplex affects only the reader: Cancel and Close are forwarded to
// Reader when it supports them, and Cancel reports false otherwise.
// Writer is never closed, so a Duplex of stdin and stdout leaves stdout
// usable after the session.
type Duplex struct {
	io.Reader
	io.Writer
}

// Cancel cancels the reader if it is a [Canceler].
func (d Duplex) Cancel() bool {
	if canceler, ok := d.Reader.(Canceler); ok {
		return canceler.Cancel()
	}
	return false
}

// Close closes the reader if it is an io.Closer.
func (d Duplex) Close() error {
	if closer, ok := d.Reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Flush flushes the writer if it is a [Flusher].
func (d Duplex) Flush() error {
	if flusher, ok := d.Writer.(Flusher); ok {
		return flusher.Flush()
	}
	return nil
}

// Direction names one half of a bridge.
type Direction int

const (
	// Outbound carries bytes from the local or blocking endpoint to the
	// remote stream.
	Outbound Direction = iota + 1

	// Inbound carries bytes from the remote stream back.
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "none"
	}
}

// Options tunes a bridge. The zero value is usable.
type Options struct {
	// Logger receives per-direction debug output. If nil,
	// slog.Default() is used.
	Logger *slog.Logger

	// QueueDepth bounds each hand-off channel in [Relay], in chunks.
	// Defaults to 64.
	QueueDepth int

	// BlockingChunk is the read size on the blocking endpoint of a
	// [Relay]. Defaults to 4096.
	BlockingChunk int

	// StreamChunk is the read size on the remote stream. Defaults to
	// 4096.
	StreamChunk int

	// LocalChunk is the read size on the local endpoint of a [Pipe],
	// typically a keyboard. Defaults to 256.
	LocalChunk int

	// Escape enables [EscapeByte] handling on the local endpoint of a
	// [Pipe]. Ignored by [Relay].
	Escape bool

	// Linger bounds how long teardown waits for the surviving
	// direction to finish after both endpoints are interrupted, so that
	// its last writes land before the bridge returns. Defaults to one
	// second.
	Linger time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = defaultQueueDepth
	}
	if o.BlockingChunk <= 0 {
		o.BlockingChunk = defaultBlockingChunk
	}
	if o.StreamChunk <= 0 {
		o.StreamChunk = defaultStreamChunk
	}
	if o.LocalChunk <= 0 {
		o.LocalChunk = defaultLocalChunk
	}
	if o.Linger <= 0 {
		o.Linger = defaultLinger
	}
	return o
}

// Result summarizes a finished bridge.
type Result struct {
	// Outbound and Inbound count bytes written to the destination of
	// each direction. The count for a direction still running when
	// Linger expired is a snapshot taken at that point.
	Outbound int64
	Inbound  int64

	// First is the direction that ended the session, or zero if the
	// context was cancelled first.
	First Direction

	// Escaped reports that the session ended on [EscapeByte].
	Escaped bool
}

// outcome is what a finished direction reports.
type outcome struct {
	direction Direction
	escaped   bool
	err       error
}

// session holds the shared state of one bridge invocation.
type session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	linger   time.Duration
	finished chan outcome
	outbound atomic.Int64
	inbound  atomic.Int64
}

func newSession(ctx context.Context, options Options) *session {
	ctx, cancel := context.WithCancel(ctx)
	return &session{
		ctx:    ctx,
		cancel: cancel,
		logger: options.Logger,
		linger: options.Linger,
		// Both directions can report without blocking, so a stranded
		// leg that finishes late never leaks its goroutine on send.
		finished: make(chan outcome, 2),
	}
}

func (s *session) counter(direction Direction) *atomic.Int64 {
	if direction == Outbound {
		return &s.outbound
	}
	return &s.inbound
}

func (s *session) report(result outcome) {
	s.finished <- result
}

// wait blocks until one direction finishes or the context is
// cancelled, then tears down both endpoints and gives the remaining
// directions up to s.linger to finish. destinations maps each
// direction to the endpoint it writes to.
func (s *session) wait(destinations map[Direction]Endpoint, endpoints ...Endpoint) Result {
	var first outcome
	select {
	case first = <-s.finished:
	case <-s.ctx.Done():
	}
	s.cancel()

	if first.direction != 0 {
		if first.err != nil && !netutil.IsExpectedCloseError(first.err) {
			s.logger.Debug("bridge direction failed",
				"direction", first.direction,
				"bytes", s.counter(first.direction).Load(),
				"error", first.err,
			)
		} else {
			s.logger.Debug("bridge direction finished",
				"direction", first.direction,
				"bytes", s.counter(first.direction).Load(),
				"escaped", first.escaped,
			)
			if first.err == nil {
				halfClose(destinations[first.direction])
			}
		}
	} else {
		s.logger.Debug("bridge cancelled", "error", context.Cause(s.ctx))
	}

	for _, endpoint := range endpoints {
		interrupt(endpoint)
	}

	pending := 2
	if first.direction != 0 {
		pending = 1
	}
	s.settle(pending)

	return Result{
		Outbound: s.outbound.Load(),
		Inbound:  s.inbound.Load(),
		First:    first.direction,
		Escaped:  first.escaped,
	}
}

// settle waits for pending directions to report, up to s.linger. A
// direction whose endpoint cannot be interrupted is left running.
func (s *session) settle(pending int) {
	timer := time.NewTimer(s.linger)
	defer timer.Stop()
	for ; pending > 0; pending-- {
		select {
		case <-s.finished:
		case <-timer.C:
			s.logger.Debug("bridge direction still running after teardown", "linger", s.linger)
			return
		}
	}
}

// Pipe bridges local and remote with one goroutine per direction. Both
// endpoints must unblock a pending Read when interrupted (closed or
// cancelled). Pipe returns when either direction ends or ctx is
// cancelled, once the other direction has also finished or
// Options.Linger has passed. Output relayed to local therefore lands
// before Pipe returns whenever remote can be interrupted.
func Pipe(ctx context.Context, local, remote Endpoint, options Options) Result {
	options = options.withDefaults()
	s := newSession(ctx, options)

	go func() {
		escaped, err := copyChunks(remote, local, options.LocalChunk, options.Escape, &s.outbound)
		s.report(outcome{direction: Outbound, escaped: escaped, err: err})
	}()
	go func() {
		_, err := copyChunks(local, remote, options.StreamChunk, false, &s.inbound)
		s.report(outcome{direction: Inbound, err: err})
	}()

	return s.wait(map[Direction]Endpoint{Outbound: remote, Inbound: local}, remote, local)
}

// Relay bridges a blocking endpoint to a stream. Reads and writes on
// blocking run only on two dedicated goroutines that exchange chunks
// with the stream goroutines over bounded channels. Relay returns when
// either direction ends or ctx is cancelled; blocking and stream are
// interrupted (closed) on the way out.
func Relay(ctx context.Context, blocking, stream Endpoint, options Options) Result {
	options = options.withDefaults()
	s := newSession(ctx, options)

	outboundQueue := make(chan []byte, options.QueueDepth)
	inboundQueue := make(chan []byte, options.QueueDepth)

	var outboundReadError, inboundReadError error

	// Outbound: blocking -> queue -> stream.
	go produce(s.ctx, blocking, outboundQueue, options.BlockingChunk, &outboundReadError)
	go func() {
		err := drain(stream, outboundQueue, &s.outbound)
		if err == nil {
			err = outboundReadError
		}
		s.report(outcome{direction: Outbound, err: err})
	}()

	// Inbound: stream -> queue -> blocking.
	go produce(s.ctx, stream, inboundQueue, options.StreamChunk, &inboundReadError)
	go func() {
		err := drain(blocking, inboundQueue, &s.inbound)
		if err == nil {
			err = inboundReadError
		}
		s.report(outcome{direction: Inbound, err: err})
	}()

	return s.wait(map[Direction]Endpoint{Outbound: stream, Inbound: blocking}, stream, blocking)
}

// produce reads chunks from source into queue until EOF, error, or ctx
// cancellation, then stores the terminating error (nil for EOF) in
// readError and closes queue. The store happens before the close, so
// the consumer may read readError once it observes the closed queue.
// Each chunk is a fresh allocation because ownership passes to the
// consumer.
func produce(ctx context.Context, source io.Reader, queue chan<- []byte, chunkSize int, readError *error) {
	defer close(queue)
	for {
		chunk := make([]byte, chunkSize)
		n, err := source.Read(chunk)
		if n > 0 {
			select {
			case queue <- chunk[:n]:
			case <-ctx.Done():
				*readError = ctx.Err()
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				*readError = err
			}
			return
		}
	}
}

// drain writes every chunk from queue to destination, flushing after
// each write, until queue is closed or a write fails.
func drain(destination io.Writer, queue <-chan []byte, counter *atomic.Int64) error {
	for chunk := range queue {
		if err := writeChunk(destination, chunk); err != nil {
			return err
		}
		counter.Add(int64(len(chunk)))
	}
	return nil
}

// copyChunks copies source to destination in chunkSize reads, flushing
// after every write. With escape set, the first [EscapeByte] ends the
// copy: bytes before it are written, the rest of the chunk is dropped.
func copyChunks(destination io.Writer, source io.Reader, chunkSize int, escape bool, counter *atomic.Int64) (bool, error) {
	buffer := make([]byte, chunkSize)
	for {
		n, err := source.Read(buffer)
		if n > 0 {
			chunk := buffer[:n]
			escaped := false
			if escape {
				if index := bytes.IndexByte(chunk, EscapeByte); index >= 0 {
					chunk = chunk[:index]
					escaped = true
				}
			}
			if len(chunk) > 0 {
				if writeErr := writeChunk(destination, chunk); writeErr != nil {
					return false, writeErr
				}
				counter.Add(int64(len(chunk)))
			}
			if escaped {
				return true, nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}
	}
}

func writeChunk(destination io.Writer, chunk []byte) error {
	if _, err := destination.Write(chunk); err != nil {
		return err
	}
	if flusher, ok := destination.(Flusher); ok {
		return flusher.Flush()
	}
	return nil
}

func halfClose(endpoint Endpoint) {
	if halfCloser, ok := endpoint.(HalfCloser); ok {
		halfCloser.CloseWrite()
	}
}

// interrupt unblocks any Read pending on endpoint. A successful
// [Canceler] is preferred so that files the caller still owns (stdin)
// stay open; otherwise the endpoint is closed.
func interrupt(endpoint Endpoint) {
	if canceler, ok := endpoint.(Canceler); ok && canceler.Cancel() {
		return
	}
	if closer, ok := endpoint.(io.Closer); ok {
		closer.Close()
	}
}
