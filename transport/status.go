// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
)

// StatusFeed fans a service's reachability out to subscribers. Each
// subscriber first receives the current status. Set never blocks: a
// subscriber holds at most one undelivered status, and a newer status
// replaces it, so slow readers skip intermediate states but always
// observe the latest one.
type StatusFeed struct {
	mu          sync.Mutex
	status      Status
	subscribers map[chan Status]struct{}
	done        chan struct{}
	closed      bool
}

// NewStatusFeed creates a feed starting at initial.
func NewStatusFeed(initial Status) *StatusFeed {
	return &StatusFeed{
		status:      initial,
		subscribers: make(map[chan Status]struct{}),
		done:        make(chan struct{}),
	}
}

// Subscribe returns a channel of status changes, starting with the
// current status. The channel is closed when ctx is done or the feed
// is closed.
func (f *StatusFeed) Subscribe(ctx context.Context) <-chan Status {
	events := make(chan Status, 1)

	f.mu.Lock()
	events <- f.status
	if f.closed {
		close(events)
		f.mu.Unlock()
		return events
	}
	f.subscribers[events] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subscribers[events]; ok {
			delete(f.subscribers, events)
			close(events)
		}
	}()
	return events
}

// Current returns the latest status.
func (f *StatusFeed) Current() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Set records status and notifies subscribers. Setting the current
// status again is a no-op. Ignored after Close.
func (f *StatusFeed) Set(status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.status == status {
		return
	}
	f.status = status
	f.broadcastLocked(status)
}

// Close publishes StatusShutdown and closes every subscriber.
// Idempotent.
func (f *StatusFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.status = StatusShutdown
	f.broadcastLocked(StatusShutdown)
	for subscriber := range f.subscribers {
		close(subscriber)
	}
	clear(f.subscribers)
	close(f.done)
}

// broadcastLocked replaces each subscriber's pending status with
// status. Only broadcastLocked sends after Subscribe, and it runs under
// f.mu, so the send after draining cannot block.
func (f *StatusFeed) broadcastLocked(status Status) {
	for subscriber := range f.subscribers {
		select {
		case <-subscriber:
		default:
		}
		subscriber <- status
	}
}
