// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package onion

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/backtor/backtor/lib/onionaddr"
)

// Handle cancels one running service. Cancellation is one-way.
type Handle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHandle returns an armed handle whose context derives from parent.
func NewHandle(parent context.Context) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{ctx: ctx, cancel: cancel}
}

// Context is cancelled when the handle is.
func (h *Handle) Context() context.Context { return h.ctx }

// Cancel fires the handle. Idempotent.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once the handle is cancelled.
func (h *Handle) Done() <-chan struct{} { return h.ctx.Done() }

// Cancelled reports whether the handle has fired.
func (h *Handle) Cancelled() bool { return h.ctx.Err() != nil }

// Entry is one registered service.
type Entry struct {
	// Address is the onion address without suffix.
	Address  string
	Nickname string
	Mode     Mode
	Ports    []uint16
	Started  time.Time
	Handle   *Handle
}

// Registry maps onion addresses to the handles of running services.
// Every method holds the lock for a single map operation only.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register records handle under address, replacing any previous entry.
// The ".onion" suffix is optional.
func (r *Registry) Register(address string, handle *Handle) {
	r.RegisterEntry(Entry{Address: address, Handle: handle, Started: time.Now()})
}

// RegisterEntry records entry under entry.Address, replacing any
// previous entry.
func (r *Registry) RegisterEntry(entry Entry) {
	entry.Address = onionaddr.TrimSuffix(entry.Address)
	entry.Ports = slices.Clone(entry.Ports)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Address] = entry
}

// Lookup returns the handle registered under address.
func (r *Registry) Lookup(address string) (*Handle, bool) {
	entry, ok := r.Entry(address)
	return entry.Handle, ok
}

// Entry returns the full entry registered under address.
func (r *Registry) Entry(address string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[onionaddr.TrimSuffix(address)]
	return entry, ok
}

// Cancel fires the handle registered under address. It reports whether
// an entry existed.
func (r *Registry) Cancel(address string) bool {
	handle, ok := r.Lookup(address)
	if ok {
		handle.Cancel()
	}
	return ok
}

// CancelAll fires every registered handle and returns how many there
// were.
func (r *Registry) CancelAll() int {
	entries := r.List()
	for _, entry := range entries {
		entry.Handle.Cancel()
	}
	return len(entries)
}

// Remove deletes the entry under address if it still holds handle, so a
// service that was replaced by a newer launch does not remove its
// successor. It reports whether an entry was removed.
func (r *Registry) Remove(address string, handle *Handle) bool {
	key := onionaddr.TrimSuffix(address)

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok || entry.Handle != handle {
		return false
	}
	delete(r.entries, key)
	return true
}

// List returns every entry sorted by address.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.Unlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Address, b.Address)
	})
	return entries
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
