// Package callset holds the active-call table shared by Server and Client.
// It lives under internal/ rather than the top-level package because the
// bookkeeping is mechanism, not API, and keeping it out of the public
// package surface leaves room to change the storage strategy later without
// breaking callers.
package callset

import "sync"

// Key identifies a call by the (channel, service, method) tuple both the
// server and the client enforce uniqueness over.
type Key struct {
	ChannelID uint32
	ServiceID uint32
	MethodID  uint32
}

// Table is a mutex-guarded map from Key to an opaque call value. There are
// no destructors in Go, so rather than a call unlinking itself from a list
// on destruction, callers unlink explicitly by calling Delete, which is
// exactly what Call.terminate/Call.Cancel do.
type Table struct {
	mu      sync.Mutex
	entries map[Key]interface{}
}

// New creates an empty Table.
func New() *Table {
	this := new(Table)
	this.Init()
	return this
}

// Init resets this Table to empty.
func (this *Table) Init() {
	this.entries = make(map[Key]interface{})
}

// Swap atomically stores value under key and returns whatever was
// previously stored there, if anything. Server and Client call Clear on the
// key (deactivating whatever it returns) before Swap, so the "at most one
// active call per tuple" invariant holds without inspecting Swap's result.
func (this *Table) Swap(key Key, value interface{}) (previous interface{}, hadPrevious bool) {
	this.mu.Lock()
	defer this.mu.Unlock()
	previous, hadPrevious = this.entries[key]
	this.entries[key] = value
	return previous, hadPrevious
}

// Clear unconditionally removes key and returns whatever was stored there,
// if anything. Used at the start of REQUEST handling: any existing active
// call on the tuple is silently aborted and replaced before the new
// invoker runs, regardless of the new call's kind.
func (this *Table) Clear(key Key) (previous interface{}, hadPrevious bool) {
	this.mu.Lock()
	defer this.mu.Unlock()
	previous, hadPrevious = this.entries[key]
	delete(this.entries, key)
	return previous, hadPrevious
}

// Load returns the value stored under key, if any.
func (this *Table) Load(key Key) (value interface{}, ok bool) {
	this.mu.Lock()
	defer this.mu.Unlock()
	value, ok = this.entries[key]
	return value, ok
}

// Delete removes key from the table only if it currently maps to value
// (comparing with ==), so a call that has already been replaced by a newer
// one does not delete the newer one out from under it when it later
// terminates.
func (this *Table) Delete(key Key, value interface{}) {
	this.mu.Lock()
	defer this.mu.Unlock()
	if current, ok := this.entries[key]; ok && current == value {
		delete(this.entries, key)
	}
}

// Len reports the number of active entries. Used by tests asserting the
// "active call count ≤ 1 per tuple" invariant holds across a whole table.
func (this *Table) Len() int {
	this.mu.Lock()
	defer this.mu.Unlock()
	return len(this.entries)
}
