// Package heap implements the allocation tracker: the single source of truth
// for which linear-memory addresses belong to the collector.
package heap

import (
	"iter"
	"maps"
	"slices"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// Entry describes one tracked allocation.
type Entry struct {
	Addr  wasmgc.Addr
	Shape wasmgc.ShapeID
	Size  uint32
}

type entry struct {
	shape wasmgc.ShapeID
	size  uint32
}

// Tracker maps live heap addresses to the shape they were allocated with.
type Tracker struct {
	objects  map[wasmgc.Addr]entry
	perShape map[wasmgc.ShapeID]int
	bytes    uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		objects:  make(map[wasmgc.Addr]entry),
		perShape: make(map[wasmgc.ShapeID]int),
	}
}

// Track records a new allocation. Tracking the zero address or an address
// that is already live is an internal consistency violation.
func (t *Tracker) Track(addr wasmgc.Addr, id wasmgc.ShapeID, size uint32) error {
	if addr == 0 {
		return errors.New(errors.PhaseAllocate, errors.KindInternalConsistency).
			Shape(uint32(id)).
			Detail("allocator returned the null address").
			Build()
	}
	if prev, ok := t.objects[addr]; ok {
		return errors.New(errors.PhaseAllocate, errors.KindInternalConsistency).
			Addr(uint32(addr)).
			Shape(uint32(prev.shape)).
			Detail("address is already tracked").
			Build()
	}
	t.objects[addr] = entry{shape: id, size: size}
	t.perShape[id]++
	t.bytes += uint64(size)
	return nil
}

// Untrack removes addr and returns its entry.
func (t *Tracker) Untrack(addr wasmgc.Addr) (Entry, bool) {
	e, ok := t.objects[addr]
	if !ok {
		return Entry{}, false
	}
	delete(t.objects, addr)
	if t.perShape[e.shape]--; t.perShape[e.shape] == 0 {
		delete(t.perShape, e.shape)
	}
	t.bytes -= uint64(e.size)
	return Entry{Addr: addr, Shape: e.shape, Size: e.size}, true
}

// Lookup returns the shape id addr was allocated with.
func (t *Tracker) Lookup(addr wasmgc.Addr) (wasmgc.ShapeID, bool) {
	e, ok := t.objects[addr]
	return e.shape, ok
}

// Get returns the full entry for addr.
func (t *Tracker) Get(addr wasmgc.Addr) (Entry, bool) {
	e, ok := t.objects[addr]
	if !ok {
		return Entry{}, false
	}
	return Entry{Addr: addr, Shape: e.shape, Size: e.size}, true
}

// Contains reports whether addr is a live tracked allocation.
func (t *Tracker) Contains(addr wasmgc.Addr) bool {
	_, ok := t.objects[addr]
	return ok
}

// InUse reports whether any live allocation uses shape id.
func (t *Tracker) InUse(id wasmgc.ShapeID) bool {
	return t.perShape[id] > 0
}

// Count returns the number of live allocations of shape id.
func (t *Tracker) Count(id wasmgc.ShapeID) int {
	return t.perShape[id]
}

// Len returns the number of live allocations.
func (t *Tracker) Len() int { return len(t.objects) }

// Bytes returns the total size of live allocations.
func (t *Tracker) Bytes() uint64 { return t.bytes }

// All iterates over live allocations in no particular order. The tracker
// must not be modified during iteration.
func (t *Tracker) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for addr, e := range t.objects {
			if !yield(Entry{Addr: addr, Shape: e.shape, Size: e.size}) {
				return
			}
		}
	}
}

// Addresses returns a sorted snapshot of live addresses.
func (t *Tracker) Addresses() []wasmgc.Addr {
	return slices.Sorted(maps.Keys(t.objects))
}

// Entries returns a snapshot of live allocations sorted by address.
func (t *Tracker) Entries() []Entry {
	out := make([]Entry, 0, len(t.objects))
	for _, addr := range t.Addresses() {
		e := t.objects[addr]
		out = append(out, Entry{Addr: addr, Shape: e.shape, Size: e.size})
	}
	return out
}
