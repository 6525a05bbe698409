// Package sweep reclaims every tracked allocation that marking did not reach.
package sweep

import (
	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/heap"
)

// Objects is the view of the allocation tracker the sweeper needs.
type Objects interface {
	Entries() []heap.Entry
	Untrack(addr wasmgc.Addr) (heap.Entry, bool)
}

// Reachable is the marked set.
type Reachable interface {
	Has(addr wasmgc.Addr) bool
}

// Result is the outcome of one sweep.
type Result struct {
	Freed []wasmgc.Addr
	Bytes uint64
}

// Unreachable returns tracked - reachable, ordered by address.
func Unreachable(objects Objects, reachable Reachable) []heap.Entry {
	var out []heap.Entry
	for _, e := range objects.Entries() {
		if !reachable.Has(e.Addr) {
			out = append(out, e)
		}
	}
	return out
}

// Sweep frees every unreachable allocation through alloc and removes it from
// objects. Blocks are freed with the given alignment, matching allocation.
func Sweep(objects Objects, reachable Reachable, alloc wasmgc.Allocator, align uint32) (Result, error) {
	var res Result
	for _, e := range Unreachable(objects, reachable) {
		if err := alloc.Free(e.Addr, e.Size, align); err != nil {
			return res, errors.New(errors.PhaseSweep, errors.KindInternalConsistency).
				Addr(uint32(e.Addr)).
				Shape(uint32(e.Shape)).
				Cause(err).
				Detail("allocator rejected free").
				Build()
		}
		if _, ok := objects.Untrack(e.Addr); !ok {
			return res, errors.Untracked(errors.PhaseSweep, uint32(e.Addr))
		}
		res.Freed = append(res.Freed, e.Addr)
		res.Bytes += uint64(e.Size)
	}
	return res, nil
}

// All frees every tracked allocation. It is used on teardown.
func All(objects Objects, alloc wasmgc.Allocator, align uint32) (Result, error) {
	return Sweep(objects, nothing{}, alloc, align)
}

type nothing struct{}

func (nothing) Has(wasmgc.Addr) bool { return false }
