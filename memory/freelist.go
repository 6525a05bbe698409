package memory

import (
	"math"
	"sort"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// ErrExhausted is the cause attached to allocation failures when no free
// range is large enough.
var ErrExhausted = errors.New(errors.PhaseMemory, errors.KindAllocation).
	Detail("no free range large enough").
	Build()

type span struct {
	start wasmgc.Addr
	end   wasmgc.Addr
}

// FreeList is a first-fit allocator over address ranges. Adjacent free
// ranges are merged on Free. Bookkeeping lives on the Go heap.
type FreeList struct {
	free  []span // sorted by start, non-overlapping, non-adjacent
	used  map[wasmgc.Addr]uint32
	total uint64
	inUse uint64
}

// NewFreeList creates a free list managing [start, end).
func NewFreeList(start, end wasmgc.Addr) *FreeList {
	fl := &FreeList{used: make(map[wasmgc.Addr]uint32)}
	fl.AddRange(start, end)
	return fl
}

// AddRange hands [start, end) to the allocator. The range must not overlap
// memory the list already manages. Address 0 is never handed out.
func (fl *FreeList) AddRange(start, end wasmgc.Addr) {
	if start == 0 {
		start = wasmgc.PointerSize
	}
	if end <= start {
		return
	}
	fl.total += uint64(end - start)
	fl.insert(span{start: start, end: end})
}

// Alloc returns the lowest address of a free block of at least size bytes
// aligned to align. size is rounded up to a multiple of align.
func (fl *FreeList) Alloc(size, align uint32) (wasmgc.Addr, error) {
	if align == 0 {
		align = wasmgc.PointerSize
	}
	if size == 0 {
		size = align
	}
	if size > math.MaxUint32-align {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size, align, ErrExhausted)
	}
	size = alignUp(size, align)

	for i, s := range fl.free {
		start := wasmgc.Addr(alignUp(uint32(s.start), align))
		if start < s.start || start >= s.end || uint32(s.end-start) < size {
			continue
		}
		end := start.Add(size)

		// Replace s with the leftovers on either side.
		var rest []span
		if start > s.start {
			rest = append(rest, span{start: s.start, end: start})
		}
		if end < s.end {
			rest = append(rest, span{start: end, end: s.end})
		}
		fl.free = append(fl.free[:i], append(rest, fl.free[i+1:]...)...)

		fl.used[start] = size
		fl.inUse += uint64(size)
		return start, nil
	}
	return 0, errors.AllocationFailed(errors.PhaseMemory, size, align, ErrExhausted)
}

// Free returns a block obtained from Alloc. The size and align arguments are
// only used for validation; the recorded block size is authoritative.
func (fl *FreeList) Free(ptr wasmgc.Addr, size, align uint32) error {
	got, ok := fl.used[ptr]
	if !ok {
		return errors.New(errors.PhaseMemory, errors.KindInternalConsistency).
			Addr(uint32(ptr)).
			Detail("free of an address that was not allocated").
			Build()
	}
	if align == 0 {
		align = wasmgc.PointerSize
	}
	if size != 0 && alignUp(size, align) != got {
		return errors.New(errors.PhaseMemory, errors.KindInternalConsistency).
			Addr(uint32(ptr)).
			Detail("free of %d bytes, block holds %d", size, got).
			Build()
	}
	delete(fl.used, ptr)
	fl.inUse -= uint64(got)
	fl.insert(span{start: ptr, end: ptr.Add(got)})
	return nil
}

// Allocated reports whether ptr is the start of a live block.
func (fl *FreeList) Allocated(ptr wasmgc.Addr) bool {
	_, ok := fl.used[ptr]
	return ok
}

// InUse returns the number of bytes in live blocks.
func (fl *FreeList) InUse() uint64 { return fl.inUse }

// Total returns the number of bytes managed.
func (fl *FreeList) Total() uint64 { return fl.total }

// Spans returns the number of free ranges.
func (fl *FreeList) Spans() int { return len(fl.free) }

func (fl *FreeList) insert(s span) {
	i := sort.Search(len(fl.free), func(i int) bool { return fl.free[i].start >= s.start })

	// Merge with the following range.
	if i < len(fl.free) && fl.free[i].start == s.end {
		s.end = fl.free[i].end
		fl.free = append(fl.free[:i], fl.free[i+1:]...)
	}
	// Merge with the preceding range.
	if i > 0 && fl.free[i-1].end == s.start {
		fl.free[i-1].end = s.end
		return
	}

	fl.free = append(fl.free, span{})
	copy(fl.free[i+1:], fl.free[i:])
	fl.free[i] = s
}

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) / align * align
}
