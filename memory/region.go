package memory

import (
	"math"

	"github.com/tetratelabs/wazero/api"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// PageSize is the WebAssembly page size.
const PageSize = 65536

// Region is an allocator over pages obtained with memory.grow on a guest
// memory. Pages are never returned to the guest; wasm memory cannot shrink.
type Region struct {
	mem       api.Memory
	list      *FreeList
	growPages uint32
}

// NewRegion grows mem by initialPages and manages the new pages. When the
// region is exhausted it grows by at least initialPages again.
func NewRegion(mem api.Memory, initialPages uint32) (*Region, error) {
	if initialPages == 0 {
		initialPages = 1
	}
	r := &Region{
		mem:       mem,
		list:      NewFreeList(0, 0),
		growPages: initialPages,
	}
	if err := r.grow(initialPages); err != nil {
		return nil, err
	}
	return r, nil
}

// Alloc allocates from the region, growing guest memory if needed.
func (r *Region) Alloc(size, align uint32) (wasmgc.Addr, error) {
	addr, err := r.list.Alloc(size, align)
	if err == nil {
		return addr, nil
	}
	pages := max(r.growPages, (alignUp(size, PageSize)+PageSize)/PageSize)
	if gerr := r.grow(pages); gerr != nil {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size, align, gerr)
	}
	return r.list.Alloc(size, align)
}

// Free returns a block to the region.
func (r *Region) Free(ptr wasmgc.Addr, size, align uint32) error {
	return r.list.Free(ptr, size, align)
}

// InUse returns the number of bytes in live blocks.
func (r *Region) InUse() uint64 { return r.list.InUse() }

// Total returns the number of bytes obtained from the guest.
func (r *Region) Total() uint64 { return r.list.Total() }

func (r *Region) grow(pages uint32) error {
	prev, ok := r.mem.Grow(pages)
	if !ok {
		return errors.New(errors.PhaseMemory, errors.KindAllocation).
			Value(pages).
			Detail("memory.grow by %d pages failed", pages).
			Build()
	}
	start := wasmgc.Addr(uint64(prev) * PageSize)
	end := (uint64(prev) + uint64(pages)) * PageSize
	if end > math.MaxUint32 {
		end = math.MaxUint32 &^ (wasmgc.PointerSize - 1)
	}
	r.list.AddRange(start, wasmgc.Addr(end))
	return nil
}
