package memory

import (
	"encoding/binary"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// nullGuard keeps the lowest bytes out of the heap so address 0 and small
// integers never alias an allocation.
const nullGuard = 16

// Arena is an in-process linear memory laid out like a wasm32 guest:
//
//	[0, 16)                null guard
//	[16, stackLimit)       heap managed by a FreeList
//	[stackLimit, size)     shadow stack, growing down from size
//
// It implements wasmgc.Memory, wasmgc.Allocator and wasmgc.StackSource.
// Stack slots are WordSize bytes wide.
type Arena struct {
	data       []byte
	heap       *FreeList
	stackLimit wasmgc.Addr
	sp         wasmgc.Addr
	word       uint32
}

// NewArena creates an arena of size bytes with an eighth reserved for the
// shadow stack.
func NewArena(size uint32) *Arena {
	return NewArenaWithStack(size, max(size/8, 256))
}

// NewArenaWithStack creates an arena of size bytes whose top stackSize bytes
// are the shadow stack, with 4-byte stack slots.
func NewArenaWithStack(size, stackSize uint32) *Arena {
	return NewArenaWords(size, stackSize, wasmgc.PointerSize)
}

// NewArenaWords is NewArenaWithStack with wordSize-byte stack slots (4 or 8).
// A collector scanning the arena must use the same pointer size.
func NewArenaWords(size, stackSize, wordSize uint32) *Arena {
	if wordSize != 8 {
		wordSize = wasmgc.PointerSize
	}
	size = alignUp(size, wordSize)
	stackSize = alignUp(stackSize, wordSize)
	if size < nullGuard+stackSize+wordSize {
		size = nullGuard + stackSize + wordSize
	}
	limit := wasmgc.Addr(size - stackSize)
	return &Arena{
		data:       make([]byte, size),
		heap:       NewFreeList(nullGuard, limit),
		stackLimit: limit,
		sp:         wasmgc.Addr(size),
		word:       wordSize,
	}
}

// WordSize returns the width of a stack slot in bytes.
func (a *Arena) WordSize() uint32 { return a.word }

// Size returns the arena size in bytes.
func (a *Arena) Size() uint32 { return uint32(len(a.data)) }

func (a *Arena) bounds(offset wasmgc.Addr, n uint32) error {
	if uint64(offset)+uint64(n) > uint64(len(a.data)) {
		return errors.OutOfBounds(errors.PhaseMemory, uint32(offset), n)
	}
	return nil
}

// Read returns a copy of length bytes at offset.
func (a *Arena) Read(offset wasmgc.Addr, length uint32) ([]byte, error) {
	if err := a.bounds(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, a.data[offset:])
	return out, nil
}

// Write copies data to offset.
func (a *Arena) Write(offset wasmgc.Addr, data []byte) error {
	if err := a.bounds(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(a.data[offset:], data)
	return nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (a *Arena) ReadU32(offset wasmgc.Addr) (uint32, error) {
	if err := a.bounds(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(a.data[offset:]), nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (a *Arena) ReadU64(offset wasmgc.Addr) (uint64, error) {
	if err := a.bounds(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(a.data[offset:]), nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (a *Arena) WriteU32(offset wasmgc.Addr, value uint32) error {
	if err := a.bounds(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(a.data[offset:], value)
	return nil
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (a *Arena) WriteU64(offset wasmgc.Addr, value uint64) error {
	if err := a.bounds(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(a.data[offset:], value)
	return nil
}

// Alloc allocates from the arena heap.
func (a *Arena) Alloc(size, align uint32) (wasmgc.Addr, error) {
	return a.heap.Alloc(size, align)
}

// Free returns a block to the arena heap.
func (a *Arena) Free(ptr wasmgc.Addr, size, align uint32) error {
	return a.heap.Free(ptr, size, align)
}

// Heap exposes the arena's free list for inspection.
func (a *Arena) Heap() *FreeList { return a.heap }

// StackPointer returns the current shadow stack pointer.
func (a *Arena) StackPointer() (wasmgc.Addr, error) {
	return a.sp, nil
}

// StackTop returns the address the shadow stack grows down from.
func (a *Arena) StackTop() wasmgc.Addr { return wasmgc.Addr(len(a.data)) }

// SetStackPointer moves the shadow stack pointer, as a function prologue or
// epilogue would.
func (a *Arena) SetStackPointer(sp wasmgc.Addr) error {
	if sp < a.stackLimit || uint64(sp) > uint64(len(a.data)) {
		return errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Addr(uint32(sp)).
			Detail("stack pointer outside [0x%x, 0x%x]", uint32(a.stackLimit), len(a.data)).
			Build()
	}
	a.sp = sp
	return nil
}

// Push stores a word on the shadow stack, zero-extended to WordSize bytes,
// and returns its slot address.
func (a *Arena) Push(word uint32) (wasmgc.Addr, error) {
	if a.sp < a.stackLimit+wasmgc.Addr(a.word) {
		return 0, errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Addr(uint32(a.sp)).
			Detail("shadow stack overflow").
			Build()
	}
	a.sp -= wasmgc.Addr(a.word)
	a.putWord(a.sp, uint64(word))
	return a.sp, nil
}

// Pop removes the top word of the shadow stack. The slot is zeroed so a
// stale value cannot keep an object alive. Only the low 32 bits of an 8-byte
// slot are returned; Push never sets the rest.
func (a *Arena) Pop() (uint32, error) {
	if uint64(a.sp)+uint64(a.word) > uint64(len(a.data)) {
		return 0, errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
			Detail("shadow stack underflow").
			Build()
	}
	v := binary.LittleEndian.Uint32(a.data[a.sp:])
	a.putWord(a.sp, 0)
	a.sp += wasmgc.Addr(a.word)
	return v, nil
}

// putWord writes a stack slot. Callers check bounds.
func (a *Arena) putWord(at wasmgc.Addr, v uint64) {
	if a.word == 8 {
		binary.LittleEndian.PutUint64(a.data[at:], v)
		return
	}
	binary.LittleEndian.PutUint32(a.data[at:], uint32(v))
}
