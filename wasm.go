package wasmgc

import "strconv"

// Addr is an offset into linear memory. Zero is never a valid heap address.
type Addr uint32

// Add returns the address off bytes past a.
func (a Addr) Add(off uint32) Addr {
	return a + Addr(off)
}

func (a Addr) String() string {
	return "0x" + strconv.FormatUint(uint64(a), 16)
}

// ShapeID identifies an object layout. Ids are chosen by the host compiler.
type ShapeID uint32

// PointerSize is the width of a pointer slot on wasm32.
const PointerSize = 4

// Memory is the raw linear memory the collector reads roots and fields from.
type Memory interface {
	Read(offset Addr, length uint32) ([]byte, error)
	Write(offset Addr, data []byte) error
	ReadU32(offset Addr) (uint32, error)
	ReadU64(offset Addr) (uint64, error)
	WriteU32(offset Addr, value uint32) error
	WriteU64(offset Addr, value uint64) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator hands out raw blocks of linear memory.
type Allocator interface {
	Alloc(size, align uint32) (Addr, error)
	Free(ptr Addr, size, align uint32) error
}

// StackSource reports the mutator's current stack pointer.
//
// Stacks grow downward: live frames occupy [StackPointer, base) where base
// is the value observed when the collector was initialised.
type StackSource interface {
	StackPointer() (Addr, error)
}

// ReadWord reads a pointer-sized little-endian word of ptrSize bytes (4 or 8).
func ReadWord(mem Memory, at Addr, ptrSize uint32) (uint64, error) {
	if ptrSize == 8 {
		return mem.ReadU64(at)
	}
	v, err := mem.ReadU32(at)
	return uint64(v), err
}
