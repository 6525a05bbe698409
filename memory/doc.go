// Package memory is the raw memory boundary of the collector.
//
// Everything that touches linear memory bytes, or decides which bytes are
// free, lives here. The rest of the collector works with addresses as plain
// map keys and goes through the wasmgc.Memory and wasmgc.Allocator interfaces.
//
// # Memory Wrapper
//
// Wraps wazero api.Memory for the collector:
//
//	mem := memory.WrapMemory(guest.Memory())
//
// # Free List
//
// A first-fit allocator over one or more address ranges. It keeps its
// bookkeeping on the Go heap, so the managed bytes are never written:
//
//	fl := memory.NewFreeList(start, end)
//	addr, err := fl.Alloc(16, 4)
//
// # Growable Region
//
// A free list whose ranges come from memory.grow on a guest memory:
//
//	region, err := memory.NewRegion(guest.Memory(), 16)
//
// # Arena
//
// An in-process linear memory with a heap and a simulated shadow stack,
// usable wherever a real guest is not available:
//
//	arena := memory.NewArena(1 << 20)
//	arena.Push(uint32(addr))
package memory
