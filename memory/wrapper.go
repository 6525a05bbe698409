package memory

import (
	"github.com/tetratelabs/wazero/api"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// WrapMemory wraps a wazero api.Memory to implement wasmgc.Memory.
func WrapMemory(mem api.Memory) *Wrapper {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// Wrapper adapts wazero api.Memory to wasmgc.Memory and wasmgc.MemorySizer.
type Wrapper struct {
	Mem api.Memory
}

// Size returns the current memory size in bytes.
func (m *Wrapper) Size() uint32 {
	return m.Mem.Size()
}

// Read reads bytes from memory. The returned slice aliases guest memory.
func (m *Wrapper) Read(offset wasmgc.Addr, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(uint32(offset), length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMemory, uint32(offset), length)
	}
	return data, nil
}

// Write writes bytes to memory.
func (m *Wrapper) Write(offset wasmgc.Addr, data []byte) error {
	if !m.Mem.Write(uint32(offset), data) {
		return errors.OutOfBounds(errors.PhaseMemory, uint32(offset), uint32(len(data)))
	}
	return nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Wrapper) ReadU32(offset wasmgc.Addr) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(uint32(offset))
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, uint32(offset), 4)
	}
	return v, nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (m *Wrapper) ReadU64(offset wasmgc.Addr) (uint64, error) {
	v, ok := m.Mem.ReadUint64Le(uint32(offset))
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, uint32(offset), 8)
	}
	return v, nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Wrapper) WriteU32(offset wasmgc.Addr, value uint32) error {
	if !m.Mem.WriteUint32Le(uint32(offset), value) {
		return errors.OutOfBounds(errors.PhaseMemory, uint32(offset), 4)
	}
	return nil
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (m *Wrapper) WriteU64(offset wasmgc.Addr, value uint64) error {
	if !m.Mem.WriteUint64Le(uint32(offset), value) {
		return errors.OutOfBounds(errors.PhaseMemory, uint32(offset), 8)
	}
	return nil
}
