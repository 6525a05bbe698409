// Package shape implements the shape registry: the sequential protocol a
// host compiler uses to describe object layouts before allocating them.
package shape

import (
	"slices"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// Shape is an immutable object layout.
type Shape struct {
	offsets []uint32
	id      wasmgc.ShapeID
	size    uint32
}

// ID returns the shape id.
func (s *Shape) ID() wasmgc.ShapeID { return s.id }

// Size returns the allocation size in bytes.
func (s *Shape) Size() uint32 { return s.size }

// PointerOffsets returns a copy of the pointer field offsets in submission order.
func (s *Shape) PointerOffsets() []uint32 { return slices.Clone(s.offsets) }

// NumPointers returns the number of pointer fields.
func (s *Shape) NumPointers() int { return len(s.offsets) }

// EachPointer calls fn for every pointer field offset without copying.
func (s *Shape) EachPointer(fn func(off uint32) error) error {
	for _, off := range s.offsets {
		if err := fn(off); err != nil {
			return err
		}
	}
	return nil
}

// Builder accumulates a shape definition. It is owned by the Registry and
// never escapes it.
type Builder struct {
	offsets []uint32
	id      wasmgc.ShapeID
	size    uint32
	hasSize bool
}

func newBuilder(id wasmgc.ShapeID) *Builder {
	return &Builder{id: id}
}

func (b *Builder) setSize(size uint32) {
	b.size = size
	b.hasSize = true
}

func (b *Builder) addPointer(off uint32) {
	b.offsets = append(b.offsets, off)
}

// build validates the definition against ptrSize and freezes it.
func (b *Builder) build(ptrSize uint32) (*Shape, error) {
	if !b.hasSize {
		return nil, errors.New(errors.PhaseRegistry, errors.KindProtocolViolation).
			Shape(uint32(b.id)).
			Detail("shape finalized without a size").
			Build()
	}
	for _, off := range b.offsets {
		if off%ptrSize != 0 {
			return nil, errors.New(errors.PhaseRegistry, errors.KindProtocolViolation).
				Shape(uint32(b.id)).
				Value(off).
				Detail("pointer offset %d is not a multiple of %d", off, ptrSize).
				Build()
		}
		if off >= b.size || b.size-off < ptrSize {
			return nil, errors.New(errors.PhaseRegistry, errors.KindProtocolViolation).
				Shape(uint32(b.id)).
				Value(off).
				Detail("pointer slot at offset %d does not fit in size %d", off, b.size).
				Build()
		}
	}
	return &Shape{
		id:      b.id,
		size:    b.size,
		offsets: slices.Clone(b.offsets),
	}, nil
}
