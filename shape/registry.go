package shape

import (
	"cmp"
	"maps"
	"slices"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// Registry holds finalized shapes and the single in-progress builder.
//
// The protocol is strictly sequential: Begin starts a builder (finalizing the
// previous one), SetSize and AddPointerOffset fill it in, Finish finalizes the
// last one and closes registration until Reopen.
type Registry struct {
	shapes   map[wasmgc.ShapeID]*Shape
	current  *Builder
	inUse    func(wasmgc.ShapeID) bool
	ptrSize  uint32
	finished bool
}

// NewRegistry creates an empty registry validating pointer slots of ptrSize
// bytes. inUse reports whether live allocations still reference a shape id;
// redefining such an id is rejected. A nil inUse allows every redefinition.
func NewRegistry(ptrSize uint32, inUse func(wasmgc.ShapeID) bool) *Registry {
	if ptrSize == 0 {
		ptrSize = wasmgc.PointerSize
	}
	return &Registry{
		shapes:  make(map[wasmgc.ShapeID]*Shape),
		inUse:   inUse,
		ptrSize: ptrSize,
	}
}

// Begin finalizes the in-progress shape, if any, and starts a new one for id.
func (r *Registry) Begin(id wasmgc.ShapeID) error {
	if r.finished {
		return errors.New(errors.PhaseRegistry, errors.KindProtocolViolation).
			Shape(uint32(id)).
			Detail("registration is finished").
			Build()
	}
	if err := r.finalize(); err != nil {
		return err
	}
	r.current = newBuilder(id)
	return nil
}

// SetSize sets the allocation size of the in-progress shape. The last call wins.
func (r *Registry) SetSize(size uint32) error {
	if r.current == nil {
		return errors.Protocol(errors.PhaseRegistry, "set_size with no shape in progress")
	}
	if size == 0 {
		return errors.New(errors.PhaseRegistry, errors.KindProtocolViolation).
			Shape(uint32(r.current.id)).
			Detail("shape size must be positive").
			Build()
	}
	r.current.setSize(size)
	return nil
}

// AddPointerOffset appends a pointer field offset to the in-progress shape.
// Offsets are validated against the size when the shape is finalized.
func (r *Registry) AddPointerOffset(off uint32) error {
	if r.current == nil {
		return errors.Protocol(errors.PhaseRegistry, "add_pointer_offset with no shape in progress")
	}
	r.current.addPointer(off)
	return nil
}

// Finish finalizes the last in-progress shape and closes registration.
func (r *Registry) Finish() error {
	if r.finished {
		return errors.Protocol(errors.PhaseRegistry, "registration already finished")
	}
	if err := r.finalize(); err != nil {
		return err
	}
	r.finished = true
	return nil
}

// Reopen allows further shape definitions after Finish.
func (r *Registry) Reopen() error {
	if !r.finished {
		return errors.Protocol(errors.PhaseRegistry, "registration is still open")
	}
	r.finished = false
	return nil
}

func (r *Registry) finalize() error {
	b := r.current
	if b == nil {
		return nil
	}
	r.current = nil

	s, err := b.build(r.ptrSize)
	if err != nil {
		return err
	}
	if _, exists := r.shapes[s.id]; exists && r.inUse != nil && r.inUse(s.id) {
		return errors.New(errors.PhaseRegistry, errors.KindProtocolViolation).
			Shape(uint32(s.id)).
			Detail("cannot redefine a shape with live allocations").
			Build()
	}
	r.shapes[s.id] = s
	return nil
}

// Lookup returns the finalized shape for id.
func (r *Registry) Lookup(id wasmgc.ShapeID) (*Shape, bool) {
	s, ok := r.shapes[id]
	return s, ok
}

// InProgress returns the id of the shape being defined, if any.
func (r *Registry) InProgress() (wasmgc.ShapeID, bool) {
	if r.current == nil {
		return 0, false
	}
	return r.current.id, true
}

// Finished reports whether registration has been closed by Finish.
func (r *Registry) Finished() bool { return r.finished }

// Len returns the number of finalized shapes.
func (r *Registry) Len() int { return len(r.shapes) }

// Shapes returns the finalized shapes ordered by id.
func (r *Registry) Shapes() []*Shape {
	out := slices.Collect(maps.Values(r.shapes))
	slices.SortFunc(out, func(a, b *Shape) int { return cmp.Compare(a.id, b.id) })
	return out
}

// Reset drops every shape and any in-progress builder.
func (r *Registry) Reset() {
	clear(r.shapes)
	r.current = nil
	r.finished = false
}
