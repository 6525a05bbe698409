// Package mark computes the reachability closure of a root set by following
// the pointer fields each object's shape declares.
package mark

import (
	"maps"
	"slices"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/shape"
)

// Objects is the view of the allocation tracker the marker needs.
type Objects interface {
	Lookup(addr wasmgc.Addr) (wasmgc.ShapeID, bool)
	Contains(addr wasmgc.Addr) bool
}

// Shapes resolves shape ids to layouts.
type Shapes interface {
	Lookup(id wasmgc.ShapeID) (*shape.Shape, bool)
}

// Set is a set of heap addresses.
type Set map[wasmgc.Addr]struct{}

// Has reports whether addr is in the set.
func (s Set) Has(addr wasmgc.Addr) bool {
	_, ok := s[addr]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []wasmgc.Addr {
	return slices.Sorted(maps.Keys(s))
}

// Result is the outcome of one marking pass.
type Result struct {
	Seen Set
	// Fields is the number of pointer fields read.
	Fields int
	// MaxWork is the peak length of the work list.
	MaxWork int
}

// Marker walks the object graph stored in linear memory.
type Marker struct {
	mem     wasmgc.Memory
	objects Objects
	shapes  Shapes
	ptrSize uint32
}

// New creates a marker reading pointer fields of ptrSize bytes from mem.
func New(mem wasmgc.Memory, objects Objects, shapes Shapes, ptrSize uint32) *Marker {
	if ptrSize == 0 {
		ptrSize = wasmgc.PointerSize
	}
	return &Marker{mem: mem, objects: objects, shapes: shapes, ptrSize: ptrSize}
}

// Mark returns every tracked address reachable from roots, roots included.
//
// Every root must be tracked. The traversal uses an explicit work list, so
// graph depth is bounded by memory rather than by the goroutine stack.
func (m *Marker) Mark(roots []wasmgc.Addr) (Result, error) {
	seen := make(Set, len(roots))
	work := make([]wasmgc.Addr, 0, len(roots))
	for _, r := range roots {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		work = append(work, r)
	}

	res := Result{Seen: seen, MaxWork: len(work)}
	for len(work) > 0 {
		addr := work[len(work)-1]
		work = work[:len(work)-1]

		s, err := m.shapeOf(addr)
		if err != nil {
			return Result{}, err
		}

		err = s.EachPointer(func(off uint32) error {
			res.Fields++
			field := addr.Add(off)
			word, err := wasmgc.ReadWord(m.mem, field, m.ptrSize)
			if err != nil {
				return errors.New(errors.PhaseMark, errors.KindInternalConsistency).
					Addr(uint32(field)).
					Shape(uint32(s.ID())).
					Cause(err).
					Detail("pointer field of 0x%x unreadable", uint32(addr)).
					Build()
			}
			if word == 0 || word > uint64(^uint32(0)) {
				return nil
			}
			target := wasmgc.Addr(word)
			if _, ok := seen[target]; ok || !m.objects.Contains(target) {
				return nil
			}
			seen[target] = struct{}{}
			work = append(work, target)
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		res.MaxWork = max(res.MaxWork, len(work))
	}
	return res, nil
}

func (m *Marker) shapeOf(addr wasmgc.Addr) (*shape.Shape, error) {
	id, ok := m.objects.Lookup(addr)
	if !ok {
		return nil, errors.Untracked(errors.PhaseMark, uint32(addr))
	}
	s, ok := m.shapes.Lookup(id)
	if !ok {
		return nil, errors.New(errors.PhaseMark, errors.KindInternalConsistency).
			Addr(uint32(addr)).
			Shape(uint32(id)).
			Detail("tracked object has no shape").
			Build()
	}
	return s, nil
}
