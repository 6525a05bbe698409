package shape

import (
	"slices"
	"testing"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

func mustDo(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistry_RoundTrip(t *testing.T) {
	r := NewRegistry(4, nil)

	mustDo(t, r.Begin(1))
	mustDo(t, r.SetSize(16))
	mustDo(t, r.Begin(2))
	mustDo(t, r.AddPointerOffset(4)) // offsets may precede the size
	mustDo(t, r.SetSize(8))
	mustDo(t, r.SetSize(12)) // last size wins
	mustDo(t, r.AddPointerOffset(0))
	mustDo(t, r.Finish())

	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}

	s1, ok := r.Lookup(1)
	if !ok {
		t.Fatal("shape 1 missing")
	}
	if s1.Size() != 16 || s1.NumPointers() != 0 {
		t.Errorf("shape 1 = size %d, %d pointers", s1.Size(), s1.NumPointers())
	}

	s2, ok := r.Lookup(2)
	if !ok {
		t.Fatal("shape 2 missing")
	}
	if s2.Size() != 12 {
		t.Errorf("shape 2 size = %d, want 12", s2.Size())
	}
	if got := s2.PointerOffsets(); !slices.Equal(got, []uint32{4, 0}) {
		t.Errorf("shape 2 offsets = %v, want [4 0]", got)
	}
}

func TestRegistry_ShapeIsImmutable(t *testing.T) {
	r := NewRegistry(4, nil)
	mustDo(t, r.Begin(1))
	mustDo(t, r.SetSize(8))
	mustDo(t, r.AddPointerOffset(0))
	mustDo(t, r.Finish())

	s, _ := r.Lookup(1)
	offs := s.PointerOffsets()
	offs[0] = 4

	if got := s.PointerOffsets(); got[0] != 0 {
		t.Errorf("shape mutated through returned slice: %v", got)
	}
}

func TestRegistry_BeginWithoutSize(t *testing.T) {
	r := NewRegistry(4, nil)
	mustDo(t, r.Begin(1))

	err := r.Begin(2)
	if !errors.IsProtocolViolation(err) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
	if _, ok := r.Lookup(1); ok {
		t.Error("incomplete shape must not be registered")
	}
}

func TestRegistry_FinishWithoutSize(t *testing.T) {
	r := NewRegistry(4, nil)
	mustDo(t, r.Begin(3))

	if err := r.Finish(); !errors.IsProtocolViolation(err) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestRegistry_NoBuilder(t *testing.T) {
	r := NewRegistry(4, nil)

	if err := r.SetSize(8); !errors.IsProtocolViolation(err) {
		t.Errorf("SetSize: expected protocol violation, got %v", err)
	}
	if err := r.AddPointerOffset(0); !errors.IsProtocolViolation(err) {
		t.Errorf("AddPointerOffset: expected protocol violation, got %v", err)
	}
}

func TestRegistry_InvalidOffsets(t *testing.T) {
	tests := []struct {
		name   string
		size   uint32
		offset uint32
	}{
		{"past end", 8, 8},
		{"slot overruns size", 10, 8},
		{"unaligned", 16, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(4, nil)
			mustDo(t, r.Begin(1))
			mustDo(t, r.SetSize(tt.size))
			mustDo(t, r.AddPointerOffset(tt.offset))

			if err := r.Finish(); !errors.IsProtocolViolation(err) {
				t.Fatalf("expected protocol violation, got %v", err)
			}
		})
	}
}

func TestRegistry_ZeroSize(t *testing.T) {
	r := NewRegistry(4, nil)
	mustDo(t, r.Begin(1))
	if err := r.SetSize(0); !errors.IsProtocolViolation(err) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestRegistry_FinishClosesRegistration(t *testing.T) {
	r := NewRegistry(4, nil)
	mustDo(t, r.Begin(1))
	mustDo(t, r.SetSize(4))
	mustDo(t, r.Finish())

	if !r.Finished() {
		t.Fatal("expected Finished")
	}
	if err := r.Begin(2); !errors.IsProtocolViolation(err) {
		t.Fatalf("Begin after Finish: expected protocol violation, got %v", err)
	}
	if err := r.Finish(); !errors.IsProtocolViolation(err) {
		t.Fatalf("double Finish: expected protocol violation, got %v", err)
	}

	mustDo(t, r.Reopen())
	mustDo(t, r.Begin(2))
	mustDo(t, r.SetSize(4))
	mustDo(t, r.Finish())

	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistry_ReopenWhileOpen(t *testing.T) {
	r := NewRegistry(4, nil)
	if err := r.Reopen(); !errors.IsProtocolViolation(err) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestRegistry_Redefinition(t *testing.T) {
	live := map[wasmgc.ShapeID]bool{}
	r := NewRegistry(4, func(id wasmgc.ShapeID) bool { return live[id] })

	mustDo(t, r.Begin(1))
	mustDo(t, r.SetSize(8))
	mustDo(t, r.Begin(1))
	mustDo(t, r.SetSize(32))
	mustDo(t, r.Finish())

	s, _ := r.Lookup(1)
	if s.Size() != 32 {
		t.Fatalf("redefinition without live objects should overwrite, size = %d", s.Size())
	}

	live[1] = true
	mustDo(t, r.Reopen())
	mustDo(t, r.Begin(1))
	mustDo(t, r.SetSize(64))
	if err := r.Finish(); !errors.IsProtocolViolation(err) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
	if s, _ := r.Lookup(1); s.Size() != 32 {
		t.Errorf("live shape was replaced, size = %d", s.Size())
	}
}

func TestRegistry_ShapesSorted(t *testing.T) {
	r := NewRegistry(4, nil)
	for _, id := range []wasmgc.ShapeID{5, 2, 9} {
		mustDo(t, r.Begin(id))
		mustDo(t, r.SetSize(4))
	}
	mustDo(t, r.Finish())

	var ids []wasmgc.ShapeID
	for _, s := range r.Shapes() {
		ids = append(ids, s.ID())
	}
	if !slices.Equal(ids, []wasmgc.ShapeID{2, 5, 9}) {
		t.Errorf("Shapes order = %v", ids)
	}
}

func TestRegistry_InProgressAndReset(t *testing.T) {
	r := NewRegistry(4, nil)
	if _, ok := r.InProgress(); ok {
		t.Fatal("nothing should be in progress")
	}
	mustDo(t, r.Begin(7))
	if id, ok := r.InProgress(); !ok || id != 7 {
		t.Fatalf("InProgress = %d, %v", id, ok)
	}

	r.Reset()
	if _, ok := r.InProgress(); ok {
		t.Error("Reset should drop the builder")
	}
	if r.Len() != 0 {
		t.Error("Reset should drop shapes")
	}
}
