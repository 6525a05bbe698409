package sweep

import (
	"slices"
	"testing"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/heap"
	"github.com/wippyai/wasm-gc/mark"
	"github.com/wippyai/wasm-gc/memory"
)

func track(t *testing.T, arena *memory.Arena, tr *heap.Tracker, n int) []wasmgc.Addr {
	t.Helper()
	var out []wasmgc.Addr
	for i := 0; i < n; i++ {
		a, err := arena.Alloc(8, wasmgc.PointerSize)
		if err != nil {
			t.Fatal(err)
		}
		if err := tr.Track(a, 1, 8); err != nil {
			t.Fatal(err)
		}
		out = append(out, a)
	}
	return out
}

func TestUnreachable_Direction(t *testing.T) {
	arena := memory.NewArena(4096)
	tr := heap.NewTracker()
	addrs := track(t, arena, tr, 3)

	// seen holds one tracked address and one address the tracker never
	// produced; only tracked - seen may come back.
	seen := mark.Set{addrs[1]: {}, 0x9990: {}}

	var got []wasmgc.Addr
	for _, e := range Unreachable(tr, seen) {
		got = append(got, e.Addr)
	}
	if !slices.Equal(got, []wasmgc.Addr{addrs[0], addrs[2]}) {
		t.Errorf("unreachable = %v, want %v", got, []wasmgc.Addr{addrs[0], addrs[2]})
	}
}

func TestSweep_FreesAndUntracks(t *testing.T) {
	arena := memory.NewArena(4096)
	tr := heap.NewTracker()
	addrs := track(t, arena, tr, 4)
	seen := mark.Set{addrs[0]: {}, addrs[3]: {}}

	res, err := Sweep(tr, seen, arena, wasmgc.PointerSize)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !slices.Equal(res.Freed, []wasmgc.Addr{addrs[1], addrs[2]}) {
		t.Errorf("freed = %v", res.Freed)
	}
	if res.Bytes != 16 {
		t.Errorf("Bytes = %d, want 16", res.Bytes)
	}
	if tr.Len() != 2 || !tr.Contains(addrs[0]) || !tr.Contains(addrs[3]) {
		t.Errorf("tracker after sweep = %v", tr.Addresses())
	}
	for _, a := range res.Freed {
		if arena.Heap().Allocated(a) {
			t.Errorf("%v still allocated", a)
		}
	}

	// Freed addresses are reusable.
	a, err := arena.Alloc(8, wasmgc.PointerSize)
	if err != nil {
		t.Fatal(err)
	}
	if a != addrs[1] {
		t.Errorf("reallocation at %v, want reused %v", a, addrs[1])
	}
}

func TestSweep_AllocatorRejects(t *testing.T) {
	arena := memory.NewArena(4096)
	tr := heap.NewTracker()
	if err := tr.Track(0x200, 1, 8); err != nil { // never allocated from the arena
		t.Fatal(err)
	}

	_, err := Sweep(tr, mark.Set{}, arena, wasmgc.PointerSize)
	if !errors.IsInternalConsistency(err) {
		t.Fatalf("expected internal consistency error, got %v", err)
	}
	if !tr.Contains(0x200) {
		t.Error("entry must stay tracked when free fails")
	}
}

func TestAll(t *testing.T) {
	arena := memory.NewArena(4096)
	tr := heap.NewTracker()
	track(t, arena, tr, 5)

	res, err := All(tr, arena, wasmgc.PointerSize)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(res.Freed) != 5 || tr.Len() != 0 || arena.Heap().InUse() != 0 {
		t.Errorf("freed %d, tracked %d, in use %d", len(res.Freed), tr.Len(), arena.Heap().InUse())
	}
}
