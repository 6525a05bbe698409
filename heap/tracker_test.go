package heap

import (
	"slices"
	"testing"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

func TestTracker_TrackLookupUntrack(t *testing.T) {
	tr := NewTracker()

	if err := tr.Track(0x100, 1, 16); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := tr.Track(0x200, 2, 8); err != nil {
		t.Fatalf("Track: %v", err)
	}

	if id, ok := tr.Lookup(0x100); !ok || id != 1 {
		t.Errorf("Lookup(0x100) = %d, %v", id, ok)
	}
	if tr.Contains(0x104) {
		t.Error("interior address must not be tracked")
	}
	if tr.Len() != 2 || tr.Bytes() != 24 {
		t.Errorf("Len = %d, Bytes = %d", tr.Len(), tr.Bytes())
	}

	e, ok := tr.Untrack(0x100)
	if !ok || e.Shape != 1 || e.Size != 16 {
		t.Fatalf("Untrack = %+v, %v", e, ok)
	}
	if tr.Contains(0x100) {
		t.Error("address still tracked after Untrack")
	}
	if _, ok := tr.Untrack(0x100); ok {
		t.Error("second Untrack should report false")
	}
	if tr.Bytes() != 8 {
		t.Errorf("Bytes = %d, want 8", tr.Bytes())
	}
}

func TestTracker_RejectsDuplicatesAndNull(t *testing.T) {
	tr := NewTracker()
	if err := tr.Track(0x40, 1, 4); err != nil {
		t.Fatalf("Track: %v", err)
	}

	if err := tr.Track(0x40, 2, 4); !errors.IsInternalConsistency(err) {
		t.Errorf("duplicate: expected internal consistency error, got %v", err)
	}
	if err := tr.Track(0, 1, 4); !errors.IsInternalConsistency(err) {
		t.Errorf("null: expected internal consistency error, got %v", err)
	}
	if id, _ := tr.Lookup(0x40); id != 1 {
		t.Errorf("duplicate Track overwrote entry, shape = %d", id)
	}
}

func TestTracker_InUse(t *testing.T) {
	tr := NewTracker()
	_ = tr.Track(0x10, 3, 4)
	_ = tr.Track(0x20, 3, 4)

	if !tr.InUse(3) || tr.Count(3) != 2 {
		t.Fatalf("InUse = %v, Count = %d", tr.InUse(3), tr.Count(3))
	}
	tr.Untrack(0x10)
	if !tr.InUse(3) {
		t.Error("one object of shape 3 is still live")
	}
	tr.Untrack(0x20)
	if tr.InUse(3) {
		t.Error("shape 3 should be unused")
	}
}

func TestTracker_Snapshots(t *testing.T) {
	tr := NewTracker()
	for _, a := range []wasmgc.Addr{0x300, 0x100, 0x200} {
		_ = tr.Track(a, 1, 4)
	}

	if got := tr.Addresses(); !slices.Equal(got, []wasmgc.Addr{0x100, 0x200, 0x300}) {
		t.Errorf("Addresses = %v", got)
	}

	entries := tr.Entries()
	if len(entries) != 3 || entries[0].Addr != 0x100 {
		t.Errorf("Entries = %+v", entries)
	}

	n := 0
	for range tr.All() {
		n++
	}
	if n != 3 {
		t.Errorf("All yielded %d entries", n)
	}
}
