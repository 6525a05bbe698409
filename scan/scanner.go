// Package scan discovers roots by reading the mutator's shadow stack
// conservatively: every aligned word that equals a tracked address is a root.
//
// False positives only retain garbage for a cycle. False negatives would free
// live data, so the scanned range is always widened, never narrowed.
package scan

import (
	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// Tracked reports whether an address is a live allocation.
type Tracked interface {
	Contains(addr wasmgc.Addr) bool
}

// Range is a half-open span [Low, High) of stack memory.
type Range struct {
	Low  wasmgc.Addr
	High wasmgc.Addr
}

// Empty reports whether the range holds no words.
func (r Range) Empty() bool { return r.High <= r.Low }

// Words returns the number of words Scan will read.
func (r Range) Words(ptrSize uint32) uint32 {
	if r.Empty() {
		return 0
	}
	return (uint32(r.High-r.Low) + ptrSize - 1) / ptrSize
}

// Scanner reads words of ptrSize bytes between the current stack pointer and
// the high-water mark recorded at construction.
type Scanner struct {
	mem     wasmgc.Memory
	stack   wasmgc.StackSource
	base    wasmgc.Addr
	ptrSize uint32
}

// NewScanner records the current stack pointer of stack as the high-water
// mark. Frames below it at scan time are the mutator's.
func NewScanner(mem wasmgc.Memory, stack wasmgc.StackSource, ptrSize uint32) (*Scanner, error) {
	sp, err := stack.StackPointer()
	if err != nil {
		return nil, errors.Consistency(errors.PhaseScan, err, "read stack pointer")
	}
	if ptrSize == 0 {
		ptrSize = wasmgc.PointerSize
	}
	return &Scanner{mem: mem, stack: stack, base: sp, ptrSize: ptrSize}, nil
}

// Base returns the high-water mark.
func (s *Scanner) Base() wasmgc.Addr { return s.base }

// SetBase replaces the high-water mark.
func (s *Scanner) SetBase(base wasmgc.Addr) { s.base = base }

// Range returns the stack span the next Scan will cover. The low end is
// rounded down to a word boundary.
func (s *Scanner) Range() (Range, error) {
	sp, err := s.stack.StackPointer()
	if err != nil {
		return Range{}, errors.Consistency(errors.PhaseScan, err, "read stack pointer")
	}
	low := sp - sp%wasmgc.Addr(s.ptrSize)
	return Range{Low: low, High: s.base}, nil
}

// Scan returns every tracked address found on the stack, deduplicated, in
// the order first seen walking up from the stack pointer.
func (s *Scanner) Scan(tracked Tracked) ([]wasmgc.Addr, error) {
	r, err := s.Range()
	if err != nil {
		return nil, err
	}
	return s.ScanRange(r, tracked)
}

// ScanRange scans an explicit range. A trailing partial word is skipped.
func (s *Scanner) ScanRange(r Range, tracked Tracked) ([]wasmgc.Addr, error) {
	if r.Empty() {
		return nil, nil
	}

	var roots []wasmgc.Addr
	seen := make(map[wasmgc.Addr]struct{})
	for pos := uint64(r.Low); pos+uint64(s.ptrSize) <= uint64(r.High); pos += uint64(s.ptrSize) {
		word, err := s.readWord(wasmgc.Addr(pos))
		if err != nil {
			return nil, err
		}
		if word == 0 || word > uint64(^uint32(0)) {
			continue
		}
		candidate := wasmgc.Addr(word)
		if _, dup := seen[candidate]; dup || !tracked.Contains(candidate) {
			continue
		}
		seen[candidate] = struct{}{}
		roots = append(roots, candidate)
	}
	return roots, nil
}

func (s *Scanner) readWord(at wasmgc.Addr) (uint64, error) {
	v, err := wasmgc.ReadWord(s.mem, at, s.ptrSize)
	if err != nil {
		return 0, errors.New(errors.PhaseScan, errors.KindInternalConsistency).
			Addr(uint32(at)).
			Cause(err).
			Detail("stack word unreadable").
			Build()
	}
	return v, nil
}
