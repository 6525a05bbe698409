// Package collector is the facade over the shape registry, allocation
// tracker, root scanner, marker and sweeper.
//
// A Collector moves through three states: Uninitialized after New,
// Initialized after Init, and Destroyed after Destroy. Registration,
// allocation and collection are only valid while Initialized.
//
// Every error the collector returns is fatal. Once an operation fails, the
// collector refuses everything except Destroy; a host is expected to stop
// the mutator. Calls made in the wrong lifecycle state are rejected without
// touching any state.
package collector

import (
	"time"

	"go.uber.org/zap"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/heap"
	"github.com/wippyai/wasm-gc/mark"
	"github.com/wippyai/wasm-gc/scan"
	"github.com/wippyai/wasm-gc/shape"
	"github.com/wippyai/wasm-gc/sweep"
)

// State is the collector lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// wordSizer is implemented by stack sources with a fixed slot width, such as
// memory.Arena.
type wordSizer interface {
	WordSize() uint32
}

// Collector is a conservative mark-and-sweep collector over one linear
// memory. It is not safe for concurrent use.
type Collector struct {
	mem     wasmgc.Memory
	alloc   wasmgc.Allocator
	stack   wasmgc.StackSource
	log     *zap.Logger
	shapes  *shape.Registry
	objects *heap.Tracker
	scanner *scan.Scanner
	marker  *mark.Marker
	failed  error
	cfg     Config
	stats   Stats
	state   State
}

// New creates an uninitialized collector. mem is where objects and the
// shadow stack live, alloc provides raw blocks, stack reports the mutator's
// stack pointer.
func New(mem wasmgc.Memory, alloc wasmgc.Allocator, stack wasmgc.StackSource, cfg Config) *Collector {
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	if cfg.PointerSize == 0 {
		cfg.PointerSize = wasmgc.PointerSize
	}
	return &Collector{
		mem:   mem,
		alloc: alloc,
		stack: stack,
		log:   log,
		cfg:   cfg,
	}
}

// Init records the stack high-water mark and readies the collector.
func (c *Collector) Init() error {
	if c.state != StateUninitialized {
		return errors.Protocol(errors.PhaseLifecycle, "init called on a %s collector", c.state)
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if ws, ok := c.stack.(wordSizer); ok && ws.WordSize() != c.cfg.PointerSize {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(ws.WordSize()).
			Detail("stack slots are %d bytes, pointer_size is %d", ws.WordSize(), c.cfg.PointerSize).
			Build()
	}

	scanner, err := scan.NewScanner(c.mem, c.stack, c.cfg.PointerSize)
	if err != nil {
		return c.fail(err)
	}

	c.objects = heap.NewTracker()
	c.shapes = shape.NewRegistry(c.cfg.PointerSize, c.objects.InUse)
	c.scanner = scanner
	c.marker = mark.New(c.mem, c.objects, c.shapes, c.cfg.PointerSize)
	c.state = StateInitialized

	c.log.Debug("collector initialized",
		zap.Stringer("stack_base", scanner.Base()),
		zap.Uint32("pointer_size", c.cfg.PointerSize),
		zap.Uint64("collect_threshold", c.cfg.CollectThreshold))
	return nil
}

// BeginShape finalizes the shape in progress and starts defining id.
func (c *Collector) BeginShape(id wasmgc.ShapeID) error {
	if err := c.ready(errors.PhaseRegistry); err != nil {
		return err
	}
	return c.fail(c.shapes.Begin(id))
}

// SetSize sets the size in bytes of the shape in progress.
func (c *Collector) SetSize(size uint32) error {
	if err := c.ready(errors.PhaseRegistry); err != nil {
		return err
	}
	return c.fail(c.shapes.SetSize(size))
}

// AddPointerOffset declares a pointer field in the shape in progress.
func (c *Collector) AddPointerOffset(off uint32) error {
	if err := c.ready(errors.PhaseRegistry); err != nil {
		return err
	}
	return c.fail(c.shapes.AddPointerOffset(off))
}

// FinishRegistration finalizes the last shape and closes registration.
func (c *Collector) FinishRegistration() error {
	if err := c.ready(errors.PhaseRegistry); err != nil {
		return err
	}
	return c.fail(c.shapes.Finish())
}

// ReopenRegistration allows more shapes to be defined after
// FinishRegistration.
func (c *Collector) ReopenRegistration() error {
	if err := c.ready(errors.PhaseRegistry); err != nil {
		return err
	}
	return c.fail(c.shapes.Reopen())
}

// Allocate returns a new tracked object of shape id.
//
// It may run a collection first if CollectThreshold is crossed, and runs one
// and retries if the allocator is exhausted.
func (c *Collector) Allocate(id wasmgc.ShapeID) (wasmgc.Addr, error) {
	if err := c.ready(errors.PhaseAllocate); err != nil {
		return 0, err
	}
	s, ok := c.shapes.Lookup(id)
	if !ok {
		return 0, c.fail(errors.UnknownShape(uint32(id)))
	}
	size := s.Size()

	if t := c.cfg.CollectThreshold; t > 0 && c.stats.BytesSinceGC+uint64(size) > t && c.objects.Len() > 0 {
		if _, err := c.collect(TriggerThreshold); err != nil {
			return 0, err
		}
	}

	addr, err := c.alloc.Alloc(size, c.cfg.PointerSize)
	if err != nil && c.objects.Len() > 0 {
		c.log.Debug("allocator exhausted, collecting",
			zap.Uint32("shape", uint32(id)),
			zap.Uint32("size", size))
		if _, cerr := c.collect(TriggerExhausted); cerr != nil {
			return 0, cerr
		}
		addr, err = c.alloc.Alloc(size, c.cfg.PointerSize)
	}
	if err != nil {
		return 0, c.fail(errors.AllocationFailed(errors.PhaseAllocate, size, c.cfg.PointerSize, err))
	}

	if c.cfg.ZeroMemory {
		if err := c.mem.Write(addr, make([]byte, size)); err != nil {
			return 0, c.fail(errors.Consistency(errors.PhaseAllocate, err, "zero block at 0x%x", uint32(addr)))
		}
	}
	if err := c.objects.Track(addr, id, size); err != nil {
		return 0, c.fail(err)
	}

	c.stats.Mallocs++
	c.stats.TotalAlloc += uint64(size)
	c.stats.BytesSinceGC += uint64(size)
	if c.cfg.Observer != nil {
		c.cfg.Observer.ObserveAlloc(id, size)
	}
	return addr, nil
}

// Collect runs one stop-the-world cycle: scan the stack for roots, mark
// everything reachable from them, free the rest.
func (c *Collector) Collect() (CycleStats, error) {
	if err := c.ready(errors.PhaseLifecycle); err != nil {
		return CycleStats{}, err
	}
	return c.collect(TriggerExplicit)
}

func (c *Collector) collect(trigger Trigger) (CycleStats, error) {
	start := time.Now()

	rng, err := c.scanner.Range()
	if err != nil {
		return CycleStats{}, c.fail(err)
	}
	roots, err := c.scanner.ScanRange(rng, c.objects)
	if err != nil {
		return CycleStats{}, c.fail(err)
	}
	marked, err := c.marker.Mark(roots)
	if err != nil {
		return CycleStats{}, c.fail(err)
	}
	swept, err := sweep.Sweep(c.objects, marked.Seen, c.alloc, c.cfg.PointerSize)
	if err != nil {
		return CycleStats{}, c.fail(err)
	}

	c.stats.NumGC++
	cs := CycleStats{
		Trigger:     trigger,
		Seq:         c.stats.NumGC,
		StackWords:  rng.Words(c.cfg.PointerSize),
		Roots:       len(roots),
		Marked:      len(marked.Seen),
		Fields:      marked.Fields,
		Freed:       len(swept.Freed),
		FreedBytes:  swept.Bytes,
		LiveObjects: c.objects.Len(),
		LiveBytes:   c.objects.Bytes(),
		Duration:    time.Since(start),
	}
	c.stats.Frees += uint64(cs.Freed)
	c.stats.BytesSinceGC = 0
	c.stats.PauseTotal += cs.Duration
	c.stats.LastCycle = cs

	c.log.Debug("collection finished",
		zap.Uint32("seq", cs.Seq),
		zap.Stringer("trigger", trigger),
		zap.Int("roots", cs.Roots),
		zap.Int("marked", cs.Marked),
		zap.Int("freed", cs.Freed),
		zap.Uint64("freed_bytes", cs.FreedBytes),
		zap.Int("live", cs.LiveObjects),
		zap.Duration("duration", cs.Duration))
	if c.cfg.Observer != nil {
		c.cfg.Observer.ObserveCycle(cs)
	}
	return cs, nil
}

// Destroy frees every tracked object and releases the collector's state.
// It is allowed after a fatal error.
func (c *Collector) Destroy() error {
	if c.state != StateInitialized {
		return errors.Protocol(errors.PhaseLifecycle, "destroy called on a %s collector", c.state)
	}

	res, err := sweep.All(c.objects, c.alloc, c.cfg.PointerSize)
	c.stats.Frees += uint64(len(res.Freed))
	c.shapes.Reset()
	c.state = StateDestroyed
	c.scanner = nil
	c.marker = nil

	c.log.Debug("collector destroyed", zap.Int("freed", len(res.Freed)))
	if err != nil {
		c.log.Error("destroy could not free every object", zap.Error(err))
		return err
	}
	return nil
}

// SetStackBase moves the stack high-water mark, for hosts that switch to a
// different shadow stack after Init.
func (c *Collector) SetStackBase(base wasmgc.Addr) error {
	if err := c.ready(errors.PhaseLifecycle); err != nil {
		return err
	}
	c.scanner.SetBase(base)
	return nil
}

// StackBase returns the stack high-water mark recorded at Init.
func (c *Collector) StackBase() wasmgc.Addr {
	if c.scanner == nil {
		return 0
	}
	return c.scanner.Base()
}

// State returns the lifecycle state.
func (c *Collector) State() State { return c.state }

// Err returns the fatal error that stopped the collector, if any.
func (c *Collector) Err() error { return c.failed }

// Stats returns allocation and collection counters.
func (c *Collector) Stats() Stats {
	st := c.stats
	if c.objects != nil {
		st.HeapAlloc = c.objects.Bytes()
		st.HeapObjects = uint64(c.objects.Len())
	}
	return st
}

// Objects returns the live tracked objects ordered by address.
func (c *Collector) Objects() []heap.Entry {
	if c.objects == nil {
		return nil
	}
	return c.objects.Entries()
}

// Lookup returns the shape id of a live object.
func (c *Collector) Lookup(addr wasmgc.Addr) (wasmgc.ShapeID, bool) {
	if c.objects == nil {
		return 0, false
	}
	return c.objects.Lookup(addr)
}

// Shapes returns the finalized shapes ordered by id.
func (c *Collector) Shapes() []*shape.Shape {
	if c.shapes == nil {
		return nil
	}
	return c.shapes.Shapes()
}

// Shape returns the finalized shape for id.
func (c *Collector) Shape(id wasmgc.ShapeID) (*shape.Shape, bool) {
	if c.shapes == nil {
		return nil, false
	}
	return c.shapes.Lookup(id)
}

func (c *Collector) ready(phase errors.Phase) error {
	if c.state != StateInitialized {
		return errors.Protocol(phase, "collector is %s", c.state)
	}
	if c.failed != nil {
		return errors.Wrap(phase, errors.KindProtocolViolation, c.failed, "collector stopped after a fatal error")
	}
	return nil
}

// fail records err as fatal. It returns err unchanged, nil included.
func (c *Collector) fail(err error) error {
	if err == nil {
		return nil
	}
	if c.failed == nil {
		c.failed = err
		c.log.Error("fatal collector error", zap.Error(err))
	}
	return err
}
