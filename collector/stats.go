package collector

import (
	"time"

	wasmgc "github.com/wippyai/wasm-gc"
)

// Trigger says why a cycle ran.
type Trigger int

const (
	TriggerExplicit  Trigger = iota // Collect was called
	TriggerThreshold                // CollectThreshold was crossed in Allocate
	TriggerExhausted                // the allocator could not satisfy a request
)

func (t Trigger) String() string {
	switch t {
	case TriggerExplicit:
		return "explicit"
	case TriggerThreshold:
		return "threshold"
	case TriggerExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// CycleStats describes one collection cycle.
type CycleStats struct {
	Trigger     Trigger
	Seq         uint32
	StackWords  uint32
	Roots       int
	Marked      int
	Fields      int
	Freed       int
	FreedBytes  uint64
	LiveObjects int
	LiveBytes   uint64
	Duration    time.Duration
}

// Stats is like runtime.MemStats, restricted to what this collector tracks.
type Stats struct {
	// HeapAlloc is the number of bytes in live tracked objects.
	HeapAlloc uint64
	// HeapObjects is the number of live tracked objects.
	HeapObjects uint64
	// TotalAlloc is the cumulative number of bytes allocated.
	TotalAlloc uint64
	Mallocs    uint64
	Frees      uint64
	// BytesSinceGC is the number of bytes allocated since the last cycle.
	BytesSinceGC uint64
	NumGC        uint32
	PauseTotal   time.Duration
	LastCycle    CycleStats
}

// Observer receives allocation and collection events. Implementations must
// not call back into the collector.
type Observer interface {
	ObserveAlloc(id wasmgc.ShapeID, size uint32)
	ObserveCycle(cs CycleStats)
}
