// Package wasmgc provides a conservative mark-and-sweep garbage collector for
// programs running in WebAssembly linear memory.
//
// A compiler for some host language registers object shapes (size plus the
// byte offsets of pointer fields) and then allocates instances of those shapes
// through the collector. Collection discovers roots by conservatively scanning
// the mutator's shadow stack, follows declared pointer fields transitively and
// frees everything that was not reached.
//
// # Architecture Overview
//
//	wasmgc/          Root package with Addr, ShapeID and the raw memory interfaces
//	├── shape/       Shape registry fed by the begin/size/offset/finish protocol
//	├── heap/        Allocation tracker: address -> shape id
//	├── memory/      Raw memory boundary: wazero wrapper, free list, in-process arena
//	├── scan/        Conservative root scanner over the shadow stack
//	├── mark/        Reachability closure with an explicit work list
//	├── sweep/       Reclaims tracked - reachable
//	├── collector/   Facade, lifecycle, configuration and statistics
//	├── metrics/     Prometheus observer for allocation and collection
//	├── host/        wazero host module "gc" for wasm32 guests
//	└── errors/      Structured error types
//
// # Quick Start
//
// Drive a collector over an in-process arena:
//
//	arena := memory.NewArena(1 << 20)
//	c := collector.New(arena, arena, arena, collector.DefaultConfig())
//	if err := c.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Destroy()
//
//	_ = c.BeginShape(1)
//	_ = c.SetSize(16)
//	_ = c.FinishRegistration()
//
//	addr, _ := c.Allocate(1)
//	arena.Push(uint32(addr)) // addr is now a root
//	_, _ = c.Collect()
//
// Or serve the same entry points to a wasm guest:
//
//	rt := wazero.NewRuntime(ctx)
//	b, err := host.Instantiate(ctx, rt, host.WithConfig(cfg))
//
// # Thread Safety
//
// A Collector is not safe for concurrent use. Collection is stop-the-world:
// the mutator must not run while Collect, Allocate or Destroy execute.
package wasmgc
