package host

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/collector"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/memory"
)

// ModuleName is the import module name guests use.
const ModuleName = "gc"

var (
	i32  = []api.ValueType{api.ValueTypeI32}
	none = []api.ValueType{}
)

// Binding owns one collector per guest module instance.
type Binding struct {
	log    *zap.Logger
	guests map[api.Module]*collector.Collector
	cfg    Config
	mu     sync.Mutex
}

// New creates a binding. Call Instantiate to register it with a runtime.
func New(opts ...Option) *Binding {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HeapPages == 0 {
		cfg.HeapPages = DefaultHeapPages
	}
	log := cfg.Collector.Logger
	if log == nil {
		log = collector.Logger()
	}
	return &Binding{
		log:    log,
		guests: make(map[api.Module]*collector.Collector),
		cfg:    cfg,
	}
}

// Instantiate creates a binding and instantiates the "gc" host module into
// rt. Guests importing "gc" must be instantiated afterwards.
func Instantiate(ctx context.Context, rt wazero.Runtime, opts ...Option) (*Binding, error) {
	b := New(opts...)
	if _, err := b.Instantiate(ctx, rt); err != nil {
		return nil, err
	}
	return b, nil
}

// Instantiate instantiates the "gc" host module into rt.
func (b *Binding) Instantiate(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(ModuleName)
	for _, f := range b.funcs() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			WithParameterNames(f.paramNames...).
			Export(f.name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "instantiate gc host module")
	}
	return mod, nil
}

// Collector returns the collector created by mod's call to "init".
func (b *Binding) Collector(mod api.Module) (*collector.Collector, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.guests[mod]
	return c, ok
}

// Release forgets mod. Call it after the guest module is closed; any
// collector still initialized is destroyed first.
func (b *Binding) Release(mod api.Module) {
	b.mu.Lock()
	c, ok := b.guests[mod]
	delete(b.guests, mod)
	b.mu.Unlock()

	if ok && c.State() == collector.StateInitialized {
		if err := c.Destroy(); err != nil {
			b.log.Warn("destroy on release failed", zap.String("module", mod.Name()), zap.Error(err))
		}
	}
}

// Len returns the number of guests with a collector.
func (b *Binding) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.guests)
}

type hostFunc struct {
	fn         api.GoModuleFunc
	name       string
	params     []api.ValueType
	results    []api.ValueType
	paramNames []string
}

func (b *Binding) funcs() []hostFunc {
	return []hostFunc{
		{name: "init", fn: b.init, params: none, results: none},
		{name: "begin_shape", fn: b.withArg("begin_shape", func(c *collector.Collector, id uint32) error {
			return c.BeginShape(wasmgc.ShapeID(id))
		}), params: i32, results: none, paramNames: []string{"id"}},
		{name: "set_size", fn: b.withArg("set_size", (*collector.Collector).SetSize), params: i32, results: none, paramNames: []string{"bytes"}},
		{name: "add_pointer_offset", fn: b.withArg("add_pointer_offset", (*collector.Collector).AddPointerOffset), params: i32, results: none, paramNames: []string{"offset"}},
		{name: "finish_registration", fn: b.noArg("finish_registration", (*collector.Collector).FinishRegistration), params: none, results: none},
		{name: "allocate", fn: b.allocate, params: i32, results: i32, paramNames: []string{"id"}},
		{name: "collect", fn: b.noArg("collect", func(c *collector.Collector) error {
			_, err := c.Collect()
			return err
		}), params: none, results: none},
		{name: "destroy", fn: b.noArg("destroy", (*collector.Collector).Destroy), params: none, results: none},
	}
}

func (b *Binding) init(_ context.Context, mod api.Module, _ []uint64) {
	if c, ok := b.Collector(mod); ok {
		// Lets the collector report the lifecycle error.
		b.check(mod, "init", c.Init())
		return
	}

	mem := mod.Memory()
	if mem == nil {
		b.check(mod, "init", errors.Protocol(errors.PhaseHost, "guest does not export a memory"))
	}
	stack, err := newShadowStack(mod)
	b.check(mod, "init", err)
	cfg := b.cfg.Collector
	if cfg.PointerSize == 0 {
		cfg.PointerSize = wasmgc.PointerSize
	}
	b.check(mod, "init", cfg.Validate())

	// Growing guest memory cannot be undone, so it happens last.
	region, err := memory.NewRegion(mem, b.cfg.HeapPages)
	b.check(mod, "init", err)

	c := collector.New(memory.WrapMemory(mem), region, stack, cfg)
	b.check(mod, "init", c.Init())

	b.mu.Lock()
	b.guests[mod] = c
	b.mu.Unlock()

	b.log.Debug("guest collector initialized",
		zap.String("module", mod.Name()),
		zap.Uint32("heap_pages", b.cfg.HeapPages),
		zap.Stringer("stack_base", c.StackBase()))
}

func (b *Binding) allocate(_ context.Context, mod api.Module, stack []uint64) {
	c := b.lookup(mod, "allocate")
	addr, err := c.Allocate(wasmgc.ShapeID(api.DecodeU32(stack[0])))
	b.check(mod, "allocate", err)
	stack[0] = api.EncodeU32(uint32(addr))
}

func (b *Binding) withArg(name string, op func(*collector.Collector, uint32) error) api.GoModuleFunc {
	return func(_ context.Context, mod api.Module, stack []uint64) {
		c := b.lookup(mod, name)
		b.check(mod, name, op(c, api.DecodeU32(stack[0])))
	}
}

func (b *Binding) noArg(name string, op func(*collector.Collector) error) api.GoModuleFunc {
	return func(_ context.Context, mod api.Module, _ []uint64) {
		c := b.lookup(mod, name)
		b.check(mod, name, op(c))
	}
}

func (b *Binding) lookup(mod api.Module, fn string) *collector.Collector {
	c, ok := b.Collector(mod)
	if !ok {
		b.check(mod, fn, errors.Protocol(errors.PhaseLifecycle, "gc.init was not called"))
	}
	return c
}

// check traps the guest on err.
func (b *Binding) check(mod api.Module, fn string, err error) {
	if err == nil {
		return
	}
	b.log.Error("gc host call failed",
		zap.String("module", mod.Name()),
		zap.String("func", fn),
		zap.Error(err))
	panic(err)
}
