package host

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// guestStackTop is the initial __stack_pointer of the test guest: the top of
// its single page.
const guestStackTop = 65536

type guestFunc struct {
	name string
	typ  byte // index into guestTypes
}

// Types: 0 = () -> (), 1 = (i32) -> (), 2 = (i32) -> (i32).
var guestTypes = [][]byte{
	{0x60, 0x00, 0x00},
	{0x60, 0x01, 0x7f, 0x00},
	{0x60, 0x01, 0x7f, 0x01, 0x7f},
}

var guestFuncs = []guestFunc{
	{name: "init", typ: 0},
	{name: "begin_shape", typ: 1},
	{name: "set_size", typ: 1},
	{name: "add_pointer_offset", typ: 1},
	{name: "finish_registration", typ: 0},
	{name: "allocate", typ: 2},
	{name: "collect", typ: 0},
	{name: "destroy", typ: 0},
}

// guestWASM assembles a module that imports every gc function and exports a
// same-named wrapper for each, so calls reach the host with the guest as
// caller. It exports one page of memory and, if withStack is set, a mutable
// i32 __stack_pointer starting at guestStackTop.
func guestWASM(withStack bool) []byte {
	n := uint32(len(guestFuncs))

	var types []byte
	types = appendU32(types, uint32(len(guestTypes)))
	for _, t := range guestTypes {
		types = append(types, t...)
	}

	var imports []byte
	imports = appendU32(imports, n)
	for _, f := range guestFuncs {
		imports = appendName(imports, ModuleName)
		imports = appendName(imports, f.name)
		imports = append(imports, 0x00, f.typ)
	}

	var funcs []byte
	funcs = appendU32(funcs, n)
	for _, f := range guestFuncs {
		funcs = append(funcs, f.typ)
	}

	mem := []byte{0x01, 0x00, 0x01} // one memory, min 1 page, no max

	var globals []byte
	if withStack {
		globals = []byte{0x01, 0x7f, 0x01, 0x41}
		globals = appendS32(globals, guestStackTop)
		globals = append(globals, 0x0b)
	}

	var exports []byte
	count := n + 1
	if withStack {
		count++
	}
	exports = appendU32(exports, count)
	for i, f := range guestFuncs {
		exports = appendName(exports, f.name)
		exports = append(exports, 0x00)
		exports = appendU32(exports, n+uint32(i))
	}
	exports = appendName(exports, "memory")
	exports = append(exports, 0x02, 0x00)
	if withStack {
		exports = appendName(exports, StackPointerGlobal)
		exports = append(exports, 0x03, 0x00)
	}

	var code []byte
	code = appendU32(code, n)
	for i, f := range guestFuncs {
		body := []byte{0x00} // no locals
		if f.typ != 0 {
			body = append(body, 0x20, 0x00) // local.get 0
		}
		body = append(body, 0x10) // call
		body = appendU32(body, uint32(i))
		body = append(body, 0x0b)
		code = appendU32(code, uint32(len(body)))
		code = append(code, body...)
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = appendSection(out, 1, types)
	out = appendSection(out, 2, imports)
	out = appendSection(out, 3, funcs)
	out = appendSection(out, 5, mem)
	if withStack {
		out = appendSection(out, 6, globals)
	}
	out = appendSection(out, 7, exports)
	out = appendSection(out, 10, code)
	return out
}

func appendSection(b []byte, id byte, payload []byte) []byte {
	b = append(b, id)
	b = appendU32(b, uint32(len(payload)))
	return append(b, payload...)
}

func appendName(b []byte, s string) []byte {
	b = appendU32(b, uint32(len(s)))
	return append(b, s...)
}

func appendU32(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func appendS32(b []byte, v int32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// guest is an instantiated test guest.
type guest struct {
	t   *testing.T
	ctx context.Context
	mod api.Module
}

func newRuntime(t *testing.T) (context.Context, wazero.Runtime) {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })
	return ctx, rt
}

func instantiateGuest(t *testing.T, ctx context.Context, rt wazero.Runtime, withStack bool) *guest {
	t.Helper()
	mod, err := rt.Instantiate(ctx, guestWASM(withStack))
	if err != nil {
		t.Fatalf("failed to instantiate guest: %v", err)
	}
	return &guest{t: t, ctx: ctx, mod: mod}
}

// call invokes an exported wrapper and returns its results or the trap.
func (g *guest) call(name string, args ...uint32) ([]uint64, error) {
	fn := g.mod.ExportedFunction(name)
	if fn == nil {
		g.t.Fatalf("guest does not export %q", name)
	}
	params := make([]uint64, len(args))
	for i, a := range args {
		params[i] = api.EncodeU32(a)
	}
	return fn.Call(g.ctx, params...)
}

func (g *guest) mustCall(name string, args ...uint32) uint32 {
	g.t.Helper()
	res, err := g.call(name, args...)
	if err != nil {
		g.t.Fatalf("%s%v: %v", name, args, err)
	}
	if len(res) == 0 {
		return 0
	}
	return api.DecodeU32(res[0])
}

// push spills addr onto the guest's shadow stack the way a compiled function
// prologue would.
func (g *guest) push(addr uint32) {
	g.t.Helper()
	global, ok := g.mod.ExportedGlobal(StackPointerGlobal).(api.MutableGlobal)
	if !ok {
		g.t.Fatal("__stack_pointer is not mutable")
	}
	sp := api.DecodeU32(global.Get()) - 4
	if !g.mod.Memory().WriteUint32Le(sp, addr) {
		g.t.Fatalf("write stack slot 0x%x", sp)
	}
	global.Set(api.EncodeU32(sp))
}

// pop releases the top shadow stack slot.
func (g *guest) pop() {
	g.t.Helper()
	global := g.mod.ExportedGlobal(StackPointerGlobal).(api.MutableGlobal)
	sp := api.DecodeU32(global.Get())
	g.mod.Memory().WriteUint32Le(sp, 0)
	global.Set(api.EncodeU32(sp + 4))
}

func (g *guest) store(addr, value uint32) {
	g.t.Helper()
	if !g.mod.Memory().WriteUint32Le(addr, value) {
		g.t.Fatalf("write 0x%x", addr)
	}
}

func (g *guest) define(id, size uint32, offsets ...uint32) {
	g.t.Helper()
	g.mustCall("begin_shape", id)
	g.mustCall("set_size", size)
	for _, off := range offsets {
		g.mustCall("add_pointer_offset", off)
	}
}
