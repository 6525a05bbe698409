package host

import (
	"github.com/tetratelabs/wazero/api"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// StackPointerGlobal is the export name of the guest's shadow stack pointer.
const StackPointerGlobal = "__stack_pointer"

// shadowStack is the only place that knows where a guest keeps its stack.
//
// wasm locals and the operand stack are invisible to the host, so compiled
// guests spill every value whose address escapes, pointers to managed
// objects included, onto a shadow stack in linear memory. That stack grows
// down from the value __stack_pointer had at start-up, and the current
// value of the global is the lowest live byte.
//
// Contract: StackPointer returns an address p such that every live shadow
// stack slot of the guest lies in [p, base), where base is the value
// returned by the first call (recorded by the collector on init). It is only
// meaningful while the guest is suspended inside a host call.
//
// Values the guest keeps purely in wasm locals across a call to "allocate"
// or "collect" are not roots. Guests must spill them first, which is what
// the address-taken locals of compiled code already do.
type shadowStack struct {
	sp api.Global
}

func newShadowStack(mod api.Module) (shadowStack, error) {
	g := mod.ExportedGlobal(StackPointerGlobal)
	if g == nil {
		return shadowStack{}, errors.Protocol(errors.PhaseHost, "guest does not export %q", StackPointerGlobal)
	}
	if g.Type() != api.ValueTypeI32 {
		return shadowStack{}, errors.Protocol(errors.PhaseHost, "%q is %s, want i32",
			StackPointerGlobal, api.ValueTypeName(g.Type()))
	}
	return shadowStack{sp: g}, nil
}

// StackPointer implements wasmgc.StackSource.
func (s shadowStack) StackPointer() (wasmgc.Addr, error) {
	return wasmgc.Addr(api.DecodeU32(s.sp.Get())), nil
}
