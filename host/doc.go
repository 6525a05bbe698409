// Package host exposes a collector to WebAssembly guests as the wazero host
// module "gc".
//
// Guest imports (all parameters and results are i32):
//
//	(import "gc" "init"                (func))
//	(import "gc" "begin_shape"         (func (param i32)))
//	(import "gc" "set_size"            (func (param i32)))
//	(import "gc" "add_pointer_offset"  (func (param i32)))
//	(import "gc" "finish_registration" (func))
//	(import "gc" "allocate"            (func (param i32) (result i32)))
//	(import "gc" "collect"             (func))
//	(import "gc" "destroy"             (func))
//
// The guest must export its linear memory as "memory" and its shadow stack
// pointer as a mutable i32 global "__stack_pointer", which is what clang and
// LLVM emit for wasm32 with -Wl,--export=__stack_pointer.
//
// Each guest module instance gets its own collector on "init". Collected
// objects live in pages the binding grows onto the guest memory, so they
// never overlap the guest's own data or stack.
//
// Roots are only the words on the shadow stack. A pointer the guest keeps in
// a wasm local, an operand stack slot or a global is invisible to the
// scanner, so any collection that runs while such a pointer is live frees
// the object under it. The guest controls explicit "collect" calls, but
// "allocate" may also collect on its own: when the byte threshold is reached
// and, unavoidably, when the heap is full and must be swept before the
// request is retried. DefaultConfig therefore leaves the threshold trigger
// off. A guest that turns it on, or that can exhaust the heap, must spill
// every live pointer to the shadow stack before each "allocate" call.
//
// Every collector error is fatal: the host function panics with the
// *errors.Error and wazero turns it into a trap that aborts the guest call.
package host
