// Package interp implements the bytecode interpreter: the calling
// convention for closures/natives/bound functions, the try/catch/finally
// unwinder driven by bytecode.Chunk.Handlers, and the explicit (non-Go-
// recursive) frame stack that lets a generator or async function suspend
// and resume without relying on host goroutines.
//
// The dispatch loop is a single giant opcode switch with one
// register-window per call, adapted to ECMAScript's call semantics
// (this-binding, closures over upvalues, exceptions as typed Thrown
// values).
package interp

import (
	"corevm/internal/bytecode"
	"corevm/internal/diag"
	"corevm/internal/object"
	"corevm/internal/value"
)

// activeHandler is the runtime counterpart of bytecode.Handler: one entry
// on a frame's handler stack, pushed by OpPushTry and popped by OpPopTry or
// by exception unwinding.
type activeHandler struct {
	h bytecode.Handler
}

// Frame is one call's activation record. Register storage is a
// frame-owned slice rather than a window into one shared VM stack, so a
// suspended frame can be detached and later resumed verbatim.
type Frame struct {
	Closure *object.ClosureObject
	Chunk   *bytecode.Chunk
	Regs    []value.Value
	PC      int
	This    value.Value

	// returnDst is the register in the *caller's* frame OpCall reserved for
	// this call's result; execute() writes OpReturn's value there once this
	// frame pops.
	returnDst uint8

	// constructedThis is set only for a frame started by OpNew: execute()
	// substitutes it for OpReturn's value when that value is not itself an
	// object, per [[Construct]]'s ordinary-return rule.
	constructedThis value.Value
	isConstructor    bool

	// pendingRethrow holds an in-flight exception while its finally block
	// runs; OpReraise rethrows it (or no-ops if nil) at the finally's exit.
	pendingRethrow *diag.Thrown

	handlers []activeHandler

	// openUpvalues maps a register index to the UpvalueObject capturing
	// it, kept open (pointing directly at Regs[i]) until OpCloseUpvals or
	// frame exit closes it. Keyed by register instead of stack slot since
	// this core has no single shared stack.
	openUpvalues map[uint8]*object.UpvalueObject

	closureVal value.Value // cached box of Closure, for GCRoots
}

func newFrame(closure *object.ClosureObject, this value.Value) *Frame {
	chunk := closure.Function.Chunk
	regs := make([]value.Value, chunk.NumRegisters)
	for i := range regs {
		regs[i] = value.Undefined
	}
	return &Frame{
		Closure:    closure,
		Chunk:      chunk,
		Regs:       regs,
		This:       this,
		closureVal: object.ToValue(closure),
	}
}

// Reg, SetReg, GetPC, SetPC, and ThisValue implement baseline.FrameAccess, the
// narrow register-window view the baseline tier compiles against. Frame
// already exports these as plain fields for the interpreter's own use;
// these wrappers exist only so baseline can depend on an interface it
// declares itself instead of importing this package (which imports
// baseline to install/invoke compiled segments).
func (f *Frame) Reg(i uint8) value.Value  { return f.Regs[i] }
func (f *Frame) SetReg(i uint8, v value.Value) { f.Regs[i] = v }
func (f *Frame) GetPC() int                { return f.PC }
func (f *Frame) SetPC(pc int)              { f.PC = pc }
func (f *Frame) ThisValue() value.Value    { return f.This }

// upvalueFor returns (creating if necessary) the open upvalue capturing
// register reg in this frame, so a nested closure's OpMakeClosure can share
// one UpvalueObject with every other closure capturing the same local.
func (f *Frame) upvalueFor(reg uint8) *object.UpvalueObject {
	if f.openUpvalues == nil {
		f.openUpvalues = make(map[uint8]*object.UpvalueObject)
	}
	if uv, ok := f.openUpvalues[reg]; ok {
		return uv
	}
	uv := object.NewOpenUpvalue(&f.Regs[reg])
	f.openUpvalues[reg] = uv
	return uv
}

// closeUpvaluesFrom closes every open upvalue capturing register >= from,
// implementing OpCloseUpvals (a block or loop iteration exiting scope).
func (f *Frame) closeUpvaluesFrom(from uint8) {
	for reg, uv := range f.openUpvalues {
		if reg >= from {
			uv.Close()
			delete(f.openUpvalues, reg)
		}
	}
}

// gcRoots appends every value.Value this frame keeps alive independent of
// the heap object graph (its registers, `this`, and the closure it is
// running, which no other root may yet reference).
func (f *Frame) gcRoots(out []*value.Value) []*value.Value {
	for i := range f.Regs {
		out = append(out, &f.Regs[i])
	}
	out = append(out, &f.This, &f.closureVal)
	return out
}
