// Package baseline implements the first JIT tier: a template compiler that
// turns a hot function's straight-line register arithmetic, comparisons,
// and register moves into a slice of pre-resolved Go closures,
// skipping the interpreter's per-instruction opcode switch and operand
// decode on every subsequent call.
//
// Compile returns an opaque compiled object the caller installs and later
// invokes.
//
// Scope: only opcodes whose behavior never depends on the property/shape
// system, a call, or a suspension point are templated (arithmetic,
// comparisons, register moves, constant loads, unconditional and
// conditional jumps). Anything else, local/upvalue access and
// OpGetProp/OpCall/OpThrow/OpAwait for example, bails the compiled segment back to the interpreter at the exact
// PC it would have executed next.
package baseline

import (
	"math"

	"corevm/internal/bytecode"
	"corevm/internal/ic"
	"corevm/internal/value"
)

// Tier1Threshold/Tier2Threshold are the call-count tiering triggers (100
// calls tiers into baseline, 1000 into the optimizer), kept as named
// constants so the engine package's tuning knobs have something to
// reference.
const (
	Tier1Threshold uint32 = 100
	Tier2Threshold uint32 = 1000
)

// FrameAccess is the minimal register-window surface a compiled segment
// needs; *interp.Frame satisfies it (see interp/frame.go) without this
// package importing interp.
type FrameAccess interface {
	Reg(i uint8) value.Value
	SetReg(i uint8, v value.Value)
	GetPC() int
	SetPC(pc int)
	ThisValue() value.Value
}

// op is one compiled instruction: it runs its effect against fa and
// returns the PC of the next instruction to run, or (pc, false) to bail
// back to the interpreter at pc (which re-decodes and executes the
// opcode the slow way, including anything this tier doesn't template).
type op func(fa FrameAccess) (next int, ok bool)

// CodeObject is one function's compiled baseline segment: one templated
// op per bytecode PC, indexed identically to bytecode.Chunk.Code so OSR
// into/out of it is just "start at this PC instead of 0".
type CodeObject struct {
	ops   []op
	chunk *bytecode.Chunk
}

// Profiler tracks per-function invocation and loop-back-edge counts,
// reading straight off the feedback vector the interpreter already
// maintains (ic.FeedbackVector.InvocationCount/LoopBackEdges) rather than
// keeping a second, parallel counter store.
type Profiler struct{}

// ShouldTierUp reports which tier (if any) fv's counters newly qualify
// for, mirroring RecordCall's return shape (compile now, at this tier).
func (Profiler) ShouldTierUp(fv *ic.FeedbackVector) (tier int, should bool) {
	switch {
	case fv.InvocationCount == Tier2Threshold:
		return 2, true
	case fv.InvocationCount == Tier1Threshold:
		return 1, true
	default:
		return 0, false
	}
}

// Compile builds a CodeObject for chunk. Compilation never fails: any
// opcode this tier doesn't template simply gets a bail-out op, so every
// function is compilable, just not equally sped up.
func Compile(chunk *bytecode.Chunk) *CodeObject {
	co := &CodeObject{ops: make([]op, len(chunk.Code)), chunk: chunk}
	for pc, instr := range chunk.Code {
		co.ops[pc] = templateOp(instr, pc)
	}
	return co
}

func bail(pc int) op {
	return func(FrameAccess) (int, bool) { return pc, false }
}

// templateOp compiles one instruction into a closure, capturing its
// decoded operands once so every subsequent execution skips the
// bytecode.Instruction bit-twiddling the interpreter redoes every time.
func templateOp(instr bytecode.Instruction, pc int) op {
	a, b, c := instr.A(), instr.B(), instr.C()
	next := pc + 1
	switch instr.OpCode() {
	case bytecode.OpAdd:
		return func(fa FrameAccess) (int, bool) {
			x, y := fa.Reg(b), fa.Reg(c)
			if value.IsPointer(x) || value.IsPointer(y) {
				return pc, false // string concat / ToPrimitive needs the slow path
			}
			fa.SetReg(a, value.Number(toNumber(x)+toNumber(y)))
			return next, true
		}
	case bytecode.OpSub:
		return func(fa FrameAccess) (int, bool) {
			x, y := fa.Reg(b), fa.Reg(c)
			if value.IsPointer(x) || value.IsPointer(y) {
				return pc, false
			}
			fa.SetReg(a, value.Number(toNumber(x)-toNumber(y)))
			return next, true
		}
	case bytecode.OpMul:
		return func(fa FrameAccess) (int, bool) {
			x, y := fa.Reg(b), fa.Reg(c)
			if value.IsPointer(x) || value.IsPointer(y) {
				return pc, false
			}
			fa.SetReg(a, value.Number(toNumber(x)*toNumber(y)))
			return next, true
		}
	case bytecode.OpDiv:
		return func(fa FrameAccess) (int, bool) {
			x, y := fa.Reg(b), fa.Reg(c)
			if value.IsPointer(x) || value.IsPointer(y) {
				return pc, false
			}
			fa.SetReg(a, value.Number(toNumber(x)/toNumber(y)))
			return next, true
		}
	case bytecode.OpMod:
		return func(fa FrameAccess) (int, bool) {
			x, y := fa.Reg(b), fa.Reg(c)
			if value.IsPointer(x) || value.IsPointer(y) {
				return pc, false
			}
			fa.SetReg(a, value.Number(math.Mod(toNumber(x), toNumber(y))))
			return next, true
		}
	case bytecode.OpNeg:
		return func(fa FrameAccess) (int, bool) {
			x := fa.Reg(b)
			if value.IsPointer(x) {
				return pc, false
			}
			fa.SetReg(a, value.Number(-toNumber(x)))
			return next, true
		}
	case bytecode.OpLt:
		return func(fa FrameAccess) (int, bool) {
			x, y := fa.Reg(b), fa.Reg(c)
			if value.IsPointer(x) || value.IsPointer(y) {
				return pc, false
			}
			fa.SetReg(a, value.Bool(toNumber(x) < toNumber(y)))
			return next, true
		}
	case bytecode.OpLe:
		return func(fa FrameAccess) (int, bool) {
			x, y := fa.Reg(b), fa.Reg(c)
			if value.IsPointer(x) || value.IsPointer(y) {
				return pc, false
			}
			fa.SetReg(a, value.Bool(toNumber(x) <= toNumber(y)))
			return next, true
		}
	case bytecode.OpGt:
		return func(fa FrameAccess) (int, bool) {
			x, y := fa.Reg(b), fa.Reg(c)
			if value.IsPointer(x) || value.IsPointer(y) {
				return pc, false
			}
			fa.SetReg(a, value.Bool(toNumber(x) > toNumber(y)))
			return next, true
		}
	case bytecode.OpGe:
		return func(fa FrameAccess) (int, bool) {
			x, y := fa.Reg(b), fa.Reg(c)
			if value.IsPointer(x) || value.IsPointer(y) {
				return pc, false
			}
			fa.SetReg(a, value.Bool(toNumber(x) >= toNumber(y)))
			return next, true
		}
	case bytecode.OpMove:
		return func(fa FrameAccess) (int, bool) {
			fa.SetReg(a, fa.Reg(b))
			return next, true
		}
	case bytecode.OpLoadUndefined:
		return func(fa FrameAccess) (int, bool) { fa.SetReg(a, value.Undefined); return next, true }
	case bytecode.OpLoadNull:
		return func(fa FrameAccess) (int, bool) { fa.SetReg(a, value.Null); return next, true }
	case bytecode.OpLoadTrue:
		return func(fa FrameAccess) (int, bool) { fa.SetReg(a, value.Bool(true)); return next, true }
	case bytecode.OpLoadFalse:
		return func(fa FrameAccess) (int, bool) { fa.SetReg(a, value.Bool(false)); return next, true }
	case bytecode.OpLoadSmi:
		imm := int32(int16(instr.Bx()))
		return func(fa FrameAccess) (int, bool) { fa.SetReg(a, value.Int(int64(imm))); return next, true }
	case bytecode.OpJump:
		target := pc + 1 + int(instr.SBx())
		return func(fa FrameAccess) (int, bool) { return target, true }
	case bytecode.OpJumpIfFalse:
		target := pc + 1 + int(instr.SBx())
		return func(fa FrameAccess) (int, bool) {
			if !value.ToBoolean(fa.Reg(a)) {
				return target, true
			}
			return next, true
		}
	case bytecode.OpJumpIfTrue:
		target := pc + 1 + int(instr.SBx())
		return func(fa FrameAccess) (int, bool) {
			if value.ToBoolean(fa.Reg(a)) {
				return target, true
			}
			return next, true
		}
	case bytecode.OpDup:
		return func(fa FrameAccess) (int, bool) { fa.SetReg(a, fa.Reg(b)); return next, true }
	case bytecode.OpNop:
		return func(fa FrameAccess) (int, bool) { return next, true }
	default:
		return bail(pc)
	}
}

// Run executes co starting at pc and returns the PC the interpreter should
// resume interpreting at: the PC of the first op that bails, or the first
// PC that falls outside the compiled op range.
func (co *CodeObject) Run(fa FrameAccess, pc int) (resumePC int) {
	for {
		next, ok := co.ops[pc](fa)
		if !ok {
			return next
		}
		pc = next
		if pc < 0 || pc >= len(co.ops) {
			return pc
		}
	}
}

// toNumber mirrors interp's own fast-path coercion (numeric.go), but
// without invoking DefaultToPrimitive on a heap object; a compiled
// segment bails on anything pointer-tagged reaching arithmetic instead,
// since object-to-primitive coercion can run script-visible behavior
// (valueOf/toString) this tier does not template.
func toNumber(v value.Value) float64 { return value.ToNumber(v) }
