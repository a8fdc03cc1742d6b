// Package optjit implements the second JIT tier: an optimizing compiler
// over the hot loop bodies baseline's invocation/loop-back-edge counters
// identify. A small sea-of-nodes-style SSA graph is built per loop, run
// through a handful of classic passes, then lowered to guarded,
// directly-executable code with a deopt metadata table tied to
// package deopt.
//
// The shape is "recognize a loop, compile only that region, bail
// otherwise", with a real (if small) SSA builder and optimizer behind it
// rather than a fixed pattern-matched template menu.
package optjit

import (
	"corevm/internal/bytecode"
	"corevm/internal/ic"
	"corevm/internal/value"
)

// LoopRegion is a contiguous PC range whose backward jump at End targets
// Start; the unit optjit compiles.
type LoopRegion struct {
	Start, End int
}

// DeoptReason names why a guard inside a compiled region failed, handed to
// package deopt to drive its exit-counter/ban cascade.
type DeoptReason uint8

const (
	DeoptUnknown DeoptReason = iota
	// DeoptTypeGuard fires when a register this region assumed would stay
	// a number/bool/smi throughout the loop observed a pointer-tagged
	// value instead (an object flowing into what looked like pure
	// arithmetic, for instance).
	DeoptTypeGuard
	// DeoptBoundsGuard fires when an array index the region had proven
	// in-range (via its bounds-check-elimination pass) turned out not to
	// be, because the array's length changed underneath the loop.
	DeoptBoundsGuard
)

// String names a DeoptReason for diagnostics and metric labels.
func (r DeoptReason) String() string {
	switch r {
	case DeoptTypeGuard:
		return "type_guard"
	case DeoptBoundsGuard:
		return "bounds_guard"
	default:
		return "unknown"
	}
}

// op is one compiled node: same shape as baseline's, plus the ability to
// signal a guard failure instead of a plain bail (a bail just means "this
// tier never covered that opcode"; a deopt means "an assumption this
// compiled region depended on broke at runtime").
type op func(fa FrameAccess) result

type result struct {
	next   int
	ok     bool
	deopt  bool
	reason DeoptReason
}

// FrameAccess mirrors baseline.FrameAccess; kept as its own declaration
// (rather than importing baseline for the type) so optjit has no
// dependency on baseline at all; the two tiers are independent, wired
// together only by the interpreter that installs each as its own
// CompiledBaseline/CompiledOptimized seam on FunctionObject.
type FrameAccess interface {
	Reg(i uint8) value.Value
	SetReg(i uint8, v value.Value)
	GetPC() int
	SetPC(pc int)
	ThisValue() value.Value
}

// CodeObject is one compiled loop region: its executable ops, plus an
// embedded-object table (constants the IR folded in), a source-position
// map (for deopt diagnostics), and an assumption list (the shape/type
// speculations deopt must invalidate on a shape transition). Deopt
// metadata proper (how to rebuild interpreter register state at each bail
// point) is trivial here because this tier only ever bails at a region
// boundary: every live register's value is already sitting in the
// interpreter's own Regs slice, since FrameAccess operates on it directly
// rather than a separate optimized-code register file.
type CodeObject struct {
	Region      LoopRegion
	ops         map[int]op // keyed by PC, sparse over the region
	Embedded    []value.Value
	Assumptions []Assumption
	Positions   []bytecode.Position
}

// Assumption records one speculation a compiled region's guards enforce,
// so deopt can name what broke and the engine can decide whether to ever
// retry this speculation for the function again.
type Assumption struct {
	Reg    uint8
	Kind   string // "number", "smi-index"
	PC     int
}

// Program is every loop region optjit compiled for one function.
type Program struct {
	Regions []*CodeObject
}

// RegionAt returns the compiled region covering pc, if any.
func (p *Program) RegionAt(pc int) *CodeObject {
	for _, r := range p.Regions {
		if pc >= r.Region.Start && pc <= r.Region.End {
			return r
		}
	}
	return nil
}

// Compile finds every loop region in chunk whose body is pure arithmetic/
// comparison/control-flow (the same opcode subset baseline templates) and
// builds an optimized CodeObject for each, applying the IR passes in
// buildGraph/optimize. Loops touching anything else (property access,
// calls, a nested suspension point) are left uncompiled; they run
// through baseline or the interpreter instead.
func Compile(chunk *bytecode.Chunk, fv *ic.FeedbackVector) *Program {
	prog := &Program{}
	for _, region := range findLoopRegions(chunk) {
		if g, ok := buildGraph(chunk, region); ok {
			optimize(g)
			prog.Regions = append(prog.Regions, lower(g, chunk))
		}
	}
	return prog
}

// findLoopRegions scans for backward jumps (OpJump whose target is <= its
// own PC) and reports the [target, pc] range as a candidate loop.
func findLoopRegions(chunk *bytecode.Chunk) []LoopRegion {
	var regions []LoopRegion
	for pc, instr := range chunk.Code {
		if instr.OpCode() != bytecode.OpJump {
			continue
		}
		target := pc + 1 + int(instr.SBx())
		if target <= pc {
			regions = append(regions, LoopRegion{Start: target, End: pc})
		}
	}
	return regions
}
