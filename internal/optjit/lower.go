package optjit

import (
	"corevm/internal/bytecode"
	"corevm/internal/value"
)

// lower turns an optimized graph back into directly-executable ops plus
// the CodeObject's bookkeeping tables. It emits exactly one guard at the
// region's entry point ("every opaque (loop-carried) register this body
// touches is still a plain number") rather than one guard per use: in a
// loop body this shallow there is only ever one hoist point to begin with,
// the loop preheader.
//
// Bounds-check elimination and escape analysis are no-ops for this tier by
// construction: buildGraph never admits a region containing
// OpGetIndex/OpGetElem or an allocation in the first place (anything
// beyond pure arithmetic/comparison bails out of compilation entirely, see
// ir.go), so there is never a bounds check or an allocation left for
// either pass to act on. A future widening of the opcode subset this tier
// templates is where they would start doing real work.
func lower(g *graph, chunk *bytecode.Chunk) *CodeObject {
	co := &CodeObject{Region: g.region}

	// Every register the loop body reads before (re)defining it locally is
	// loop-carried from outside the region; including an accumulator that
	// both reads and overwrites itself each pass, whose g.defs entry no
	// longer points at this opaque node by the time buildGraph finishes.
	// Walking g.opaque (recorded at creation time) rather than g.defs'
	// final snapshot is what catches that case.
	var opaqueRegs []uint8
	for _, n := range g.opaque {
		opaqueRegs = append(opaqueRegs, n.reg)
		co.Assumptions = append(co.Assumptions, Assumption{Reg: n.reg, Kind: "number", PC: g.region.Start})
	}

	values := map[*Node]func(fa FrameAccess) float64{}
	var resolve func(n *Node) func(fa FrameAccess) float64
	resolve = func(n *Node) func(fa FrameAccess) float64 {
		if f, ok := values[n]; ok {
			return f
		}
		var f func(fa FrameAccess) float64
		switch n.op {
		case nConst:
			v := n.constVal
			f = func(FrameAccess) float64 { return v }
		case nOpaque:
			reg := n.reg
			f = func(fa FrameAccess) float64 { return value.ToNumber(fa.Reg(reg)) }
		case nMove:
			in := resolve(n.inputs[0])
			f = in
		case nAdd:
			x, y := resolve(n.inputs[0]), resolve(n.inputs[1])
			f = func(fa FrameAccess) float64 { return x(fa) + y(fa) }
		case nSub:
			x, y := resolve(n.inputs[0]), resolve(n.inputs[1])
			f = func(fa FrameAccess) float64 { return x(fa) - y(fa) }
		case nMul:
			x, y := resolve(n.inputs[0]), resolve(n.inputs[1])
			f = func(fa FrameAccess) float64 { return x(fa) * y(fa) }
		case nDiv:
			x, y := resolve(n.inputs[0]), resolve(n.inputs[1])
			f = func(fa FrameAccess) float64 { return x(fa) / y(fa) }
		case nNeg:
			x := resolve(n.inputs[0])
			f = func(fa FrameAccess) float64 { return -x(fa) }
		default:
			f = func(FrameAccess) float64 { return 0 }
		}
		values[n] = f
		return f
	}

	// Hoist every loop-invariant node's evaluation into a single value
	// computed once at Region.Start, instead of re-resolving it (and thus
	// re-walking its input chain) on every later use inside the loop.
	for _, n := range g.nodes {
		if n.dead || !n.invariant {
			continue
		}
		f := resolve(n)
		cached := false
		var cv float64
		values[n] = func(fa FrameAccess) float64 {
			if !cached {
				cv = f(fa)
				cached = true
			}
			return cv
		}
	}

	co.ops = make(map[int]op, len(g.nodes))
	for _, n := range g.nodes {
		if n.dead {
			continue
		}
		pc := n.pc
		next := pc + 1
		switch n.op {
		case nCondBranch:
			instr := chunk.Code[pc]
			target := pc + 1 + int(instr.SBx())
			want := instr.OpCode() == bytecode.OpJumpIfTrue
			reg := n.inputs[0].reg
			co.ops[pc] = func(fa FrameAccess) result {
				if value.ToBoolean(fa.Reg(reg)) == want {
					return result{next: target, ok: true}
				}
				return result{next: next, ok: true}
			}
		case nConst:
			v := n.constVal
			reg := n.reg
			co.ops[pc] = func(fa FrameAccess) result {
				fa.SetReg(reg, value.Number(v))
				return result{next: next, ok: true}
			}
		case nLt, nLe, nGt, nGe:
			x, y, cmp, reg := resolve(n.inputs[0]), resolve(n.inputs[1]), n.op, n.reg
			co.ops[pc] = func(fa FrameAccess) result {
				a, b := x(fa), y(fa)
				holds := (cmp == nLt && a < b) || (cmp == nLe && a <= b) || (cmp == nGt && a > b) || (cmp == nGe && a >= b)
				fa.SetReg(reg, value.Bool(holds))
				return result{next: next, ok: true}
			}
		default:
			f := resolve(n)
			reg := n.reg
			co.ops[pc] = func(fa FrameAccess) result {
				fa.SetReg(reg, value.Number(f(fa)))
				return result{next: next, ok: true}
			}
		}
	}

	// The region's last instruction is the backward OpJump that defines it
	// (findLoopRegions); buildGraph skips jumps, so the back edge is lowered
	// here.
	start := g.region.Start
	co.ops[g.region.End] = func(FrameAccess) result { return result{next: start, ok: true} }

	guardPC := g.region.Start
	existing := co.ops[guardPC]
	co.ops[guardPC] = func(fa FrameAccess) result {
		for _, reg := range opaqueRegs {
			if value.IsPointer(fa.Reg(reg)) {
				return result{deopt: true, reason: DeoptTypeGuard, next: guardPC}
			}
		}
		if existing != nil {
			return existing(fa)
		}
		return result{next: guardPC + 1, ok: true}
	}

	return co
}

// Run executes co starting at pc (which must be co.Region.Start on first
// entry, or an OSR capture point equal to it; this tier only ever OSRs
// in at the loop header, never mid-body) until it exits the region
// normally (a conditional branch leaves the loop) or a guard deopts.
// resumePC is always a valid bytecode PC the interpreter can continue
// from, whether that's the instruction after the loop or, on deopt,
// Region.Start itself (the interpreter re-executes the loop body the
// slow way from there; the guard that just failed is exactly why).
func (co *CodeObject) Run(fa FrameAccess, pc int) (resumePC int, deopted bool, reason DeoptReason) {
	for {
		f, ok := co.ops[pc]
		if !ok {
			return pc, false, DeoptUnknown
		}
		r := f(fa)
		if r.deopt {
			return r.next, true, r.reason
		}
		pc = r.next
		if pc < co.Region.Start || pc > co.Region.End {
			return pc, false, DeoptUnknown
		}
	}
}
