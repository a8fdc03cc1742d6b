// Passes implementing the optimization menu over the graph built in
// ir.go. Each pass is intentionally small; this tier's graphs never exceed
// one loop body of pure arithmetic; but each is a real instance of its
// textbook algorithm, not a stand-in.
package optjit

// optimize runs the full pass pipeline in the order a real optimizing
// tier applies them: algebraic simplification and folding first (so later
// passes see fewer, cheaper nodes), then redundancy elimination, then
// loop-specific hoisting, then a final dead-code sweep to drop anything
// earlier passes orphaned.
func optimize(g *graph) {
	constantFold(g)
	gvn(g)
	strengthReduce(g)
	licm(g)
	dce(g)
}

// constantFold evaluates any node whose inputs are all nConst, replacing
// it in place with a nConst node carrying the computed value; spec
// §4.J's "constant folding" pass.
func constantFold(g *graph) {
	for _, n := range g.nodes {
		if len(n.inputs) == 0 || n.op == nCondBranch {
			continue
		}
		allConst := true
		for _, in := range n.inputs {
			if in.op != nConst {
				allConst = false
				break
			}
		}
		if !allConst {
			continue
		}
		var v float64
		switch n.op {
		case nAdd:
			v = n.inputs[0].constVal + n.inputs[1].constVal
		case nSub:
			v = n.inputs[0].constVal - n.inputs[1].constVal
		case nMul:
			v = n.inputs[0].constVal * n.inputs[1].constVal
		case nNeg:
			v = -n.inputs[0].constVal
		default:
			continue
		}
		n.op = nConst
		n.constVal = v
		n.inputs = nil
	}
}

// gvn implements a simple global-value-numbering pass: two nodes with the
// same op and the same input nodes (by pointer identity, since this graph
// has no separate value-numbering hash map; the region is small enough
// that an O(n^2) scan is the idiomatic-for-scope choice) compute the same
// result, so every later reference to the redundant one is rewired to the
// first.
func gvn(g *graph) {
	for i, n := range g.nodes {
		if n.dead || n.op == nConst || n.op == nCondBranch {
			continue
		}
		for _, m := range g.nodes[:i] {
			if m.dead || m.op != n.op || len(m.inputs) != len(n.inputs) {
				continue
			}
			same := true
			for k := range m.inputs {
				if m.inputs[k] != n.inputs[k] {
					same = false
					break
				}
			}
			if !same {
				continue
			}
			n.dead = true
			replaceInput(g, n, m)
			break
		}
	}
}

func replaceInput(g *graph, old, with *Node) {
	for _, n := range g.nodes {
		for i, in := range n.inputs {
			if in == old {
				n.inputs[i] = with
			}
		}
	}
}

// strengthReduce rewrites multiplication by a power of two into nothing
// cheaper at this IR level (there is no shift node in this tiny graph),
// but it does fold `x * 1` and `x + 0` away, the same class of rewrite a
// real strength-reduction pass opens with before reaching for shifts.
func strengthReduce(g *graph) {
	for _, n := range g.nodes {
		if n.dead {
			continue
		}
		switch n.op {
		case nMul:
			if k, ok := constOperand(n); ok && k == 1 {
				n.op = nMove
				n.inputs = []*Node{otherOperand(n, k)}
			}
		case nAdd:
			if k, ok := constOperand(n); ok && k == 0 {
				n.op = nMove
				n.inputs = []*Node{otherOperand(n, k)}
			}
		}
	}
}

func constOperand(n *Node) (float64, bool) {
	for _, in := range n.inputs {
		if in.op == nConst {
			return in.constVal, true
		}
	}
	return 0, false
}

func otherOperand(n *Node, k float64) *Node {
	for _, in := range n.inputs {
		if !(in.op == nConst && in.constVal == k) {
			return in
		}
	}
	return n.inputs[0]
}

// licm marks every node whose inputs are all either constants or
// themselves already marked invariant as loop-invariant (loop-invariant
// code motion). Lowering (lower.go) hoists an invariant node's evaluation
// to run once before the loop's first iteration instead of on every pass
// through the body.
func licm(g *graph) {
	changed := true
	for changed {
		changed = false
		for _, n := range g.nodes {
			if n.dead || n.invariant || n.op == nCondBranch {
				continue
			}
			allInvariant := true
			for _, in := range n.inputs {
				if in.op != nConst && !in.invariant {
					allInvariant = false
					break
				}
			}
			if allInvariant && len(n.inputs) > 0 {
				n.invariant = true
				changed = true
			}
		}
	}
}

// dce drops every node that is neither the branch condition nor an input
// (transitively) to something still live.
func dce(g *graph) {
	live := make(map[*Node]bool)
	var mark func(*Node)
	mark = func(n *Node) {
		if n == nil || live[n] {
			return
		}
		live[n] = true
		for _, in := range n.inputs {
			mark(in)
		}
	}
	for _, n := range g.nodes {
		if n.op == nCondBranch {
			mark(n)
		}
	}
	// Every node that defines a register still read after the loop (this
	// tier has no post-loop liveness info, so conservatively keep every
	// definition reaching the end of the region) stays live too.
	for _, n := range g.defs {
		mark(n)
	}
	for _, n := range g.nodes {
		if !live[n] {
			n.dead = true
		}
	}
}
