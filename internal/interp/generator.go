package interp

import (
	"corevm/internal/diag"
	"corevm/internal/object"
	"corevm/internal/value"
)

// GenOutcome is the result of driving one generator step: an initial
// activation (NewGenerator) or a resumption through the Resume closure
// installed on the object.GeneratorObject, which models the suspended
// frame as a heap object with a discriminated "what to resume as" field.
type GenOutcome struct {
	Value  value.Value
	Done   bool
	Thrown *diag.Thrown
}

// genSuspended parks a generator's frame stack between a `yield` and the
// next call to its Resume closure. Like Suspended, it roots itself for GC
// while parked so a live generator's captured state survives collections
// between .next() calls.
type genSuspended struct {
	frames []*Frame
	dstReg uint8
}

// GCRoots implements heap.RootProvider.
func (g *genSuspended) GCRoots() []*value.Value {
	var out []*value.Value
	for _, fr := range g.frames {
		out = fr.gcRoots(out)
	}
	return out
}

// NewGenerator installs g.Resume as a closure driving one step of the
// generator body per call: the first call starts the coroutine at its
// entry point; each subsequent call resumes the frame parked at the last
// `yield`, delivering the sent value (or throwing, for `.throw()`) into the
// register OpYield reserved for it. This is the only place a generator's
// frames are driven; the generator's GeneratorObject.State mirrors
// GenOutcome.Done so property access (`.next`/`.throw`/`.return`) can refuse
// to resume a completed generator without calling into the VM at all.
func (vm *VM) NewGenerator(g *object.GeneratorObject, closure *object.ClosureObject, this value.Value, args []value.Value) {
	started := false
	var parked *genSuspended

	g.Resume = func(sent value.Value, isThrow bool) GenOutcome {
		if g.State == object.GeneratorCompleted {
			return GenOutcome{Value: value.Undefined, Done: true}
		}

		var frames []*Frame
		if !started {
			started = true
			if isThrow {
				g.State = object.GeneratorCompleted
				return GenOutcome{Thrown: &diag.Thrown{Value: sent}, Done: true}
			}
			fr := newFrame(closure, this)
			bindArgs(fr, closure.Function.Chunk, args)
			frames = []*Frame{fr}
		} else {
			frames = parked.frames
			dstReg := parked.dstReg
			vm.Heap.RemoveRoot(parked)
			parked = nil
			if isThrow {
				saved := vm.frames
				vm.frames = frames
				thrown := &diag.Thrown{Value: sent}
				ok := vm.unwind(thrown)
				vm.frames = saved
				if !ok {
					g.State = object.GeneratorCompleted
					return GenOutcome{Thrown: thrown, Done: true}
				}
			} else {
				frames[len(frames)-1].Regs[dstReg] = sent
			}
		}

		g.State = object.GeneratorExecuting
		saved := vm.frames
		vm.frames = frames
		val, thrown, susp := vm.execute()
		liveFrames := vm.frames
		vm.frames = saved

		if thrown != nil {
			g.State = object.GeneratorCompleted
			return GenOutcome{Thrown: thrown, Done: true}
		}
		if susp != nil {
			if susp.isAwait {
				// Async generators (await + yield in the same body) are not
				// modeled by this core; the compiler/runtime only support
				// the two flavors independently.
				g.State = object.GeneratorCompleted
				return GenOutcome{Thrown: diag.NewTypeError("internal: await inside a synchronous generator body", diag.Position{}), Done: true}
			}
			parked = &genSuspended{frames: liveFrames, dstReg: susp.dstReg}
			vm.Heap.AddRoot(parked)
			g.State = object.GeneratorSuspendedYield
			return GenOutcome{Value: susp.yieldVal, Done: false}
		}
		g.State = object.GeneratorCompleted
		return GenOutcome{Value: val, Done: true}
	}
}
