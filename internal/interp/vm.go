package interp

import (
	"corevm/internal/baseline"
	"corevm/internal/bytecode"
	"corevm/internal/deopt"
	"corevm/internal/diag"
	"corevm/internal/heap"
	"corevm/internal/ic"
	"corevm/internal/object"
	"corevm/internal/optjit"
	"corevm/internal/shape"
	"corevm/internal/value"
)

// Scheduler is the seam the eventloop package fills in so interp never has
// to import it (eventloop already imports interp to drive resumption,
// which would cycle the other way; the same one-way seam idea as the
// diag.NewErrorValue and heap.ResolveTraceable func vars, as an interface).
type Scheduler interface {
	EnqueueMicrotask(job func())
}

// VM drives the bytecode interpreter over an explicit frame stack.
// vm.frames always names the currently executing coroutine's call chain:
// ordinary script recursion grows it in place (OpCall/OpReturn push and
// pop), while a generator or async activation gets its own private frame
// slice that is swapped into vm.frames only while it is actually running
// (see drive); so suspending one never touches Go's own call
// stack, letting the interpreter suspend without relying on
// host-language coroutines.
type VM struct {
	frames []*Frame

	Global *object.Env
	Heap   *heap.Heap
	Shapes *shape.Table

	Scheduler Scheduler

	// Deopt is the optimizing tier's shared guard-failure bookkeeping;
	// every VM gets its own table so two independent engines in one
	// process never share tier-up history.
	Deopt *deopt.Table

	// OnTierUp/OnDeopt, when set, observe tier transitions and guard
	// failures as they happen; engine.Metrics installs these to drive its
	// Prometheus counters. Neither changes execution behavior.
	OnTierUp func(fn *object.FunctionObject, tier int)
	OnDeopt  func(fn *object.FunctionObject, reason optjit.DeoptReason)

	globalVal value.Value
}

// New builds an interpreter over the given heap/shape arenas and global
// scope, registering itself as a GC root provider for every live frame.
func New(h *heap.Heap, shapes *shape.Table, global *object.Env) *VM {
	vm := &VM{Heap: h, Shapes: shapes, Global: global, globalVal: object.ToValue(global), Deopt: deopt.NewTable()}
	h.AddRoot(vm)
	return vm
}

// GCRoots implements heap.RootProvider.
func (vm *VM) GCRoots() []*value.Value {
	roots := []*value.Value{&vm.globalVal}
	for _, fr := range vm.frames {
		roots = fr.gcRoots(roots)
	}
	return roots
}

// Run starts a top-level call (a script's module closure, or a builtin
// invocation) and drives it to completion, returning its result or the
// uncaught exception that unwound past the outermost frame. A top-level
// await has nothing to suspend into, so it is reported as host misuse
// rather than silently hanging.
func (vm *VM) Run(closure *object.ClosureObject, this value.Value, args []value.Value) (value.Value, *diag.Thrown) {
	out := vm.Start(closure, this, args)
	if out.Suspended != nil {
		return value.Undefined, diag.NewTypeError("top-level await did not settle synchronously", diag.Position{})
	}
	return out.Value, out.Thrown
}

// Outcome is the result of driving a coroutine (an ordinary call, an async
// function activation, or a generator step) until it returns, throws, or
// suspends on an await. Exactly one of (Value/Thrown) or Suspended is
// meaningful, matching the three-way stepResult the interpreter itself
// produces at the bytecode level.
type Outcome struct {
	Value     value.Value
	Thrown    *diag.Thrown
	Suspended *Suspended
}

// Suspended parks a coroutine's frame stack between an `await` and its
// resumption. It is itself a GC root, registered for the duration of the
// suspension so the parked frame's registers stay live even though they
// are no longer reachable from vm.frames, and unregistered the moment
// ResumeValue/ResumeThrow reinstates them.
type Suspended struct {
	frames  []*Frame
	promise *object.PromiseObject
	dstReg  uint8
}

// Promise returns the value being awaited, whose settlement should drive
// ResumeValue or ResumeThrow (settleAsync in async.go owns that wiring).
func (s *Suspended) Promise() *object.PromiseObject { return s.promise }

// GCRoots implements heap.RootProvider.
func (s *Suspended) GCRoots() []*value.Value {
	var out []*value.Value
	for _, fr := range s.frames {
		out = fr.gcRoots(out)
	}
	return out
}

// Start begins a new coroutine; an async function call or a generator's
// initial activation; and drives it until it returns, throws, or suspends
// on its first await.
func (vm *VM) Start(closure *object.ClosureObject, this value.Value, args []value.Value) Outcome {
	fr := newFrame(closure, this)
	bindArgs(fr, closure.Function.Chunk, args)
	vm.maybeTierUp(closure.Function)
	return vm.drive([]*Frame{fr})
}

// maybeTierUp bumps fn's invocation counter and, on crossing
// baseline.Tier1Threshold or baseline.Tier2Threshold, compiles and
// installs the corresponding tier. Compilation always succeeds
// (baseline/optjit both degrade to bail-outs for anything they don't
// template), so this never has a failure path to report.
func (vm *VM) maybeTierUp(fn *object.FunctionObject) {
	fn.Feedback.InvocationCount++
	tier, should := (baseline.Profiler{}).ShouldTierUp(fn.Feedback)
	if !should {
		return
	}
	switch tier {
	case 1:
		fn.CompiledBaseline = baseline.Compile(fn.Chunk)
	case 2:
		if !vm.Deopt.ReoptBanned(fn) {
			fn.CompiledOptimized = optjit.Compile(fn.Chunk, fn.Feedback)
		}
	}
	if vm.OnTierUp != nil {
		vm.OnTierUp(fn, tier)
	}
}

// ResumeValue resumes a coroutine suspended on `await` with the awaited
// promise's fulfillment value, placing it in the accumulator register the
// OpAwait instruction reserved.
func (vm *VM) ResumeValue(s *Suspended, v value.Value) Outcome {
	vm.Heap.RemoveRoot(s)
	top := s.frames[len(s.frames)-1]
	top.Regs[s.dstReg] = v
	return vm.drive(s.frames)
}

// ResumeThrow resumes a coroutine suspended on `await` by throwing into it,
// as ECMAScript requires when the awaited promise rejects.
func (vm *VM) ResumeThrow(s *Suspended, thrown *diag.Thrown) Outcome {
	vm.Heap.RemoveRoot(s)
	saved := vm.frames
	vm.frames = s.frames
	var out Outcome
	if ok := vm.unwind(thrown); !ok {
		out = Outcome{Thrown: thrown}
	} else {
		out = vm.finish()
	}
	vm.frames = saved
	return out
}

// drive temporarily makes frames the active coroutine, executes until it
// returns, throws past its own base, or suspends on an await, then restores
// whatever coroutine was running before (empty at top level).
func (vm *VM) drive(frames []*Frame) Outcome {
	saved := vm.frames
	vm.frames = frames
	out := vm.finish()
	vm.frames = saved
	return out
}

// finish runs vm.frames to its next suspension point and packages the
// result, rooting a fresh Suspended when it parks on an await. A bare
// OpYield reaching this path (a generator driven through Start/Run instead
// of through NewGenerator's dedicated resume loop) is an internal error , 
// the compiler only ever emits OpYield inside a generator body, and
// generator bodies must be driven via NewGenerator/Resume so the yielded
// value reaches the caller of .next() instead of being silently dropped.
func (vm *VM) finish() Outcome {
	val, thrown, susp := vm.execute()
	if susp != nil {
		if !susp.isAwait {
			return Outcome{Thrown: diag.NewTypeError("internal: yield reached outside a generator resume loop", diag.Position{})}
		}
		s := &Suspended{frames: vm.frames, promise: susp.promise, dstReg: susp.dstReg}
		vm.Heap.AddRoot(s)
		return Outcome{Suspended: s}
	}
	return Outcome{Value: val, Thrown: thrown}
}

// suspend carries the state needed to resume a coroutine parked on either
// an OpAwait (isAwait true, promise set) or an OpYield (isAwait false,
// yieldVal set), the two JavaScript-level suspension points. Keeping one
// type for both lets execute() stay a single loop instead of forking
// into an await-flavored and a yield-flavored copy.
type suspend struct {
	isAwait  bool
	promise  *object.PromiseObject
	yieldVal value.Value
	dstReg   uint8
}

// execute runs vm.frames (the currently active coroutine) until it
// completes, throws uncaught, or suspends on OpAwait/OpYield. It never
// recurses in Go per script call; OpCall/OpReturn only grow and shrink
// vm.frames.
func (vm *VM) execute() (value.Value, *diag.Thrown, *suspend) {
	for {
		if len(vm.frames) == 0 {
			return value.Undefined, nil, nil
		}
		fr := vm.frames[len(vm.frames)-1]
		fn := fr.Closure.Function
		if prog, ok := fn.CompiledOptimized.(*optjit.Program); ok {
			if region := prog.RegionAt(fr.PC); region != nil {
				next, deopted, reason := region.Run(fr, fr.PC)
				fr.PC = next
				if deopted {
					if vm.OnDeopt != nil {
						vm.OnDeopt(fn, reason)
					}
					if vm.Deopt.Record(fn, region.Region.Start, reason) {
						fn.CompiledOptimized = nil // reopt banned: stop trying this tier for fn
					}
				}
			}
		}
		if co, ok := fn.CompiledBaseline.(*baseline.CodeObject); ok {
			fr.PC = co.Run(fr, fr.PC)
		}
		res := vm.step(fr)
		switch res.kind {
		case stepContinue:
			// fall through to next loop iteration
		case stepReturn:
			retVal := res.value
			if fr.isConstructor && !value.IsPointer(retVal) {
				retVal = fr.constructedThis
			}
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				return retVal, nil, nil
			}
			caller := vm.frames[len(vm.frames)-1]
			caller.Regs[fr.returnDst] = retVal
		case stepThrow:
			if ok := vm.unwind(res.thrown); !ok {
				return value.Undefined, res.thrown, nil
			}
		case stepAwait:
			return value.Undefined, nil, &suspend{isAwait: true, promise: res.promise, dstReg: res.dstReg}
		case stepYield:
			return value.Undefined, nil, &suspend{isAwait: false, yieldVal: res.value, dstReg: res.dstReg}
		}
	}
}

// stepKind tags the outcome of executing one frame's current instruction.
type stepKind uint8

const (
	stepContinue stepKind = iota
	stepReturn
	stepThrow
	stepAwait
	stepYield
)

type stepResult struct {
	kind    stepKind
	value   value.Value
	thrown  *diag.Thrown
	promise *object.PromiseObject
	dstReg  uint8
}

// bindArgs copies args into a fresh frame's parameter registers, padding
// missing trailing arguments with undefined and collecting the remainder
// into a rest array when the chunk is variadic.
func bindArgs(fr *Frame, chunk *bytecode.Chunk, args []value.Value) {
	n := chunk.NumParams
	restIdx := n
	if chunk.IsVariadic {
		restIdx = n - 1
		if restIdx < 0 {
			restIdx = 0
		}
	}
	for i := 0; i < restIdx && i < len(fr.Regs); i++ {
		if i < len(args) {
			fr.Regs[i] = args[i]
		} else {
			fr.Regs[i] = value.Undefined
		}
	}
	if chunk.IsVariadic && restIdx < len(fr.Regs) {
		var rest []value.Value
		if len(args) > restIdx {
			rest = append(rest, args[restIdx:]...)
		}
		fr.Regs[restIdx] = object.ToValue(object.NewArrayObject(rest))
	}
}

// icLookup resolves a property feedback slot via shape+IC, recording a new
// observation on a cache miss. Shared by GetProp/SetProp handling.
func (vm *VM) icLookup(fv *ic.FeedbackVector, slotIdx int, shapeID shape.ID) (uint16, bool) {
	slot := fv.Slot(slotIdx)
	epoch := vm.Shapes.Epoch(shapeID)
	if off, ok := slot.Lookup(shapeID, epoch); ok {
		return off, true
	}
	return 0, false
}
