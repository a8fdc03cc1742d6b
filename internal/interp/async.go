package interp

import (
	"corevm/internal/diag"
	"corevm/internal/object"
	"corevm/internal/value"
)

// runAsync starts an async function's activation and returns immediately
// with its result promise, exactly as ECMAScript's AsyncFunctionStart
// does: the body runs synchronously up to its first await (or to
// completion, if it never awaits) before this call returns, and the
// remainder is driven by reactions scheduled on whatever it awaits.
func (vm *VM) runAsync(closure *object.ClosureObject, this value.Value, args []value.Value) *object.PromiseObject {
	result := object.NewPromiseObject()
	vm.settleAsync(result, vm.Start(closure, this, args))
	return result
}

// settleAsync drives an async activation's Outcome to its conclusion: if it
// suspended on an await, it registers self-scheduling reactions on the
// awaited promise that resume the coroutine and recurse; otherwise it
// settles result with the coroutine's return value or thrown exception.
func (vm *VM) settleAsync(result *object.PromiseObject, out Outcome) {
	if out.Suspended != nil {
		s := out.Suspended
		s.Promise().AddReactions(
			func(v value.Value) {
				vm.schedule(func() { vm.settleAsync(result, vm.ResumeValue(s, v)) })
			},
			func(v value.Value) {
				vm.schedule(func() { vm.settleAsync(result, vm.ResumeThrow(s, &diag.Thrown{Value: v})) })
			},
		)
		return
	}
	if out.Thrown != nil {
		result.SettleAndFire(true, out.Thrown.Value)
		return
	}
	result.SettleAndFire(false, out.Value)
}

// schedule enqueues job as a microtask via the host-installed Scheduler;
// with none installed (e.g. a VM built only for synchronous tests), it
// runs inline, which is observably correct for code that never actually
// awaits anything asynchronous.
func (vm *VM) schedule(job func()) {
	if vm.Scheduler != nil {
		vm.Scheduler.EnqueueMicrotask(job)
		return
	}
	job()
}

