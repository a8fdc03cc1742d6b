package interp

import (
	"corevm/internal/diag"
	"corevm/internal/object"
	"corevm/internal/value"
)

// callPlan is the outcome of resolving a callee value for OpCall/OpNew: a
// callable either produces an immediately-available result (a native
// function already ran, or the callee was not callable at all) or a new
// Frame the dispatch loop must push and let run to completion via ordinary
// OpReturn handling; never by recursing into vm.execute, so calling a
// script closure never grows the Go call stack.
type callPlan struct {
	push   *Frame
	result value.Value
	thrown *diag.Thrown
}

// Call invokes any callable value (closure, native, or bound function) on
// behalf of host code; builtin methods, Promise reaction callbacks, the
// iterator protocol's `next`; driving a pushed closure frame to completion
// exactly as OpCall would, but as its own top-level coroutine rather than
// growing whatever frame stack happens to be active.
func (vm *VM) Call(callee, this value.Value, args []value.Value) (value.Value, *diag.Thrown) {
	plan := vm.prepareCall(callee, this, args, 0, diag.Position{})
	if plan.thrown != nil {
		return value.Undefined, plan.thrown
	}
	if plan.push == nil {
		return plan.result, nil
	}
	out := vm.drive([]*Frame{plan.push})
	if out.Suspended != nil {
		return value.Undefined, diag.NewTypeError("await inside a host-invoked callback did not settle synchronously", diag.Position{})
	}
	return out.Value, out.Thrown
}

// prepareCall resolves callee (unwrapping BoundFunction chains) and either
// builds the next frame to run or produces an immediate result/throw.
// returnDst is stamped onto a pushed frame so execute() knows which of the
// caller's registers receives the eventual OpReturn value.
func (vm *VM) prepareCall(callee, this value.Value, args []value.Value, returnDst uint8, pos diag.Position) callPlan {
	for {
		if closure, ok := object.AsClosure(callee); ok {
			chunk := closure.Function.Chunk
			if chunk.IsGenerator {
				g := object.NewGeneratorObject(closure.Function)
				vm.NewGenerator(g, closure, this, args)
				return callPlan{result: object.ToValue(g)}
			}
			if chunk.IsAsync {
				return callPlan{result: object.ToValue(vm.runAsync(closure, this, args))}
			}
			fr := newFrame(closure, this)
			fr.returnDst = returnDst
			bindArgs(fr, closure.Function.Chunk, args)
			vm.maybeTierUp(closure.Function)
			return callPlan{push: fr}
		}
		if native, ok := object.AsNative(callee); ok {
			res, err := native.Fn(this, args)
			if err != nil {
				if th, ok := err.(*diag.Thrown); ok {
					return callPlan{thrown: th}
				}
				return callPlan{thrown: diag.NewTypeError(err.Error(), pos)}
			}
			return callPlan{result: res}
		}
		if bound, ok := object.AsBound(callee); ok {
			callee = bound.Target
			this = bound.BoundThis
			args = append(append([]value.Value{}, bound.BoundArgs...), args...)
			continue
		}
		return callPlan{thrown: diag.NewTypeError("value is not a function", pos)}
	}
}

// construct implements `new callee(args)`: allocate a fresh plain object
// and run the constructor body with `this` bound to it, using the
// constructor's own return value only if it is itself an object (ECMA
// [[Construct]]'s "ordinary return" rule). Functions in this core do not
// carry a general own-property bag, so the new object's
// prototype is always a fresh empty shape rooted at the callee's identity
// rather than the callee's own "prototype" property; every instance
// constructed from the same function still shares one shape root, which is
// what the shape table's transition-tree sharing depends on, even though
// the prototype *chain itself* is not wired.
func (vm *VM) construct(callee value.Value, args []value.Value, returnDst uint8, pos diag.Position) callPlan {
	if !value.IsPointer(callee) {
		return callPlan{thrown: diag.NewTypeError("value is not a constructor", pos)}
	}
	newObj := object.NewPlainObject(value.Null, uint64(uintptr(value.Pointer(callee))))
	this := object.ToValue(newObj)
	plan := vm.prepareCall(callee, this, args, returnDst, pos)
	if plan.push != nil {
		plan.push.constructedThis = this
		plan.push.isConstructor = true
	} else if plan.thrown == nil && !value.IsPointer(plan.result) {
		plan.result = this
	}
	return plan
}
