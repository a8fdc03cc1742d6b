package eventloop

import (
	"corevm/internal/interp"
	"corevm/internal/object"
	"corevm/internal/value"
)

// NewPromise allocates a pending promise, exposed here (rather than having
// callers reach into object directly) so every promise an engine user
// touches is known to this loop's bookkeeping; today that is only a
// naming convenience, but it is where a future debugger hook would attach.
func (l *Loop) NewPromise() *object.PromiseObject { return object.NewPromiseObject() }

// Resolved returns a promise resolved with v, matching Promise.resolve for
// a non-thenable argument. When v is a PromiseObject the result follows it;
// any other object, including one with a `then` method, fulfills the result
// directly: thenables are not recognized.
func (l *Loop) Resolved(vm *interp.VM, v value.Value) *object.PromiseObject {
	p := object.NewPromiseObject()
	l.Resolve(vm, p, v)
	return p
}

// Rejected returns an already-rejected promise, matching Promise.reject.
func (l *Loop) Rejected(reason value.Value) *object.PromiseObject {
	p := object.NewPromiseObject()
	p.SettleAndFire(true, reason)
	return p
}

// Then implements Promise.prototype.then (PerformPromiseThen): registers
// onFulfilled/onRejected against p and returns a freshly allocated derived
// promise settling with whichever handler's return value (or p's own
// result, when the matching handler is not callable) produces.
func (l *Loop) Then(vm *interp.VM, p *object.PromiseObject, onFulfilled, onRejected value.Value) *object.PromiseObject {
	derived := object.NewPromiseObject()
	p.AddReactions(
		l.thenReaction(vm, derived, onFulfilled, false),
		l.thenReaction(vm, derived, onRejected, true),
	)
	return derived
}

// thenReaction builds one half of a PerformPromiseThen reaction. It
// self-schedules as a microtask the instant p settles, invokes handler
// if it is callable, and resolves derived with the handler's return
// value (or p's own settled value, unchanged, if the handler was not
// callable; the "identity"/"thrower" defaults).
func (l *Loop) thenReaction(vm *interp.VM, derived *object.PromiseObject, handler value.Value, isRejectSide bool) object.Reaction {
	return func(result value.Value) {
		l.EnqueueMicrotask(func() {
			if !object.IsCallable(handler) {
				derived.SettleAndFire(isRejectSide, result)
				return
			}
			v, thrown := vm.Call(handler, value.Undefined, []value.Value{result})
			if thrown != nil {
				derived.SettleAndFire(true, thrown.Value)
				return
			}
			l.Resolve(vm, derived, v)
		})
	}
}

// Resolve implements the ResolvePromise algorithm: settling derived with v
// directly unless v is itself a promise, in which case derived chains onto
// it instead of double-wrapping.
func (l *Loop) Resolve(vm *interp.VM, derived *object.PromiseObject, v value.Value) {
	if inner, ok := object.AsPromise(v); ok {
		if inner == derived {
			derived.SettleAndFire(true, value.Undefined) // TypeError: self-resolution; message elided at this layer
			return
		}
		inner.AddReactions(
			func(result value.Value) { l.EnqueueMicrotask(func() { l.Resolve(vm, derived, result) }) },
			func(result value.Value) { l.EnqueueMicrotask(func() { derived.SettleAndFire(true, result) }) },
		)
		return
	}
	derived.SettleAndFire(false, v)
}

// Resolvers is the {promise, resolve, reject} triple Promise.withResolvers
// returns.
type Resolvers struct {
	Promise *object.PromiseObject
	Resolve func(value.Value)
	Reject  func(value.Value)
}

// WithResolvers implements Promise.withResolvers.
func (l *Loop) WithResolvers(vm *interp.VM) Resolvers {
	p := object.NewPromiseObject()
	return Resolvers{
		Promise: p,
		Resolve: func(v value.Value) { l.Resolve(vm, p, v) },
		Reject:  func(v value.Value) { p.SettleAndFire(true, v) },
	}
}

// All implements Promise.all: fulfills with an array of every input's
// fulfillment value, in input order, once all have fulfilled; rejects as
// soon as any one rejects.
func (l *Loop) All(vm *interp.VM, promises []*object.PromiseObject) *object.PromiseObject {
	result := object.NewPromiseObject()
	n := len(promises)
	if n == 0 {
		result.SettleAndFire(false, object.ToValue(object.NewArrayObject(nil)))
		return result
	}
	values := make([]value.Value, n)
	remaining := n
	done := false
	for i, p := range promises {
		i := i
		p.AddReactions(
			func(v value.Value) {
				if done {
					return
				}
				values[i] = v
				remaining--
				if remaining == 0 {
					done = true
					result.SettleAndFire(false, object.ToValue(object.NewArrayObject(values)))
				}
			},
			func(reason value.Value) {
				if done {
					return
				}
				done = true
				result.SettleAndFire(true, reason)
			},
		)
	}
	return result
}

// AllSettled implements Promise.allSettled: fulfills with an array of
// {status, value|reason} descriptors once every input has settled, one way
// or the other; it never itself rejects.
func (l *Loop) AllSettled(vm *interp.VM, promises []*object.PromiseObject) *object.PromiseObject {
	result := object.NewPromiseObject()
	n := len(promises)
	if n == 0 {
		result.SettleAndFire(false, object.ToValue(object.NewArrayObject(nil)))
		return result
	}
	values := make([]value.Value, n)
	remaining := n
	record := func(i int, fulfilled bool, v value.Value) {
		o := object.NewPlainObject(value.Null, 0)
		if fulfilled {
			o.Set("status", object.NewStringValue("fulfilled"))
			o.Set("value", v)
		} else {
			o.Set("status", object.NewStringValue("rejected"))
			o.Set("reason", v)
		}
		values[i] = object.ToValue(o)
		remaining--
		if remaining == 0 {
			result.SettleAndFire(false, object.ToValue(object.NewArrayObject(values)))
		}
	}
	for i, p := range promises {
		i := i
		p.AddReactions(
			func(v value.Value) { record(i, true, v) },
			func(reason value.Value) { record(i, false, reason) },
		)
	}
	return result
}

// Race implements Promise.race: settles the same way as whichever input
// settles first.
func (l *Loop) Race(vm *interp.VM, promises []*object.PromiseObject) *object.PromiseObject {
	result := object.NewPromiseObject()
	done := false
	for _, p := range promises {
		p.AddReactions(
			func(v value.Value) {
				if !done {
					done = true
					result.SettleAndFire(false, v)
				}
			},
			func(reason value.Value) {
				if !done {
					done = true
					result.SettleAndFire(true, reason)
				}
			},
		)
	}
	return result
}

// Any implements Promise.any: fulfills with the first input to fulfill;
// rejects with an AggregateError-shaped array of every rejection reason
// only once all inputs have rejected.
func (l *Loop) Any(vm *interp.VM, promises []*object.PromiseObject) *object.PromiseObject {
	result := object.NewPromiseObject()
	n := len(promises)
	if n == 0 {
		result.SettleAndFire(true, object.ToValue(object.NewArrayObject(nil)))
		return result
	}
	reasons := make([]value.Value, n)
	remaining := n
	done := false
	for i, p := range promises {
		i := i
		p.AddReactions(
			func(v value.Value) {
				if !done {
					done = true
					result.SettleAndFire(false, v)
				}
			},
			func(reason value.Value) {
				if done {
					return
				}
				reasons[i] = reason
				remaining--
				if remaining == 0 {
					done = true
					result.SettleAndFire(true, object.ToValue(object.NewArrayObject(reasons)))
				}
			},
		)
	}
	return result
}
