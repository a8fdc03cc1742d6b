package object

import (
	"corevm/internal/heap"
	"corevm/internal/value"
)

// PromiseState mirrors the three ECMAScript Promise internal states.
type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// Reaction is a settlement callback queued against a pending promise. It is
// a plain function type rather than an interface so this package can define
// Promise's internal slots without importing eventloop, which owns the
// actual scheduling of reaction calls as microtasks.
type Reaction func(result value.Value)

// PromiseObject implements the Promise internal slots ([[PromiseState]],
// [[PromiseResult]], [[PromiseFulfillReactions]],
// [[PromiseRejectReactions]]).
type PromiseObject struct {
	Header
	State      PromiseState
	Result     value.Value
	OnFulfill  []Reaction
	OnReject   []Reaction
	IsHandled  bool
}

// NewPromiseObject allocates a pending promise.
func NewPromiseObject() *PromiseObject {
	p := &PromiseObject{
		Header: Header{Header: heap.NewHeader(64), Kind: KindPromise},
		Result: value.Undefined,
	}
	Heap.Allocate(p)
	return p
}

// ObjectKind implements Object.
func (p *PromiseObject) ObjectKind() Kind { return KindPromise }

// Trace implements heap.Traceable.
func (p *PromiseObject) Trace(visit func(*value.Value)) { visit(&p.Result) }

// Settle transitions a pending promise to fulfilled or rejected, returning
// the reactions to run (the caller schedules them as microtasks) and
// whether the promise actually changed state (false if it was already
// settled, per the "a promise settles at most once" invariant).
func (p *PromiseObject) Settle(rejected bool, result value.Value) ([]Reaction, bool) {
	if p.State != PromisePending {
		return nil, false
	}
	p.Result = result
	if rejected {
		p.State = PromiseRejected
		rs := p.OnReject
		p.OnFulfill, p.OnReject = nil, nil
		return rs, true
	}
	p.State = PromiseFulfilled
	rs := p.OnFulfill
	p.OnFulfill, p.OnReject = nil, nil
	return rs, true
}

// SettleAndFire settles p and immediately invokes whatever reactions were
// already registered against it (a no-op if it was already settled). Every
// reaction this core installs is itself expected to self-schedule as a
// microtask (see eventloop.thenReaction / interp.settleAsync) rather than
// call script code inline, so invoking them synchronously here does not
// violate the spec's microtask-ordering guarantees.
func (p *PromiseObject) SettleAndFire(rejected bool, result value.Value) {
	if reactions, changed := p.Settle(rejected, result); changed {
		for _, r := range reactions {
			r(result)
		}
	}
}

// AddReactions attaches a fulfill/reject pair, matching PerformPromiseThen:
// if the promise is already settled, the matching reaction fires
// immediately (the caller still schedules it as a microtask; this method
// only decides which one applies and marks the promise as handled for
// unhandled-rejection tracking).
func (p *PromiseObject) AddReactions(onFulfill, onReject Reaction) {
	p.IsHandled = true
	switch p.State {
	case PromisePending:
		p.OnFulfill = append(p.OnFulfill, onFulfill)
		p.OnReject = append(p.OnReject, onReject)
	case PromiseFulfilled:
		onFulfill(p.Result)
	case PromiseRejected:
		onReject(p.Result)
	}
}
