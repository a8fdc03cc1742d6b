package object

import (
	"corevm/internal/heap"
	"corevm/internal/value"
)

// Env is a lexical scope record: a flat slot array plus a parent link,
// used for the global/module scope and for any block scope the compiler
// decides needs a heap-allocated environment (e.g. a `let`/`const` binding
// captured by a closure created inside a loop body). Most locals resolve
// purely to VM registers; Env only backs the scopes that genuinely need
// heap allocation.
type Env struct {
	Header
	Parent *Env
	Names  []string // index -> binding name, for GetGlobal/SetGlobal and debugging
	Slots  []value.Value
	tdz    []bool // true while a let/const binding has not yet been initialized (I: TDZ)
}

// NewEnv allocates a scope with n pre-sized slots, chained to parent (nil
// for the global scope).
func NewEnv(parent *Env, n int) *Env {
	e := &Env{
		Header: Header{Header: heap.NewHeader(uintptr(48 + 16*n)), Kind: KindEnv},
		Parent: parent,
		Names:  make([]string, n),
		Slots:  make([]value.Value, n),
		tdz:    make([]bool, n),
	}
	Heap.Allocate(e)
	return e
}

// Declare binds name at index i, marking it in the temporal dead zone when
// inTDZ is true (a `let`/`const` declaration before its initializer runs).
func (e *Env) Declare(i int, name string, inTDZ bool) {
	e.Names[i] = name
	e.Slots[i] = value.Undefined
	e.tdz[i] = inTDZ
}

// Get reads slot i, returning ok=false if it is still in the temporal dead
// zone (caller throws a ReferenceError per spec's TDZ guard).
func (e *Env) Get(i int) (value.Value, bool) {
	if e.tdz[i] {
		return value.Undefined, false
	}
	return e.Slots[i], true
}

// Initialize clears the TDZ flag and stores v, used for a `let x = v;`
// binding's first write.
func (e *Env) Initialize(i int, v value.Value) {
	e.tdz[i] = false
	Heap.WriteBarrier(e, &e.Slots[i], v)
	e.Slots[i] = v
}

// Set writes slot i, used for ordinary reassignment after initialization.
func (e *Env) Set(i int, v value.Value) {
	Heap.WriteBarrier(e, &e.Slots[i], v)
	e.Slots[i] = v
}

// DeclareGlobal appends a new, already-initialized binding to a var-style
// scope (used for the global object's implicit sloppy-mode assignment to an
// undeclared name), returning its slot index.
func (e *Env) DeclareGlobal(name string) int {
	idx := len(e.Names)
	e.Names = append(e.Names, name)
	e.Slots = append(e.Slots, value.Undefined)
	e.tdz = append(e.tdz, false)
	return idx
}

// Resolve walks the scope chain looking up name by linear scan of Names , 
// used only for the global scope and for debugging/eval-like reflection;
// the compiler resolves ordinary lexical references to a fixed (depth,
// index) pair at compile time and never calls this on the hot path.
func (e *Env) Resolve(name string) (*Env, int, bool) {
	for cur := e; cur != nil; cur = cur.Parent {
		for i, n := range cur.Names {
			if n == name {
				return cur, i, true
			}
		}
	}
	return nil, 0, false
}

// ObjectKind implements Object.
func (e *Env) ObjectKind() Kind { return KindEnv }

// Trace implements heap.Traceable.
func (e *Env) Trace(visit func(*value.Value)) {
	for i := range e.Slots {
		visit(&e.Slots[i])
	}
}
