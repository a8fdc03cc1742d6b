package object

import (
	"corevm/internal/bytecode"
	"corevm/internal/heap"
	"corevm/internal/ic"
	"corevm/internal/value"
)

// FunctionObject is a compiled function prototype: its chunk, upvalue
// layout, and feedback vector. Grounded on vmregister/value.go's
// FunctionObj{Name, Arity, Code, Constants, ObjectRefs, Upvalues}, with
// Code/Constants now living inside bytecode.Chunk and ObjectRefs replaced
// by the heap's precise Trace instead of a manually maintained
// keep-alive slice.
type FunctionObject struct {
	Header
	Chunk    *bytecode.Chunk
	Feedback *ic.FeedbackVector

	// CompiledBaseline/CompiledOptimized are installed by the respective
	// JIT tiers once this function is compiled; nil means "interpret".
	// Typed as interface{} to avoid object importing baseline/optjit,
	// which would cycle back through object for their code-object tables.
	CompiledBaseline  interface{}
	CompiledOptimized interface{}
}

// NewFunctionObject allocates a function prototype around a compiled chunk.
func NewFunctionObject(chunk *bytecode.Chunk) *FunctionObject {
	f := &FunctionObject{
		Header:   Header{Header: heap.NewHeader(96), Kind: KindFunction},
		Chunk:    chunk,
		Feedback: ic.NewFeedbackVector(chunk.FeedbackSize),
	}
	Heap.Allocate(f)
	return f
}

// ObjectKind implements Object.
func (f *FunctionObject) ObjectKind() Kind { return KindFunction }

// Trace implements heap.Traceable; the chunk's constant pool may hold
// pointer-tagged values (nested function objects, interned strings).
func (f *FunctionObject) Trace(visit func(*value.Value)) {
	for i := range f.Chunk.Constants {
		visit(&f.Chunk.Constants[i])
	}
}

// UpvalueObject is a closed-over variable cell: while the frame that owns
// the captured register is still live, Location points into that frame's
// register slice; OpCloseUpvals copies the value into Closed and redirects
// Location to point at Closed, detaching it from the frame.
type UpvalueObject struct {
	Header
	Location *value.Value
	Closed   value.Value
}

// NewOpenUpvalue creates an upvalue pointing at a live frame register.
func NewOpenUpvalue(slot *value.Value) *UpvalueObject {
	u := &UpvalueObject{Header: Header{Header: heap.NewHeader(32), Kind: KindUpvalue}, Location: slot}
	Heap.Allocate(u)
	return u
}

// Close detaches the upvalue from its frame, copying the current value in.
func (u *UpvalueObject) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// ObjectKind implements Object. Upvalues are never independently boxed as
// a script-visible Value; only ClosureObject.Upvalues holds them, and
// ClosureObject.Trace walks into them directly.
func (u *UpvalueObject) ObjectKind() Kind { return KindUpvalue }

// Trace implements heap.Traceable.
func (u *UpvalueObject) Trace(visit func(*value.Value)) { visit(&u.Closed) }

// ClosureObject pairs a FunctionObject with its captured upvalues, mirroring
// vmregister/value.go's ClosureObj{Function, Upvalues}.
type ClosureObject struct {
	Header
	Function *FunctionObject
	Upvalues []*UpvalueObject
}

// NewClosureObject allocates a closure over fn with the given upvalues.
func NewClosureObject(fn *FunctionObject, upvalues []*UpvalueObject) *ClosureObject {
	c := &ClosureObject{
		Header:   Header{Header: heap.NewHeader(uintptr(48 + 8*len(upvalues))), Kind: KindClosure},
		Function: fn,
		Upvalues: upvalues,
	}
	Heap.Allocate(c)
	return c
}

// ObjectKind implements Object.
func (c *ClosureObject) ObjectKind() Kind { return KindClosure }

// AsClosure extracts a *ClosureObject from a pointer-tagged Value, the
// exported counterpart of AsString for the calling convention in interp.
func AsClosure(v value.Value) (*ClosureObject, bool) {
	if !value.IsPointer(v) || KindOf(v) != KindClosure {
		return nil, false
	}
	return (*ClosureObject)(value.Pointer(v)), true
}

// AsNative extracts a *NativeFunction from a pointer-tagged Value.
func AsNative(v value.Value) (*NativeFunction, bool) {
	if !value.IsPointer(v) || KindOf(v) != KindNative {
		return nil, false
	}
	return (*NativeFunction)(value.Pointer(v)), true
}

// AsBound extracts a *BoundFunction from a pointer-tagged Value.
func AsBound(v value.Value) (*BoundFunction, bool) {
	if !value.IsPointer(v) || KindOf(v) != KindBound {
		return nil, false
	}
	return (*BoundFunction)(value.Pointer(v)), true
}

// Trace implements heap.Traceable.
func (c *ClosureObject) Trace(visit func(*value.Value)) {
	fnVal := toValue(c.Function)
	visit(&fnVal)
	for _, uv := range c.Upvalues {
		uv.Trace(visit)
	}
}

// NativeFunction wraps a Go-implemented builtin, mirroring vmregister's
// NativeFnObj{Name, Arity, Function}.
type NativeFunction struct {
	Header
	Name string
	Fn   func(this value.Value, args []value.Value) (value.Value, error)
}

// NewNativeFunction allocates a builtin function value.
func NewNativeFunction(name string, fn func(value.Value, []value.Value) (value.Value, error)) *NativeFunction {
	n := &NativeFunction{Header: Header{Header: heap.NewHeader(48), Kind: KindNative}, Name: name, Fn: fn}
	Heap.Allocate(n)
	return n
}

// ObjectKind implements Object.
func (n *NativeFunction) ObjectKind() Kind { return KindNative }

// Trace implements heap.Traceable; native functions hold no script-visible
// outgoing pointers of their own.
func (n *NativeFunction) Trace(func(*value.Value)) {}

// BoundFunction implements Function.prototype.bind: a target callable with
// a fixed `this` and a prefix of bound arguments.
type BoundFunction struct {
	Header
	Target    value.Value
	BoundThis value.Value
	BoundArgs []value.Value
}

// NewBoundFunction allocates a bound-function wrapper.
func NewBoundFunction(target, boundThis value.Value, boundArgs []value.Value) *BoundFunction {
	b := &BoundFunction{
		Header:    Header{Header: heap.NewHeader(uintptr(48 + 8*len(boundArgs))), Kind: KindBound},
		Target:    target,
		BoundThis: boundThis,
		BoundArgs: boundArgs,
	}
	Heap.Allocate(b)
	return b
}

// ObjectKind implements Object.
func (b *BoundFunction) ObjectKind() Kind { return KindBound }

// Trace implements heap.Traceable.
func (b *BoundFunction) Trace(visit func(*value.Value)) {
	visit(&b.Target)
	visit(&b.BoundThis)
	for i := range b.BoundArgs {
		visit(&b.BoundArgs[i])
	}
}
