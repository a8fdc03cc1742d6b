// Package object implements every heap-allocated value kind: plain objects
// backed by a shape, arrays with element-kind specialization, interned
// strings, and the function/closure/environment machinery the interpreter
// and compiler share. Objects are built around shape.Table instead of a
// bare map[string]Value, and are tracked by a real generational collector.
package object

import (
	"unsafe"

	"corevm/internal/heap"
	"corevm/internal/shape"
	"corevm/internal/value"
)

// Kind discriminates the concrete Go type behind an Object. Constructs like
// classes and modules are modeled as ordinary plain objects with method
// properties rather than dedicated Go types.
type Kind uint8

const (
	KindPlain Kind = iota
	KindArray
	KindString
	KindFunction
	KindClosure
	KindNative
	KindBound
	KindEnv
	KindSymbol
	KindUpvalue
	KindGenerator
	KindPromise
)

// Header is the common prefix embedded as the first field of every object
// kind in this package. Marked/Next live in the embedded heap.Header;
// ShapeID replaces a per-instance property map.
type Header struct {
	heap.Header
	Kind    Kind
	ShapeID shape.ID
}

// Head satisfies heap.Traceable by exposing the embedded heap.Header.
func (h *Header) Head() *heap.Header { return &h.Header }

// Object is implemented by every heap-allocated kind in this package.
type Object interface {
	heap.Traceable
	ObjectKind() Kind
}

// Heap and Shapes are the two arenas every object in this package is built
// against; engine.New constructs these once and installs them through
// Bind, which also installs heap.ResolveTraceable and value.Heap.
var (
	Heap   *heap.Heap
	Shapes *shape.Table
)

// Bind installs the shared heap and shape arenas. Called once by
// engine.New before any object is constructed.
func Bind(h *heap.Heap, s *shape.Table) {
	Heap = h
	Shapes = s
	heap.ResolveTraceable = resolveTraceable
	value.Heap = conversions{}
}

func toValue(o Object) value.Value {
	return value.FromPointer(unsafe.Pointer(headerOf(o)))
}

// headerOf extracts the embedded Header pointer from any Object via an
// unsafe cast; every concrete type in this package embeds Header as its
// first field, so the address is the same as the object's own address.
func headerOf(o Object) *Header {
	switch t := o.(type) {
	case *PlainObject:
		return &t.Header
	case *ArrayObject:
		return &t.Header
	case *StringObject:
		return &t.Header
	case *FunctionObject:
		return &t.Header
	case *ClosureObject:
		return &t.Header
	case *NativeFunction:
		return &t.Header
	case *BoundFunction:
		return &t.Header
	case *Env:
		return &t.Header
	case *SymbolObject:
		return &t.Header
	case *GeneratorObject:
		return &t.Header
	case *PromiseObject:
		return &t.Header
	default:
		return nil
	}
}

func resolveTraceable(v value.Value) heap.Traceable {
	if !value.IsPointer(v) {
		return nil
	}
	return fromPointer(v)
}

// fromPointer recovers the Traceable a Value points at. Every object kind
// stores its Header first, so the raw pointer already *is* a *Header; the
// concrete type is recovered one level up by callers that need it (e.g.
// AsString, AsArray) via the Kind tag.
func fromPointer(v value.Value) heap.Traceable {
	p := value.Pointer(v)
	h := (*Header)(p)
	switch h.Kind {
	case KindPlain:
		return (*PlainObject)(p)
	case KindArray:
		return (*ArrayObject)(p)
	case KindString:
		return (*StringObject)(p)
	case KindFunction:
		return (*FunctionObject)(p)
	case KindClosure:
		return (*ClosureObject)(p)
	case KindNative:
		return (*NativeFunction)(p)
	case KindBound:
		return (*BoundFunction)(p)
	case KindEnv:
		return (*Env)(p)
	case KindSymbol:
		return (*SymbolObject)(p)
	case KindGenerator:
		return (*GeneratorObject)(p)
	case KindPromise:
		return (*PromiseObject)(p)
	default:
		return nil
	}
}

// ToValue boxes any heap object as a pointer-tagged Value, exported for
// sibling packages (interp, engine) that need to root or pass around an
// object this package constructed without going through a user-facing
// constructor (e.g. rooting a live closure or environment from the VM).
func ToValue(o Object) value.Value { return toValue(o) }

// KindOf returns the dynamic object kind backing a pointer-tagged Value.
func KindOf(v value.Value) Kind {
	if !value.IsPointer(v) {
		return 0
	}
	return (*Header)(value.Pointer(v)).Kind
}

// ShapeIDOf returns the ShapeID of a shape-bearing object Value (plain
// object or array); callers must already know v is pointer-tagged and of
// one of those kinds.
func ShapeIDOf(v value.Value) shape.ID {
	return (*Header)(value.Pointer(v)).ShapeID
}

// AsFunction extracts a *FunctionObject from a pointer-tagged Value.
func AsFunction(v value.Value) (*FunctionObject, bool) {
	if !value.IsPointer(v) || KindOf(v) != KindFunction {
		return nil, false
	}
	return (*FunctionObject)(value.Pointer(v)), true
}

// AsPlain extracts a *PlainObject from a pointer-tagged Value.
func AsPlain(v value.Value) (*PlainObject, bool) {
	if !value.IsPointer(v) || KindOf(v) != KindPlain {
		return nil, false
	}
	return (*PlainObject)(value.Pointer(v)), true
}

// AsArray extracts an *ArrayObject from a pointer-tagged Value.
func AsArray(v value.Value) (*ArrayObject, bool) {
	if !value.IsPointer(v) || KindOf(v) != KindArray {
		return nil, false
	}
	return (*ArrayObject)(value.Pointer(v)), true
}

// AsSymbol extracts a *SymbolObject from a pointer-tagged Value.
func AsSymbol(v value.Value) (*SymbolObject, bool) {
	if !value.IsPointer(v) || KindOf(v) != KindSymbol {
		return nil, false
	}
	return (*SymbolObject)(value.Pointer(v)), true
}

// AsPromise extracts a *PromiseObject from a pointer-tagged Value.
func AsPromise(v value.Value) (*PromiseObject, bool) {
	if !value.IsPointer(v) || KindOf(v) != KindPromise {
		return nil, false
	}
	return (*PromiseObject)(value.Pointer(v)), true
}

// AsGenerator extracts a *GeneratorObject from a pointer-tagged Value.
func AsGenerator(v value.Value) (*GeneratorObject, bool) {
	if !value.IsPointer(v) || KindOf(v) != KindGenerator {
		return nil, false
	}
	return (*GeneratorObject)(value.Pointer(v)), true
}

// IsCallable reports whether v is one of the three callable heap kinds.
func IsCallable(v value.Value) bool {
	if !value.IsPointer(v) {
		return false
	}
	switch KindOf(v) {
	case KindClosure, KindNative, KindBound:
		return true
	default:
		return false
	}
}
