package object

import (
	"corevm/internal/heap"
	"corevm/internal/value"
)

// GeneratorState tracks a generator/async-function activation's suspension
// state, mirroring the ECMAScript generator state machine.
type GeneratorState uint8

const (
	GeneratorSuspendedStart GeneratorState = iota
	GeneratorSuspendedYield
	GeneratorExecuting
	GeneratorCompleted
)

// GeneratorObject is the heap-visible handle script code holds for a
// generator or async-function call. The actual suspended interpreter frames
// live in interp, reached only through Resume; the same interface{} seam
// FunctionObject.CompiledBaseline uses to avoid this package importing
// interp (which itself imports object for the call convention).
type GeneratorObject struct {
	Header
	Function *FunctionObject
	State    GeneratorState

	// Resume is installed by interp.NewGenerator: calling it drives one
	// step (sent value in, yielded value/done/error out).
	Resume interface{}
}

// NewGeneratorObject allocates a generator handle around fn, initially
// suspended at its start.
func NewGeneratorObject(fn *FunctionObject) *GeneratorObject {
	g := &GeneratorObject{
		Header:   Header{Header: heap.NewHeader(56), Kind: KindGenerator},
		Function: fn,
		State:    GeneratorSuspendedStart,
	}
	Heap.Allocate(g)
	return g
}

// ObjectKind implements Object.
func (g *GeneratorObject) ObjectKind() Kind { return KindGenerator }

// Trace implements heap.Traceable.
func (g *GeneratorObject) Trace(visit func(*value.Value)) {
	fnVal := toValue(g.Function)
	visit(&fnVal)
}
