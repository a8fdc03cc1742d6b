package object

import (
	"strconv"
	"sync/atomic"

	"corevm/internal/heap"
	"corevm/internal/value"
)

// SymbolObject is a unique, non-interned property key. Unlike StringObject,
// two symbols with the same Description are never the same object; that
// uniqueness is the entire point of the ECMAScript Symbol type. Symbol keys
// route through the object package rather than value's string-keyed
// default.
type SymbolObject struct {
	Header
	Description string
	id          uint64
}

var symbolCounter uint64

// NewSymbol allocates a fresh, globally unique symbol.
func NewSymbol(description string) *SymbolObject {
	s := &SymbolObject{
		Header:      Header{Header: heap.NewHeader(40), Kind: KindSymbol},
		Description: description,
		id:          atomic.AddUint64(&symbolCounter, 1),
	}
	Heap.Allocate(s)
	return s
}

// ObjectKind implements Object.
func (s *SymbolObject) ObjectKind() Kind { return KindSymbol }

// Trace implements heap.Traceable; symbols hold no outgoing pointers.
func (s *SymbolObject) Trace(func(*value.Value)) {}

// PropertyKey returns the internal string this engine uses to key a
// symbol-tagged property in a shape/dictionary, kept collision-free against
// ordinary string keys by a prefix no source-level identifier or string
// literal can itself produce.
func (s *SymbolObject) PropertyKey() string {
	return "@@sym:" + strconv.FormatUint(s.id, 10) + ":" + s.Description
}
