package object

import (
	"corevm/internal/heap"
	"corevm/internal/shape"
	"corevm/internal/value"
)

// PlainObject is an ordinary ECMAScript object: a shape plus an in-object
// slot array, falling back to the shape's dictionary when in dictionary
// mode.
type PlainObject struct {
	Header
	Proto      value.Value // null or another object
	Slots      []value.Value
	Dictionary map[string]value.Value // used only when shape is in dictionary mode
	Extensible bool
}

// NewPlainObject allocates an object rooted at the given prototype's empty
// shape (or a fresh empty root if protoIdentity is new).
func NewPlainObject(proto value.Value, protoIdentity uint64) *PlainObject {
	o := &PlainObject{
		Header:     Header{Header: heap.NewHeader(objectSize), Kind: KindPlain, ShapeID: Shapes.EmptyRoot(protoIdentity)},
		Proto:      proto,
		Extensible: true,
	}
	Heap.Allocate(o)
	return o
}

const objectSize = 64 // rough size class; real engines compute this per shape

// Get looks up a named property, walking the prototype chain (spec: plain
// objects delegate to Proto when the own shape lookup misses).
func (o *PlainObject) Get(name string) (value.Value, bool) {
	cur := o
	for cur != nil {
		sh := Shapes.Get(cur.ShapeID)
		if sh.Kind() == shape.KindDictionary {
			if v, ok := cur.Dictionary[name]; ok {
				return v, true
			}
		} else if desc, ok := sh.Lookup(name); ok {
			return cur.Slots[desc.Offset], true
		}
		if !value.IsPointer(cur.Proto) {
			break
		}
		next, ok := fromPointer(cur.Proto).(*PlainObject)
		if !ok {
			break
		}
		cur = next
	}
	return value.Undefined, false
}

// Set defines or overwrites an own property, growing the shape (and the
// in-object slot array) via Shapes.AddProperty when the property is new.
func (o *PlainObject) Set(name string, v value.Value) {
	sh := Shapes.Get(o.ShapeID)
	if sh.Kind() == shape.KindDictionary {
		if o.Dictionary == nil {
			o.Dictionary = make(map[string]value.Value)
		}
		Heap.WriteBarrier(o, nil, v)
		o.Dictionary[name] = v
		return
	}
	if desc, ok := sh.Lookup(name); ok {
		Heap.WriteBarrier(o, &o.Slots[desc.Offset], v)
		o.Slots[desc.Offset] = v
		return
	}
	newID := Shapes.AddProperty(o.ShapeID, name, shape.DefaultDataAttrs)
	newShape := Shapes.Get(newID)
	if newShape.Kind() == shape.KindDictionary {
		o.ShapeID = newID
		o.Dictionary = make(map[string]value.Value, len(newShape.Properties()))
		for _, p := range newShape.Properties() {
			if p.Name != name && int(p.Offset) < len(o.Slots) {
				o.Dictionary[p.Name] = o.Slots[p.Offset]
			}
		}
		o.Dictionary[name] = v
		o.Slots = nil
		return
	}
	o.ShapeID = newID
	o.Slots = append(o.Slots, value.Undefined)
	desc, _ := newShape.Lookup(name)
	Heap.WriteBarrier(o, &o.Slots[desc.Offset], v)
	o.Slots[desc.Offset] = v
}

// Delete removes a property, forcing the shape into dictionary mode.
func (o *PlainObject) Delete(name string) {
	sh := Shapes.Get(o.ShapeID)
	if sh.Kind() == shape.KindDictionary {
		delete(o.Dictionary, name)
		return
	}
	newID := Shapes.Delete(o.ShapeID, name)
	o.ShapeID = newID
	props := Shapes.Get(newID).Properties()
	o.Dictionary = make(map[string]value.Value, len(props))
	for _, p := range props {
		if int(p.Offset) < len(o.Slots) {
			o.Dictionary[p.Name] = o.Slots[p.Offset]
		}
	}
	o.Slots = nil
}

// ObjectKind implements Object.
func (o *PlainObject) ObjectKind() Kind { return KindPlain }

// Trace implements heap.Traceable.
func (o *PlainObject) Trace(visit func(*value.Value)) {
	visit(&o.Proto)
	for i := range o.Slots {
		visit(&o.Slots[i])
	}
	for k, v := range o.Dictionary {
		cp := v
		visit(&cp)
		o.Dictionary[k] = cp
	}
}
