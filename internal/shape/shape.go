// Package shape implements hidden classes ("shapes"): immutable descriptors
// of an object's property layout, linked into a transition tree.
//
// Shapes are stored in an arena and referenced by ID rather than by pointer,
// since shape <-> transition-map entries would otherwise form a reference
// cycle.
package shape

import "sync"

// ID identifies a shape within a Table. The zero value is never a valid ID;
// Table reserves index 0 as a sentinel.
type ID uint32

// Kind distinguishes the two property-storage strategies a shape can use.
type Kind uint8

const (
	// KindTransitioning shapes store properties in-object at fixed slot
	// offsets and participate in the transition tree.
	KindTransitioning Kind = iota
	// KindDictionary shapes store properties in a hash table embedded in
	// the object; they never transition further (I3 still holds: a
	// dictionary shape is itself immutable, it simply refuses new
	// transitions and routes additions through its dictionary instead).
	KindDictionary
)

// Attr holds the ECMAScript property attribute bits.
type Attr uint8

const (
	AttrWritable Attr = 1 << iota
	AttrEnumerable
	AttrConfigurable
	AttrAccessor // data property if unset, accessor pair if set
)

// DefaultDataAttrs is the attribute set ordinary `obj.x = v` assignments use.
const DefaultDataAttrs = AttrWritable | AttrEnumerable | AttrConfigurable

// MaxInObjectSlots bounds in-object storage before a shape is forced into
// dictionary mode; a small, fixed bound keeps shape comparisons
// branch-cheap. The literal threshold is a tunable, not an ECMA-mandated
// number.
const MaxInObjectSlots = 32

// PropertyDesc describes one named property of a transitioning shape.
type PropertyDesc struct {
	Name   string
	Offset uint16
	Attrs  Attr
}

// TransitionKey identifies an edge out of a shape in the transition tree:
// adding property Name with attributes Attrs.
type TransitionKey struct {
	Name  string
	Attrs Attr
}

// ElementKind classifies the backing store of an array-like shape. Kinds
// are totally ordered by generality; an array shape only ever moves to a
// strictly more general kind, never back.
type ElementKind uint8

const (
	ElemPackedSMI ElementKind = iota
	ElemPackedDouble
	ElemPackedObject
	ElemHoleySMI
	ElemHoleyDouble
	ElemHoleyObject
)

// Generalize returns the least general kind that is general enough to hold
// both a and b. Packed kinds only generalize to other packed kinds unless
// a hole is involved, in which case the result is always holey.
func Generalize(a, b ElementKind) ElementKind {
	holey := isHoley(a) || isHoley(b)
	base := maxBase(baseOf(a), baseOf(b))
	if holey {
		return holeyOf(base)
	}
	return base
}

func isHoley(k ElementKind) bool { return k >= ElemHoleySMI }

func baseOf(k ElementKind) ElementKind {
	if isHoley(k) {
		return k - ElemHoleySMI
	}
	return k
}

func holeyOf(base ElementKind) ElementKind { return base + ElemHoleySMI }

func maxBase(a, b ElementKind) ElementKind {
	if a > b {
		return a
	}
	return b
}

// Shape is an immutable property-layout descriptor. Once published via a
// Table, a Shape value is never mutated (I3); adding a property produces a
// new Shape and a new ID.
type Shape struct {
	id       ID
	kind     Kind
	parent   ID // shape this one transitioned from; 0 for the empty root
	proto    uint64 // opaque prototype identity (object identity hash); 0 = null proto
	byName   map[string]*PropertyDesc
	ordered  []*PropertyDesc // insertion order, needed for enumeration
	slots    uint16          // next free in-object slot index
	elemKind ElementKind     // meaningful only for array-like shapes
	dict     map[string]*PropertyDesc // used only when kind == KindDictionary
}

// ID returns the shape's own identifier.
func (s *Shape) ID() ID { return s.id }

// Kind reports whether this is a transitioning or dictionary shape.
func (s *Shape) Kind() Kind { return s.kind }

// SlotCount returns the number of in-object slots this shape's objects own
// (I2: slots 0..SlotCount-1 belong to this shape; anything beyond is a bug).
func (s *Shape) SlotCount() uint16 { return s.slots }

// ElementKind returns the array element-kind tag (meaningless for
// non-array-like shapes, where it is always ElemPackedSMI by default).
func (s *Shape) ElementKind() ElementKind { return s.elemKind }

// Lookup finds a property by name, searching the dictionary when in
// dictionary mode and the in-object table otherwise.
func (s *Shape) Lookup(name string) (*PropertyDesc, bool) {
	if s.kind == KindDictionary {
		d, ok := s.dict[name]
		return d, ok
	}
	d, ok := s.byName[name]
	return d, ok
}

// Properties returns properties in declaration order (enumeration order).
func (s *Shape) Properties() []*PropertyDesc {
	if s.kind == KindDictionary {
		out := make([]*PropertyDesc, 0, len(s.dict))
		for _, d := range s.dict {
			out = append(out, d)
		}
		return out
	}
	return s.ordered
}

// Table is the shape arena: shapes are allocated by index, and the
// transition tree is encoded as IDs rather than pointers so that it can
// never form a reference cycle the GC has to reason about (see design
// notes: "shapes hold a shape-id, the transition map stores ids, and
// lookups go through an arena").
type Table struct {
	mu         sync.RWMutex
	shapes     []*Shape // index 0 unused (sentinel)
	transition map[transitionEdge]ID
	roots      map[uint64]ID // prototype identity -> empty-root shape id
	epoch      []uint64      // per-shape invalidation counter (I6/4.F)
}

type transitionEdge struct {
	from ID
	key  TransitionKey
}

// NewTable creates an empty shape arena.
func NewTable() *Table {
	t := &Table{
		shapes:     make([]*Shape, 1), // reserve ID 0
		transition: make(map[transitionEdge]ID),
		roots:      make(map[uint64]ID),
		epoch:      make([]uint64, 1),
	}
	return t
}

// EmptyRoot returns (creating if necessary) the empty shape for a given
// prototype identity (I1: objects with identical property sequences and
// prototypes share a shape, starting from this shared root).
func (t *Table) EmptyRoot(protoIdentity uint64) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.roots[protoIdentity]; ok {
		return id
	}
	s := &Shape{
		kind:    KindTransitioning,
		proto:   protoIdentity,
		byName:  make(map[string]*PropertyDesc),
		ordered: nil,
	}
	id := t.publish(s)
	t.roots[protoIdentity] = id
	return id
}

func (t *Table) publish(s *Shape) ID {
	id := ID(len(t.shapes))
	s.id = id
	t.shapes = append(t.shapes, s)
	t.epoch = append(t.epoch, 0)
	return id
}

// Get returns the shape for an ID. Panics on an out-of-range ID: a valid
// program never holds a stale ID once a shape has been published, since
// shapes are never removed from the arena (only invalidated via epoch).
func (t *Table) Get(id ID) *Shape {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.shapes[id]
}

// Epoch returns the current invalidation counter for a shape, used by
// inline caches to detect a shape that has been invalidated (e.g. its
// prototype chain mutated) without having to clear every cache eagerly;
// dead entries are marked and cleared lazily.
func (t *Table) Epoch(id ID) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.epoch[id]
}

// Invalidate bumps a shape's epoch, causing every inline cache keyed on it
// to treat its next lookup as a miss.
func (t *Table) Invalidate(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch[id]++
}

// AddProperty returns the shape produced by adding name/attrs to from,
// reusing an existing transition edge when one already exists (I1) and
// otherwise creating a new successor shape (I3).
//
// If from is already in dictionary mode, or adding the property would
// exceed MaxInObjectSlots, the result is a (possibly new) dictionary
// shape instead of a transition.
func (t *Table) AddProperty(from ID, name string, attrs Attr) ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	fromShape := t.shapes[from]
	if fromShape.kind == KindDictionary {
		return t.dictionaryAdd(fromShape, name, attrs)
	}
	if _, exists := fromShape.byName[name]; exists {
		// Redefining an existing property in place never changes shape;
		// callers that change attributes go through Reconfigure instead.
		return from
	}
	if int(fromShape.slots) >= MaxInObjectSlots {
		return t.toDictionary(fromShape, name, attrs)
	}

	key := TransitionKey{Name: name, Attrs: attrs}
	edge := transitionEdge{from: from, key: key}
	if existing, ok := t.transition[edge]; ok {
		return existing // I1 + I4 (shape monotonicity): reuse, never duplicate
	}

	next := &Shape{
		kind:     KindTransitioning,
		parent:   from,
		proto:    fromShape.proto,
		byName:   make(map[string]*PropertyDesc, len(fromShape.byName)+1),
		ordered:  make([]*PropertyDesc, len(fromShape.ordered), len(fromShape.ordered)+1),
		slots:    fromShape.slots + 1,
		elemKind: fromShape.elemKind,
	}
	copy(next.ordered, fromShape.ordered)
	for k, v := range fromShape.byName {
		next.byName[k] = v
	}
	desc := &PropertyDesc{Name: name, Offset: fromShape.slots, Attrs: attrs}
	next.byName[name] = desc
	next.ordered = append(next.ordered, desc)

	id := t.publish(next)
	t.transition[edge] = id
	return id
}

// toDictionary migrates a transitioning shape into dictionary mode, either
// because a property is being deleted, an attribute is being reconfigured
// to/from accessor, or the in-object slot budget is exhausted.
func (t *Table) toDictionary(from *Shape, addName string, addAttrs Attr) ID {
	next := &Shape{
		kind:  KindDictionary,
		proto: from.proto,
		dict:  make(map[string]*PropertyDesc, len(from.byName)+1),
	}
	for k, v := range from.byName {
		cp := *v
		next.dict[k] = &cp
	}
	if addName != "" {
		next.dict[addName] = &PropertyDesc{Name: addName, Attrs: addAttrs}
	}
	return t.publish(next)
}

func (t *Table) dictionaryAdd(from *Shape, name string, attrs Attr) ID {
	// Dictionary shapes are forbidden from transitioning further (spec
	// §4.C); an object already in dictionary mode just grows its own
	// hash table without a shape change at all. Callers that need a
	// fresh dictionary shape (e.g. after first entering dictionary mode)
	// go through toDictionary instead.
	from.dict[name] = &PropertyDesc{Name: name, Attrs: attrs}
	return from.id
}

// Delete removes a property, transitioning to dictionary mode per spec
// §4.C ("deleting a property ... transitions the object to a dictionary
// mode").
func (t *Table) Delete(from ID, name string) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	fromShape := t.shapes[from]
	if fromShape.kind == KindDictionary {
		delete(fromShape.dict, name)
		return from
	}
	id := t.toDictionary(fromShape, "", 0)
	delete(t.shapes[id].dict, name)
	return id
}

// Reconfigure changes a property's attributes. Converting a data property
// to an accessor (or vice versa) forces dictionary mode; any other
// attribute change also forces dictionary mode in this implementation too,
// the simpler always-dictionary path rather than adding a second
// transition axis.
func (t *Table) Reconfigure(from ID, name string, attrs Attr) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	fromShape := t.shapes[from]
	if fromShape.kind == KindDictionary {
		if d, ok := fromShape.dict[name]; ok {
			d.Attrs = attrs
		}
		return from
	}
	nextID := t.toDictionary(fromShape, "", 0)
	if d, ok := t.shapes[nextID].dict[name]; ok {
		d.Attrs = attrs
	}
	return nextID
}

// WithElementKind returns a shape identical to from but tagged with a more
// (or equally) general array element kind, per the fixed generality order.
// Array shapes are cached per (from, kind) the same way property
// transitions are, so repeated widenings to the same kind share a shape.
func (t *Table) WithElementKind(from ID, kind ElementKind) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	fromShape := t.shapes[from]
	generalized := Generalize(fromShape.elemKind, kind)
	if generalized == fromShape.elemKind {
		return from
	}
	key := TransitionKey{Name: "@@elem", Attrs: Attr(generalized)}
	edge := transitionEdge{from: from, key: key}
	if existing, ok := t.transition[edge]; ok {
		return existing
	}
	next := *fromShape
	next.elemKind = generalized
	id := t.publish(&next)
	t.transition[edge] = id
	return id
}
