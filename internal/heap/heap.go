// Package heap implements the core's generational tracing collector:
// a copying nursery, a mark-sweep old generation, and the write barrier
// that keeps the remembered set and the tri-color invariant accurate
// while the mutator runs.
package heap

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"corevm/internal/value"
)

// Generation tags an object's age.
type Generation uint8

const (
	Young Generation = iota
	Old
)

// Header is embedded as the first field of every heap-allocated object.
// Because it is always first, a *Header and the object's own pointer alias,
// so the collector can walk objects generically without knowing their
// concrete Go type.
type Header struct {
	gen       Generation
	marked    bool
	forwarded *Header // set during a minor GC evacuation; nil otherwise
	size      uintptr
}

// NewHeader constructs a Header of the given byte size for an object kind
// defined outside this package (object.Header embeds this). The generation
// and mark bits start zeroed; Allocate sets the generation when the object
// is registered.
func NewHeader(size uintptr) Header { return Header{size: size} }

// Traceable is implemented by every heap object kind so the collector can
// discover outgoing pointers without a type switch over every kind defined
// in the object package (which would make heap depend on object, inverting
// the intended layering).
type Traceable interface {
	Head() *Header
	// Trace calls visit once for every value.Value field that may hold a
	// heap pointer. Implementations must call visit even for slice
	// elements and map values.
	Trace(visit func(*value.Value))
}

// Heap owns the nursery semispaces and the old-generation object set.
type Heap struct {
	mu sync.Mutex

	// Nursery: allocation appends to fromSpace; minor GC keeps survivors
	// in fromSpace, aging them, and moves them into the old generation
	// once they reach PromotionAge.
	nurserySize  int
	promotionAge uint8
	fromSpace    []Traceable
	ageOf        map[Traceable]uint8

	old       map[Traceable]struct{}
	remembered map[Traceable]struct{} // old objects holding a young pointer (I4)

	markStack []Traceable
	blackSet  map[Traceable]struct{} // objects already scanned this cycle

	roots []RootProvider

	// safepoint is checked by the mutator at allocation sites, loop
	// back-edges, and calls. A non-zero value means a collector cycle
	// wants to run; pause here.
	safepoint int32

	stats Stats

	registries       []*FinalizationRegistry
	deadThisCycle    []Traceable
	finalizationSink func(func())

	bgGroup *errgroup.Group
	bgCtx   context.Context
	bgStop  context.CancelFunc

	// OnGCPause, when set, is called after every minor or major collection
	// with the pause's wall-clock duration. engine.Metrics installs this
	// to feed a Prometheus histogram. Left nil, collections simply aren't
	// observed.
	OnGCPause func(d time.Duration, major bool)
}

// RootProvider is implemented by any component that owns GC roots:
// interpreter frames, the global object, installed JIT code objects, and
// the event loop's pending reactions.
type RootProvider interface {
	GCRoots() []*value.Value
}

// Stats reports cumulative collector activity, surfaced to diagnostics.
type Stats struct {
	MinorCollections uint64
	MajorCollections uint64
	BytesAllocated   uint64
	BytesPromoted    uint64
	BytesLive        uint64
}

// Config tunes the heap. NurseryObjects and PromotionAge both default
// sensibly when zero.
type Config struct {
	NurseryObjects int
	PromotionAge   uint8
}

// New creates a heap with the given configuration and starts its
// background marking goroutine. Call Close to stop it.
func New(cfg Config) *Heap {
	if cfg.NurseryObjects <= 0 {
		cfg.NurseryObjects = 4096
	}
	if cfg.PromotionAge == 0 {
		cfg.PromotionAge = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	h := &Heap{
		nurserySize:  cfg.NurseryObjects,
		promotionAge: cfg.PromotionAge,
		ageOf:        make(map[Traceable]uint8),
		old:          make(map[Traceable]struct{}),
		remembered:   make(map[Traceable]struct{}),
		blackSet:     make(map[Traceable]struct{}),
		bgGroup:      g,
		bgCtx:        gctx,
		bgStop:       cancel,
	}
	h.startBackgroundMarker()
	return h
}

// AddRoot registers a root provider (a frame stack, the globals object,
// a code object's embedded-object table, or the event loop).
func (h *Heap) AddRoot(r RootProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roots = append(h.roots, r)
}

// RemoveRoot unregisters a root provider previously added with AddRoot.
// Used when a suspended coroutine (interp.Suspended) resumes and its
// frames become reachable from the active frame stack again instead, so a
// settled await does not pin a stale root forever.
func (h *Heap) RemoveRoot(r RootProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, root := range h.roots {
		if root == r {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// Allocate registers a freshly constructed object in the nursery. Callers
// construct the Go struct themselves (so they get a typed pointer back)
// and pass it here purely for GC bookkeeping, splitting "make the struct"
// from "hand it to the heap".
func (h *Heap) Allocate(obj Traceable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj.Head().gen = Young
	h.fromSpace = append(h.fromSpace, obj)
	h.ageOf[obj] = 0
	h.stats.BytesAllocated += obj.Head().size
	if len(h.fromSpace) >= h.nurserySize {
		h.minorLocked()
	}
}

// CheckSafepoint is called by the interpreter at allocation sites, loop
// back-edges, and calls. It is a passive check: if a collector cycle has
// been requested, the mutator pauses here and lets it run.
func (h *Heap) CheckSafepoint() {
	if atomic.LoadInt32(&h.safepoint) != 0 {
		h.mu.Lock()
		h.minorLocked()
		atomic.StoreInt32(&h.safepoint, 0)
		h.mu.Unlock()
	}
}

// RequestMinorGC marks the safepoint flag so the next CheckSafepoint call
// runs a minor collection. Only tests call it; the collectors do not.
func (h *Heap) RequestMinorGC() { atomic.StoreInt32(&h.safepoint, 1) }

// WriteBarrier must be called around every pointer store into a heap
// object's slot: `holder.Field = newVal` becomes
// `heap.WriteBarrier(h, holder, &holder.Field, newVal); holder.Field = newVal`.
// It performs two duties, collapsed to the fast-path single branch in the
// common case where neither duty fires.
func (h *Heap) WriteBarrier(holder Traceable, slot *value.Value, newVal value.Value) {
	if !value.IsPointer(newVal) {
		return
	}
	holderHdr := holder.Head()
	if holderHdr.gen == Old {
		// Duty 1: old-to-young pointer must be remembered (I4).
		h.mu.Lock()
		h.remembered[holder] = struct{}{}
		h.mu.Unlock()
	}
	if _, black := h.blackSet[holder]; black {
		// Duty 2: incremental/concurrent marking. Shade the newly
		// reachable object gray by pushing it on the mark stack.
		if target := h.resolveTarget(newVal); target != nil {
			h.mu.Lock()
			h.markStack = append(h.markStack, target)
			h.mu.Unlock()
		}
	}
}

// resolveTarget is a seam the object package fills in at init time so the
// heap can turn a value.Value pointer-tag into the Traceable it boxes,
// without heap importing object.
var ResolveTraceable func(value.Value) Traceable

func (h *Heap) resolveTarget(v value.Value) Traceable {
	if ResolveTraceable == nil {
		return nil
	}
	return ResolveTraceable(v)
}

// Stats returns a snapshot of collector counters.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// String renders collector counters for diagnostics logs, with byte
// counts in human-readable form:
// "3.2 MB" reads better in a log line than a raw byte count.
func (s Stats) String() string {
	return fmt.Sprintf(
		"gc[minor=%d major=%d allocated=%s promoted=%s live=%s]",
		s.MinorCollections, s.MajorCollections,
		humanize.Bytes(s.BytesAllocated), humanize.Bytes(s.BytesPromoted), humanize.Bytes(s.BytesLive),
	)
}

// Close stops the background marking goroutine.
func (h *Heap) Close() error {
	h.bgStop()
	return h.bgGroup.Wait()
}
