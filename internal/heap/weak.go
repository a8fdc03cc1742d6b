package heap

import "corevm/internal/value"

// WeakRef holds a referent without keeping it alive. After a collection in
// which the referent was proven dead, Deref returns the absent-value
// sentinel (value.Undefined, false).
type WeakRef struct {
	h        *Heap
	target   Traceable
	original value.Value
}

// NewWeakRef wraps v (which must be a heap pointer) in a WeakRef that does
// not keep v's referent alive.
func (h *Heap) NewWeakRef(v value.Value) *WeakRef {
	return &WeakRef{h: h, target: h.resolveTarget(v), original: v}
}

// Deref returns the referent if it is still alive, or (Undefined, false) if
// the collector has proven it dead.
func (w *WeakRef) Deref() (value.Value, bool) {
	w.h.mu.Lock()
	defer w.h.mu.Unlock()
	if w.target == nil {
		return value.Undefined, false
	}
	if w.target.Head().gen == Old {
		if _, alive := w.h.old[w.target]; !alive {
			return value.Undefined, false
		}
	} else {
		alive := false
		for _, o := range w.h.fromSpace {
			if o == w.target {
				alive = true
				break
			}
		}
		if !alive {
			return value.Undefined, false
		}
	}
	return w.original, true
}

// finalizer pairs a target with the microtask-enqueue callback to invoke
// once the target is proven unreachable.
type finalizer struct {
	target   Traceable
	callback func(heldValue value.Value)
	held     value.Value
}

// FinalizationRegistry mirrors the JS FinalizationRegistry primitive: each
// registration's cleanup callback is enqueued as a microtask once its
// target is collected, never invoked during GC itself.
type FinalizationRegistry struct {
	h       *Heap
	entries []*finalizer
}

// NewFinalizationRegistry creates a registry whose enqueue function posts
// cleanup work to the host's microtask queue; the engine package wires
// enqueue to eventloop.Loop.EnqueueMicrotask.
func (h *Heap) NewFinalizationRegistry() *FinalizationRegistry {
	fr := &FinalizationRegistry{h: h}
	h.registries = append(h.registries, fr)
	return fr
}

// Register records target (a heap value) with a held value passed back to
// callback when target becomes unreachable.
func (fr *FinalizationRegistry) Register(target, held value.Value, callback func(value.Value)) {
	fr.entries = append(fr.entries, &finalizer{
		target:   fr.h.resolveTarget(target),
		callback: callback,
		held:     held,
	})
}

// PendingCleanup is drained by the engine/event loop after each GC cycle;
// it never runs callbacks itself (callbacks must not run during GC).
func (fr *FinalizationRegistry) PendingCleanup() []func() {
	var due []func()
	remaining := fr.entries[:0]
	for _, f := range fr.entries {
		if fr.h.isDead(f.target) {
			cb, held := f.callback, f.held
			due = append(due, func() { cb(held) })
		} else {
			remaining = append(remaining, f)
		}
	}
	fr.entries = remaining
	return due
}

func (h *Heap) isDead(t Traceable) bool {
	if t == nil {
		return false
	}
	if t.Head().gen == Old {
		_, alive := h.old[t]
		return !alive
	}
	for _, o := range h.fromSpace {
		if o == t {
			return false
		}
	}
	return true
}

func (h *Heap) enqueueFinalizer(t Traceable) {
	h.deadThisCycle = append(h.deadThisCycle, t)
}

// runFinalizers posts due finalization callbacks to the registered sink
// (set by the engine). It is called at the end of each collection, but the
// sink only *enqueues* a microtask; it must never execute user code here.
func (h *Heap) runFinalizers() {
	if h.finalizationSink == nil || len(h.registries) == 0 {
		h.deadThisCycle = h.deadThisCycle[:0]
		return
	}
	for _, fr := range h.registries {
		for _, cb := range fr.PendingCleanup() {
			h.finalizationSink(cb)
		}
	}
	h.deadThisCycle = h.deadThisCycle[:0]
}

// SetFinalizationSink installs the callback used to enqueue finalizer
// cleanups as microtasks.
func (h *Heap) SetFinalizationSink(sink func(func())) { h.finalizationSink = sink }
