package heap

import (
	"time"

	"corevm/internal/value"
)

// minorLocked runs a minor (nursery) collection. Caller must hold h.mu.
//
// Traces from roots plus the remembered set; objects reached are either
// evacuated (aged) or, once they cross PromotionAge, moved straight to the
// old generation. Unreached nursery objects are simply dropped (the Go
// garbage collector reclaims the underlying struct once nothing in
// fromSpace/old/remembered references it anymore; this collector's job is
// reachability bookkeeping, not manual memory reuse).
func (h *Heap) minorLocked() {
	start := time.Now()
	if h.OnGCPause != nil {
		defer func() { h.OnGCPause(time.Since(start), false) }()
	}
	reachable := make(map[Traceable]struct{}, len(h.fromSpace))
	var stack []Traceable

	for _, r := range h.roots {
		for _, slot := range r.GCRoots() {
			if t := h.resolveTarget(*slot); t != nil {
				stack = append(stack, t)
			}
		}
	}
	for t := range h.remembered {
		stack = append(stack, t)
	}

	survivors := make([]Traceable, 0, len(h.fromSpace)/2)
	promoted := uintptr(0)

	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := reachable[obj]; seen {
			continue
		}
		reachable[obj] = struct{}{}
		if obj.Head().gen == Old {
			// Already promoted in a prior cycle; just keep tracing
			// through it for newly-young children.
			obj.Trace(func(slot *value.Value) {
				if t := h.resolveTarget(*slot); t != nil {
					stack = append(stack, t)
				}
			})
			continue
		}

		age := h.ageOf[obj] + 1
		if age >= h.promotionAge {
			obj.Head().gen = Old
			h.old[obj] = struct{}{}
			promoted += obj.Head().size
			delete(h.ageOf, obj)
		} else {
			h.ageOf[obj] = age
			survivors = append(survivors, obj)
		}

		obj.Trace(func(slot *value.Value) {
			if t := h.resolveTarget(*slot); t != nil {
				stack = append(stack, t)
			}
		})
	}

	// Anything in fromSpace not in `reachable` is garbage; drop it.
	h.fromSpace = survivors
	h.remembered = make(map[Traceable]struct{})
	for t := range h.old {
		// Re-derive the remembered set for objects that still hold young
		// pointers after this collection (some survivors were promoted
		// and may now point at other survivors still in the nursery).
		t.Trace(func(slot *value.Value) {
			if target := h.resolveTarget(*slot); target != nil && target.Head().gen == Young {
				h.remembered[t] = struct{}{}
			}
		})
	}

	h.stats.MinorCollections++
	h.stats.BytesPromoted += uint64(promoted)
	h.runFinalizers()
}

// MajorGC runs a full mark-sweep collection of the old generation, tracing
// from roots through both old and young objects (roots may point directly
// into the nursery). It is synchronous here; the background marker
// goroutine (see background.go) performs the incremental variant used
// during normal operation, with MajorGC available as the simpler
// stop-the-world fallback.
func (h *Heap) MajorGC() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.majorLocked()
}

func (h *Heap) majorLocked() {
	start := time.Now()
	if h.OnGCPause != nil {
		defer func() { h.OnGCPause(time.Since(start), true) }()
	}
	black := make(map[Traceable]struct{}, len(h.old))
	var stack []Traceable
	for _, r := range h.roots {
		for _, slot := range r.GCRoots() {
			if t := h.resolveTarget(*slot); t != nil {
				stack = append(stack, t)
			}
		}
	}
	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, done := black[obj]; done {
			continue
		}
		black[obj] = struct{}{}
		obj.Head().marked = true
		obj.Trace(func(slot *value.Value) {
			if t := h.resolveTarget(*slot); t != nil {
				stack = append(stack, t)
			}
		})
	}

	liveOld := make(map[Traceable]struct{}, len(black))
	var bytesLive uintptr
	for t := range h.old {
		if _, live := black[t]; live {
			liveOld[t] = struct{}{}
			bytesLive += t.Head().size
			t.Head().marked = false
		} else {
			h.enqueueFinalizer(t)
		}
	}
	h.old = liveOld
	h.blackSet = make(map[Traceable]struct{})
	h.stats.MajorCollections++
	h.stats.BytesLive = uint64(bytesLive)
	h.runFinalizers()
}
