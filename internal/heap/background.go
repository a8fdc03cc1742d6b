package heap

import (
	"context"
	"time"

	"corevm/internal/value"
)

// backgroundInterval is how often the marker goroutine checks whether
// enough old-generation pressure has built up to justify an incremental
// marking slice.
const backgroundInterval = 2 * time.Millisecond

// startBackgroundMarker launches the goroutine that performs incremental
// old-generation marking work between safepoints, supervised with an
// errgroup rather than a bespoke stop channel.
func (h *Heap) startBackgroundMarker() {
	h.bgGroup.Go(func() error {
		ticker := time.NewTicker(backgroundInterval)
		defer ticker.Stop()
		for {
			select {
			case <-h.bgCtx.Done():
				return nil
			case <-ticker.C:
				h.markSlice()
			}
		}
	})
}

// markSlice drains a bounded amount of the mark stack accumulated by
// WriteBarrier's duty 2 (shading newly-reachable objects gray). It never
// blocks on h.mu for long: a fixed budget per tick keeps the mutator's
// stop-the-world pauses limited to the safepoint checks in CheckSafepoint.
func (h *Heap) markSlice() {
	const budget = 256
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := 0; i < budget && len(h.markStack) > 0; i++ {
		obj := h.markStack[len(h.markStack)-1]
		h.markStack = h.markStack[:len(h.markStack)-1]
		if _, done := h.blackSet[obj]; done {
			continue
		}
		h.blackSet[obj] = struct{}{}
		obj.Trace(func(slot *value.Value) {
			if target := h.resolveTarget(*slot); target != nil {
				if _, done := h.blackSet[target]; !done {
					h.markStack = append(h.markStack, target)
				}
			}
		})
	}
}
