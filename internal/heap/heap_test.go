package heap

import (
	"testing"
	"unsafe"

	"corevm/internal/value"
)

// cell is a minimal Traceable for exercising the collector without
// depending on the object package (which would import heap back).
type cell struct {
	Header
	ref value.Value
}

func (c *cell) Head() *Header                  { return &c.Header }
func (c *cell) Trace(visit func(*value.Value)) { visit(&c.ref) }

// The object package normally installs ResolveTraceable (heap.go) at
// program init via object.Bind; these tests stand in for that wiring with
// their own minimal Traceable kind so this package's tests never need to
// import object (which itself imports heap).
func init() {
	ResolveTraceable = func(v value.Value) Traceable {
		if !value.IsPointer(v) {
			return nil
		}
		return (*cell)(value.Pointer(v))
	}
}

func newCell(h *Heap) *cell {
	c := &cell{Header: NewHeader(8)}
	h.Allocate(c)
	return c
}

type fakeRoot struct {
	slots []*value.Value
}

func (r *fakeRoot) GCRoots() []*value.Value { return r.slots }

func newTestHeap(nursery int, promotionAge uint8) *Heap {
	h := New(Config{NurseryObjects: nursery, PromotionAge: promotionAge})
	return h
}

// GC soundness: root-reachable objects survive a minor collection;
// unreachable ones are dropped.
func TestMinorGCSoundness(t *testing.T) {
	h := newTestHeap(1000, 1)
	defer h.Close()

	rooted := newCell(h)
	root := &fakeRoot{slots: []*value.Value{}}
	ref := value.FromPointer(unsafe.Pointer(rooted))
	root.slots = append(root.slots, &ref)
	h.AddRoot(root)

	_ = newCell(h) // unreachable garbage
	_ = newCell(h)

	h.mu.Lock()
	h.minorLocked()
	h.mu.Unlock()

	found := false
	for _, o := range h.fromSpace {
		if o == Traceable(rooted) {
			found = true
		}
	}
	if !found && rooted.Head().gen != Old {
		t.Fatal("rooted object should survive a minor collection (in nursery or promoted)")
	}
	if len(h.fromSpace) > 1 {
		t.Fatalf("unreachable objects should be collected, fromSpace has %d survivors", len(h.fromSpace))
	}
}

// Minor GC promotion: an object that survives enough minor collections is
// promoted to the old generation.
func TestPromotionAfterAges(t *testing.T) {
	h := newTestHeap(1000, 2)
	defer h.Close()

	rooted := newCell(h)
	root := &fakeRoot{}
	ref := value.FromPointer(unsafe.Pointer(rooted))
	root.slots = []*value.Value{&ref}
	h.AddRoot(root)

	h.mu.Lock()
	h.minorLocked()
	h.mu.Unlock()
	if rooted.Head().gen == Old {
		t.Fatal("object should not be promoted before reaching PromotionAge")
	}
	h.mu.Lock()
	h.minorLocked()
	h.mu.Unlock()
	if rooted.Head().gen != Old {
		t.Fatal("object should be promoted once it reaches PromotionAge")
	}
}

// Write barrier completeness: storing a young pointer into an old object
// records the holder in the remembered set before the next minor GC.
func TestWriteBarrierRemembersOldToYoung(t *testing.T) {
	h := newTestHeap(1000, 1)
	defer h.Close()

	old := newCell(h)
	old.Head().gen = Old
	h.old[Traceable(old)] = struct{}{}
	delete(h.ageOf, Traceable(old))

	young := newCell(h)
	youngVal := value.FromPointer(unsafe.Pointer(young))

	h.WriteBarrier(old, &old.ref, youngVal)

	if _, remembered := h.remembered[Traceable(old)]; !remembered {
		t.Fatal("write barrier should record an old object that now holds a young pointer")
	}
}

func TestMajorGCReclaimsDeadOldObjects(t *testing.T) {
	h := newTestHeap(1000, 0)
	defer h.Close()

	live := newCell(h)
	live.Head().gen = Old
	h.old[Traceable(live)] = struct{}{}
	dead := newCell(h)
	dead.Head().gen = Old
	h.old[Traceable(dead)] = struct{}{}

	root := &fakeRoot{}
	ref := value.FromPointer(unsafe.Pointer(live))
	root.slots = []*value.Value{&ref}
	h.AddRoot(root)

	h.mu.Lock()
	h.majorLocked()
	h.mu.Unlock()

	if _, ok := h.old[Traceable(live)]; !ok {
		t.Fatal("root-reachable old object should survive a major collection")
	}
	if _, ok := h.old[Traceable(dead)]; ok {
		t.Fatal("unreachable old object should be reclaimed by a major collection")
	}
}

func TestStatsString(t *testing.T) {
	var s Stats
	s.BytesLive = 2048
	if got := s.String(); got == "" {
		t.Fatal("Stats.String() should not be empty")
	}
}
