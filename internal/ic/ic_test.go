package ic

import "testing"

// IC progression: no state regresses, and a megamorphic slot stays
// megamorphic.
func TestSlotProgression(t *testing.T) {
	var s Slot
	if s.State() != Uninitialized {
		t.Fatalf("fresh slot should start Uninitialized, got %v", s.State())
	}

	s.Record(1, 0, 4)
	if s.State() != Monomorphic {
		t.Fatalf("after first Record, state = %v, want Monomorphic", s.State())
	}

	s.Record(2, 0, 8)
	if s.State() != Polymorphic {
		t.Fatalf("after second distinct shape, state = %v, want Polymorphic", s.State())
	}

	s.Record(3, 0, 12)
	s.Record(4, 0, 16)
	s.Record(5, 0, 20) // fifth distinct shape overflows the 4-entry cap
	if s.State() != Megamorphic {
		t.Fatalf("after exceeding the polymorphic cap, state = %v, want Megamorphic", s.State())
	}

	// Once megamorphic, further observations (even of shapes already seen)
	// must never move the slot backward.
	s.Record(1, 0, 4)
	if s.State() != Megamorphic {
		t.Fatal("megamorphic slot regressed after another Record")
	}
}

func TestLookupHitAndMiss(t *testing.T) {
	var s Slot
	s.Record(7, 0, 32)

	if off, ok := s.Lookup(7, 0); !ok || off != 32 {
		t.Fatalf("Lookup(7, epoch 0) = (%d, %v), want (32, true)", off, ok)
	}
	if _, ok := s.Lookup(7, 1); ok {
		t.Fatal("Lookup with a stale epoch should miss")
	}
	if _, ok := s.Lookup(99, 0); ok {
		t.Fatal("Lookup for an unrecorded shape should miss")
	}
}

func TestFeedbackVectorIndependentSlots(t *testing.T) {
	fv := NewFeedbackVector(3)
	fv.Slot(0).Record(1, 0, 10)
	fv.Slot(1).Record(2, 0, 20)

	if fv.Slot(0).State() != Monomorphic {
		t.Fatal("slot 0 should be monomorphic")
	}
	if fv.Slot(2).State() != Uninitialized {
		t.Fatal("slot 2 was never touched, should stay Uninitialized")
	}
}

func TestResetClearsSlot(t *testing.T) {
	var s Slot
	s.Record(1, 0, 4)
	s.Reset()
	if s.State() != Uninitialized {
		t.Fatal("Reset should return the slot to Uninitialized")
	}
	if _, ok := s.Lookup(1, 0); ok {
		t.Fatal("Reset should clear recorded entries")
	}
}
