package value

import (
	"math"
	"testing"
)

// SMI roundtrip.
func TestSMIRoundtrip(t *testing.T) {
	cases := []int64{0, 1, -1, SMIMin, SMIMax, 1234567, -1234567}
	for _, n := range cases {
		v := Int(n)
		if !IsInt(v) {
			t.Fatalf("Int(%d) did not encode as SMI", n)
		}
		if got := AsInt(v); got != n {
			t.Errorf("Int(%d).AsInt() = %d", n, got)
		}
	}
}

func TestSMIOverflowBoxesToDouble(t *testing.T) {
	n := SMIMax + 1
	v := Int(n)
	if IsInt(v) {
		t.Fatalf("Int(%d) should overflow SMI range", n)
	}
	if !IsNumber(v) {
		t.Fatalf("Int(%d) should box to a double", n)
	}
	if got := AsFloat(v); got != float64(n) {
		t.Errorf("AsFloat() = %v, want %v", got, float64(n))
	}
}

// ToBoolean coverage: exactly the seven falsy values map to false.
func TestToBooleanFalsyValues(t *testing.T) {
	falsy := []Value{False, Int(0), Number(0), Number(math.Copysign(0, -1)), Number(math.NaN()), Undefined, Null}
	for _, v := range falsy {
		if ToBoolean(v) {
			t.Errorf("ToBoolean(%v) = true, want false", v)
		}
	}
}

func TestToBooleanTruthyValues(t *testing.T) {
	truthy := []Value{True, Int(1), Int(-1), Number(1), Number(math.Inf(1))}
	for _, v := range truthy {
		if !ToBoolean(v) {
			t.Errorf("ToBoolean(%v) = false, want true", v)
		}
	}
}

func TestTagOf(t *testing.T) {
	cases := map[Value]Tag{
		Undefined: TagUndef,
		Null:      TagNullT,
		True:      TagBoolean,
		False:     TagBoolean,
		Int(5):    TagSMI,
		Number(5.5): TagFloat,
	}
	for v, want := range cases {
		if got := TagOf(v); got != want {
			t.Errorf("TagOf(%v) = %v, want %v", v, got, want)
		}
	}
}

func TestSameValueNaNAndZero(t *testing.T) {
	nan := Number(math.NaN())
	if !SameValue(nan, nan) {
		t.Error("SameValue(NaN, NaN) should be true")
	}
	posZero, negZero := Number(0), Number(math.Copysign(0, -1))
	if SameValue(posZero, negZero) {
		t.Error("SameValue(+0, -0) should be false")
	}
	if !SameValueZero(posZero, negZero) {
		t.Error("SameValueZero(+0, -0) should be true")
	}
}

func TestToNumberPrimitives(t *testing.T) {
	cases := map[Value]float64{
		Undefined: math.NaN(),
		Null:      0,
		True:      1,
		False:     0,
		Int(42):   42,
		Number(3.5): 3.5,
	}
	for v, want := range cases {
		got := ToNumber(v)
		if math.IsNaN(want) {
			if !math.IsNaN(got) {
				t.Errorf("ToNumber(%v) = %v, want NaN", v, got)
			}
			continue
		}
		if got != want {
			t.Errorf("ToNumber(%v) = %v, want %v", v, got, want)
		}
	}
}

func TestToInt32Wraps(t *testing.T) {
	v := Number(4294967296 + 5) // 2^32 + 5
	if got := ToInt32(v); got != 5 {
		t.Errorf("ToInt32(2^32+5) = %d, want 5", got)
	}
}

func TestStrictEqualsNaN(t *testing.T) {
	nan := Number(math.NaN())
	if StrictEquals(nan, nan) {
		t.Error("NaN === NaN should be false")
	}
}

func TestIsNullish(t *testing.T) {
	if !IsNullish(Undefined) || !IsNullish(Null) {
		t.Error("IsNullish should hold for undefined and null")
	}
	if IsNullish(Int(0)) {
		t.Error("IsNullish(0) should be false")
	}
}
