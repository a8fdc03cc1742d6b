package value

import (
	"math"
	"strconv"
	"strings"
)

// PrimitiveHint guides ToPrimitive's valueOf/toString ordering (ECMA
// OrdinaryToPrimitive).
type PrimitiveHint uint8

const (
	HintDefault PrimitiveHint = iota
	HintNumber
	HintString
)

// HeapConversions is the seam this package uses to reach heap-object data
// (string contents, array joins) without importing the object or interp
// packages, which both depend on value; a direct import would cycle. The
// object package installs its implementation from object.Bind. Nothing
// extends it with user-code invocation: a script-defined valueOf/toString
// is never called by any conversion in this core.
type HeapConversions interface {
	// StringOf returns the UTF-16-code-unit-agnostic Go string content of
	// a string-kind heap value.
	StringOf(v Value) (string, bool)
	// DefaultToPrimitive attempts ECMA OrdinaryToPrimitive without
	// invoking arbitrary user code: strings and arrays resolve here;
	// every other object returns ok=false, and callers then fall back to
	// a fixed result (NaN, "[object Object]") or panic, without invoking
	// any script-defined valueOf/toString.
	DefaultToPrimitive(v Value, hint PrimitiveHint) (Value, bool)
	// IsTruthyObject reports ToBoolean for a heap object (always true in
	// ECMAScript, but routed through the interface so value stays
	// independent of the object package's type switch).
	IsTruthyObject(v Value) bool
	// SameValueObject compares two heap-object values for SameValue /
	// SameValueZero identity (pointer equality, or deep equality for
	// value-like heap types such as BigInt).
	SameValueObject(a, b Value) bool
}

// Heap is installed once by the object package (see object.Bind). Until
// installed it is nil; conversions on object values will panic, which is
// appropriate during the bring-up of a standalone value-package test that
// never constructs heap values.
var Heap HeapConversions

// ToBoolean implements the ECMAScript ToBoolean abstract operation (spec
// testable property 2: exactly the seven listed values are falsy).
func ToBoolean(v Value) bool {
	switch {
	case v == Undefined, v == Null:
		return false
	case IsBool(v):
		return AsBool(v)
	case IsInt(v):
		return AsInt(v) != 0
	case IsNumber(v):
		f := AsFloat(v)
		return f != 0 && !math.IsNaN(f)
	default:
		if s, ok := Heap.StringOf(v); ok {
			return s != ""
		}
		return Heap.IsTruthyObject(v)
	}
}

// ToNumber implements ToNumber for primitive values. Object values must be
// reduced to a primitive first (ToPrimitive, hint Number) by the caller;
// calling ToNumber directly on an unresolved object panics, since doing so
// silently would hide a missed ToPrimitive step.
func ToNumber(v Value) float64 {
	switch {
	case v == Undefined:
		return math.NaN()
	case v == Null:
		return 0
	case IsBool(v):
		if AsBool(v) {
			return 1
		}
		return 0
	case IsInt(v):
		return float64(AsInt(v))
	case IsNumber(v):
		return AsFloat(v)
	default:
		if s, ok := Heap.StringOf(v); ok {
			return stringToNumber(s)
		}
		panic("value: ToNumber called on unresolved object; ToPrimitive first")
	}
}

// formatFloat renders a double using ECMAScript Number::toString's common
// cases (integral values print without a decimal point; NaN/Infinity use
// their literal spellings); it does not implement the full shortest-
// round-trip-digit-string algorithm the spec mandates in its general case.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

func stringToNumber(s string) float64 {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ToInt32 implements ToInt32: ToNumber, then modulo 2^32 into signed range.
func ToInt32(v Value) int32 {
	f := toIntegralNumber(v)
	u := uint32(int64(f))
	return int32(u)
}

// ToUint32 implements ToUint32: ToNumber, then modulo 2^32, unsigned.
func ToUint32(v Value) uint32 {
	f := toIntegralNumber(v)
	return uint32(int64(f))
}

func toIntegralNumber(v Value) float64 {
	var f float64
	if IsPointer(v) {
		f = ToNumber(mustPrimitive(v, HintNumber))
	} else {
		f = ToNumber(v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return 0
	}
	return math.Trunc(f)
}

func mustPrimitive(v Value, hint PrimitiveHint) Value {
	if p, ok := Heap.DefaultToPrimitive(v, hint); ok {
		return p
	}
	panic("value: ToPrimitive of an object with no default primitive conversion")
}

// ToStringPrimitive implements ToString for a primitive value or a string
// object; any other object panics.
func ToStringPrimitive(v Value) string {
	switch {
	case v == Undefined:
		return "undefined"
	case v == Null:
		return "null"
	case IsBool(v):
		if AsBool(v) {
			return "true"
		}
		return "false"
	case IsInt(v):
		return strconv.FormatInt(AsInt(v), 10)
	case IsNumber(v):
		return formatFloat(AsFloat(v))
	default:
		if s, ok := Heap.StringOf(v); ok {
			return s
		}
		panic("value: ToStringPrimitive called on unresolved object")
	}
}

// SameValueZero implements the SameValueZero algorithm: like SameValue but
// +0 and -0 compare equal, and unlike StrictEquals (===) NaN equals NaN.
func SameValueZero(a, b Value) bool {
	if a == b {
		return true
	}
	if IsNumber(a) && IsNumber(b) {
		fa, fb := AsFloat(a), AsFloat(b)
		if math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
		return fa == fb
	}
	if numeric(a) && numeric(b) {
		return ToNumber(a) == ToNumber(b)
	}
	if IsPointer(a) && IsPointer(b) {
		if sa, ok := Heap.StringOf(a); ok {
			if sb, ok2 := Heap.StringOf(b); ok2 {
				return sa == sb
			}
			return false
		}
		return Heap.SameValueObject(a, b)
	}
	return false
}

// SameValue implements the SameValue algorithm: SameValueZero except +0
// and -0 are distinct.
func SameValue(a, b Value) bool {
	if IsNumber(a) && IsNumber(b) {
		fa, fb := AsFloat(a), AsFloat(b)
		if math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
		if fa == 0 && fb == 0 {
			return math.Signbit(fa) == math.Signbit(fb)
		}
		return fa == fb
	}
	return SameValueZero(a, b)
}

func numeric(v Value) bool { return IsInt(v) || IsNumber(v) }

// ToPropertyKey implements ToPropertyKey for the primitive cases (numbers
// and strings become string keys, matching this engine's choice to key
// all ordinary properties by string; see shape.PropertyDesc.Name). Symbol
// keys are handled by the object package, which knows how to stringify a
// symbol's unique identity without this package needing to import it.
func ToPropertyKey(v Value) string {
	if s, ok := Heap.StringOf(v); ok {
		return s
	}
	return ToStringPrimitive(v)
}

// StrictEquals implements === : SameValueZero with +0/-0 equal and without
// the NaN special case folded away; NaN !== NaN, unlike SameValueZero.
func StrictEquals(a, b Value) bool {
	if IsNumber(a) || IsInt(a) {
		if !(IsNumber(b) || IsInt(b)) {
			return false
		}
		fa, fb := ToNumber(a), ToNumber(b)
		return fa == fb // NaN != NaN falls out of IEEE-754 comparison
	}
	if a == b {
		return true
	}
	if IsPointer(a) && IsPointer(b) {
		if sa, ok := Heap.StringOf(a); ok {
			if sb, ok2 := Heap.StringOf(b); ok2 {
				return sa == sb
			}
			return false
		}
	}
	return false
}
