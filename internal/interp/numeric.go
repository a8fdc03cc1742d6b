package interp

import (
	"math"

	"corevm/internal/object"
	"corevm/internal/value"
)

// toNumber coerces v to a float64, consulting the built-in
// OrdinaryToPrimitive path for heap objects (arrays join, strings parse).
// A script-defined valueOf/toString override is not invoked; any other
// object converts to NaN.
func toNumber(v value.Value) float64 {
	if !value.IsPointer(v) {
		return value.ToNumber(v)
	}
	if prim, ok := value.Heap.DefaultToPrimitive(v, value.HintNumber); ok {
		return value.ToNumber(prim)
	}
	return math.NaN()
}

// toStringValue coerces v to its ECMAScript string form for `+` and
// template-literal concatenation.
func toStringValue(v value.Value) string {
	if !value.IsPointer(v) {
		return value.ToStringPrimitive(v)
	}
	if s, ok := object.AsString(v); ok {
		return s
	}
	if prim, ok := value.Heap.DefaultToPrimitive(v, value.HintString); ok {
		return value.ToStringPrimitive(prim)
	}
	return "[object Object]"
}

// toPrimitive coerces v to a primitive using hint, consulting the same
// DefaultToPrimitive seam toNumber and toStringValue already use for their
// own fixed hints.
func toPrimitive(v value.Value, hint value.PrimitiveHint) value.Value {
	if !value.IsPointer(v) {
		return v
	}
	if prim, ok := value.Heap.DefaultToPrimitive(v, hint); ok {
		return prim
	}
	if hint == value.HintNumber {
		return value.Number(math.NaN())
	}
	return object.NewStringValue("[object Object]")
}

// isStringLike reports whether ToPrimitive(v) would resolve to a string
// without needing to invoke user code, used to decide `+`'s add-vs-concat
// branch (ECMA: string wins if either operand's primitive form is a
// string).
func isStringLike(v value.Value) bool {
	if !value.IsPointer(v) {
		return false
	}
	if _, ok := object.AsString(v); ok {
		return true
	}
	return false
}

// relationalCompare implements the Abstract Relational Comparison for
// OpLt/OpLe/OpGt/OpGe: lexicographic ordering when both operands are
// strings, numeric ordering otherwise. ok is false when the comparison is
// NaN, in which case every relational operator evaluates to false.
func relationalCompare(a, b value.Value) (cmp int, ok bool) {
	if isStringLike(a) && isStringLike(b) {
		as, _ := object.AsString(a)
		bs, _ := object.AsString(b)
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	an, bn := toNumber(a), toNumber(b)
	if math.IsNaN(an) || math.IsNaN(bn) {
		return 0, false
	}
	switch {
	case an < bn:
		return -1, true
	case an > bn:
		return 1, true
	default:
		return 0, true
	}
}
