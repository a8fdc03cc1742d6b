package object

import "corevm/internal/value"

// conversions implements value.HeapConversions, the seam the value package
// uses to reach object data without importing this package.
type conversions struct{}

func (conversions) StringOf(v value.Value) (string, bool) {
	return AsString(v)
}

// DefaultToPrimitive implements OrdinaryToPrimitive for the kinds that never
// need to invoke user-defined valueOf/toString: strings return themselves
// and arrays their joined string form; every other object returns
// ok=false, and no caller looks for or invokes a valueOf/toString on it.
func (conversions) DefaultToPrimitive(v value.Value, hint value.PrimitiveHint) (value.Value, bool) {
	switch KindOf(v) {
	case KindString:
		return v, true
	case KindArray:
		arr := fromPointer(v).(*ArrayObject)
		return NewStringValue(joinArray(arr)), true
	default:
		return value.Undefined, false
	}
}

func joinArray(arr *ArrayObject) string {
	out := ""
	for i, v := range arr.Elements {
		if i > 0 {
			out += ","
		}
		if !value.IsNullish(v) {
			out += value.ToStringPrimitive(v)
		}
	}
	return out
}

// IsTruthyObject implements ToBoolean for heap objects: always true in
// ECMAScript (there are no falsy objects, unlike some embedded-host
// surfaces), matching spec testable property 2's closed falsy-value list.
func (conversions) IsTruthyObject(value.Value) bool { return true }

// SameValueObject compares two heap-object values by identity, the
// ECMAScript default for SameValue over object types.
func (conversions) SameValueObject(a, b value.Value) bool {
	return value.Pointer(a) == value.Pointer(b)
}
