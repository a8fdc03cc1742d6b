package object

import (
	"corevm/internal/diag"
	"corevm/internal/value"
)

// init wires this package's error constructor into diag's NewErrorValue
// seam, so a native TypeError/ReferenceError/RangeError/SyntaxError gets a
// real script-visible object instead of an empty Thrown.Value; the same
// one-way seam string.go's init uses for the bytecode cache.
func init() {
	diag.NewErrorValue = newErrorObject
}

// newErrorObject builds a plain object with `name` and `message` own
// properties, mirroring the {name, message, stack} shape ECMAScript's
// Error.prototype exposes. There is no Error.prototype chain here (no
// global object/builtins wiring exists yet for one to delegate to), so the
// object's Proto is null and `name`/`message` are simply own data
// properties instead of an own `message` shadowing a shared `name`; close
// enough for diagnostics and for script code that just reads err.message.
func newErrorObject(kind, message string) value.Value {
	o := NewPlainObject(value.Null, 0)
	o.Set("name", NewStringValue(kind))
	o.Set("message", NewStringValue(message))
	return ToValue(o)
}
