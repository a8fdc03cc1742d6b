package object

import (
	"sync"

	"golang.org/x/crypto/blake2b"

	"corevm/internal/bytecode"
	"corevm/internal/heap"
	"corevm/internal/value"
)

// init wires this package's string recognizer/interner into
// bytecode.Serialize/Deserialize's constant-pool encoding seam, so the
// bytecode cache can round-trip an interned string constant without
// importing object (which already imports bytecode for Chunk).
func init() {
	bytecode.SetStringRecognizer(AsString)
	bytecode.SetStringInterner(NewStringValue)
}

// StringObject is an interned, immutable string. The interning table key is
// the first 16 bytes of a blake2b-256 sum of the string's content rather than a cheaper rolling
// hash, trading a little CPU for a much lower collision rate.
type StringObject struct {
	Header
	Str  string
	Hash [16]byte
}

// ObjectKind implements Object.
func (s *StringObject) ObjectKind() Kind { return KindString }

// Trace implements heap.Traceable; strings hold no outgoing pointers.
func (s *StringObject) Trace(func(*value.Value)) {}

var internTable = struct {
	mu sync.RWMutex
	m  map[[16]byte]*StringObject
}{m: make(map[[16]byte]*StringObject)}

// Intern returns the shared StringObject for s, allocating one only the
// first time a given string content is seen. Strings compare by content;
// interning makes that comparison pointer-equality for the common case of
// repeated literals and property keys.
func Intern(s string) *StringObject {
	h := blake2b.Sum256([]byte(s))
	var key [16]byte
	copy(key[:], h[:16])

	internTable.mu.RLock()
	if existing, ok := internTable.m[key]; ok {
		internTable.mu.RUnlock()
		return existing
	}
	internTable.mu.RUnlock()

	internTable.mu.Lock()
	defer internTable.mu.Unlock()
	if existing, ok := internTable.m[key]; ok {
		return existing
	}
	obj := &StringObject{
		Header: Header{Header: heap.NewHeader(uintptr(32 + len(s))), Kind: KindString},
		Str:    s,
		Hash:   key,
	}
	Heap.Allocate(obj)
	internTable.m[key] = obj
	return obj
}

// NewStringValue boxes a Go string as a pointer-tagged Value.
func NewStringValue(s string) value.Value {
	return toValue(Intern(s))
}

// AsString extracts the Go string content from a string-kind Value.
func AsString(v value.Value) (string, bool) {
	if !value.IsPointer(v) {
		return "", false
	}
	p := value.Pointer(v)
	h := (*Header)(p)
	if h.Kind != KindString {
		return "", false
	}
	return ((*StringObject)(p)).Str, true
}
