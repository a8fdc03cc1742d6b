package bytecode

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"corevm/internal/value"
)

// cacheFormatVersion is bumped whenever the on-disk encoding changes
// incompatibly; Deserialize refuses anything else.
const cacheFormatVersion uint32 = 1

const (
	constTagUndefined byte = iota
	constTagNull
	constTagBool
	constTagNumber
	constTagString
)

// ErrUnserializable is returned by Serialize when chunk's constant pool
// holds something the cache format has no encoding for; today that
// means any pointer-tagged constant besides an interned string (a nested
// function constant for a closure literal, most commonly). Tiered code
// (CompiledBaseline/CompiledOptimized) is never part of a Chunk itself,
// so there is nothing to strip there; it simply never round-trips because
// FunctionObject, not Chunk, holds those fields.
var ErrUnserializable = errors.New("bytecode: constant pool is not serializable")

// Serialize writes chunk's format-version header, code stream, constant
// pool, and feedback-vector sizing to w; everything a fresh
// object.NewFunctionObject needs to run again without recompiling from
// source. It deliberately does not persist the chunk's Handlers/
// UpvalueDescs positions beyond what's needed to re-run correctly; debug
// positions round-trip too, since a cached function should still produce
// the same stack traces as a freshly compiled one.
func Serialize(w io.Writer, chunk *Chunk) error {
	for _, c := range chunk.Constants {
		if value.IsPointer(c) {
			if _, ok := asInternedString(c); !ok {
				return ErrUnserializable
			}
		}
	}
	bw := bufio.NewWriter(w)
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], cacheFormatVersion)
	if _, err := bw.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "bytecode: writing cache header")
	}
	writeString(bw, chunk.Name)
	writeString(bw, chunk.SourceFile)
	writeUint32(bw, uint32(chunk.NumRegisters))
	writeUint32(bw, uint32(chunk.NumParams))
	writeBool(bw, chunk.IsVariadic)
	writeBool(bw, chunk.IsGenerator)
	writeBool(bw, chunk.IsAsync)
	writeUint32(bw, uint32(chunk.FeedbackSize))

	writeUint32(bw, uint32(len(chunk.Code)))
	for _, instr := range chunk.Code {
		writeUint32(bw, uint32(instr))
	}
	writeUint32(bw, uint32(len(chunk.Positions)))
	for _, p := range chunk.Positions {
		writeUint32(bw, uint32(p.Line))
		writeUint32(bw, uint32(p.Column))
	}
	writeUint32(bw, uint32(len(chunk.Constants)))
	for _, c := range chunk.Constants {
		writeConstant(bw, c)
	}
	writeUint32(bw, uint32(len(chunk.PropertyKeys)))
	for _, k := range chunk.PropertyKeys {
		writeUint32(bw, uint32(k))
	}
	writeUint32(bw, uint32(len(chunk.UpvalueDescs)))
	for _, u := range chunk.UpvalueDescs {
		bw.WriteByte(u.Index)
		writeBool(bw, u.IsLocal)
	}
	writeUint32(bw, uint32(len(chunk.Handlers)))
	for _, h := range chunk.Handlers {
		writeBool(bw, h.HasCatch)
		writeUint32(bw, uint32(h.CatchPC))
		writeBool(bw, h.HasFinally)
		writeUint32(bw, uint32(h.FinallyPC))
		bw.WriteByte(h.ExcReg)
	}
	return errors.Wrap(bw.Flush(), "bytecode: flushing cache")
}

// Deserialize reads back a Chunk written by Serialize, rejecting anything
// not stamped with the current cacheFormatVersion rather than guessing at
// an older layout.
func Deserialize(r io.Reader) (*Chunk, error) {
	br := bufio.NewReader(r)
	var hdr [4]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "bytecode: reading cache header")
	}
	if v := binary.LittleEndian.Uint32(hdr[:]); v != cacheFormatVersion {
		return nil, errors.Errorf("bytecode: cache format version %d unsupported (want %d)", v, cacheFormatVersion)
	}
	chunk := &Chunk{}
	chunk.Name = readString(br)
	chunk.SourceFile = readString(br)
	chunk.NumRegisters = int(readUint32(br))
	chunk.NumParams = int(readUint32(br))
	chunk.IsVariadic = readBool(br)
	chunk.IsGenerator = readBool(br)
	chunk.IsAsync = readBool(br)
	chunk.FeedbackSize = int(readUint32(br))

	n := readUint32(br)
	chunk.Code = make([]Instruction, n)
	for i := range chunk.Code {
		chunk.Code[i] = Instruction(readUint32(br))
	}
	n = readUint32(br)
	chunk.Positions = make([]Position, n)
	for i := range chunk.Positions {
		chunk.Positions[i] = Position{Line: int(readUint32(br)), Column: int(readUint32(br))}
	}
	n = readUint32(br)
	chunk.Constants = make([]value.Value, n)
	for i := range chunk.Constants {
		chunk.Constants[i] = readConstant(br)
	}
	n = readUint32(br)
	chunk.PropertyKeys = make([]int, n)
	for i := range chunk.PropertyKeys {
		chunk.PropertyKeys[i] = int(readUint32(br))
	}
	n = readUint32(br)
	chunk.UpvalueDescs = make([]UpvalueDesc, n)
	for i := range chunk.UpvalueDescs {
		idx, _ := br.ReadByte()
		chunk.UpvalueDescs[i] = UpvalueDesc{Index: idx, IsLocal: readBool(br)}
	}
	n = readUint32(br)
	chunk.Handlers = make([]Handler, n)
	for i := range chunk.Handlers {
		h := Handler{}
		h.HasCatch = readBool(br)
		h.CatchPC = int(readUint32(br))
		h.HasFinally = readBool(br)
		h.FinallyPC = int(readUint32(br))
		eb, _ := br.ReadByte()
		h.ExcReg = eb
		chunk.Handlers[i] = h
	}
	return chunk, nil
}

// asInternedString is the seam Serialize uses to recognize a
// pointer-tagged string constant without importing object (which already
// imports this package for Chunk), set by the object package at init.
var asInternedString = func(value.Value) (string, bool) { return "", false }

// SetStringRecognizer lets object install asInternedString once, at
// package init, avoiding an import cycle.
func SetStringRecognizer(f func(value.Value) (string, bool)) { asInternedString = f }

func writeConstant(w *bufio.Writer, v value.Value) {
	switch {
	case value.IsUndefined(v):
		w.WriteByte(constTagUndefined)
	case value.IsNull(v):
		w.WriteByte(constTagNull)
	case value.IsBool(v):
		w.WriteByte(constTagBool)
		writeBool(w, value.AsBool(v))
	case value.IsPointer(v):
		w.WriteByte(constTagString)
		s, _ := asInternedString(v)
		writeString(w, s)
	default:
		w.WriteByte(constTagNumber)
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		w.Write(buf[:])
	}
}

func readConstant(r *bufio.Reader) value.Value {
	tag, _ := r.ReadByte()
	switch tag {
	case constTagUndefined:
		return value.Undefined
	case constTagNull:
		return value.Null
	case constTagBool:
		return value.Bool(readBool(r))
	case constTagString:
		return internString(readString(r))
	default:
		var buf [8]byte
		io.ReadFull(r, buf[:])
		return value.Value(binary.LittleEndian.Uint64(buf[:]))
	}
}

// internString is the seam object.Intern is installed into, mirroring
// asInternedString's direction but for reconstruction.
var internString = func(s string) value.Value { return value.Undefined }

// SetStringInterner lets object install internString at package init.
func SetStringInterner(f func(string) value.Value) { internString = f }

func writeString(w *bufio.Writer, s string) {
	writeUint32(w, uint32(len(s)))
	w.WriteString(s)
}

func readString(r *bufio.Reader) string {
	n := readUint32(r)
	buf := make([]byte, n)
	io.ReadFull(r, buf)
	return string(buf)
}

func writeUint32(w *bufio.Writer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}

func readUint32(r *bufio.Reader) uint32 {
	var buf [4]byte
	io.ReadFull(r, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func writeBool(w *bufio.Writer, b bool) {
	if b {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

func readBool(r *bufio.Reader) bool {
	b, _ := r.ReadByte()
	return b != 0
}
