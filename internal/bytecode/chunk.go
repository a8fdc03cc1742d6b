package bytecode

import "corevm/internal/value"

// Position records a source location for one instruction, kept parallel to
// Code. It stores only line/column; a Chunk already belongs to exactly one
// function and one source file, recorded once on the Chunk itself.
type Position struct {
	Line   int
	Column int
}

// Chunk holds one function's compiled code: the instruction stream, its
// constant pool, a parallel source-position table, and the sizing the
// interpreter/baseline tier need to set up a call (register count,
// feedback-vector size).
type Chunk struct {
	Code      []Instruction
	Positions []Position
	Constants []value.Value

	SourceFile string
	Name       string

	NumRegisters int
	NumParams    int
	IsVariadic   bool
	IsGenerator  bool
	IsAsync      bool

	// FeedbackSize is the number of inline-cache slots this function's
	// code references; the compiler assigns one slot per cacheable site
	// (property access, call site) as it emits code.
	FeedbackSize int

	// PropertyKeys is carried by the serialized form, but the compiler
	// never fills it: GetProp/SetProp are two-word macro-ops whose second
	// word's C operand already holds the property name's constant index.
	PropertyKeys []int

	// UpvalueDescs describes how each of this function's upvalues is
	// captured from the enclosing scope.
	UpvalueDescs []UpvalueDesc

	// Handlers is the try/catch/finally region table; OpPushTry/OpPopTry
	// reference entries by index instead of packing both PCs into one
	// instruction's limited operand bits.
	Handlers []Handler
}

// Handler describes one try/catch/finally region, looked up by the index
// OpPushTry/OpPopTry's Bx operand names. Catch/finally targets are PCs
// resolved once the compiler has emitted both bodies; ExcReg is the
// register the interpreter stores the thrown value into before
// transferring control to CatchPC.
type Handler struct {
	HasCatch   bool
	CatchPC    int
	HasFinally bool
	FinallyPC  int
	ExcReg     uint8
}

// AddHandler reserves a handler-table slot, returning its index so the
// compiler can patch CatchPC/FinallyPC in once both are known.
func (c *Chunk) AddHandler() int {
	c.Handlers = append(c.Handlers, Handler{})
	return len(c.Handlers) - 1
}

// UpvalueDesc describes one captured variable: either a local register in
// the immediately enclosing function (IsLocal true) or an upvalue already
// captured by that enclosing function (IsLocal false, Index indexes its
// Upvalues slice).
type UpvalueDesc struct {
	Index   uint8
	IsLocal bool
}

// NewChunk creates an empty chunk for a function with the given name and
// source file, ready for the compiler to append to.
func NewChunk(name, sourceFile string) *Chunk {
	return &Chunk{
		Name:       name,
		SourceFile: sourceFile,
		Constants:  make([]value.Value, 0, 8),
	}
}

// Emit appends one instruction with its source position and returns its PC.
func (c *Chunk) Emit(instr Instruction, pos Position) int {
	c.Code = append(c.Code, instr)
	c.Positions = append(c.Positions, pos)
	return len(c.Code) - 1
}

// Patch overwrites the instruction at pc, used to back-patch jump targets
// once the compiler knows the destination.
func (c *Chunk) Patch(pc int, instr Instruction) {
	c.Code[pc] = instr
}

// AddConstant interns v in the constant pool, returning its index. Callers
// that want structural constant deduplication (identical string/number
// literals sharing a slot) are responsible for checking first; Chunk itself
// always appends without deduplicating.
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// PositionAt returns the source position recorded for pc, or the zero
// Position if pc is out of range.
func (c *Chunk) PositionAt(pc int) Position {
	if pc < 0 || pc >= len(c.Positions) {
		return Position{}
	}
	return c.Positions[pc]
}

// AllocFeedbackSlot reserves the next inline-cache feedback slot and
// returns its index.
func (c *Chunk) AllocFeedbackSlot() int {
	idx := c.FeedbackSize
	c.FeedbackSize++
	return idx
}
