// Package bytecode defines the register-based instruction set the compiler
// emits and the interpreter/baseline JIT execute, plus the Chunk container
// that holds a function's code, constants, and per-instruction debug
// positions.
//
// Each instruction is a 32-bit word with an 8-bit opcode and either three
// 8-bit register operands (iABC), one 8-bit register plus a 16-bit index
// (iABx), one 8-bit register plus a signed 16-bit offset (iAsBx), or a
// single 24-bit operand (iAx). The opcode catalogue is built around JS
// semantics: property access through inline-cache slots, closures/
// upvalues, try/catch/finally unwinding, generator suspension.
package bytecode

// Instruction is a single 32-bit encoded bytecode word.
type Instruction uint32

const (
	posA = 8
	posB = 16
	posC = 24

	maskOp = 0xFF
	maskA  = 0xFF
	maskB  = 0xFF
	maskC  = 0xFF
	maskBx = 0xFFFF

	maxArgSBx = maskBx >> 1
)

// NewABC encodes a three-register instruction: OP R(A) R(B) R(C).
func NewABC(op OpCode, a, b, c uint8) Instruction {
	return Instruction(op) | Instruction(a)<<posA | Instruction(b)<<posB | Instruction(c)<<posC
}

// NewABx encodes OP R(A) Bx, where Bx is an unsigned 16-bit index (constant
// pool index, feedback-slot index, or jump target).
func NewABx(op OpCode, a uint8, bx uint16) Instruction {
	return Instruction(op) | Instruction(a)<<posA | Instruction(bx)<<posB
}

// NewAsBx encodes OP R(A) sBx, sBx a signed 16-bit jump offset.
func NewAsBx(op OpCode, a uint8, sbx int32) Instruction {
	return NewABx(op, a, uint16(sbx+maxArgSBx))
}

// NewAx encodes OP Ax, a single unsigned 24-bit operand.
func NewAx(op OpCode, ax uint32) Instruction {
	return Instruction(op) | Instruction(ax)<<posA
}

// OpCode returns the instruction's opcode.
func (i Instruction) OpCode() OpCode { return OpCode(i & maskOp) }

// A returns the iABC/iABx/iAsBx A register operand.
func (i Instruction) A() uint8 { return uint8((i >> posA) & maskA) }

// B returns the iABC B register operand.
func (i Instruction) B() uint8 { return uint8((i >> posB) & maskB) }

// C returns the iABC C register operand.
func (i Instruction) C() uint8 { return uint8((i >> posC) & maskC) }

// Bx returns the iABx unsigned 16-bit operand.
func (i Instruction) Bx() uint16 { return uint16((i >> posB) & maskBx) }

// SBx returns the iAsBx signed 16-bit operand (a jump offset).
func (i Instruction) SBx() int32 { return int32(i.Bx()) - maxArgSBx }

// Ax returns the iAx unsigned 24-bit operand.
func (i Instruction) Ax() uint32 { return uint32((i >> posA) & 0xFFFFFF) }
