// Package compiler lowers the ast package's tree into bytecode.Chunk,
// resolving lexical scope to (local register / upvalue index / global+IC
// slot), inserting temporal-dead-zone guards on first reference to a
// block-scoped binding, and assigning one feedback-vector slot per
// cacheable site.
//
// A single-pass AST walker: a type-switch dispatcher over ast.Node handles
// statement and expression lowering, with a var/function hoisting pre-pass
// run first.
package compiler

import (
	"fmt"

	"corevm/internal/ast"
	"corevm/internal/bytecode"
	"corevm/internal/diag"
)

// Compiler lowers one ast.Program (or nested ast.FunctionExpr) into a
// bytecode.Chunk.
type Compiler struct {
	chunk  *bytecode.Chunk
	scope  *funcScope
	errors []*diag.Thrown
}

// Compile compiles a top-level program into its chunk. Errors encountered
// (e.g. `break` outside a loop) are returned as diag.Thrown values rather
// than panicking, so a host can report every compile error found in one
// pass instead of stopping at the first.
func Compile(prog *ast.Program) (*bytecode.Chunk, []*diag.Thrown) {
	c := &Compiler{
		chunk: bytecode.NewChunk("<module>", prog.SourceFile),
		scope: newFuncScope(nil),
	}
	hoist(c.scope, prog.Body)
	for _, stmt := range prog.Body {
		c.compileStmt(stmt)
	}
	c.emit(bytecode.OpLoadUndefined, 0, 0, 0, prog.Pos())
	c.emit(bytecode.OpReturn, 0, 0, 0, prog.Pos())
	c.chunk.NumRegisters = int(c.scope.maxReg)
	return c.chunk, c.errors
}

// CompileFunction lowers a nested function literal into its own chunk,
// sharing the outer compiler's error sink but starting a fresh funcScope
// chained to the enclosing one (for upvalue resolution).
func (c *Compiler) CompileFunction(fn *ast.FunctionExpr) *bytecode.Chunk {
	outer := c.scope
	outerChunk := c.chunk
	c.scope = newFuncScope(outer)
	c.chunk = bytecode.NewChunk(fn.Name, outerChunk.SourceFile)
	c.chunk.NumParams = len(fn.Params)
	c.chunk.IsGenerator = fn.IsGenerator
	c.chunk.IsAsync = fn.IsAsync

	for _, p := range fn.Params {
		kind := ast.BindParam
		c.scope.declareLocal(p.Name, kind)
		if p.Rest {
			c.chunk.IsVariadic = true
		}
	}
	hoist(c.scope, fn.Body)
	for _, stmt := range fn.Body {
		c.compileStmt(stmt)
	}
	pos := fn.Pos()
	c.emit(bytecode.OpLoadUndefined, 0, 0, 0, pos)
	c.emit(bytecode.OpReturn, 0, 0, 0, pos)

	c.chunk.NumRegisters = int(c.scope.maxReg)
	for _, u := range c.scope.upvalues {
		c.chunk.UpvalueDescs = append(c.chunk.UpvalueDescs, bytecode.UpvalueDesc{Index: u.index, IsLocal: u.isLocal})
	}
	built := c.chunk

	c.scope = outer
	c.chunk = outerChunk
	return built
}

func (c *Compiler) emit(op bytecode.OpCode, a, b, cc uint8, pos ast.Position) int {
	return c.chunk.Emit(bytecode.NewABC(op, a, b, cc), bytecode.Position{Line: pos.Line, Column: pos.Column})
}

func (c *Compiler) emitABx(op bytecode.OpCode, a uint8, bx uint16, pos ast.Position) int {
	return c.chunk.Emit(bytecode.NewABx(op, a, bx), bytecode.Position{Line: pos.Line, Column: pos.Column})
}

func (c *Compiler) emitJump(op bytecode.OpCode, a uint8, pos ast.Position) int {
	return c.chunk.Emit(bytecode.NewAsBx(op, a, 0), bytecode.Position{Line: pos.Line, Column: pos.Column})
}

// patchJump back-patches the jump instruction at pc to target the current
// end of the code stream, a placeholder-then-patch pattern used by every
// control-flow form here.
func (c *Compiler) patchJump(pc int) {
	instr := c.chunk.Code[pc]
	offset := int32(len(c.chunk.Code) - pc - 1)
	c.chunk.Patch(pc, bytecode.NewAsBx(instr.OpCode(), instr.A(), offset))
}

func (c *Compiler) patchJumpTo(pc, target int) {
	instr := c.chunk.Code[pc]
	offset := int32(target - pc - 1)
	c.chunk.Patch(pc, bytecode.NewAsBx(instr.OpCode(), instr.A(), offset))
}

func (c *Compiler) errorf(pos ast.Position, format string, args ...interface{}) {
	c.errors = append(c.errors, diag.NewSyntaxError(fmt.Sprintf(format, args...), diag.Position{
		File: c.chunk.SourceFile, Line: pos.Line, Column: pos.Column,
	}))
}
