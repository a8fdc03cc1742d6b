package compiler

import (
	"unsafe"

	"corevm/internal/ast"
	"corevm/internal/bytecode"
	"corevm/internal/object"
	"corevm/internal/value"
)

// compileExpr lowers expr, leaving its result in the returned register.
// Dispatches with a type switch and returns a register number explicitly
// instead of relying on an implicit operand stack, since this core's VM is
// register-based, not stack-based.
func (c *Compiler) compileExpr(expr ast.Expr) uint8 {
	switch e := expr.(type) {
	case *ast.Literal:
		return c.compileLiteral(e)
	case *ast.Identifier:
		return c.compileIdentifier(e)
	case *ast.ThisExpr:
		return c.compileIdentifierByName("this", e.Pos())
	case *ast.BinaryExpr:
		return c.compileBinary(e)
	case *ast.LogicalExpr:
		return c.compileLogical(e)
	case *ast.UnaryExpr:
		return c.compileUnary(e)
	case *ast.UpdateExpr:
		return c.compileUpdate(e)
	case *ast.AssignExpr:
		return c.compileAssign(e)
	case *ast.ConditionalExpr:
		return c.compileConditional(e)
	case *ast.CallExpr:
		return c.compileCall(e)
	case *ast.NewExpr:
		return c.compileNew(e)
	case *ast.MemberExpr:
		return c.compileMember(e)
	case *ast.ArrayLit:
		return c.compileArrayLit(e)
	case *ast.ObjectLit:
		return c.compileObjectLit(e)
	case *ast.FunctionExpr:
		return c.compileFunctionExpr(e)
	case *ast.TemplateLit:
		return c.compileTemplate(e)
	case *ast.SequenceExpr:
		var r uint8
		for _, sub := range e.Exprs {
			r = c.compileExpr(sub)
		}
		return r
	case *ast.AwaitExpr:
		return c.compileAwait(e)
	case *ast.YieldExpr:
		return c.compileYield(e)
	case *ast.SpreadExpr:
		return c.compileExpr(e.Arg)
	default:
		c.errorf(expr.Pos(), "compiler: unsupported expression node %T", expr)
		return c.scope.allocReg()
	}
}

func (c *Compiler) compileLiteral(lit *ast.Literal) uint8 {
	dst := c.scope.allocReg()
	pos := lit.Pos()
	switch lit.Kind {
	case ast.LitNumber:
		if iv := int64(lit.Num); float64(iv) == lit.Num && int64(int16(iv)) == iv {
			c.emitABx(bytecode.OpLoadSmi, dst, uint16(iv), pos)
			return dst
		}
		idx := c.chunk.AddConstant(value.Number(lit.Num))
		c.emitABx(bytecode.OpLoadConst, dst, uint16(idx), pos)
	case ast.LitString:
		idx := c.chunk.AddConstant(object.NewStringValue(lit.Str))
		c.emitABx(bytecode.OpLoadConst, dst, uint16(idx), pos)
	case ast.LitBool:
		if lit.Bool {
			c.emit(bytecode.OpLoadTrue, dst, 0, 0, pos)
		} else {
			c.emit(bytecode.OpLoadFalse, dst, 0, 0, pos)
		}
	case ast.LitNull:
		c.emit(bytecode.OpLoadNull, dst, 0, 0, pos)
	case ast.LitUndefined:
		c.emit(bytecode.OpLoadUndefined, dst, 0, 0, pos)
	}
	return dst
}

// resolveIdentifier fills in id's Kind/Depth/Index by walking the
// compiler's scope chain in a single pass.
func (c *Compiler) resolveIdentifier(id *ast.Identifier) {
	if l, ok := c.scope.resolveLocal(id.Name); ok {
		id.Kind = ast.RefLocal
		id.Index = int(l.reg)
		return
	}
	if idx, ok := c.scope.resolveUpvalue(id.Name); ok {
		id.Kind = ast.RefUpvalue
		id.Index = int(idx)
		return
	}
	id.Kind = ast.RefGlobal
}

func (c *Compiler) compileIdentifier(id *ast.Identifier) uint8 {
	c.resolveIdentifier(id)
	return c.emitIdentifierLoad(id)
}

func (c *Compiler) compileIdentifierByName(name string, pos ast.Position) uint8 {
	id := &ast.Identifier{Name: name}
	id.Position = pos
	return c.compileIdentifier(id)
}

func (c *Compiler) emitIdentifierLoad(id *ast.Identifier) uint8 {
	dst := c.scope.allocReg()
	pos := id.Pos()
	switch id.Kind {
	case ast.RefLocal:
		if l, ok := c.scope.resolveLocal(id.Name); ok && l.inTDZ {
			c.emit(bytecode.OpThrowIfTDZ, uint8(id.Index), 0, 0, pos)
		}
		c.emit(bytecode.OpMove, dst, uint8(id.Index), 0, pos)
	case ast.RefUpvalue:
		c.emit(bytecode.OpGetUpval, dst, uint8(id.Index), 0, pos)
	default:
		idx := c.chunk.AddConstant(object.NewStringValue(id.Name))
		c.emitABx(bytecode.OpGetGlobal, dst, uint16(idx), pos)
	}
	return dst
}

func binaryOp(operator string) (bytecode.OpCode, bool) {
	switch operator {
	case "+":
		return bytecode.OpAdd, true
	case "-":
		return bytecode.OpSub, true
	case "*":
		return bytecode.OpMul, true
	case "/":
		return bytecode.OpDiv, true
	case "%":
		return bytecode.OpMod, true
	case "**":
		return bytecode.OpPow, true
	case "==":
		return bytecode.OpEq, true
	case "!=":
		return bytecode.OpNeq, true
	case "===":
		return bytecode.OpStrictEq, true
	case "!==":
		return bytecode.OpStrictNeq, true
	case "<":
		return bytecode.OpLt, true
	case "<=":
		return bytecode.OpLe, true
	case ">":
		return bytecode.OpGt, true
	case ">=":
		return bytecode.OpGe, true
	case "&":
		return bytecode.OpBitAnd, true
	case "|":
		return bytecode.OpBitOr, true
	case "^":
		return bytecode.OpBitXor, true
	case "<<":
		return bytecode.OpShl, true
	case ">>":
		return bytecode.OpShr, true
	case ">>>":
		return bytecode.OpUShr, true
	case "instanceof":
		return bytecode.OpInstanceOf, true
	case "in":
		return bytecode.OpIn, true
	default:
		return 0, false
	}
}

func (c *Compiler) compileBinary(e *ast.BinaryExpr) uint8 {
	l := c.compileExpr(e.Left)
	r := c.compileExpr(e.Right)
	op, ok := binaryOp(e.Operator)
	if !ok {
		c.errorf(e.Pos(), "compiler: unknown binary operator %q", e.Operator)
		op = bytecode.OpAdd
	}
	dst := c.scope.allocReg()
	c.emit(op, dst, l, r, e.Pos())
	return dst
}

// compileLogical implements && / || / ?? short-circuiting with a
// conditional jump rather than unconditionally evaluating both sides.
func (c *Compiler) compileLogical(e *ast.LogicalExpr) uint8 {
	dst := c.compileExpr(e.Left)
	var skipOp bytecode.OpCode
	switch e.Operator {
	case "&&":
		skipOp = bytecode.OpJumpIfFalse
	case "||":
		skipOp = bytecode.OpJumpIfTrue
	default: // "??"
		skipOp = bytecode.OpJumpIfNullish
	}
	// Invert: we want to skip the right side when short-circuiting, so for
	// && the jump fires when dst is false (skip evaluating right); the
	// condition register doubles as the jump's test register.
	jmp := c.emitJump(skipOp, dst, e.Pos())
	rhs := c.compileExpr(e.Right)
	c.emit(bytecode.OpMove, dst, rhs, 0, e.Pos())
	c.patchJump(jmp)
	return dst
}

func (c *Compiler) compileUnary(e *ast.UnaryExpr) uint8 {
	operand := c.compileExpr(e.Operand)
	dst := c.scope.allocReg()
	pos := e.Pos()
	switch e.Operator {
	case "-":
		c.emit(bytecode.OpNeg, dst, operand, 0, pos)
	case "!":
		c.emit(bytecode.OpNot, dst, operand, 0, pos)
	case "~":
		c.emit(bytecode.OpBitNot, dst, operand, 0, pos)
	case "typeof":
		c.emit(bytecode.OpTypeof, dst, operand, 0, pos)
	default:
		c.errorf(pos, "compiler: unknown unary operator %q", e.Operator)
	}
	return dst
}

func (c *Compiler) compileUpdate(e *ast.UpdateExpr) uint8 {
	id, ok := e.Target.(*ast.Identifier)
	if !ok {
		c.errorf(e.Pos(), "compiler: ++/-- only supported on identifiers")
		return c.scope.allocReg()
	}
	c.resolveIdentifier(id)
	cur := c.emitIdentifierLoad(id)
	one := c.scope.allocReg()
	c.emitABx(bytecode.OpLoadSmi, one, 1, e.Pos())
	updated := c.scope.allocReg()
	op := bytecode.OpAdd
	if e.Operator == "--" {
		op = bytecode.OpSub
	}
	c.emit(op, updated, cur, one, e.Pos())
	c.storeIdentifier(id, updated)
	if e.Prefix {
		return updated
	}
	return cur
}

func (c *Compiler) storeIdentifier(id *ast.Identifier, src uint8) {
	pos := id.Pos()
	switch id.Kind {
	case ast.RefLocal:
		c.emit(bytecode.OpMove, uint8(id.Index), src, 0, pos)
	case ast.RefUpvalue:
		c.emit(bytecode.OpSetUpval, src, uint8(id.Index), 0, pos)
	default:
		idx := c.chunk.AddConstant(object.NewStringValue(id.Name))
		c.emitABx(bytecode.OpSetGlobal, src, uint16(idx), pos)
	}
}

func (c *Compiler) compileAssign(e *ast.AssignExpr) uint8 {
	pos := e.Pos()
	if e.Operator != "=" {
		// Desugar compound assignment into target = target OP value.
		inner := &ast.BinaryExpr{Operator: e.Operator[:len(e.Operator)-1], Left: e.Target, Right: e.Value}
		inner.Position = pos
		e = &ast.AssignExpr{Operator: "=", Target: e.Target, Value: inner}
		e.Position = pos
	}
	switch t := e.Target.(type) {
	case *ast.Identifier:
		c.resolveIdentifier(t)
		src := c.compileExpr(e.Value)
		c.storeIdentifier(t, src)
		return src
	case *ast.MemberExpr:
		obj := c.compileExpr(t.Object)
		src := c.compileExpr(e.Value)
		if t.Computed {
			key := c.compileExpr(t.Property)
			c.emit(bytecode.OpSetElem, obj, key, src, pos)
		} else {
			name := t.Property.(*ast.Identifier).Name
			kidx := c.chunk.AddConstant(object.NewStringValue(name))
			slot := c.chunk.AllocFeedbackSlot()
			c.emitABx(bytecode.OpSetProp, obj, uint16(slot), pos)
			c.emit(bytecode.OpSetProp, obj, src, uint8(kidx), pos)
		}
		return src
	default:
		c.errorf(pos, "compiler: invalid assignment target %T", t)
		return c.scope.allocReg()
	}
}

func (c *Compiler) compileConditional(e *ast.ConditionalExpr) uint8 {
	cond := c.compileExpr(e.Cond)
	jmpFalse := c.emitJump(bytecode.OpJumpIfFalse, cond, e.Pos())
	dst := c.compileExpr(e.Then)
	jmpEnd := c.emitJump(bytecode.OpJump, 0, e.Pos())
	c.patchJump(jmpFalse)
	elseVal := c.compileExpr(e.Else)
	c.emit(bytecode.OpMove, dst, elseVal, 0, e.Pos())
	c.patchJump(jmpEnd)
	return dst
}

func (c *Compiler) compileCall(e *ast.CallExpr) uint8 {
	callee := c.compileExpr(e.Callee)
	base := callee
	for _, arg := range e.Args {
		r := c.compileExpr(arg)
		_ = r // arguments are laid out in consecutive registers following callee
	}
	dst := c.scope.allocReg()
	c.emit(bytecode.OpCall, dst, base, uint8(len(e.Args)), e.Pos())
	return dst
}

func (c *Compiler) compileNew(e *ast.NewExpr) uint8 {
	callee := c.compileExpr(e.Callee)
	for _, arg := range e.Args {
		c.compileExpr(arg)
	}
	dst := c.scope.allocReg()
	c.emit(bytecode.OpNew, dst, callee, uint8(len(e.Args)), e.Pos())
	return dst
}

func (c *Compiler) compileMember(e *ast.MemberExpr) uint8 {
	obj := c.compileExpr(e.Object)
	dst := c.scope.allocReg()
	pos := e.Pos()
	if e.Computed {
		key := c.compileExpr(e.Property)
		op := bytecode.OpGetElem
		if e.Optional {
			op = bytecode.OpGetElem // nullish short-circuit handled by interp's optional-chain flag
		}
		c.emit(op, dst, obj, key, pos)
		return dst
	}
	name := e.Property.(*ast.Identifier).Name
	kidx := c.chunk.AddConstant(object.NewStringValue(name))
	slot := c.chunk.AllocFeedbackSlot()
	c.emitABx(bytecode.OpGetProp, dst, uint16(slot), pos)
	c.emit(bytecode.OpGetProp, dst, obj, uint8(kidx), pos)
	return dst
}

func (c *Compiler) compileArrayLit(e *ast.ArrayLit) uint8 {
	first := uint8(0)
	for i, el := range e.Elements {
		r := c.compileExpr(el)
		if i == 0 {
			first = r
		}
	}
	dst := c.scope.allocReg()
	c.emit(bytecode.OpNewArray, dst, first, uint8(len(e.Elements)), e.Pos())
	return dst
}

func (c *Compiler) compileObjectLit(e *ast.ObjectLit) uint8 {
	dst := c.scope.allocReg()
	pos := e.Pos()
	c.emit(bytecode.OpNewObject, dst, 0, 0, pos)
	for _, prop := range e.Properties {
		val := c.compileExpr(prop.Value)
		if id, ok := prop.Key.(*ast.Identifier); ok && !prop.Computed {
			kidx := c.chunk.AddConstant(object.NewStringValue(id.Name))
			c.emit(bytecode.OpDefineProp, dst, val, uint8(kidx), pos)
			continue
		}
		key := c.compileExpr(prop.Key)
		c.emit(bytecode.OpSetElem, dst, key, val, pos)
	}
	return dst
}

func (c *Compiler) compileFunctionExpr(fn *ast.FunctionExpr) uint8 {
	chunk := c.CompileFunction(fn)
	dst := c.scope.allocReg()
	idx := c.chunk.AddConstant(makeChunkConstant(chunk))
	c.emitABx(bytecode.OpMakeClosure, dst, uint16(idx), fn.Pos())
	return dst
}

func (c *Compiler) compileTemplate(e *ast.TemplateLit) uint8 {
	dst := c.scope.allocReg()
	pos := e.Pos()
	idx := c.chunk.AddConstant(object.NewStringValue(e.Quasis[0]))
	c.emitABx(bytecode.OpLoadConst, dst, uint16(idx), pos)
	for i, expr := range e.Exprs {
		part := c.compileExpr(expr)
		str := c.scope.allocReg()
		c.emit(bytecode.OpToPrimitive, str, part, uint8(value.HintString), pos)
		c.emit(bytecode.OpAdd, dst, dst, str, pos)
		if i+1 < len(e.Quasis) {
			qidx := c.chunk.AddConstant(object.NewStringValue(e.Quasis[i+1]))
			qreg := c.scope.allocReg()
			c.emitABx(bytecode.OpLoadConst, qreg, uint16(qidx), pos)
			c.emit(bytecode.OpAdd, dst, dst, qreg, pos)
		}
	}
	return dst
}

func (c *Compiler) compileAwait(e *ast.AwaitExpr) uint8 {
	operand := c.compileExpr(e.Arg)
	dst := c.scope.allocReg()
	c.emit(bytecode.OpAwait, dst, operand, 0, e.Pos())
	return dst
}

func (c *Compiler) compileYield(e *ast.YieldExpr) uint8 {
	var operand uint8
	if e.Arg != nil {
		operand = c.compileExpr(e.Arg)
	} else {
		operand = c.scope.allocReg()
		c.emit(bytecode.OpLoadUndefined, operand, 0, 0, e.Pos())
	}
	dst := c.scope.allocReg()
	delegate := uint8(0)
	if e.Delegate {
		delegate = 1
	}
	c.emit(bytecode.OpYield, dst, operand, delegate, e.Pos())
	return dst
}

// makeChunkConstant boxes a compiled nested function's chunk as a
// value.Value so it can travel through the enclosing chunk's constant pool
// until OpMakeClosure turns it into a live FunctionObject at run time.
func makeChunkConstant(chunk *bytecode.Chunk) value.Value {
	fn := object.NewFunctionObject(chunk)
	return value.FromPointer(unsafe.Pointer(fn))
}
