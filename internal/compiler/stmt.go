package compiler

import (
	"corevm/internal/ast"
	"corevm/internal/bytecode"
	"corevm/internal/object"
)

// compileStmt lowers one statement by dispatching over this core's
// ast.Stmt catalogue: if/while/for/for-in/for-of/switch/try-catch-finally/
// labeled break and continue.
func (c *Compiler) compileStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.VarDeclStmt:
		c.compileVarDecl(s)
	case *ast.ExpressionStmt:
		c.compileExpr(s.Expr)
	case *ast.BlockStmt:
		c.compileBlock(s)
	case *ast.IfStmt:
		c.compileIf(s)
	case *ast.WhileStmt:
		c.compileWhile(s, "")
	case *ast.DoWhileStmt:
		c.compileDoWhile(s, "")
	case *ast.ForStmt:
		c.compileFor(s, "")
	case *ast.ForInStmt:
		c.compileForIn(s, "")
	case *ast.ForOfStmt:
		c.compileForOf(s, "")
	case *ast.BreakStmt:
		c.compileBreak(s)
	case *ast.ContinueStmt:
		c.compileContinue(s)
	case *ast.ReturnStmt:
		c.compileReturn(s)
	case *ast.ThrowStmt:
		v := c.compileExpr(s.Value)
		c.emit(bytecode.OpThrow, v, 0, 0, s.Pos())
	case *ast.TryStmt:
		c.compileTry(s)
	case *ast.FunctionDecl:
		c.compileFunctionDecl(s)
	case *ast.LabeledStmt:
		c.compileLabeled(s)
	case *ast.SwitchStmt:
		c.compileSwitch(s)
	case *ast.ClassDecl:
		c.compileClassDecl(s)
	default:
		c.errorf(stmt.Pos(), "compiler: unsupported statement node %T", stmt)
	}
}

func (c *Compiler) compileVarDecl(s *ast.VarDeclStmt) {
	for _, d := range s.Declarations {
		pos := s.Pos()
		var reg uint8
		if l, ok := c.scope.resolveLocal(d.Name); ok && s.Kind != ast.BindVar {
			reg = l.reg
		} else if s.Kind == ast.BindVar {
			l, _ := c.scope.resolveLocal(d.Name)
			reg = l.reg
		} else {
			reg = c.scope.declareLocal(d.Name, s.Kind)
			c.emit(bytecode.OpLoadTDZ, reg, 0, 0, pos)
		}
		if d.Init != nil {
			v := c.compileExpr(d.Init)
			c.emit(bytecode.OpMove, reg, v, 0, pos)
		} else if s.Kind != ast.BindVar {
			c.emit(bytecode.OpLoadUndefined, reg, 0, 0, pos)
		}
		if s.Kind == ast.BindLet || s.Kind == ast.BindConst {
			if l, ok := c.scope.resolveLocal(d.Name); ok {
				l.inTDZ = false
			}
		}
	}
}

func (c *Compiler) compileBlock(s *ast.BlockStmt) {
	c.scope.enterBlock()
	for _, stmt := range s.Body {
		c.compileStmt(stmt)
	}
	c.scope.exitBlock()
}

func (c *Compiler) compileIf(s *ast.IfStmt) {
	cond := c.compileExpr(s.Cond)
	jmpElse := c.emitJump(bytecode.OpJumpIfFalse, cond, s.Pos())
	c.compileStmt(s.Then)
	if s.Else != nil {
		jmpEnd := c.emitJump(bytecode.OpJump, 0, s.Pos())
		c.patchJump(jmpElse)
		c.compileStmt(s.Else)
		c.patchJump(jmpEnd)
	} else {
		c.patchJump(jmpElse)
	}
}

func (c *Compiler) pushLoop(label string) *loopContext {
	c.scope.loops = append(c.scope.loops, loopContext{label: label, handlerDepth: c.scope.handlers})
	return &c.scope.loops[len(c.scope.loops)-1]
}

func (c *Compiler) popLoop() loopContext {
	lc := c.scope.loops[len(c.scope.loops)-1]
	c.scope.loops = c.scope.loops[:len(c.scope.loops)-1]
	return lc
}

func (c *Compiler) patchLoopExits(lc loopContext, continueTarget, breakTarget int) {
	for _, pc := range lc.continuePatches {
		c.patchJumpTo(pc, continueTarget)
	}
	for _, pc := range lc.breakPatches {
		c.patchJumpTo(pc, breakTarget)
	}
}

func (c *Compiler) compileWhile(s *ast.WhileStmt, label string) {
	c.pushLoop(label)
	pos := s.Pos()
	top := len(c.chunk.Code)
	cond := c.compileExpr(s.Cond)
	exitJmp := c.emitJump(bytecode.OpJumpIfFalse, cond, pos)
	c.compileStmt(s.Body)
	backJmp := c.emitJump(bytecode.OpJump, 0, pos)
	c.patchJumpTo(backJmp, top)
	end := len(c.chunk.Code)
	c.patchJumpTo(exitJmp, end)
	done := c.popLoop()
	c.patchLoopExits(done, top, end)
}

func (c *Compiler) compileDoWhile(s *ast.DoWhileStmt, label string) {
	c.pushLoop(label)
	pos := s.Pos()
	top := len(c.chunk.Code)
	c.compileStmt(s.Body)
	contTarget := len(c.chunk.Code)
	cond := c.compileExpr(s.Cond)
	backJmp := c.emitJump(bytecode.OpJumpIfTrue, cond, pos)
	c.patchJumpTo(backJmp, top)
	end := len(c.chunk.Code)
	done := c.popLoop()
	c.patchLoopExits(done, contTarget, end)
}

func (c *Compiler) compileFor(s *ast.ForStmt, label string) {
	c.scope.enterBlock()
	pos := s.Pos()
	if s.Init != nil {
		c.compileStmt(s.Init)
	}
	c.pushLoop(label)
	top := len(c.chunk.Code)
	var exitJmp int
	hasCond := s.Cond != nil
	if hasCond {
		cond := c.compileExpr(s.Cond)
		exitJmp = c.emitJump(bytecode.OpJumpIfFalse, cond, pos)
	}
	c.compileStmt(s.Body)
	contTarget := len(c.chunk.Code)
	if s.Post != nil {
		c.compileExpr(s.Post)
	}
	backJmp := c.emitJump(bytecode.OpJump, 0, pos)
	c.patchJumpTo(backJmp, top)
	end := len(c.chunk.Code)
	if hasCond {
		c.patchJumpTo(exitJmp, end)
	}
	done := c.popLoop()
	c.patchLoopExits(done, contTarget, end)
	c.scope.exitBlock()
}

// compileForIn lowers for-in over an object's enumerable own-property
// names, driven by the same OpGetIterator/OpIterNext pair for-of uses; the
// compiler asks the object for a key iterator rather than a value iterator.
// Neither opcode is itself enumeration-strategy-specific; the distinction
// lives in OpGetIterator's C operand (1 = keys, 0 = values).
func (c *Compiler) compileForIn(s *ast.ForInStmt, label string) {
	c.scope.enterBlock()
	pos := s.Pos()
	obj := c.compileExpr(s.Object)
	iter := c.scope.allocReg()
	c.emit(bytecode.OpGetIterator, iter, obj, 1 /* keys-mode */, pos)

	varReg := c.scope.declareLocal(s.VarName, s.Kind)

	c.pushLoop(label)
	top := len(c.chunk.Code)
	ok := c.scope.allocReg()
	c.emit(bytecode.OpIterNext, varReg, iter, ok, pos)
	exitJmp := c.emitJump(bytecode.OpJumpIfFalse, ok, pos)
	c.compileStmt(s.Body)
	backJmp := c.emitJump(bytecode.OpJump, 0, pos)
	c.patchJumpTo(backJmp, top)
	end := len(c.chunk.Code)
	c.patchJumpTo(exitJmp, end)
	done := c.popLoop()
	c.patchLoopExits(done, top, end)
	c.scope.exitBlock()
}

func (c *Compiler) compileForOf(s *ast.ForOfStmt, label string) {
	c.scope.enterBlock()
	pos := s.Pos()
	obj := c.compileExpr(s.Object)
	iter := c.scope.allocReg()
	c.emit(bytecode.OpGetIterator, iter, obj, 0 /* values-mode */, pos)

	varReg := c.scope.declareLocal(s.VarName, s.Kind)

	c.pushLoop(label)
	top := len(c.chunk.Code)
	ok := c.scope.allocReg()
	c.emit(bytecode.OpIterNext, varReg, iter, ok, pos)
	exitJmp := c.emitJump(bytecode.OpJumpIfFalse, ok, pos)
	if s.IsAwait {
		c.emit(bytecode.OpAwait, varReg, varReg, 0, pos)
	}
	c.compileStmt(s.Body)
	backJmp := c.emitJump(bytecode.OpJump, 0, pos)
	c.patchJumpTo(backJmp, top)
	end := len(c.chunk.Code)
	c.patchJumpTo(exitJmp, end)
	done := c.popLoop()
	c.patchLoopExits(done, top, end)
	c.scope.exitBlock()
}

func (c *Compiler) findLoop(label string) *loopContext {
	for i := len(c.scope.loops) - 1; i >= 0; i-- {
		if label == "" || c.scope.loops[i].label == label {
			return &c.scope.loops[i]
		}
	}
	return nil
}

// emitPopTrysTo emits one OpPopTry per try region entered since depth,
// keeping the interpreter's runtime handler stack balanced when a
// break/continue jumps out of one or more try blocks without running their
// finally bodies.
func (c *Compiler) emitPopTrysTo(depth int, pos ast.Position) {
	for i := c.scope.handlers; i > depth; i-- {
		c.emitABx(bytecode.OpPopTry, 0, 0, pos)
	}
}

func (c *Compiler) compileBreak(s *ast.BreakStmt) {
	lc := c.findLoop(s.Label)
	if lc == nil {
		c.errorf(s.Pos(), "compiler: break outside loop")
		return
	}
	c.emitPopTrysTo(lc.handlerDepth, s.Pos())
	pc := c.emitJump(bytecode.OpJump, 0, s.Pos())
	lc.breakPatches = append(lc.breakPatches, pc)
}

func (c *Compiler) compileContinue(s *ast.ContinueStmt) {
	lc := c.findLoop(s.Label)
	if lc == nil {
		c.errorf(s.Pos(), "compiler: continue outside loop")
		return
	}
	c.emitPopTrysTo(lc.handlerDepth, s.Pos())
	pc := c.emitJump(bytecode.OpJump, 0, s.Pos())
	lc.continuePatches = append(lc.continuePatches, pc)
}

func (c *Compiler) compileReturn(s *ast.ReturnStmt) {
	pos := s.Pos()
	var r uint8
	if s.Value != nil {
		r = c.compileExpr(s.Value)
	} else {
		r = c.scope.allocReg()
		c.emit(bytecode.OpLoadUndefined, r, 0, 0, pos)
	}
	c.emit(bytecode.OpReturn, r, 0, 0, pos)
}

// compileTry lowers try/catch/finally using OpPushTry/OpPopTry over the
// chunk's Handlers table: OpPushTry's Bx names a handler-table index
// reserved up front, left zeroed until both the catch and finally
// bodies are compiled and their PCs are known, then patched directly; no
// operand bit-packing, so neither target PC nor ExcReg is width-limited by
// an instruction's operand fields.
func (c *Compiler) compileTry(s *ast.TryStmt) {
	pos := s.Pos()
	handlerIdx := c.chunk.AddHandler()
	c.emitABx(bytecode.OpPushTry, 0, uint16(handlerIdx), pos)

	c.scope.handlers++
	c.compileBlock(s.Block)
	c.scope.handlers--
	c.emitABx(bytecode.OpPopTry, 0, uint16(handlerIdx), pos)
	jmpOverCatch := c.emitJump(bytecode.OpJump, 0, pos)

	var excReg uint8
	catchPC := 0
	if s.Catch != nil {
		catchPC = len(c.chunk.Code)
		c.scope.enterBlock()
		excReg = c.scope.allocReg()
		if s.Catch.Param != "" {
			paramReg := c.scope.declareLocal(s.Catch.Param, ast.BindCatch)
			c.emit(bytecode.OpMove, paramReg, excReg, 0, pos)
		}
		for _, stmt := range s.Catch.Body.Body {
			c.compileStmt(stmt)
		}
		c.scope.exitBlock()
		if s.Finally != nil {
			// unwind reinstalls a finally-only handler before transferring
			// control here (so an exception thrown inside this catch body
			// still runs the finally); pop it once the catch completes
			// normally, mirroring the try body's own OpPopTry above.
			c.emitABx(bytecode.OpPopTry, 0, uint16(handlerIdx), pos)
		}
	}
	c.patchJump(jmpOverCatch)

	finallyPC := 0
	if s.Finally != nil {
		finallyPC = len(c.chunk.Code)
		c.compileBlock(s.Finally)
		// OpReraise is a no-op when no exception is in flight (the normal
		// try/catch-completed-normally fallthrough into finally), and
		// re-throws the pending exception when finally was entered via
		// unwind (try or catch body threw with no catch left to run).
		c.emit(bytecode.OpReraise, 0, 0, 0, pos)
	}

	c.chunk.Handlers[handlerIdx] = bytecode.Handler{
		HasCatch:   s.Catch != nil,
		CatchPC:    catchPC,
		HasFinally: s.Finally != nil,
		FinallyPC:  finallyPC,
		ExcReg:     excReg,
	}
}

func (c *Compiler) compileFunctionDecl(s *ast.FunctionDecl) {
	l, ok := c.scope.resolveLocal(s.Fn.Name)
	if !ok {
		l = &local{}
		l.reg = c.scope.declareLocal(s.Fn.Name, ast.BindFunction)
	}
	reg := c.compileFunctionExpr(s.Fn)
	if l != nil {
		c.emit(bytecode.OpMove, l.reg, reg, 0, s.Pos())
	}
}

func (c *Compiler) compileLabeled(s *ast.LabeledStmt) {
	switch body := s.Body.(type) {
	case *ast.WhileStmt:
		c.compileWhile(body, s.Label)
	case *ast.DoWhileStmt:
		c.compileDoWhile(body, s.Label)
	case *ast.ForStmt:
		c.compileFor(body, s.Label)
	case *ast.ForInStmt:
		c.compileForIn(body, s.Label)
	case *ast.ForOfStmt:
		c.compileForOf(body, s.Label)
	default:
		c.compileStmt(s.Body)
	}
}

// compileSwitch lowers to a chain of strict-equality comparisons against
// the discriminant followed by fallthrough bodies; switch gets no
// dedicated opcode, it is sugar over comparisons and jumps like if/else.
func (c *Compiler) compileSwitch(s *ast.SwitchStmt) {
	pos := s.Pos()
	disc := c.compileExpr(s.Disc)
	c.pushLoop("") // switch participates in break targeting like a loop

	var caseJumps []int
	defaultIdx := -1
	for i, cs := range s.Cases {
		if !cs.Test {
			defaultIdx = i
			caseJumps = append(caseJumps, -1)
			continue
		}
		when := c.compileExpr(cs.When)
		eq := c.scope.allocReg()
		c.emit(bytecode.OpStrictEq, eq, disc, when, pos)
		jmp := c.emitJump(bytecode.OpJumpIfTrue, eq, pos)
		caseJumps = append(caseJumps, jmp)
	}
	endJmp := c.emitJump(bytecode.OpJump, 0, pos)
	if defaultIdx >= 0 {
		c.patchJumpTo(endJmp, len(c.chunk.Code))
	}

	bodyStarts := make([]int, len(s.Cases))
	for i, cs := range s.Cases {
		bodyStarts[i] = len(c.chunk.Code)
		if caseJumps[i] >= 0 {
			c.patchJumpTo(caseJumps[i], bodyStarts[i])
		}
		for _, stmt := range cs.Body {
			c.compileStmt(stmt)
		}
	}
	end := len(c.chunk.Code)
	if defaultIdx < 0 {
		c.patchJumpTo(endJmp, end)
	}
	done := c.popLoop()
	c.patchLoopExits(done, end, end)
}

// compileClassDecl desugars a class declaration into: construct a
// function-shaped constructor object, attach methods as properties of its
// prototype object, and bind the class name to the constructor; matching
// how the object package models classes as plain callables with a
// "prototype" property rather than a dedicated heap-object kind (see
// object.Kind's doc comment).
func (c *Compiler) compileClassDecl(s *ast.ClassDecl) {
	pos := s.Pos()
	var ctorExpr *ast.FunctionExpr
	for _, m := range s.Members {
		if m.Kind == ast.ClassConstructor {
			ctorExpr = m.Value.(*ast.FunctionExpr)
		}
	}
	if ctorExpr == nil {
		ctorExpr = &ast.FunctionExpr{Name: s.Name}
		ctorExpr.Position = pos
	}
	ctorReg := c.compileFunctionExpr(ctorExpr)

	protoReg := c.scope.allocReg()
	c.emit(bytecode.OpNewObject, protoReg, 0, 0, pos)
	for _, m := range s.Members {
		if m.Kind != ast.ClassMethod {
			continue
		}
		fn, ok := m.Value.(*ast.FunctionExpr)
		if !ok {
			continue
		}
		methodReg := c.compileFunctionExpr(fn)
		id, ok := m.Key.(*ast.Identifier)
		if !ok {
			continue
		}
		kidx := c.chunk.AddConstant(object.NewStringValue(id.Name))
		slot := c.chunk.AllocFeedbackSlot()
		c.emitABx(bytecode.OpSetProp, protoReg, uint16(slot), pos)
		c.emit(bytecode.OpSetProp, protoReg, methodReg, uint8(kidx), pos)
	}
	protoName := c.chunk.AddConstant(object.NewStringValue("prototype"))
	protoSlot := c.chunk.AllocFeedbackSlot()
	c.emitABx(bytecode.OpSetProp, ctorReg, uint16(protoSlot), pos)
	c.emit(bytecode.OpSetProp, ctorReg, protoReg, uint8(protoName), pos)

	reg := c.scope.declareLocal(s.Name, ast.BindFunction)
	c.emit(bytecode.OpMove, reg, ctorReg, 0, pos)
}
