package interp

import (
	"math"

	"corevm/internal/bytecode"
	"corevm/internal/diag"
	"corevm/internal/object"
	"corevm/internal/shape"
	"corevm/internal/value"
)

// step executes exactly one source-level instruction of fr; one bytecode
// word for every opcode except OpGetProp/OpSetProp, which the compiler
// always emits as a two-word macro-op (an ABx word carrying the IC slot
// followed by an ABC word carrying the real operands, see expr.go's
// compileMember/compileAssign) so the hot property-access path can use
// the full iABC operand width without stealing a fourth operand slot.
func (vm *VM) step(fr *Frame) stepResult {
	instr := fr.Chunk.Code[fr.PC]
	op := instr.OpCode()
	srcPos := fr.Chunk.PositionAt(fr.PC)
	pos := diag.Position{File: fr.Chunk.SourceFile, Line: srcPos.Line, Column: srcPos.Column}
	fr.PC++

	switch op {
	case bytecode.OpAdd:
		a, b := fr.Regs[instr.B()], fr.Regs[instr.C()]
		if isStringLike(a) || isStringLike(b) {
			fr.Regs[instr.A()] = object.NewStringValue(toStringValue(a) + toStringValue(b))
		} else {
			fr.Regs[instr.A()] = value.Number(toNumber(a) + toNumber(b))
		}
	case bytecode.OpSub:
		fr.Regs[instr.A()] = value.Number(toNumber(fr.Regs[instr.B()]) - toNumber(fr.Regs[instr.C()]))
	case bytecode.OpMul:
		fr.Regs[instr.A()] = value.Number(toNumber(fr.Regs[instr.B()]) * toNumber(fr.Regs[instr.C()]))
	case bytecode.OpDiv:
		fr.Regs[instr.A()] = value.Number(toNumber(fr.Regs[instr.B()]) / toNumber(fr.Regs[instr.C()]))
	case bytecode.OpMod:
		fr.Regs[instr.A()] = value.Number(math.Mod(toNumber(fr.Regs[instr.B()]), toNumber(fr.Regs[instr.C()])))
	case bytecode.OpPow:
		fr.Regs[instr.A()] = value.Number(math.Pow(toNumber(fr.Regs[instr.B()]), toNumber(fr.Regs[instr.C()])))
	case bytecode.OpNeg:
		fr.Regs[instr.A()] = value.Number(-toNumber(fr.Regs[instr.B()]))
	case bytecode.OpBitAnd:
		fr.Regs[instr.A()] = value.Int(int64(value.ToInt32(fr.Regs[instr.B()]) & value.ToInt32(fr.Regs[instr.C()])))
	case bytecode.OpBitOr:
		fr.Regs[instr.A()] = value.Int(int64(value.ToInt32(fr.Regs[instr.B()]) | value.ToInt32(fr.Regs[instr.C()])))
	case bytecode.OpBitXor:
		fr.Regs[instr.A()] = value.Int(int64(value.ToInt32(fr.Regs[instr.B()]) ^ value.ToInt32(fr.Regs[instr.C()])))
	case bytecode.OpBitNot:
		fr.Regs[instr.A()] = value.Int(int64(^value.ToInt32(fr.Regs[instr.B()])))
	case bytecode.OpShl:
		fr.Regs[instr.A()] = value.Int(int64(value.ToInt32(fr.Regs[instr.B()]) << (value.ToUint32(fr.Regs[instr.C()]) & 31)))
	case bytecode.OpShr:
		fr.Regs[instr.A()] = value.Int(int64(value.ToInt32(fr.Regs[instr.B()]) >> (value.ToUint32(fr.Regs[instr.C()]) & 31)))
	case bytecode.OpUShr:
		fr.Regs[instr.A()] = value.Int(int64(value.ToUint32(fr.Regs[instr.B()]) >> (value.ToUint32(fr.Regs[instr.C()]) & 31)))

	case bytecode.OpEq:
		fr.Regs[instr.A()] = value.Bool(looseEquals(fr.Regs[instr.B()], fr.Regs[instr.C()]))
	case bytecode.OpNeq:
		fr.Regs[instr.A()] = value.Bool(!looseEquals(fr.Regs[instr.B()], fr.Regs[instr.C()]))
	case bytecode.OpStrictEq:
		fr.Regs[instr.A()] = value.Bool(value.StrictEquals(fr.Regs[instr.B()], fr.Regs[instr.C()]))
	case bytecode.OpStrictNeq:
		fr.Regs[instr.A()] = value.Bool(!value.StrictEquals(fr.Regs[instr.B()], fr.Regs[instr.C()]))
	case bytecode.OpLt:
		cmp, ok := relationalCompare(fr.Regs[instr.B()], fr.Regs[instr.C()])
		fr.Regs[instr.A()] = value.Bool(ok && cmp < 0)
	case bytecode.OpLe:
		cmp, ok := relationalCompare(fr.Regs[instr.B()], fr.Regs[instr.C()])
		fr.Regs[instr.A()] = value.Bool(ok && cmp <= 0)
	case bytecode.OpGt:
		cmp, ok := relationalCompare(fr.Regs[instr.B()], fr.Regs[instr.C()])
		fr.Regs[instr.A()] = value.Bool(ok && cmp > 0)
	case bytecode.OpGe:
		cmp, ok := relationalCompare(fr.Regs[instr.B()], fr.Regs[instr.C()])
		fr.Regs[instr.A()] = value.Bool(ok && cmp >= 0)

	case bytecode.OpNot:
		fr.Regs[instr.A()] = value.Bool(!value.ToBoolean(fr.Regs[instr.B()]))

	case bytecode.OpMove:
		fr.Regs[instr.A()] = fr.Regs[instr.B()]
	case bytecode.OpLoadConst:
		fr.Regs[instr.A()] = fr.Chunk.Constants[instr.Bx()]
	case bytecode.OpLoadUndefined:
		fr.Regs[instr.A()] = value.Undefined
	case bytecode.OpLoadNull:
		fr.Regs[instr.A()] = value.Null
	case bytecode.OpLoadTrue:
		fr.Regs[instr.A()] = value.True
	case bytecode.OpLoadFalse:
		fr.Regs[instr.A()] = value.False
	case bytecode.OpLoadSmi:
		fr.Regs[instr.A()] = value.Int(int64(int16(instr.Bx())))

	case bytecode.OpGetGlobal:
		name, _ := object.AsString(fr.Chunk.Constants[instr.Bx()])
		if _, idx, ok := vm.Global.Resolve(name); ok {
			v, initialized := vm.Global.Get(idx)
			if !initialized {
				return throwResult(diag.NewReferenceError("Cannot access '"+name+"' before initialization", pos))
			}
			fr.Regs[instr.A()] = v
		} else {
			return throwResult(diag.NewReferenceError(name+" is not defined", pos))
		}
	case bytecode.OpSetGlobal:
		name, _ := object.AsString(fr.Chunk.Constants[instr.Bx()])
		env, idx, ok := vm.Global.Resolve(name)
		if !ok {
			env, idx = vm.Global, vm.Global.DeclareGlobal(name)
		}
		env.Set(idx, fr.Regs[instr.A()])

	case bytecode.OpGetLocal:
		fr.Regs[instr.A()] = fr.Regs[instr.B()]
	case bytecode.OpSetLocal:
		fr.Regs[instr.B()] = fr.Regs[instr.A()]
	case bytecode.OpGetUpval:
		fr.Regs[instr.A()] = *fr.Closure.Upvalues[instr.B()].Location
	case bytecode.OpSetUpval:
		uv := fr.Closure.Upvalues[instr.B()]
		*uv.Location = fr.Regs[instr.A()]
	case bytecode.OpCloseUpvals:
		fr.closeUpvaluesFrom(instr.A())
	case bytecode.OpMakeClosure:
		fn := mustFunctionConstant(fr.Chunk.Constants[instr.Bx()])
		upvalues := make([]*object.UpvalueObject, len(fn.Chunk.UpvalueDescs))
		for i, d := range fn.Chunk.UpvalueDescs {
			if d.IsLocal {
				upvalues[i] = fr.upvalueFor(d.Index)
			} else {
				upvalues[i] = fr.Closure.Upvalues[d.Index]
			}
		}
		fr.Regs[instr.A()] = object.ToValue(object.NewClosureObject(fn, upvalues))
	case bytecode.OpLoadTDZ:
		fr.Regs[instr.A()] = value.TDZ
	case bytecode.OpThrowIfTDZ:
		if fr.Regs[instr.A()] == value.TDZ {
			return throwResult(diag.NewReferenceError("Cannot access variable before initialization", pos))
		}

	case bytecode.OpNewObject:
		fr.Regs[instr.A()] = object.ToValue(object.NewPlainObject(value.Null, 0))
	case bytecode.OpNewArray:
		count := int(instr.C())
		elems := make([]value.Value, count)
		if count > 0 {
			first := instr.B()
			for i := 0; i < count; i++ {
				elems[i] = fr.Regs[int(first)+i]
			}
		}
		fr.Regs[instr.A()] = object.ToValue(object.NewArrayObject(elems))

	case bytecode.OpGetProp:
		slot := int(instr.Bx())
		instr2 := fr.Chunk.Code[fr.PC]
		fr.PC++
		dst, objReg, kidx := instr2.A(), instr2.B(), instr2.C()
		objVal := fr.Regs[objReg]
		name, _ := object.AsString(fr.Chunk.Constants[kidx])
		v, thrown := vm.getProperty(fr, objVal, name, slot, pos)
		if thrown != nil {
			return throwResult(thrown)
		}
		fr.Regs[dst] = v

	case bytecode.OpSetProp:
		slot := int(instr.Bx())
		instr2 := fr.Chunk.Code[fr.PC]
		fr.PC++
		objReg, srcReg, kidx := instr2.A(), instr2.B(), instr2.C()
		name, _ := object.AsString(fr.Chunk.Constants[kidx])
		thrown := vm.setProperty(fr, fr.Regs[objReg], name, fr.Regs[srcReg], slot, pos)
		if thrown != nil {
			return throwResult(thrown)
		}

	case bytecode.OpDefineProp:
		name, _ := object.AsString(fr.Chunk.Constants[instr.C()])
		if plain, ok := fromPlainObject(fr.Regs[instr.A()]); ok {
			plain.Set(name, fr.Regs[instr.B()])
		}

	case bytecode.OpGetElem:
		v, thrown := vm.getIndexed(fr.Regs[instr.B()], fr.Regs[instr.C()], pos)
		if thrown != nil {
			return throwResult(thrown)
		}
		fr.Regs[instr.A()] = v
	case bytecode.OpSetElem:
		thrown := vm.setIndexed(fr.Regs[instr.A()], fr.Regs[instr.B()], fr.Regs[instr.C()], pos)
		if thrown != nil {
			return throwResult(thrown)
		}
	case bytecode.OpGetIndex:
		v, thrown := vm.getIndexed(fr.Regs[instr.B()], value.Int(int64(instr.C())), pos)
		if thrown != nil {
			return throwResult(thrown)
		}
		fr.Regs[instr.A()] = v
	case bytecode.OpDeleteProp:
		name, _ := object.AsString(fr.Chunk.Constants[instr.C()])
		if plain, ok := fromPlainObject(fr.Regs[instr.B()]); ok {
			plain.Delete(name)
		}
		fr.Regs[instr.A()] = value.True
	case bytecode.OpInstanceOf:
		fr.Regs[instr.A()] = value.Bool(vm.instanceOf(fr.Regs[instr.B()], fr.Regs[instr.C()]))
	case bytecode.OpIn:
		name := toStringValue(fr.Regs[instr.B()])
		_, found := vm.getOwnOrInherited(fr.Regs[instr.C()], name)
		fr.Regs[instr.A()] = value.Bool(found)

	case bytecode.OpCall:
		base := instr.B()
		argc := int(instr.C())
		args := make([]value.Value, argc)
		for i := 0; i < argc; i++ {
			args[i] = fr.Regs[int(base)+1+i]
		}
		plan := vm.prepareCall(fr.Regs[base], value.Undefined, args, instr.A(), pos)
		if plan.thrown != nil {
			return throwResult(plan.thrown)
		}
		if plan.push != nil {
			vm.frames = append(vm.frames, plan.push)
			return stepResult{kind: stepContinue}
		}
		fr.Regs[instr.A()] = plan.result

	case bytecode.OpNew:
		base := instr.B()
		argc := int(instr.C())
		args := make([]value.Value, argc)
		for i := 0; i < argc; i++ {
			args[i] = fr.Regs[int(base)+1+i]
		}
		plan := vm.construct(fr.Regs[base], args, instr.A(), pos)
		if plan.thrown != nil {
			return throwResult(plan.thrown)
		}
		if plan.push != nil {
			vm.frames = append(vm.frames, plan.push)
			return stepResult{kind: stepContinue}
		}
		fr.Regs[instr.A()] = plan.result

	case bytecode.OpReturn:
		return stepResult{kind: stepReturn, value: fr.Regs[instr.A()]}

	case bytecode.OpSpread:
		// Expansion into the pending argument list is handled by the
		// compiler laying out registers directly (no runtime support
		// needed beyond what OpGetIterator/OpIterNext already provide);
		// this opcode is reserved for a future variadic call-site lowering
		// and is a no-op today.

	case bytecode.OpJump:
		fr.PC += int(instr.SBx())
	case bytecode.OpJumpIfFalse:
		if !value.ToBoolean(fr.Regs[instr.A()]) {
			fr.PC += int(instr.SBx())
		}
	case bytecode.OpJumpIfTrue:
		if value.ToBoolean(fr.Regs[instr.A()]) {
			fr.PC += int(instr.SBx())
		}
	case bytecode.OpJumpIfNullish:
		if value.IsNullish(fr.Regs[instr.A()]) {
			fr.PC += int(instr.SBx())
		}

	case bytecode.OpPushTry:
		h := fr.Chunk.Handlers[instr.Bx()]
		fr.handlers = append(fr.handlers, activeHandler{h: h})
	case bytecode.OpPopTry:
		if len(fr.handlers) > 0 {
			fr.handlers = fr.handlers[:len(fr.handlers)-1]
		}
	case bytecode.OpThrow:
		return throwResult(&diag.Thrown{Value: fr.Regs[instr.A()], At: pos})
	case bytecode.OpReraise:
		if fr.pendingRethrow != nil {
			t := fr.pendingRethrow
			fr.pendingRethrow = nil
			return throwResult(t)
		}

	case bytecode.OpGetIterator:
		it, thrown := vm.newIterator(fr.Regs[instr.B()], instr.C() != 0, pos)
		if thrown != nil {
			return throwResult(thrown)
		}
		fr.Regs[instr.A()] = it
	case bytecode.OpIterNext:
		val, ok := vm.iterNext(fr.Regs[instr.B()])
		fr.Regs[instr.A()] = val
		fr.Regs[instr.C()] = value.Bool(ok)

	case bytecode.OpYield:
		return stepResult{kind: stepYield, value: fr.Regs[instr.B()], dstReg: instr.A()}
	case bytecode.OpAwait:
		p, ok := object.AsPromise(fr.Regs[instr.B()])
		if !ok {
			p = object.NewPromiseObject()
			if reactions, changed := p.Settle(false, fr.Regs[instr.B()]); changed {
				_ = reactions
			}
		}
		return stepResult{kind: stepAwait, promise: p, dstReg: instr.A()}

	case bytecode.OpTypeof:
		fr.Regs[instr.A()] = object.NewStringValue(typeofString(fr.Regs[instr.B()]))
	case bytecode.OpToPrimitive:
		fr.Regs[instr.A()] = toPrimitive(fr.Regs[instr.B()], value.PrimitiveHint(instr.C()))
	case bytecode.OpDup:
		fr.Regs[instr.A()] = fr.Regs[instr.B()]
	case bytecode.OpNop:

	default:
		return throwResult(diag.NewTypeError("internal: unimplemented opcode "+op.String(), pos))
	}
	return stepResult{kind: stepContinue}
}

func throwResult(t *diag.Thrown) stepResult {
	return stepResult{kind: stepThrow, thrown: t}
}

func mustFunctionConstant(v value.Value) *object.FunctionObject {
	fn, _ := object.AsFunction(v)
	return fn
}

func fromPlainObject(v value.Value) (*object.PlainObject, bool) {
	return object.AsPlain(v)
}

func typeofString(v value.Value) string {
	switch {
	case value.IsUndefined(v):
		return "undefined"
	case value.IsNull(v):
		return "object"
	case value.IsBool(v):
		return "boolean"
	case value.IsInt(v), value.IsNumber(v):
		return "number"
	default:
		if _, ok := object.AsString(v); ok {
			return "string"
		}
		if _, ok := object.AsSymbol(v); ok {
			return "symbol"
		}
		if object.IsCallable(v) {
			return "function"
		}
		return "object"
	}
}

func looseEquals(a, b value.Value) bool {
	if value.TagOf(a) == value.TagOf(b) || (value.IsPointer(a) && value.IsPointer(b)) {
		return value.StrictEquals(a, b) || value.SameValueZero(a, b)
	}
	if value.IsNullish(a) && value.IsNullish(b) {
		return true
	}
	if value.IsNullish(a) || value.IsNullish(b) {
		return false
	}
	return toNumber(a) == toNumber(b)
}

// shapeIDOf resolves an object value's ShapeID for IC lookups, or 0 if v is
// not a shape-bearing object (strings, numbers, null/undefined never hit
// the property-IC path since they have no own properties worth caching).
func shapeIDOf(v value.Value) (shape.ID, bool) {
	if !value.IsPointer(v) {
		return 0, false
	}
	switch object.KindOf(v) {
	case object.KindPlain, object.KindArray:
		return object.ShapeIDOf(v), true
	default:
		return 0, false
	}
}
