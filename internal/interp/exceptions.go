package interp

import (
	"corevm/internal/bytecode"
	"corevm/internal/diag"
)

// unwind propagates thrown through the active coroutine's frame stack
// (vm.frames), consulting each frame's handler stack before popping the
// frame entirely. Returns false once the exception has unwound past the
// outermost frame of the current coroutine (an uncaught exception).
//
// A handler with both HasCatch and HasFinally is only half-consumed when
// its catch fires: a reduced finally-only handler is reinstalled so that
// an exception thrown from inside the catch body still runs the try
// statement's finally (compileTry's trailing OpPopTry removes this
// reinstalled handler again once the catch completes normally).
func (vm *VM) unwind(thrown *diag.Thrown) bool {
	for len(vm.frames) > 0 {
		fr := vm.frames[len(vm.frames)-1]
		if ok := fr.dispatchHandler(thrown); ok {
			return true
		}
		fr.closeUpvaluesFrom(0)
		vm.frames = vm.frames[:len(vm.frames)-1]
	}
	return false
}

// dispatchHandler pops the innermost still-active handler on fr and
// transfers control into its catch or finally body, returning false if fr
// has no handler left to offer (the caller then pops the whole frame).
func (fr *Frame) dispatchHandler(thrown *diag.Thrown) bool {
	if len(fr.handlers) == 0 {
		return false
	}
	ah := fr.handlers[len(fr.handlers)-1]
	fr.handlers = fr.handlers[:len(fr.handlers)-1]

	if ah.h.HasCatch {
		if ah.h.HasFinally {
			fr.handlers = append(fr.handlers, activeHandler{h: bytecode.Handler{
				HasFinally: true,
				FinallyPC:  ah.h.FinallyPC,
			}})
		}
		fr.Regs[ah.h.ExcReg] = thrown.Value
		fr.PC = ah.h.CatchPC
		return true
	}
	if ah.h.HasFinally {
		fr.pendingRethrow = thrown
		fr.PC = ah.h.FinallyPC
		return true
	}
	return false
}
