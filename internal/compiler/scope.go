package compiler

import "corevm/internal/ast"

// local is one compile-time register binding within the function currently
// being compiled.
type local struct {
	name     string
	reg      uint8
	depth    int  // lexical block nesting depth, for block-scope pop on exit
	kind     ast.BindingKind
	inTDZ    bool
	captured bool // true once some nested function closes over this local
}

// funcScope tracks the compile-time state for one function body: its
// register allocator, its locals (a flat stack, block-scoped by depth), and
// the upvalues it captures from its enclosing function. A hoisting pre-pass
// walks the function body once to collect every var/function declaration
// before any code is emitted for it.
type funcScope struct {
	parent     *funcScope
	locals     []local
	blockDepth int
	nextReg    uint8
	maxReg     uint8
	upvalues   []upvalueSlot
	loops      []loopContext
	handlers   int // nesting depth of active try blocks, for OpPushTry bookkeeping
}

type upvalueSlot struct {
	name    string
	isLocal bool // true: captures parent's local register; false: parent's upvalue
	index   uint8
}

// loopContext records the jump-patch lists a break/continue inside the
// current loop needs to resolve once the loop's bytecode is fully emitted.
type loopContext struct {
	label           string
	continueTarget  int
	breakPatches    []int
	continuePatches []int
	// handlerDepth is funcScope.handlers at the point this loop was
	// entered; break/continue emit exactly this-many-fewer OpPopTry
	// instructions than the current depth so a jump out of a try block
	// nested in the loop body leaves the frame's runtime handler stack
	// balanced.
	handlerDepth int
}

func newFuncScope(parent *funcScope) *funcScope {
	return &funcScope{parent: parent}
}

func (fs *funcScope) allocReg() uint8 {
	r := fs.nextReg
	fs.nextReg++
	if fs.nextReg > fs.maxReg {
		fs.maxReg = fs.nextReg
	}
	return r
}

func (fs *funcScope) freeReg() {
	if fs.nextReg > 0 {
		fs.nextReg--
	}
}

func (fs *funcScope) declareLocal(name string, kind ast.BindingKind) uint8 {
	reg := fs.allocReg()
	fs.locals = append(fs.locals, local{
		name:  name,
		reg:   reg,
		depth: fs.blockDepth,
		kind:  kind,
		inTDZ: kind == ast.BindLet || kind == ast.BindConst,
	})
	return reg
}

func (fs *funcScope) resolveLocal(name string) (*local, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return &fs.locals[i], true
		}
	}
	return nil, false
}

// resolveUpvalue finds name in an enclosing function, adding (or reusing)
// an upvalue slot on every function scope between here and where it was
// found; the classic upvalue-chain resolution an UpvalueDesc{Index,
// IsLocal} pair is built for.
func (fs *funcScope) resolveUpvalue(name string) (uint8, bool) {
	if fs.parent == nil {
		return 0, false
	}
	if l, ok := fs.parent.resolveLocal(name); ok {
		l.captured = true
		return fs.addUpvalue(name, true, l.reg), true
	}
	if idx, ok := fs.parent.resolveUpvalue(name); ok {
		return fs.addUpvalue(name, false, idx), true
	}
	return 0, false
}

func (fs *funcScope) addUpvalue(name string, isLocal bool, index uint8) uint8 {
	for i, u := range fs.upvalues {
		if u.name == name && u.isLocal == isLocal && u.index == index {
			return uint8(i)
		}
	}
	fs.upvalues = append(fs.upvalues, upvalueSlot{name: name, isLocal: isLocal, index: index})
	return uint8(len(fs.upvalues) - 1)
}

// enterBlock/exitBlock bracket a lexical block; exitBlock truncates locals
// declared at or below the departing depth, matching block-scope exit.
func (fs *funcScope) enterBlock() { fs.blockDepth++ }

func (fs *funcScope) exitBlock() {
	depth := fs.blockDepth
	i := len(fs.locals)
	for i > 0 && fs.locals[i-1].depth >= depth {
		i--
		fs.freeReg()
	}
	fs.locals = fs.locals[:i]
	fs.blockDepth--
}
