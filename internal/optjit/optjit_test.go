package optjit

import (
	"testing"
	"unsafe"

	"corevm/internal/bytecode"
	"corevm/internal/ic"
	"corevm/internal/value"
)

// fakeFrame is a minimal FrameAccess backed by a plain register slice, for
// driving a compiled region directly without an interpreter frame.
type fakeFrame struct {
	regs []value.Value
	pc   int
}

func (f *fakeFrame) Reg(i uint8) value.Value     { return f.regs[i] }
func (f *fakeFrame) SetReg(i uint8, v value.Value) { f.regs[i] = v }
func (f *fakeFrame) GetPC() int                    { return f.pc }
func (f *fakeFrame) SetPC(pc int)                  { f.pc = pc }
func (f *fakeFrame) ThisValue() value.Value        { return value.Undefined }

// buildSumLoop emits a chunk whose only content is a loop summing r1 (the
// counter) into r0 (the accumulator) while r1 < r2, matching the shape:
//
//	L: r3 = r1 < r2
//	   if !r3 jump exit
//	   r0 = r0 + r1
//	   r4 = 1
//	   r1 = r1 + r4
//	   jump L
//	exit: ...
//
// r0 and r1 are both read and overwritten inside the loop, the case that
// exposed the assumption-tracking gap: a register's g.defs entry gets
// replaced by its in-loop redefinition, so collecting assumptions from the
// defs snapshot alone would silently stop guarding it after its first
// write.
func buildSumLoop() *bytecode.Chunk {
	c := bytecode.NewChunk("sumLoop", "<test>")
	c.NumRegisters = 5
	pos := bytecode.Position{}

	ltPC := c.Emit(bytecode.NewABC(bytecode.OpLt, 3, 1, 2), pos)
	exitJumpPC := c.Emit(bytecode.NewAsBx(bytecode.OpJumpIfFalse, 3, 0), pos)
	c.Emit(bytecode.NewABC(bytecode.OpAdd, 0, 0, 1), pos)
	c.Emit(bytecode.NewABx(bytecode.OpLoadSmi, 4, uint16(1)), pos)
	c.Emit(bytecode.NewABC(bytecode.OpAdd, 1, 1, 4), pos)
	backJumpPC := c.Emit(bytecode.NewAsBx(bytecode.OpJump, 0, 0), pos)
	exitPC := c.Emit(bytecode.NewABC(bytecode.OpReturn, 0, 0, 0), pos)

	c.Code[exitJumpPC] = bytecode.NewAsBx(bytecode.OpJumpIfFalse, 3, int32(exitPC-(exitJumpPC+1)))
	c.Code[backJumpPC] = bytecode.NewAsBx(bytecode.OpJump, 0, int32(ltPC-(backJumpPC+1)))
	return c
}

func TestCompileFindsTheLoopRegion(t *testing.T) {
	c := buildSumLoop()
	prog := Compile(c, ic.NewFeedbackVector(0))
	if len(prog.Regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(prog.Regions))
	}
	r := prog.Regions[0]
	if r.Region.Start != 0 || r.Region.End != 5 {
		t.Fatalf("region = %+v, want Start=0 End=5", r.Region)
	}
}

// TestLoopCarriedAccumulatorStaysGuarded is the regression test for the
// assumption-tracking gap described above: r0 and r1 are both read and
// written inside the loop, so both must appear as guarded assumptions, not
// just registers that are read-only inside the region.
func TestLoopCarriedAccumulatorStaysGuarded(t *testing.T) {
	c := buildSumLoop()
	prog := Compile(c, ic.NewFeedbackVector(0))
	r := prog.Regions[0]

	guarded := map[uint8]bool{}
	for _, a := range r.Assumptions {
		guarded[a.Reg] = true
	}
	for _, reg := range []uint8{0, 1, 2} {
		if !guarded[reg] {
			t.Fatalf("register %d is read inside the loop but carries no entry guard; assumptions = %+v", reg, r.Assumptions)
		}
	}
}

func TestCompiledRegionSumsCorrectly(t *testing.T) {
	c := buildSumLoop()
	prog := Compile(c, ic.NewFeedbackVector(0))
	r := prog.Regions[0]

	fa := &fakeFrame{regs: make([]value.Value, 5)}
	fa.regs[0] = value.Number(0) // sum
	fa.regs[1] = value.Number(0) // i
	fa.regs[2] = value.Number(5) // limit

	resumePC, deopted, _ := r.Run(fa, r.Region.Start)
	if deopted {
		t.Fatal("unexpected deopt summing plain numbers")
	}
	if resumePC != 6 {
		t.Fatalf("resumePC = %d, want 6 (the instruction after the loop)", resumePC)
	}
	if got := value.ToNumber(fa.regs[0]); got != 10 {
		t.Fatalf("sum(0..4) = %v, want 10", got)
	}
}

// TestCompiledRegionDeoptsOnTypeChange exercises the entry guard directly:
// handing the region a pointer-tagged value in a register it assumed would
// stay numeric must deopt rather than silently coerce.
func TestCompiledRegionDeoptsOnTypeChange(t *testing.T) {
	c := buildSumLoop()
	prog := Compile(c, ic.NewFeedbackVector(0))
	r := prog.Regions[0]

	fa := &fakeFrame{regs: make([]value.Value, 5)}
	fa.regs[0] = value.Number(0)
	fa.regs[1] = value.FromPointer(unsafe.Pointer(nil)) // pointer-tagged: breaks the "always numeric" assumption
	fa.regs[2] = value.Number(5)

	_, deopted, reason := r.Run(fa, r.Region.Start)
	if !deopted {
		t.Fatal("expected a deopt when a loop-carried register holds a pointer")
	}
	if reason != DeoptTypeGuard {
		t.Fatalf("reason = %v, want DeoptTypeGuard", reason)
	}
}
