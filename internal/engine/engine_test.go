package engine

import (
	"testing"

	"corevm/internal/astutil"
	"corevm/internal/ic"
	"corevm/internal/object"
	"corevm/internal/value"
)

// S1: var/for-loop arithmetic and scoping.
func TestRunLoopAccumulator(t *testing.T) {
	e := New()
	defer e.Close()

	prog := astutil.Program(
		astutil.Var("s", astutil.Num(0)),
		astutil.For(
			astutil.Var("i", astutil.Num(1)),
			astutil.Bin("<=", astutil.Ident("i"), astutil.Num(10)),
			astutil.Update("++", astutil.Ident("i"), false),
			astutil.ExprStmt(astutil.Assign("+=", astutil.Ident("s"), astutil.Ident("i"))),
		),
		astutil.Return(astutil.Ident("s")),
	)

	got, thrown := e.Run(prog)
	if thrown != nil {
		t.Fatalf("unexpected throw: %v", thrown)
	}
	if !value.IsNumber(got) || value.ToNumber(got) != 55 {
		t.Fatalf("got %v, want 55", got)
	}
}

// S2: a closure capturing its enclosing function's parameter.
// mk(x) returns a function that adds x to its own argument; mk(10)(5) == 15.
func TestRunClosureCapturesUpvalue(t *testing.T) {
	e := New()
	defer e.Close()

	mk := astutil.Func("mk", []string{"x"},
		astutil.Return(astutil.Func("", []string{"y"},
			astutil.Return(astutil.Bin("+", astutil.Ident("x"), astutil.Ident("y"))),
		)),
	)
	prog := astutil.Program(
		astutil.FuncDecl(mk),
		astutil.Return(astutil.Call(astutil.Call(astutil.Ident("mk"), astutil.Num(10)), astutil.Num(5))),
	)

	got, thrown := e.Run(prog)
	if thrown != nil {
		t.Fatalf("unexpected throw: %v", thrown)
	}
	if !value.IsNumber(got) || value.ToNumber(got) != 15 {
		t.Fatalf("got %v, want 15", got)
	}
}

// S3: objects built via an identical literal property sequence share one
// shape, and deleting a property later forces that instance into
// dictionary mode without disturbing any of its shape-mates.
func TestObjectsShareShapeAcrossManyInstances(t *testing.T) {
	e := New()
	defer e.Close()

	const n = 1000
	objs := make([]*object.PlainObject, n)
	for i := range objs {
		o := object.NewPlainObject(value.Null, 0)
		o.Set("a", value.Int(1))
		o.Set("b", value.Int(2))
		objs[i] = o
	}
	for i := 1; i < n; i++ {
		if objs[i].ShapeID != objs[0].ShapeID {
			t.Fatalf("object %d has a different shape than object 0 despite an identical property sequence", i)
		}
	}

	e.Shapes.Delete(objs[0].ShapeID, "b")
	for i := 1; i < n; i++ {
		sh := e.Shapes.Get(objs[i].ShapeID)
		if _, ok := sh.Lookup("a"); !ok {
			t.Fatalf("unrelated instance %d lost property a after a delete elsewhere", i)
		}
		if _, ok := sh.Lookup("b"); !ok {
			t.Fatalf("unrelated instance %d lost property b after a delete elsewhere", i)
		}
	}
}

// S4: a monomorphic property-access site stays monomorphic across many
// objects of the same shape, and only goes polymorphic once a differently
// shaped object reaches the same call site.
func TestInlineCacheTracksShapeAtCallSite(t *testing.T) {
	e := New()
	defer e.Close()

	getX := astutil.Func("getX", []string{"o"},
		astutil.Return(astutil.Member(astutil.Ident("o"), "x")),
	)
	prog := astutil.Program(
		astutil.FuncDecl(getX),
		astutil.Return(astutil.Ident("getX")),
	)

	getXVal, thrown := e.Run(prog)
	if thrown != nil {
		t.Fatalf("unexpected throw: %v", thrown)
	}
	fn, ok := object.AsClosure(getXVal)
	if !ok {
		t.Fatal("getX did not compile to a closure")
	}
	if len(fn.Function.Feedback.Slots) == 0 {
		t.Fatal("getX should have allocated at least one feedback slot for o.x")
	}

	for i := 0; i < 50; i++ {
		o := object.NewPlainObject(value.Null, 0)
		o.Set("x", value.Int(i))
		if _, thrown := e.Call(getXVal, value.Undefined, []value.Value{object.ToValue(o)}); thrown != nil {
			t.Fatalf("unexpected throw: %v", thrown)
		}
	}
	slot := fn.Function.Feedback.Slot(0)
	if slot.State() != ic.Monomorphic {
		t.Fatalf("call site state = %v, want monomorphic after only same-shape objects", slot.State())
	}

	differentlyShaped := object.NewPlainObject(value.Null, 0)
	differentlyShaped.Set("x", value.Int(1))
	differentlyShaped.Set("extra", value.Int(2))
	if _, thrown := e.Call(getXVal, value.Undefined, []value.Value{object.ToValue(differentlyShaped)}); thrown != nil {
		t.Fatalf("unexpected throw: %v", thrown)
	}
	if slot.State() == ic.Monomorphic {
		t.Fatal("call site should leave monomorphic once a differently shaped object arrives")
	}
}

// S5: Promise microtask ordering; `.then` callbacks run strictly after the
// synchronous script body finishes, in the order their reactions are
// queued: 'a' and 'c' are attached to already-resolved promises and 'b' to
// a pending one resolved last, so the order is 'a','c','b'
// because 'c' is queued before 'b' resolves.
func TestPromiseThenOrdering(t *testing.T) {
	e := New()
	defer e.Close()

	var order []string

	pa := e.Loop.Resolved(e.VM, object.NewStringValue("a"))
	pb := e.Loop.NewPromise()
	pc := e.Loop.Resolved(e.VM, object.NewStringValue("c"))

	mark := func(tag string) value.Value {
		return object.ToValue(object.NewNativeFunction(tag, func(this value.Value, args []value.Value) (value.Value, error) {
			order = append(order, tag)
			return value.Undefined, nil
		}))
	}

	e.Loop.Then(e.VM, pa, mark("a"), value.Undefined)
	e.Loop.Then(e.VM, pc, mark("c"), value.Undefined)
	e.Loop.Then(e.VM, pb, mark("b"), value.Undefined)

	e.Loop.Resolve(e.VM, pb, object.NewStringValue("b"))
	e.Loop.RunUntilEmpty()

	want := []string{"a", "c", "b"}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got order %v, want %v", order, want)
		}
	}
}

// S6: a function warmed up under repeated numeric calls (enough to tier
// through baseline) must still produce the correct result once it starts
// seeing a different operand type; checked at the level of observable
// correctness rather than internal tier state
// (which tier, if any, ends up serving the call is an implementation
// detail; "still correct after the type assumption breaks" is not).
func TestAddStaysCorrectAcrossATypeChange(t *testing.T) {
	e := New()
	defer e.Close()

	add := astutil.Func("add", []string{"a", "b"},
		astutil.Return(astutil.Bin("+", astutil.Ident("a"), astutil.Ident("b"))),
	)
	const warmupCalls = 2000
	prog := astutil.Program(
		astutil.FuncDecl(add),
		astutil.Var("i", astutil.Num(0)),
		astutil.For(
			nil,
			astutil.Bin("<", astutil.Ident("i"), astutil.Num(warmupCalls)),
			astutil.Update("++", astutil.Ident("i"), false),
			astutil.ExprStmt(astutil.Call(astutil.Ident("add"), astutil.Num(1), astutil.Num(2))),
		),
		astutil.Return(astutil.Ident("add")),
	)

	addVal, thrown := e.Run(prog)
	if thrown != nil {
		t.Fatalf("unexpected throw: %v", thrown)
	}

	got, thrown := e.Call(addVal, value.Undefined, []value.Value{value.Int(1), value.Int(2)})
	if thrown != nil {
		t.Fatalf("unexpected throw: %v", thrown)
	}
	if !value.IsNumber(got) || value.ToNumber(got) != 3 {
		t.Fatalf("add(1,2) after warmup = %v, want 3", got)
	}

	got, thrown = e.Call(addVal, value.Undefined, []value.Value{object.NewStringValue("x"), object.NewStringValue("y")})
	if thrown != nil {
		t.Fatalf("unexpected throw: %v", thrown)
	}
	s, ok := object.AsString(got)
	if !ok || s != "xy" {
		t.Fatalf("add(\"x\",\"y\") after numeric warmup = %v, want \"xy\"", got)
	}
}
