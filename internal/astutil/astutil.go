// Package astutil offers small constructors for building ast trees
// directly, used in tests and by any host that embeds its own front end
// without a full parser package. It never reads source text.
package astutil

import "corevm/internal/ast"

// Program builds a top-level script body.
func Program(body ...ast.Stmt) *ast.Program {
	return &ast.Program{Body: body}
}

// Num, Str, Bool, Null, and Undef build literal expressions.
func Num(n float64) *ast.Literal { return &ast.Literal{Kind: ast.LitNumber, Num: n} }
func Str(s string) *ast.Literal  { return &ast.Literal{Kind: ast.LitString, Str: s} }
func Bool(b bool) *ast.Literal   { return &ast.Literal{Kind: ast.LitBool, Bool: b} }
func Null() *ast.Literal         { return &ast.Literal{Kind: ast.LitNull} }
func Undef() *ast.Literal        { return &ast.Literal{Kind: ast.LitUndefined} }

// Ident references a binding by name; the compiler resolves Kind/Depth/
// Index itself (compiler/expr.go's resolveIdentifier), so callers never
// set them.
func Ident(name string) *ast.Identifier { return &ast.Identifier{Name: name} }

// Bin builds `left op right`.
func Bin(op string, left, right ast.Expr) *ast.BinaryExpr {
	return &ast.BinaryExpr{Operator: op, Left: left, Right: right}
}

// Logical builds `left op right` for &&, ||, ??.
func Logical(op string, left, right ast.Expr) *ast.LogicalExpr {
	return &ast.LogicalExpr{Operator: op, Left: left, Right: right}
}

// Unary builds a prefix unary expression.
func Unary(op string, operand ast.Expr) *ast.UnaryExpr {
	return &ast.UnaryExpr{Operator: op, Operand: operand}
}

// Assign builds `target op= value`.
func Assign(op string, target, value ast.Expr) *ast.AssignExpr {
	return &ast.AssignExpr{Operator: op, Target: target, Value: value}
}

// Update builds `target++`/`target--`, prefix or postfix.
func Update(op string, target ast.Expr, prefix bool) *ast.UpdateExpr {
	return &ast.UpdateExpr{Operator: op, Target: target, Prefix: prefix}
}

// Call builds a call expression with positional, non-spread arguments.
func Call(callee ast.Expr, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{Callee: callee, Args: args, Spread: make([]bool, len(args))}
}

// Member builds `object.property` (dot access).
func Member(object ast.Expr, property string) *ast.MemberExpr {
	return &ast.MemberExpr{Object: object, Property: Ident(property), Computed: false}
}

// Index builds `object[expr]` (computed access).
func Index(object, property ast.Expr) *ast.MemberExpr {
	return &ast.MemberExpr{Object: object, Property: property, Computed: true}
}

// Array builds a dense array literal with no holes or spreads.
func Array(elems ...ast.Expr) *ast.ArrayLit {
	return &ast.ArrayLit{
		Elements: elems,
		Spread:   make([]bool, len(elems)),
		Holes:    make([]bool, len(elems)),
	}
}

// ObjectProp is one key/value pair passed to Object.
type ObjectProp struct {
	Key   string
	Value ast.Expr
}

// Object builds a plain-data object literal (no methods/getters/setters).
func Object(props ...ObjectProp) *ast.ObjectLit {
	out := make([]ast.Property, len(props))
	for i, p := range props {
		out[i] = ast.Property{Key: Str(p.Key), Value: p.Value}
	}
	return &ast.ObjectLit{Properties: out}
}

// Func builds a named or anonymous function literal.
func Func(name string, params []string, body ...ast.Stmt) *ast.FunctionExpr {
	ps := make([]ast.Param, len(params))
	for i, p := range params {
		ps[i] = ast.Param{Name: p}
	}
	return &ast.FunctionExpr{Name: name, Params: ps, Body: body}
}

// Arrow builds an arrow function literal.
func Arrow(params []string, body ...ast.Stmt) *ast.FunctionExpr {
	f := Func("", params, body...)
	f.IsArrow = true
	return f
}

// --- statements ---

// Var, Let, and Const build a single-declarator declaration statement.
func Var(name string, init ast.Expr) *ast.VarDeclStmt {
	return &ast.VarDeclStmt{Kind: ast.BindVar, Declarations: []ast.Declarator{{Name: name, Init: init}}}
}
func Let(name string, init ast.Expr) *ast.VarDeclStmt {
	return &ast.VarDeclStmt{Kind: ast.BindLet, Declarations: []ast.Declarator{{Name: name, Init: init}}}
}
func Const(name string, init ast.Expr) *ast.VarDeclStmt {
	return &ast.VarDeclStmt{Kind: ast.BindConst, Declarations: []ast.Declarator{{Name: name, Init: init}}}
}

// ExprStmt wraps an expression in statement position.
func ExprStmt(e ast.Expr) *ast.ExpressionStmt { return &ast.ExpressionStmt{Expr: e} }

// Block builds a lexical block.
func Block(body ...ast.Stmt) *ast.BlockStmt { return &ast.BlockStmt{Body: body} }

// If builds an if/else statement; els may be nil.
func If(cond ast.Expr, then ast.Stmt, els ast.Stmt) *ast.IfStmt {
	return &ast.IfStmt{Cond: cond, Then: then, Else: els}
}

// While builds a while loop.
func While(cond ast.Expr, body ast.Stmt) *ast.WhileStmt {
	return &ast.WhileStmt{Cond: cond, Body: body}
}

// For builds a C-style for loop; any of init/cond/post may be nil.
func For(init ast.Stmt, cond ast.Expr, post ast.Expr, body ast.Stmt) *ast.ForStmt {
	return &ast.ForStmt{Init: init, Cond: cond, Post: post, Body: body}
}

// Return builds a return statement; value may be nil for a bare `return;`.
func Return(value ast.Expr) *ast.ReturnStmt { return &ast.ReturnStmt{Value: value} }

// Throw builds a throw statement.
func Throw(value ast.Expr) *ast.ThrowStmt { return &ast.ThrowStmt{Value: value} }

// Try builds a try/catch/finally statement; catchParam empty means a
// parameter-less catch, catchBody/finallyBody nil omits that clause.
func Try(block *ast.BlockStmt, catchParam string, catchBody *ast.BlockStmt, finallyBody *ast.BlockStmt) *ast.TryStmt {
	t := &ast.TryStmt{Block: block, Finally: finallyBody}
	if catchBody != nil {
		t.Catch = &ast.CatchClause{Param: catchParam, Body: catchBody}
	}
	return t
}

// FuncDecl builds a hoisted function declaration.
func FuncDecl(fn *ast.FunctionExpr) *ast.FunctionDecl { return &ast.FunctionDecl{Fn: fn} }

// Break and Continue build (optionally labeled) loop-control statements.
func Break(label string) *ast.BreakStmt       { return &ast.BreakStmt{Label: label} }
func Continue(label string) *ast.ContinueStmt { return &ast.ContinueStmt{Label: label} }
