package compiler

import "corevm/internal/ast"

// hoist is the var/function pre-pass: walk a function body once before
// compiling any of it, registering every `var` and function declaration's
// name at the top
// of the function scope so forward references (`f(); function f(){}`)
// resolve correctly. Block-scoped let/const bindings are deliberately not
// hoisted here; they are declared in place as the compiler reaches them,
// which is what produces the temporal dead zone above that point.
func hoist(fs *funcScope, body []ast.Stmt) {
	for _, stmt := range body {
		hoistStmt(fs, stmt)
	}
}

func hoistStmt(fs *funcScope, stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.VarDeclStmt:
		if s.Kind == ast.BindVar {
			for _, d := range s.Declarations {
				if _, ok := fs.resolveLocal(d.Name); !ok {
					fs.declareLocal(d.Name, ast.BindVar)
				}
			}
		}
	case *ast.FunctionDecl:
		if _, ok := fs.resolveLocal(s.Fn.Name); !ok {
			fs.declareLocal(s.Fn.Name, ast.BindFunction)
		}
	case *ast.BlockStmt:
		hoist(fs, s.Body)
	case *ast.IfStmt:
		hoistStmt(fs, s.Then)
		if s.Else != nil {
			hoistStmt(fs, s.Else)
		}
	case *ast.WhileStmt:
		hoistStmt(fs, s.Body)
	case *ast.DoWhileStmt:
		hoistStmt(fs, s.Body)
	case *ast.ForStmt:
		if s.Init != nil {
			hoistStmt(fs, s.Init)
		}
		hoistStmt(fs, s.Body)
	case *ast.ForInStmt:
		hoistStmt(fs, s.Body)
	case *ast.ForOfStmt:
		hoistStmt(fs, s.Body)
	case *ast.TryStmt:
		hoist(fs, s.Block.Body)
		if s.Catch != nil {
			hoist(fs, s.Catch.Body.Body)
		}
		if s.Finally != nil {
			hoist(fs, s.Finally.Body)
		}
	case *ast.LabeledStmt:
		hoistStmt(fs, s.Body)
	case *ast.SwitchStmt:
		for _, cs := range s.Cases {
			hoist(fs, cs.Body)
		}
	}
}
