package codegen

import "tml/internal/ast"

// freeIdents walks a closure body and collects every bare identifier that
// is not bound within the body itself, per the same expression/statement
// traversal shape as check/infer.go's inferExpr and check/stmt.go's
// checkStmt/bindPattern. bound holds the names already in scope at entry
// (the closure's own parameters); out accumulates the free names found.
func freeIdents(e ast.Expr, bound map[string]bool, out map[string]bool) {
	if e == nil {
		return
	}
	switch v := e.(type) {
	case *ast.LiteralExpr, *ast.PathExpr, *ast.ContinueExpr, *ast.BaseExpr:
	case *ast.IdentExpr:
		if !bound[v.Name] {
			out[v.Name] = true
		}
	case *ast.BinaryExpr:
		freeIdents(v.Left, bound, out)
		freeIdents(v.Right, bound, out)
	case *ast.UnaryExpr:
		freeIdents(v.Operand, bound, out)
	case *ast.CallExpr:
		freeIdents(v.Callee, bound, out)
		for _, a := range v.Args {
			freeIdents(a, bound, out)
		}
	case *ast.MethodCallExpr:
		freeIdents(v.Receiver, bound, out)
		for _, a := range v.Args {
			freeIdents(a, bound, out)
		}
	case *ast.FieldExpr:
		freeIdents(v.Receiver, bound, out)
	case *ast.IndexExpr:
		freeIdents(v.Receiver, bound, out)
		freeIdents(v.Index, bound, out)
	case *ast.IfExpr:
		freeIdents(v.Cond, bound, out)
		freeIdentsBlock(v.Then, bound, out)
		freeIdents(v.Else, bound, out)
	case *ast.BlockExpr:
		freeIdentsBlock(v, bound, out)
	case *ast.LoopExpr:
		freeIdentsBlock(v.Body, bound, out)
	case *ast.WhileExpr:
		freeIdents(v.Cond, bound, out)
		freeIdentsBlock(v.Body, bound, out)
	case *ast.ForExpr:
		freeIdents(v.Iter, bound, out)
		inner := cloneBoundSet(bound)
		bindPatternIdents(v.Pattern, inner)
		freeIdentsBlock(v.Body, inner, out)
	case *ast.WhenExpr:
		freeIdents(v.Scrutinee, bound, out)
		for _, arm := range v.Arms {
			inner := cloneBoundSet(bound)
			bindPatternIdents(arm.Pattern, inner)
			freeIdents(arm.Guard, inner, out)
			freeIdents(arm.Body, inner, out)
		}
	case *ast.ReturnExpr:
		freeIdents(v.Value, bound, out)
	case *ast.BreakExpr:
		freeIdents(v.Value, bound, out)
	case *ast.StructExpr:
		for _, fi := range v.Fields {
			freeIdents(fi.Value, bound, out)
		}
		freeIdents(v.Spread, bound, out)
	case *ast.TupleExpr:
		for _, el := range v.Elems {
			freeIdents(el, bound, out)
		}
	case *ast.ArrayExpr:
		for _, el := range v.Elems {
			freeIdents(el, bound, out)
		}
		freeIdents(v.Repeat, bound, out)
		freeIdents(v.Count, bound, out)
	case *ast.ClosureExpr:
		inner := cloneBoundSet(bound)
		for _, p := range v.Params {
			bindPatternIdents(p.Pattern, inner)
		}
		freeIdents(v.Body, inner, out)
	case *ast.RangeExpr:
		freeIdents(v.Lo, bound, out)
		freeIdents(v.Hi, bound, out)
	case *ast.CastExpr:
		freeIdents(v.Value, bound, out)
	case *ast.TryExpr:
		freeIdents(v.Value, bound, out)
	case *ast.AwaitExpr:
		freeIdents(v.Value, bound, out)
	case *ast.InterpolatedStringExpr:
		for _, seg := range v.Segments {
			if seg.IsExpr {
				freeIdents(seg.Expr, bound, out)
			}
		}
	case *ast.TernaryExpr:
		freeIdents(v.Cond, bound, out)
		freeIdents(v.Then, bound, out)
		freeIdents(v.Else, bound, out)
	case *ast.NewExpr:
		for _, a := range v.Args {
			freeIdents(a, bound, out)
		}
	}
}

func freeIdentsBlock(b *ast.BlockExpr, bound map[string]bool, out map[string]bool) {
	if b == nil {
		return
	}
	inner := cloneBoundSet(bound)
	for _, s := range b.Stmts {
		freeIdentsStmt(s, inner, out)
	}
	freeIdents(b.Tail, inner, out)
}

func freeIdentsStmt(s ast.Stmt, bound map[string]bool, out map[string]bool) {
	switch v := s.(type) {
	case *ast.LetStmt:
		freeIdents(v.Value, bound, out)
		bindPatternIdents(v.Pattern, bound)
	case *ast.LetElseStmt:
		freeIdents(v.Value, bound, out)
		freeIdentsBlock(v.Else, bound, out)
		bindPatternIdents(v.Pattern, bound)
	case *ast.VarStmt:
		freeIdents(v.Value, bound, out)
		bindPatternIdents(v.Pattern, bound)
	case *ast.ExprStmt:
		freeIdents(v.Value, bound, out)
	case *ast.NestedDeclStmt:
		// A nested decl is lowered as its own top-level function; it does
		// not read this closure's captures.
	}
}

// bindPatternIdents adds every name a pattern binds to bound, the same
// traversal check/stmt.go's bindPattern performs for the type checker.
func bindPatternIdents(p ast.Pattern, bound map[string]bool) {
	switch v := p.(type) {
	case *ast.IdentPattern:
		bound[v.Name] = true
	case *ast.TuplePattern:
		for _, el := range v.Elems {
			bindPatternIdents(el, bound)
		}
	case *ast.StructPattern:
		for _, fp := range v.Fields {
			bindPatternIdents(fp.Pattern, bound)
		}
	case *ast.EnumPattern:
		for _, sub := range v.Payload {
			bindPatternIdents(sub, bound)
		}
	case *ast.OrPattern:
		for _, alt := range v.Alts {
			bindPatternIdents(alt, bound)
		}
	case *ast.WildcardPattern, *ast.LiteralPattern, *ast.RangePattern:
	}
}

func cloneBoundSet(bound map[string]bool) map[string]bool {
	m := make(map[string]bool, len(bound)+4)
	for k := range bound {
		m[k] = true
	}
	return m
}
