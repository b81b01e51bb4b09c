package check

import (
	"tml/internal/ast"
	"tml/internal/types"
)

// checkFunc type-checks one function or method body: binds the implicit
// `this` receiver (typed selfType) when v.HasThis, binds the declared
// parameters, sets the current declared return type for T016 checks,
// and walks the body. selfType/owner are both nil for a free function.
func (c *Checker) checkFunc(v *ast.FuncDecl, selfType types.Type, owner *types.ClassInfo) {
	if v.Body == nil {
		return
	}
	c.scopes = nil
	c.pushScope()
	prevRet, prevAsync := c.currentRet, c.currentAsync
	c.currentRet = c.resolveType(v.Ret)
	c.currentAsync = v.IsAsync
	if owner != nil {
		c.currentClass = owner
	}
	if v.HasThis && selfType != nil {
		c.declare("this", selfType, false)
	}

	for _, p := range v.Params {
		pt := c.resolveType(p.Type)
		c.bindPattern(p.Pattern, pt)
	}

	bodyT := c.inferBlock(v.Body)
	if v.Ret != nil && v.Body.Tail != nil {
		if !c.unify(bodyT, c.currentRet) {
			c.errorf(TReturnMismatch, v.Body, "function %q's tail expression type %s does not match declared return type %s", v.Name, c.apply(bodyT), c.apply(c.currentRet))
		}
	}
	if v.Ret != nil && !returnsOnAllPaths(v.Body) {
		c.errorf(TMissingReturn, v, "function %q does not return a value on all control-flow paths", v.Name)
	}

	c.currentRet, c.currentAsync = prevRet, prevAsync
	if owner != nil {
		c.currentClass = nil
	}
	c.popScope()
}

// returnsOnAllPaths is a conservative, syntactic approximation of §4.4.7's
// T029 "missing return" check: a block satisfies it if its tail expression
// is present, or its last statement is an expression statement whose
// value always diverges (return/break/continue) or is an if/when whose
// every arm/branch itself satisfies the rule.
func returnsOnAllPaths(b *ast.BlockExpr) bool {
	if b.Tail != nil {
		return true
	}
	if len(b.Stmts) == 0 {
		return false
	}
	last, ok := b.Stmts[len(b.Stmts)-1].(*ast.ExprStmt)
	if !ok {
		return false
	}
	return exprAlwaysReturns(last.Value)
}

func exprAlwaysReturns(e ast.Expr) bool {
	switch v := e.(type) {
	case *ast.ReturnExpr, *ast.BreakExpr, *ast.ContinueExpr:
		_ = v
		return true
	case *ast.IfExpr:
		if v.Else == nil {
			return false
		}
		return returnsOnAllPaths(v.Then) && exprAlwaysReturns(v.Else)
	case *ast.BlockExpr:
		return returnsOnAllPaths(v)
	case *ast.WhenExpr:
		for _, arm := range v.Arms {
			if !exprAlwaysReturns(arm.Body) {
				return false
			}
		}
		return len(v.Arms) > 0
	case *ast.LoopExpr:
		return true
	}
	return false
}

func (c *Checker) checkStmt(s ast.Stmt) {
	switch v := s.(type) {
	case *ast.LetStmt:
		t := c.inferExpr(v.Value)
		c.consumeIfMoved(v.Value)
		if v.Type != nil {
			declared := c.resolveType(v.Type)
			if !c.unify(t, declared) {
				c.errorf(TMismatch, v, "let binding declared %s but initializer has type %s", c.apply(declared), c.apply(t))
			}
			t = declared
		}
		c.bindPattern(v.Pattern, t)
	case *ast.LetElseStmt:
		t := c.inferExpr(v.Value)
		c.consumeIfMoved(v.Value)
		if v.Type != nil {
			t = c.resolveType(v.Type)
		}
		c.bindPattern(v.Pattern, t)
		elseT := c.inferExpr(v.Else)
		_ = elseT
	case *ast.VarStmt:
		var t types.Type = c.freshVar()
		if v.Value != nil {
			t = c.inferExpr(v.Value)
			c.consumeIfMoved(v.Value)
		}
		if v.Type != nil {
			declared := c.resolveType(v.Type)
			if v.Value != nil && !c.unify(t, declared) {
				c.errorf(TMismatch, v, "var binding declared %s but initializer has type %s", c.apply(declared), c.apply(t))
			}
			t = declared
		}
		c.bindMutablePattern(v.Pattern, t)
	case *ast.ExprStmt:
		c.inferExpr(v.Value)
	case *ast.NestedDeclStmt:
		if fd, ok := v.Decl.(*ast.FuncDecl); ok {
			c.collectFunc(fd, nil)
			c.checkFunc(fd, nil, nil)
		}
	}
}

// consumeIfMoved marks e's underlying place as moved-out when e is a bare
// identifier of a non-Copy type, per §4.4.5's "assignment to a new
// binding... consumes" rule. References and Copy types are exempt.
func (c *Checker) consumeIfMoved(e ast.Expr) {
	id, ok := e.(*ast.IdentExpr)
	if !ok {
		return
	}
	l := c.lookup(id.Name)
	if l == nil || l.typ == nil {
		return
	}
	if types.IsCopy(c.apply(l.typ)) {
		return
	}
	if l.shared > 0 || l.exclusive {
		c.errorf(BMoveBorrowed, e, "cannot move %q while it is borrowed", id.Name)
		return
	}
	l.moved = true
}

// bindPattern introduces every binding a pattern contains, typed against
// scrutinee/declared type t where the pattern's shape allows it.
func (c *Checker) bindPattern(p ast.Pattern, t types.Type) {
	switch v := p.(type) {
	case *ast.IdentPattern:
		declared := t
		if v.Type != nil {
			declared = c.resolveType(v.Type)
		}
		c.declare(v.Name, declared, v.Mut)
	case *ast.WildcardPattern:
		// binds nothing
	case *ast.TuplePattern:
		tup, ok := c.resolveVar(t).(*types.Tuple)
		for i, el := range v.Elems {
			var et types.Type = c.freshVar()
			if ok && i < len(tup.Elems) {
				et = tup.Elems[i]
			}
			c.bindPattern(el, et)
		}
	case *ast.StructPattern:
		fields, _ := c.fieldsForType(t)
		for _, fp := range v.Fields {
			var ft types.Type = c.freshVar()
			for _, sf := range fields {
				if sf.Name == fp.Name {
					ft = sf.Type
				}
			}
			c.bindPattern(fp.Pattern, ft)
		}
	case *ast.EnumPattern:
		variantName := v.Path[len(v.Path)-1]
		_, vr, ok := c.findEnumVariant(variantName)
		for i, sub := range v.Payload {
			var pt types.Type = c.freshVar()
			if ok && i < len(vr.Payload) {
				pt = vr.Payload[i]
			}
			c.bindPattern(sub, pt)
		}
	case *ast.OrPattern:
		for _, alt := range v.Alts {
			c.bindPattern(alt, t)
		}
	case *ast.LiteralPattern:
		c.inferExpr(v.Expr)
	case *ast.RangePattern:
		if v.Lo != nil {
			c.inferExpr(v.Lo)
		}
		if v.Hi != nil {
			c.inferExpr(v.Hi)
		}
	}
}

// bindMutablePattern is bindPattern but forces every introduced binding
// mutable, for `var pat = expr` where the syntax itself implies mutability
// regardless of any (rare) nested `mut` markers.
func (c *Checker) bindMutablePattern(p ast.Pattern, t types.Type) {
	if ip, ok := p.(*ast.IdentPattern); ok {
		declared := t
		if ip.Type != nil {
			declared = c.resolveType(ip.Type)
		}
		c.declare(ip.Name, declared, true)
		return
	}
	c.bindPattern(p, t)
}
