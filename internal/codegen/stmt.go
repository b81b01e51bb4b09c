package codegen

import (
	"tinygo.org/x/go-llvm"

	"tml/internal/ast"
	"tml/internal/types"
)

// lowerFuncBody allocates stack slots for fs's (possibly implicit-this)
// parameters, opens the function's top scope, lowers decl.Body, and emits
// an implicit `ret void`/zero return when the body falls through without
// one, mirroring the teacher's genFuncBody (entry block + parameter
// allocas + scope push) but driven by the checked FuncSig rather than
// VSL's untyped parameter list.
func (g *Generator) lowerFuncBody(fn llvm.Value, decl *ast.FuncDecl, owner *types.ClassInfo, selfType types.Type, fs *types.FuncSig) error {
	if decl.Body == nil {
		return nil
	}
	prevFn, prevRet, prevTerm := g.fn, g.fnRet, g.terminated
	prevScopes, prevLocals := g.scopes, g.locals
	g.fn = fn
	g.fnRet = fs.Ret
	g.terminated = false
	g.scopes = nil
	g.locals = make(map[string]*local)
	defer func() {
		g.fn, g.fnRet, g.terminated = prevFn, prevRet, prevTerm
		g.scopes, g.locals = prevScopes, prevLocals
	}()

	entry := llvm.AddBasicBlock(fn, "entry")
	g.builder.SetInsertPointAtEnd(entry)
	g.pushScope()
	defer g.popScope()

	params := fn.Params()
	idx := 0
	if decl.HasThis && selfType != nil {
		if err := g.bindParam(params[idx], "this", selfType); err != nil {
			return err
		}
		idx++
	}
	for i, p := range decl.Params {
		name := paramName(p.Pattern)
		if err := g.bindParam(params[idx], name, fs.Params[i]); err != nil {
			return err
		}
		idx++
	}

	if err := g.lowerBlockInto(decl.Body); err != nil {
		return err
	}
	if !g.terminated {
		if fs.Ret == nil {
			g.builder.CreateRetVoid()
		} else {
			zero, err := g.zeroValue(fs.Ret)
			if err != nil {
				return err
			}
			g.builder.CreateRet(zero)
		}
	}
	return nil
}

func paramName(p ast.Pattern) string {
	if ip, ok := p.(*ast.IdentPattern); ok {
		return ip.Name
	}
	return "_"
}

// bindParam copies an incoming argument value into a fresh alloca so the
// rest of lowering can treat every local binding (parameter or `let`)
// uniformly as an addressable stack slot.
func (g *Generator) bindParam(arg llvm.Value, name string, t types.Type) error {
	lt, err := g.lowerType(t)
	if err != nil {
		return err
	}
	var alloca llvm.Value
	if _, isClass := t.(*types.Class); isClass {
		// Receiver/class args are already a `ptr` to the aggregate; no
		// extra indirection needed.
		alloca = arg
	} else {
		alloca = g.builder.CreateAlloca(lt, name)
		g.builder.CreateStore(arg, alloca)
	}
	g.declareLocal(name, alloca, t)
	return nil
}

// lowerBlockInto lowers a block's statements and (if present) tail
// expression into the current insert point, without opening a new scope —
// used for a function's top-level body where lowerFuncBody already pushed
// one.
func (g *Generator) lowerBlockInto(b *ast.BlockExpr) error {
	for _, s := range b.Stmts {
		if g.terminated {
			break
		}
		if err := g.lowerStmt(s); err != nil {
			return err
		}
	}
	if !g.terminated && b.Tail != nil {
		_, _, err := g.lowerExpr(b.Tail)
		if err != nil {
			return err
		}
	}
	return nil
}

// lowerBlockExpr lowers a nested block in its own scope, returning its
// tail value (or a Unit placeholder) for use as an expression.
func (g *Generator) lowerBlockExpr(b *ast.BlockExpr) (llvm.Value, types.Type, error) {
	g.pushScope()
	defer g.popScope()
	for _, s := range b.Stmts {
		if g.terminated {
			return llvm.Value{}, types.Unit, nil
		}
		if err := g.lowerStmt(s); err != nil {
			return llvm.Value{}, nil, err
		}
	}
	if b.Tail != nil {
		return g.lowerExpr(b.Tail)
	}
	return llvm.Value{}, types.Unit, nil
}

func (g *Generator) lowerStmt(s ast.Stmt) error {
	switch v := s.(type) {
	case *ast.LetStmt:
		return g.lowerLet(v.Pattern, v.Value)
	case *ast.VarStmt:
		return g.lowerLet(v.Pattern, v.Value)
	case *ast.LetElseStmt:
		return g.lowerLetElse(v)
	case *ast.ExprStmt:
		_, _, err := g.lowerExpr(v.Value)
		return err
	case *ast.NestedDeclStmt:
		_, err := g.declareTop(v.Decl)
		return err
	}
	return errf(CUnsupportedPattern, "unhandled statement %T", s)
}

func (g *Generator) lowerLet(pat ast.Pattern, value ast.Expr) error {
	ip, ok := pat.(*ast.IdentPattern)
	if !ok {
		// Destructuring let: evaluate the initializer once and bind each
		// field/element via a GEP, generalizing the single-slot case.
		return g.lowerDestructureLet(pat, value)
	}
	if value == nil {
		return errf(CBadArity, "uninitialized binding %q requires a declared type", ip.Name)
	}
	v, t, err := g.lowerExpr(value)
	if err != nil {
		return err
	}
	lt, err := g.lowerType(t)
	if err != nil {
		return err
	}
	alloca := g.builder.CreateAlloca(lt, ip.Name)
	g.builder.CreateStore(v, alloca)
	g.declareLocal(ip.Name, alloca, t)
	return nil
}

// lowerDestructureLet handles `let (a, b) = expr` and struct-pattern lets
// by materializing the initializer into a temporary slot and binding each
// named sub-pattern to a GEP into it.
func (g *Generator) lowerDestructureLet(pat ast.Pattern, value ast.Expr) error {
	v, t, err := g.lowerExpr(value)
	if err != nil {
		return err
	}
	lt, err := g.lowerType(t)
	if err != nil {
		return err
	}
	tmp := g.builder.CreateAlloca(lt, "destructure")
	g.builder.CreateStore(v, tmp)
	return g.bindPattern(pat, tmp, t)
}

func (g *Generator) bindPattern(pat ast.Pattern, slot llvm.Value, t types.Type) error {
	switch p := pat.(type) {
	case *ast.IdentPattern:
		g.declareLocal(p.Name, slot, t)
		return nil
	case *ast.WildcardPattern:
		return nil
	case *ast.TuplePattern:
		tup, ok := t.(*types.Tuple)
		if !ok {
			return errf(CUnsupportedPattern, "tuple pattern against non-tuple type %s", t)
		}
		for i, sub := range p.Elems {
			gep := g.builder.CreateStructGEP(slot, i, "")
			if err := g.bindPattern(sub, gep, tup.Elems[i]); err != nil {
				return err
			}
		}
		return nil
	case *ast.StructPattern:
		si, ok := g.env.Structs[p.Path[len(p.Path)-1]]
		if !ok {
			return errf(CUnknownStruct, "struct pattern against unknown type %q", p.Path)
		}
		for _, fp := range p.Fields {
			fi := fieldIndex(si.Fields, fp.Name)
			if fi < 0 {
				return errf(CUnknownStruct, "struct %q has no field %q", si.Name, fp.Name)
			}
			gep := g.builder.CreateStructGEP(slot, fi, "")
			if err := g.bindPattern(fp.Pattern, gep, si.Fields[fi].Type); err != nil {
				return err
			}
		}
		return nil
	}
	return errf(CUnsupportedPattern, "unsupported let-binding pattern %T", pat)
}

func fieldIndex(fields []types.StructField, name string) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// lowerLetElse lowers `let pat = expr else { diverging }`: for the
// patterns this generator supports (an irrefutable IdentPattern or an
// Outcome/Maybe-shaped EnumPattern), a refutable match tests the
// discriminant and branches to the else block on mismatch.
func (g *Generator) lowerLetElse(v *ast.LetElseStmt) error {
	val, t, err := g.lowerExpr(v.Value)
	if err != nil {
		return err
	}
	ep, ok := v.Pattern.(*ast.EnumPattern)
	if !ok {
		// Irrefutable pattern: else branch is unreachable; treat as a
		// plain let.
		return g.lowerLet(v.Pattern, v.Value)
	}
	lt, err := g.lowerType(t)
	if err != nil {
		return err
	}
	slot := g.builder.CreateAlloca(lt, "let_else_scrutinee")
	g.builder.CreateStore(val, slot)

	matchBB := llvm.AddBasicBlock(g.fn, "let_else.match")
	elseBB := llvm.AddBasicBlock(g.fn, "let_else.else")

	tag := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 0, ""), "tag")
	want := llvm.ConstInt(llvm.Int32Type(), uint64(g.variantTag(t, ep.Path[len(ep.Path)-1])), false)
	cond := g.builder.CreateICmp(llvm.IntEQ, tag, want, "")
	g.builder.CreateCondBr(cond, matchBB, elseBB)

	g.builder.SetInsertPointAtEnd(elseBB)
	if err := g.lowerDivergingBlock(v.Else); err != nil {
		return err
	}

	g.builder.SetInsertPointAtEnd(matchBB)
	g.terminated = false
	return g.bindEnumPayload(ep, slot, t)
}

// lowerDivergingBlock lowers an else-branch block that the checker
// guarantees never falls through (it must return/break/continue/panic).
func (g *Generator) lowerDivergingBlock(b *ast.BlockExpr) error {
	g.pushScope()
	defer g.popScope()
	for _, s := range b.Stmts {
		if err := g.lowerStmt(s); err != nil {
			return err
		}
	}
	if !g.terminated {
		g.builder.CreateUnreachable()
		g.terminated = true
	}
	return nil
}
