package codegen

import (
	"tinygo.org/x/go-llvm"

	"tml/internal/ast"
	"tml/internal/types"
)

// lowerBinary dispatches a binary operator to the signed/unsigned/float/
// pointer instruction family its operand type requires, per §4.5.5, with
// `and`/`or` short-circuiting via explicit branches+PHI rather than eager
// evaluation, mirroring the teacher's genIf branch-wiring idiom.
func (g *Generator) lowerBinary(v *ast.BinaryExpr) (llvm.Value, types.Type, error) {
	switch v.Op {
	case "=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<=", ">>=":
		return g.lowerAssign(v)
	case "and":
		return g.lowerShortCircuit(v, true)
	case "or":
		return g.lowerShortCircuit(v, false)
	}
	lv, lt, err := g.lowerExpr(v.Left)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	rv, _, err := g.lowerExpr(v.Right)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	switch v.Op {
	case "==", "!=", "<", ">", "<=", ">=":
		return g.lowerCompare(v.Op, lv, rv, lt)
	default:
		return g.lowerArith(v.Op, lv, rv, lt)
	}
}

func (g *Generator) lowerShortCircuit(v *ast.BinaryExpr, isAnd bool) (llvm.Value, types.Type, error) {
	lv, _, err := g.lowerExpr(v.Left)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	rhsBB := llvm.AddBasicBlock(g.fn, "")
	convBB := llvm.AddBasicBlock(g.fn, "")
	startBB := g.builder.GetInsertBlock()
	if isAnd {
		g.builder.CreateCondBr(g.truthy(lv), rhsBB, convBB)
	} else {
		g.builder.CreateCondBr(g.truthy(lv), convBB, rhsBB)
	}

	g.builder.SetInsertPointAtEnd(rhsBB)
	rv, _, err := g.lowerExpr(v.Right)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	rv = g.truthy(rv)
	rhsEndBB := g.builder.GetInsertBlock()
	g.builder.CreateBr(convBB)

	g.builder.SetInsertPointAtEnd(convBB)
	phi := g.builder.CreatePHI(llvm.Int8Type(), "")
	boolConst := uint64(0)
	if isAnd {
		boolConst = 0
	} else {
		boolConst = 1
	}
	phi.AddIncoming(
		[]llvm.Value{llvm.ConstInt(llvm.Int8Type(), boolConst, false), rv},
		[]llvm.BasicBlock{startBB, rhsEndBB},
	)
	return phi, types.Bool, nil
}

func (g *Generator) truthy(v llvm.Value) llvm.Value {
	return g.builder.CreateICmp(llvm.IntNE, v, llvm.ConstInt(v.Type(), 0, false), "")
}

func (g *Generator) lowerCompare(op string, lv, rv llvm.Value, t types.Type) (llvm.Value, types.Type, error) {
	if isFloatType(t) {
		pred, ok := map[string]llvm.FloatPredicate{
			"==": llvm.FloatOEQ, "!=": llvm.FloatONE,
			"<": llvm.FloatOLT, ">": llvm.FloatOGT,
			"<=": llvm.FloatOLE, ">=": llvm.FloatOGE,
		}[op]
		if !ok {
			return llvm.Value{}, nil, errf(CBadCast, "unsupported float comparison %q", op)
		}
		return g.builder.CreateFCmp(pred, lv, rv, ""), types.Bool, nil
	}
	unsigned := isUnsignedType(t)
	var pred llvm.IntPredicate
	switch op {
	case "==":
		pred = llvm.IntEQ
	case "!=":
		pred = llvm.IntNE
	case "<":
		pred = pick(unsigned, llvm.IntULT, llvm.IntSLT)
	case ">":
		pred = pick(unsigned, llvm.IntUGT, llvm.IntSGT)
	case "<=":
		pred = pick(unsigned, llvm.IntULE, llvm.IntSLE)
	case ">=":
		pred = pick(unsigned, llvm.IntUGE, llvm.IntSGE)
	default:
		return llvm.Value{}, nil, errf(CBadCast, "unsupported comparison %q", op)
	}
	return g.builder.CreateICmp(pred, lv, rv, ""), types.Bool, nil
}

func pick(cond bool, a, b llvm.IntPredicate) llvm.IntPredicate {
	if cond {
		return a
	}
	return b
}

func (g *Generator) lowerArith(op string, lv, rv llvm.Value, t types.Type) (llvm.Value, types.Type, error) {
	if isFloatType(t) {
		switch op {
		case "+":
			return g.builder.CreateFAdd(lv, rv, ""), t, nil
		case "-":
			return g.builder.CreateFSub(lv, rv, ""), t, nil
		case "*":
			return g.builder.CreateFMul(lv, rv, ""), t, nil
		case "/":
			return g.builder.CreateFDiv(lv, rv, ""), t, nil
		case "%":
			return g.builder.CreateFRem(lv, rv, ""), t, nil
		}
		return llvm.Value{}, nil, errf(CBadCast, "unsupported float operator %q", op)
	}
	unsigned := isUnsignedType(t)
	switch op {
	case "+":
		return g.builder.CreateAdd(lv, rv, ""), t, nil
	case "-":
		return g.builder.CreateSub(lv, rv, ""), t, nil
	case "*":
		return g.builder.CreateMul(lv, rv, ""), t, nil
	case "/":
		if unsigned {
			return g.builder.CreateUDiv(lv, rv, ""), t, nil
		}
		return g.builder.CreateSDiv(lv, rv, ""), t, nil
	case "%":
		if unsigned {
			return g.builder.CreateURem(lv, rv, ""), t, nil
		}
		return g.builder.CreateSRem(lv, rv, ""), t, nil
	case "&":
		return g.builder.CreateAnd(lv, rv, ""), t, nil
	case "|":
		return g.builder.CreateOr(lv, rv, ""), t, nil
	case "^":
		return g.builder.CreateXor(lv, rv, ""), t, nil
	case "<<":
		return g.builder.CreateShl(lv, rv, ""), t, nil
	case ">>":
		if unsigned {
			return g.builder.CreateLShr(lv, rv, ""), t, nil
		}
		return g.builder.CreateAShr(lv, rv, ""), t, nil
	}
	return llvm.Value{}, nil, errf(CBadCast, "unsupported integer operator %q", op)
}

func isFloatType(t types.Type) bool {
	p, ok := t.(types.Primitive)
	return ok && p.IsFloat()
}

func isUnsignedType(t types.Type) bool {
	p, ok := t.(types.Primitive)
	return ok && p.IsUnsigned()
}

// lowerAssign stores the RHS into the LHS place, handling compound
// assignment by loading-combining-storing, per §4.5.6.
func (g *Generator) lowerAssign(v *ast.BinaryExpr) (llvm.Value, types.Type, error) {
	place, t, err := g.lowerPlace(v.Left)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	rv, _, err := g.lowerExpr(v.Right)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	if v.Op != "=" {
		if _, err := g.lowerType(t); err != nil {
			return llvm.Value{}, nil, err
		}
		cur := g.builder.CreateLoad(place, "")
		op := v.Op[:len(v.Op)-1]
		combined, _, err := g.lowerArithOrCompare(op, cur, rv, t)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		rv = combined
	}
	g.builder.CreateStore(rv, place)
	return rv, types.Unit, nil
}

func (g *Generator) lowerArithOrCompare(op string, lv, rv llvm.Value, t types.Type) (llvm.Value, types.Type, error) {
	return g.lowerArith(op, lv, rv, t)
}

// lowerPlace lowers an assignable expression to its stack-slot pointer
// (rather than its loaded value), used by assignment and `ref`/`ref mut`.
func (g *Generator) lowerPlace(e ast.Expr) (llvm.Value, types.Type, error) {
	switch v := e.(type) {
	case *ast.IdentExpr:
		alloca, ok := g.lookupAlloca(v.Name)
		if !ok {
			return llvm.Value{}, nil, errf(CNotAPlace, "undeclared identifier %q", v.Name)
		}
		t, _ := g.lookupLocalType(v.Name)
		return alloca, t, nil
	case *ast.FieldExpr:
		return g.lowerFieldPlace(v)
	case *ast.IndexExpr:
		return g.lowerIndexPlace(v)
	case *ast.UnaryExpr:
		if v.Op == "*" {
			pv, t, err := g.lowerExpr(v.Operand)
			if err != nil {
				return llvm.Value{}, nil, err
			}
			inner := t
			if r, ok := t.(*types.Ref); ok {
				inner = r.Inner
			} else if p, ok := t.(*types.Ptr); ok {
				inner = p.Inner
			}
			return pv, inner, nil
		}
	}
	return llvm.Value{}, nil, errf(CNotAPlace, "expression %T is not an assignable place", e)
}

func (g *Generator) lowerUnary(v *ast.UnaryExpr) (llvm.Value, types.Type, error) {
	switch v.Op {
	case "ref", "mut ref":
		place, t, err := g.lowerPlace(v.Operand)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		return place, &types.Ref{Mut: v.Op == "mut ref", Inner: t}, nil
	case "*":
		pv, t, err := g.lowerExpr(v.Operand)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		var inner types.Type
		switch it := t.(type) {
		case *types.Ref:
			inner = it.Inner
		case *types.Ptr:
			inner = it.Inner
		default:
			return llvm.Value{}, nil, errf(CBadCast, "cannot dereference non-pointer type %s", t)
		}
		if _, err := g.lowerType(inner); err != nil {
			return llvm.Value{}, nil, err
		}
		return g.builder.CreateLoad(pv, ""), inner, nil
	}
	val, t, err := g.lowerExpr(v.Operand)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	switch v.Op {
	case "-":
		if isFloatType(t) {
			return g.builder.CreateFNeg(val, ""), t, nil
		}
		return g.builder.CreateNeg(val, ""), t, nil
	case "~":
		return g.builder.CreateNot(val, ""), t, nil
	case "not":
		return g.builder.CreateXor(val, llvm.ConstInt(val.Type(), 1, false), ""), types.Bool, nil
	case "++", "--":
		place, pt, err := g.lowerPlace(v.Operand)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		delta := int64(1)
		if v.Op == "--" {
			delta = -1
		}
		next := g.builder.CreateAdd(val, llvm.ConstInt(val.Type(), uint64(delta), true), "")
		g.builder.CreateStore(next, place)
		return next, pt, nil
	}
	return llvm.Value{}, nil, errf(CBadCast, "unsupported unary operator %q", v.Op)
}

func (g *Generator) lowerTernary(v *ast.TernaryExpr) (llvm.Value, types.Type, error) {
	cond, _, err := g.lowerExpr(v.Cond)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	thenBB := llvm.AddBasicBlock(g.fn, "")
	elseBB := llvm.AddBasicBlock(g.fn, "")
	convBB := llvm.AddBasicBlock(g.fn, "")
	g.builder.CreateCondBr(g.truthy(cond), thenBB, elseBB)

	g.builder.SetInsertPointAtEnd(thenBB)
	tv, t, err := g.lowerExpr(v.Then)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	thenEnd := g.builder.GetInsertBlock()
	g.builder.CreateBr(convBB)

	g.builder.SetInsertPointAtEnd(elseBB)
	ev, _, err := g.lowerExpr(v.Else)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	elseEnd := g.builder.GetInsertBlock()
	g.builder.CreateBr(convBB)

	g.builder.SetInsertPointAtEnd(convBB)
	phi := g.builder.CreatePHI(tv.Type(), "")
	phi.AddIncoming([]llvm.Value{tv, ev}, []llvm.BasicBlock{thenEnd, elseEnd})
	return phi, t, nil
}

// lowerRange constructs a Range value, the same `{i32 tag, payload}`
// enum-like shape lowerBuiltinEnumLike lays out, holding `{lo, hi,
// inclusive}` in its payload.
func (g *Generator) lowerRange(v *ast.RangeExpr) (llvm.Value, types.Type, error) {
	resultType := &types.Named{Name: "Range", TypeArgs: []types.Type{types.I64}}
	lt, err := g.lowerType(resultType)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	slot := g.builder.CreateAlloca(lt, "range")
	payload := g.builder.CreateStructGEP(slot, 1, "")
	i64ptr := llvm.PointerType(g.i64, 0)
	if v.Lo != nil {
		lo, _, err := g.lowerExpr(v.Lo)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		cast := g.builder.CreateBitCast(g.builder.CreateGEP(payload, []llvm.Value{llvm.ConstInt(g.i64, 0, false)}, ""), i64ptr, "")
		g.builder.CreateStore(lo, cast)
	}
	if v.Hi != nil {
		hi, _, err := g.lowerExpr(v.Hi)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		cast := g.builder.CreateBitCast(g.builder.CreateGEP(payload, []llvm.Value{llvm.ConstInt(g.i64, 8, false)}, ""), i64ptr, "")
		g.builder.CreateStore(hi, cast)
	}
	g.builder.CreateStore(llvm.ConstInt(llvm.Int32Type(), 0, false), g.builder.CreateStructGEP(slot, 0, ""))
	return g.builder.CreateLoad(slot, ""), resultType, nil
}

// lowerCast implements `as`: numeric widening/narrowing and int<->float
// conversion via the matching LLVM conversion instruction, pointer casts
// via bitcast, per §4.5.5.
func (g *Generator) lowerCast(v *ast.CastExpr) (llvm.Value, types.Type, error) {
	val, from, err := g.lowerExpr(v.Value)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	to := g.resolveAstType(v.Type)
	toLT, err := g.lowerType(to)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	fromFloat, toFloat := isFloatType(from), isFloatType(to)
	switch {
	case fromFloat && toFloat:
		if toLT.TypeKind() == llvm.DoubleTypeKind {
			return g.builder.CreateFPExt(val, toLT, ""), to, nil
		}
		return g.builder.CreateFPTrunc(val, toLT, ""), to, nil
	case fromFloat && !toFloat:
		if isUnsignedType(to) {
			return g.builder.CreateFPToUI(val, toLT, ""), to, nil
		}
		return g.builder.CreateFPToSI(val, toLT, ""), to, nil
	case !fromFloat && toFloat:
		if isUnsignedType(from) {
			return g.builder.CreateUIToFP(val, toLT, ""), to, nil
		}
		return g.builder.CreateSIToFP(val, toLT, ""), to, nil
	default:
		fromW, toW := val.Type().IntTypeWidth(), toLT.IntTypeWidth()
		switch {
		case toW > fromW:
			if isUnsignedType(from) {
				return g.builder.CreateZExt(val, toLT, ""), to, nil
			}
			return g.builder.CreateSExt(val, toLT, ""), to, nil
		case toW < fromW:
			return g.builder.CreateTrunc(val, toLT, ""), to, nil
		default:
			return g.builder.CreateBitCast(val, toLT, ""), to, nil
		}
	}
}

// resolveAstType maps a syntactic ast.Type to its semantic types.Type,
// reusing the same primitive-name table the checker's resolveType builds,
// generalized for codegen's need to reify a cast's target type without a
// live Checker.
func (g *Generator) resolveAstType(t ast.Type) types.Type {
	switch v := t.(type) {
	case *ast.NamedType:
		name := v.Path[len(v.Path)-1]
		if p, ok := primitiveByName(name); ok {
			return p
		}
		args := make([]types.Type, len(v.Generics))
		for i, a := range v.Generics {
			args[i] = g.resolveAstType(a)
		}
		if _, ok := g.env.Classes[name]; ok {
			return &types.Class{Name: name, TypeArgs: args}
		}
		return &types.Named{Name: name, TypeArgs: args}
	case *ast.RefType:
		return &types.Ref{Mut: v.Mut, Inner: g.resolveAstType(v.Inner)}
	case *ast.PtrType:
		return &types.Ptr{Mut: v.Mut, Inner: g.resolveAstType(v.Inner)}
	case *ast.ArrayType:
		return &types.Array{Elem: g.resolveAstType(v.Elem), Size: g.constIntSize(v.Size)}
	case *ast.SliceType:
		return &types.Slice{Elem: g.resolveAstType(v.Elem)}
	case *ast.TupleType:
		elems := make([]types.Type, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = g.resolveAstType(e)
		}
		return &types.Tuple{Elems: elems}
	}
	return types.Unit
}

// constIntSize extracts an array type's constant size from its
// (already-lexed) literal expression; any non-literal array-size
// expression yields 0 (the checker's constIntOf does the same and
// reports no diagnostic for it).
func (g *Generator) constIntSize(e ast.Expr) int64 {
	if lit, ok := e.(*ast.LiteralExpr); ok && lit.Literal != nil {
		return int64(lit.Literal.IntVal)
	}
	return 0
}

func primitiveByName(name string) (types.Primitive, bool) {
	m := map[string]types.Primitive{
		"I8": types.I8, "I16": types.I16, "I32": types.I32, "I64": types.I64, "I128": types.I128,
		"U8": types.U8, "U16": types.U16, "U32": types.U32, "U64": types.U64, "U128": types.U128,
		"F32": types.F32, "F64": types.F64, "Bool": types.Bool, "Char": types.Char,
		"Str": types.Str, "Isize": types.I64, "Usize": types.U64,
	}
	p, ok := m[name]
	return p, ok
}

// lowerTry implements `expr!`, per §4.5.5/§4.4.6: unwraps an Outcome's Ok
// payload. On the Err variant it returns early with the scrutinee Outcome
// value itself (or returns void when the current function has no return
// type); the Err payload is not re-wrapped into the function's own return
// type.
func (g *Generator) lowerTry(v *ast.TryExpr) (llvm.Value, types.Type, error) {
	val, t, err := g.lowerExpr(v.Value)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	named, ok := t.(*types.Named)
	if !ok || named.Name != "Outcome" {
		return val, t, nil
	}
	lt, err := g.lowerType(t)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	slot := g.builder.CreateAlloca(lt, "try_scrutinee")
	g.builder.CreateStore(val, slot)
	tag := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 0, ""), "")
	isErr := g.builder.CreateICmp(llvm.IntEQ, tag, llvm.ConstInt(llvm.Int32Type(), 1, false), "")

	errBB := llvm.AddBasicBlock(g.fn, "try.err")
	okBB := llvm.AddBasicBlock(g.fn, "try.ok")
	g.builder.CreateCondBr(isErr, errBB, okBB)

	g.builder.SetInsertPointAtEnd(errBB)
	if g.fnRet == nil {
		g.builder.CreateRetVoid()
	} else {
		rv := g.builder.CreateLoad(slot, "")
		g.builder.CreateRet(rv)
	}
	g.terminated = true

	g.builder.SetInsertPointAtEnd(okBB)
	g.terminated = false
	okPayload := g.builder.CreateStructGEP(slot, 1, "")
	if len(named.TypeArgs) == 0 {
		return llvm.Value{}, types.Unit, nil
	}
	okT := named.TypeArgs[0]
	okLT, err := g.lowerType(okT)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	cast := g.builder.CreateBitCast(okPayload, llvm.PointerType(okLT, 0), "")
	return g.builder.CreateLoad(cast, ""), okT, nil
}
