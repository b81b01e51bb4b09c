package codegen

import (
	"sort"

	"tinygo.org/x/go-llvm"

	"tml/internal/ast"
	"tml/internal/types"
)

// lowerCall lowers a direct call, a builtin `print`, or an indirect call
// through a closure/function-pointer value, per §4.5.7's resolution order
// (generator scope: builtin intrinsics, generic functions, plain
// functions, then indirect calls — method-call resolution is handled
// separately by lowerMethodCall).
func (g *Generator) lowerCall(v *ast.CallExpr) (llvm.Value, types.Type, error) {
	if id, ok := v.Callee.(*ast.IdentExpr); ok {
		if id.Name == "print" || id.Name == "println" {
			return g.lowerPrint(v, id.Name == "println")
		}
		if fs, ok := g.env.Functions[id.Name]; ok {
			return g.lowerDirectCall(id.Name, fs, v.TypeArgs, v.Args)
		}
		if local, ok := g.locals[id.Name]; ok {
			return g.lowerIndirectCall(local, v.Args)
		}
	}
	calleeVal, calleeT, err := g.lowerExpr(v.Callee)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	return g.lowerIndirectCallValue(calleeVal, calleeT, v.Args)
}

func (g *Generator) lowerPrint(v *ast.CallExpr, newline bool) (llvm.Value, types.Type, error) {
	if len(v.Args) == 0 {
		return llvm.Value{}, types.Unit, nil
	}
	val, t, err := g.lowerExpr(v.Args[0])
	if err != nil {
		return llvm.Value{}, nil, err
	}
	str := val
	switch {
	case isStrType(str, t):
		str = val
	case isFloatType(t):
		str = g.builder.CreateCall(g.floatToStringFunc(), []llvm.Value{val}, "")
	default:
		ext := val
		if val.Type().IntTypeWidth() < 64 {
			ext = g.builder.CreateSExt(val, g.i64, "")
		}
		str = g.builder.CreateCall(g.intToStringFunc(), []llvm.Value{ext}, "")
	}
	fmtStr := "%s"
	if newline {
		fmtStr = "%s\n"
	}
	g.builder.CreateCall(g.printfFunc(), []llvm.Value{g.internString(fmtStr), str}, "")
	return llvm.Value{}, types.Unit, nil
}

func isStrType(_ llvm.Value, t types.Type) bool {
	p, ok := t.(types.Primitive)
	return ok && p == types.Str
}

func (g *Generator) lowerDirectCall(name string, fs *types.FuncSig, typeArgs []ast.Type, argExprs []ast.Expr) (llvm.Value, types.Type, error) {
	args, err := g.lowerArgs(argExprs)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	symbol := mangledFuncName("", name, nil)
	if len(fs.Generics) > 0 {
		concreteArgs := make([]types.Type, len(typeArgs))
		for i, ta := range typeArgs {
			concreteArgs[i] = g.resolveAstType(ta)
		}
		if len(concreteArgs) == 0 {
			concreteArgs = inferTypeArgsFromParams(fs, argExprs, g)
		}
		symbol = g.mono.requireInstantiation(monoFunc, "", name, concreteArgs)
	}
	fn, ok := g.globals.get(symbol)
	if !ok {
		return llvm.Value{}, nil, errf(CUnknownFunction, "call to undeclared function %q", name)
	}
	return g.emitCall(fn, args, fs.Ret)
}

// inferTypeArgsFromParams is the fallback when a generic call omits
// explicit type arguments. It does not inspect the arguments: every
// generic parameter is instantiated as I32.
func inferTypeArgsFromParams(fs *types.FuncSig, argExprs []ast.Expr, g *Generator) []types.Type {
	out := make([]types.Type, len(fs.Generics))
	for i := range out {
		out[i] = types.I32
	}
	return out
}

func (g *Generator) lowerArgs(argExprs []ast.Expr) ([]llvm.Value, error) {
	args := make([]llvm.Value, len(argExprs))
	for i, a := range argExprs {
		v, _, err := g.lowerExpr(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (g *Generator) emitCall(fn llvm.Value, args []llvm.Value, ret types.Type) (llvm.Value, types.Type, error) {
	if ret == nil {
		g.builder.CreateCall(fn, args, "")
		return llvm.Value{}, types.Unit, nil
	}
	return g.builder.CreateCall(fn, args, ""), ret, nil
}

// lowerIndirectCall calls through a closure-typed local: a fat pointer
// `{fn, env}` whose env field null-checks to distinguish a thin function
// pointer from a real capturing closure, per §4.5.6.
func (g *Generator) lowerIndirectCall(l *local, argExprs []ast.Expr) (llvm.Value, types.Type, error) {
	clo, ok := l.semType.(*types.Closure)
	if !ok {
		if fn, ok2 := l.semType.(*types.Func); ok2 {
			args, err := g.lowerArgs(argExprs)
			if err != nil {
				return llvm.Value{}, nil, err
			}
			fnVal := g.builder.CreateLoad(l.alloca, "")
			return g.emitCall(fnVal, args, fn.Ret)
		}
		return llvm.Value{}, nil, errf(CBadCast, "call target is not callable")
	}
	if _, err := g.lowerType(clo); err != nil {
		return llvm.Value{}, nil, err
	}
	cloVal := g.builder.CreateLoad(l.alloca, "")
	return g.lowerIndirectCallValue(cloVal, clo, argExprs)
}

func (g *Generator) lowerIndirectCallValue(calleeVal llvm.Value, calleeT types.Type, argExprs []ast.Expr) (llvm.Value, types.Type, error) {
	clo, ok := calleeT.(*types.Closure)
	if !ok {
		args, err := g.lowerArgs(argExprs)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		var ret types.Type = types.Unit
		if fn, ok := calleeT.(*types.Func); ok {
			ret = fn.Ret
		}
		return g.emitCall(calleeVal, args, ret)
	}
	fnPtr := g.builder.CreateExtractValue(calleeVal, 0, "")
	envPtr := g.builder.CreateExtractValue(calleeVal, 1, "")
	args, err := g.lowerArgs(argExprs)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	paramTypes := make([]llvm.Type, 0, len(clo.Params)+1)
	for _, p := range clo.Params {
		lt, err := g.lowerType(p)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		paramTypes = append(paramTypes, lt)
	}
	var retLT llvm.Type
	if clo.Ret == nil {
		retLT = g.ctx.VoidType()
	} else {
		retLT, err = g.lowerType(clo.Ret)
		if err != nil {
			return llvm.Value{}, nil, err
		}
	}
	thinFT := llvm.PointerType(llvm.FunctionType(retLT, paramTypes, false), 0)
	withEnvFT := llvm.PointerType(llvm.FunctionType(retLT, append([]llvm.Type{g.opaquePtr}, paramTypes...), false), 0)

	isThin := g.builder.CreateICmp(llvm.IntEQ, envPtr, llvm.ConstNull(g.opaquePtr), "")
	thinBB := llvm.AddBasicBlock(g.fn, "closure.thin")
	fatBB := llvm.AddBasicBlock(g.fn, "closure.fat")
	convBB := llvm.AddBasicBlock(g.fn, "closure.conv")
	g.builder.CreateCondBr(isThin, thinBB, fatBB)

	g.builder.SetInsertPointAtEnd(thinBB)
	thinFn := g.builder.CreateBitCast(fnPtr, thinFT, "")
	var thinRes llvm.Value
	if clo.Ret != nil {
		thinRes = g.builder.CreateCall(thinFn, args, "")
	} else {
		g.builder.CreateCall(thinFn, args, "")
	}
	thinEnd := g.builder.GetInsertBlock()
	g.builder.CreateBr(convBB)

	g.builder.SetInsertPointAtEnd(fatBB)
	fatFn := g.builder.CreateBitCast(fnPtr, withEnvFT, "")
	fatArgs := append([]llvm.Value{envPtr}, args...)
	var fatRes llvm.Value
	if clo.Ret != nil {
		fatRes = g.builder.CreateCall(fatFn, fatArgs, "")
	} else {
		g.builder.CreateCall(fatFn, fatArgs, "")
	}
	fatEnd := g.builder.GetInsertBlock()
	g.builder.CreateBr(convBB)

	g.builder.SetInsertPointAtEnd(convBB)
	if clo.Ret == nil {
		return llvm.Value{}, types.Unit, nil
	}
	phi := g.builder.CreatePHI(retLT, "")
	phi.AddIncoming([]llvm.Value{thinRes, fatRes}, []llvm.BasicBlock{thinEnd, fatEnd})
	return phi, clo.Ret, nil
}

// lowerMethodCall implements §4.5.7's resolution order, scoped to what
// this generator's Env exposes: inherent/trait impl methods first, then
// class methods walking the base chain (ResolveMethod already encodes
// both), falling back to virtual dispatch through a class's vtable when
// the receiver's static type is a `dyn Behavior`.
func (g *Generator) lowerMethodCall(v *ast.MethodCallExpr) (llvm.Value, types.Type, error) {
	recvT := g.exprType(v.Receiver)
	if dyn, ok := recvT.(*types.DynBehavior); ok {
		return g.lowerDynDispatch(v, dyn)
	}
	recvPlace, recvType, err := g.lowerReceiverPlace(v.Receiver)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	selfName := typeConstructorName(recvType)
	fs := g.env.ResolveMethod(selfName, v.Method)
	if fs == nil {
		return llvm.Value{}, nil, errf(CUnknownMethod, "no method %q found on %s", v.Method, recvType)
	}
	args, err := g.lowerArgs(v.Args)
	if err != nil {
		return llvm.Value{}, nil, err
	}

	// A virtual/override method must dispatch through the receiver's own
	// vtable rather than the statically resolved symbol: the declared
	// type's own definition is not necessarily the runtime object's
	// definition (e.g. `let a: Animal = new Dog()`), and a direct symbol
	// for the declared type's method always exists, so checking "does the
	// symbol exist" can never catch this — the virtual/override flag is
	// the only reliable signal.
	if ci, ok := g.env.Classes[selfName]; ok && (fs.IsVirtual || fs.IsOverride) && g.classNeedsVtable(ci) {
		return g.lowerVirtualCallOnClass(ci, recvPlace, v.Method, fs, args)
	}

	allArgs := append([]llvm.Value{recvPlace}, args...)
	symbol := mangledFuncName(selfName, v.Method, nil)
	if len(fs.Generics) > 0 {
		concreteArgs := make([]types.Type, len(v.TypeArgs))
		for i, ta := range v.TypeArgs {
			concreteArgs[i] = g.resolveAstType(ta)
		}
		symbol = g.mono.requireInstantiation(monoMethod, selfName, v.Method, concreteArgs)
	}
	fn, ok := g.globals.get(symbol)
	if !ok {
		return llvm.Value{}, nil, errf(CUnknownMethod, "method %q resolved but has no emitted body", v.Method)
	}
	return g.emitCall(fn, allArgs, fs.Ret)
}

func typeConstructorName(t types.Type) string {
	switch v := t.(type) {
	case *types.Named:
		return v.Name
	case *types.Class:
		return v.Name
	}
	return ""
}

// exprType performs a lightweight, codegen-local re-derivation of an
// expression's static type, needed only to decide the dyn-dispatch branch
// before any value is actually lowered. It mirrors check/infer.go's own
// dispatch shape but looks up already-checked local/field types instead
// of re-running unification.
func (g *Generator) exprType(e ast.Expr) types.Type {
	switch v := e.(type) {
	case *ast.IdentExpr:
		if t, ok := g.lookupLocalType(v.Name); ok {
			return t
		}
	case *ast.FieldExpr:
		if base := g.exprType(v.Receiver); base != nil {
			if si, ok := g.fieldOwner(base); ok {
				if fi := fieldIndex(si, v.Name); fi >= 0 {
					return si[fi].Type
				}
			}
		}
	}
	return nil
}

func (g *Generator) fieldOwner(t types.Type) ([]types.StructField, bool) {
	switch v := t.(type) {
	case *types.Named:
		if si, ok := g.env.Structs[v.Name]; ok {
			return si.Fields, true
		}
	case *types.Class:
		if ci, ok := g.env.Classes[v.Name]; ok {
			return ci.Fields, true
		}
	}
	return nil, false
}

// lowerReceiverPlace lowers a method-call receiver to the pointer/value
// its signature expects, auto-dereferencing through a `ref`/`ptr`
// indirection so `r.method()` works uniformly whether `r` is `T`, `&T`,
// or `ptr T` per §4.5.5's "smart-pointer receivers" note.
func (g *Generator) lowerReceiverPlace(e ast.Expr) (llvm.Value, types.Type, error) {
	v, t, err := g.lowerExpr(e)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	for {
		switch it := t.(type) {
		case *types.Ref:
			t = it.Inner
		case *types.Ptr:
			t = it.Inner
		default:
			return v, t, nil
		}
	}
}

func (g *Generator) lowerField(v *ast.FieldExpr) (llvm.Value, types.Type, error) {
	place, t, err := g.lowerFieldPlace(v)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	fieldT := g.exprType(v)
	if fieldT == nil {
		fieldT = t
	}
	if _, isClass := fieldT.(*types.Class); isClass {
		return place, fieldT, nil
	}
	if _, err := g.lowerType(fieldT); err != nil {
		return llvm.Value{}, nil, err
	}
	return g.builder.CreateLoad(place, v.Name), fieldT, nil
}

func (g *Generator) lowerFieldPlace(v *ast.FieldExpr) (llvm.Value, types.Type, error) {
	recvPlace, recvT, err := g.lowerReceiverPlace(v.Receiver)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	fields, ok := g.fieldOwner(recvT)
	if !ok {
		return llvm.Value{}, nil, errf(CUnknownStruct, "field access on non-aggregate type %s", recvT)
	}
	idx := fieldIndex(fields, v.Name)
	if idx < 0 {
		return llvm.Value{}, nil, errf(CUnknownStruct, "no field %q on %s", v.Name, recvT)
	}
	gepIdx := idx
	if ci, ok := recvT.(*types.Class); ok {
		if cInfo, ok2 := g.env.Classes[ci.Name]; ok2 && g.classNeedsVtable(cInfo) {
			gepIdx++ // Skip the vtable-pointer field.
		}
	}
	return g.builder.CreateStructGEP(recvPlace, gepIdx, v.Name), fields[idx].Type, nil
}

func (g *Generator) lowerIndex(v *ast.IndexExpr) (llvm.Value, types.Type, error) {
	place, t, err := g.lowerIndexPlace(v)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	if _, err := g.lowerType(t); err != nil {
		return llvm.Value{}, nil, err
	}
	return g.builder.CreateLoad(place, ""), t, nil
}

func (g *Generator) lowerIndexPlace(v *ast.IndexExpr) (llvm.Value, types.Type, error) {
	recvPlace, recvT, err := g.lowerReceiverPlace(v.Receiver)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	idx, _, err := g.lowerExpr(v.Index)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	switch elemT := recvT.(type) {
	case *types.Array:
		gep := g.builder.CreateGEP(recvPlace, []llvm.Value{llvm.ConstInt(g.i64, 0, false), idx}, "")
		return gep, elemT.Elem, nil
	case *types.Slice:
		dataPtr := g.builder.CreateLoad(g.builder.CreateStructGEP(recvPlace, 0, ""), "")
		elemLT, err := g.lowerType(elemT.Elem)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		typed := g.builder.CreateBitCast(dataPtr, llvm.PointerType(elemLT, 0), "")
		gep := g.builder.CreateGEP(typed, []llvm.Value{idx}, "")
		return gep, elemT.Elem, nil
	}
	return llvm.Value{}, nil, errf(CBadCast, "cannot index type %s", recvT)
}

func (g *Generator) lowerStructLit(v *ast.StructExpr) (llvm.Value, types.Type, error) {
	name := v.Path[len(v.Path)-1]
	si, ok := g.env.Structs[name]
	if !ok {
		return llvm.Value{}, nil, errf(CUnknownStruct, "unknown struct %q", name)
	}
	resultType := &types.Named{Name: si.Name, ModulePath: si.ModulePath}
	lt, err := g.lowerType(resultType)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	slot := g.builder.CreateAlloca(lt, "struct_lit")
	if v.Spread != nil {
		base, _, err := g.lowerExpr(v.Spread)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		g.builder.CreateStore(base, slot)
	}
	for _, fi := range v.Fields {
		idx := fieldIndex(si.Fields, fi.Name)
		if idx < 0 {
			return llvm.Value{}, nil, errf(CUnknownStruct, "struct %q has no field %q", si.Name, fi.Name)
		}
		fv, _, err := g.lowerExpr(fi.Value)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		g.builder.CreateStore(fv, g.builder.CreateStructGEP(slot, idx, fi.Name))
	}
	return g.builder.CreateLoad(slot, ""), resultType, nil
}

func (g *Generator) lowerTuple(v *ast.TupleExpr) (llvm.Value, types.Type, error) {
	elemTypes := make([]types.Type, len(v.Elems))
	elemVals := make([]llvm.Value, len(v.Elems))
	for i, e := range v.Elems {
		ev, et, err := g.lowerExpr(e)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		elemVals[i] = ev
		elemTypes[i] = et
	}
	resultType := &types.Tuple{Elems: elemTypes}
	lt, err := g.lowerType(resultType)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	slot := g.builder.CreateAlloca(lt, "tuple_lit")
	for i, ev := range elemVals {
		g.builder.CreateStore(ev, g.builder.CreateStructGEP(slot, i, ""))
	}
	return g.builder.CreateLoad(slot, ""), resultType, nil
}

func (g *Generator) lowerArray(v *ast.ArrayExpr) (llvm.Value, types.Type, error) {
	if v.Repeat != nil {
		rv, et, err := g.lowerExpr(v.Repeat)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		n := g.constIntSize(v.Count)
		resultType := &types.Array{Elem: et, Size: n}
		lt, err := g.lowerType(resultType)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		slot := g.builder.CreateAlloca(lt, "array_lit")
		for i := int64(0); i < n; i++ {
			gep := g.builder.CreateGEP(slot, []llvm.Value{llvm.ConstInt(g.i64, 0, false), llvm.ConstInt(g.i64, uint64(i), false)}, "")
			g.builder.CreateStore(rv, gep)
		}
		return g.builder.CreateLoad(slot, ""), resultType, nil
	}
	var elemT types.Type = types.I32
	elemVals := make([]llvm.Value, len(v.Elems))
	for i, e := range v.Elems {
		ev, et, err := g.lowerExpr(e)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		elemVals[i] = ev
		elemT = et
	}
	resultType := &types.Array{Elem: elemT, Size: int64(len(v.Elems))}
	lt, err := g.lowerType(resultType)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	slot := g.builder.CreateAlloca(lt, "array_lit")
	for i, ev := range elemVals {
		gep := g.builder.CreateGEP(slot, []llvm.Value{llvm.ConstInt(g.i64, 0, false), llvm.ConstInt(g.i64, uint64(i), false)}, "")
		g.builder.CreateStore(ev, gep)
	}
	return g.builder.CreateLoad(slot, ""), resultType, nil
}

// lowerClosure builds a `{fn, env}` fat pointer per §4.5.6: every
// enclosing local the body references by name (found by capture.go's
// freeIdents) is packed into a malloc'd environment struct, by reference
// — the env field holds the captured variable's own alloca, so a mutation
// inside the closure body is visible to the enclosing function — and a
// fresh top-level function taking the env pointer first is synthesized to
// hold the body. A closure that captures nothing stores a null env, the
// thin-call fast path at the call site.
func (g *Generator) lowerClosure(v *ast.ClosureExpr) (llvm.Value, types.Type, error) {
	paramTypes := make([]types.Type, len(v.Params))
	llvmParams := make([]llvm.Type, 0, len(v.Params)+1)
	llvmParams = append(llvmParams, g.opaquePtr)
	paramBound := make(map[string]bool, len(v.Params))
	for i, p := range v.Params {
		pt := g.typeOrInfer(p.Type)
		paramTypes[i] = pt
		plt, err := g.lowerType(pt)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		llvmParams = append(llvmParams, plt)
		bindPatternIdents(p.Pattern, paramBound)
	}
	retT := g.typeOrInfer(v.Ret)
	var retLT llvm.Type
	var err error
	if retT == nil || retT == types.Unit {
		retLT = g.ctx.VoidType()
	} else {
		retLT, err = g.lowerType(retT)
		if err != nil {
			return llvm.Value{}, nil, err
		}
	}

	free := make(map[string]bool)
	freeIdents(v.Body, paramBound, free)
	var captures []string
	for name := range free {
		if _, ok := g.locals[name]; ok {
			captures = append(captures, name)
		}
	}
	sort.Strings(captures)

	envFieldType := make([]types.Type, len(captures))
	envAllocas := make([]llvm.Value, len(captures))
	for i, name := range captures {
		envFieldType[i] = g.locals[name].semType
		envAllocas[i] = g.locals[name].alloca
	}
	envFieldLT := make([]llvm.Type, len(captures))
	for i := range captures {
		envFieldLT[i] = g.opaquePtr
	}

	g.strCounter++
	fnName := "closure$" + itoa(g.strCounter)
	fnType := llvm.FunctionType(retLT, llvmParams, false)
	fn := llvm.AddFunction(g.mod, fnName, fnType)

	savedFn, savedRet, savedTerm := g.fn, g.fnRet, g.terminated
	savedScopes, savedLocals := g.scopes, g.locals
	g.fn, g.fnRet, g.terminated = fn, retT, false
	g.scopes, g.locals = nil, make(map[string]*local)
	entry := llvm.AddBasicBlock(fn, "entry")
	g.builder.SetInsertPointAtEnd(entry)
	g.pushScope()
	params := fn.Params()
	if len(captures) > 0 {
		envLT := llvm.StructType(envFieldLT, false)
		envPtr := g.builder.CreateBitCast(params[0], llvm.PointerType(envLT, 0), "env")
		for i, name := range captures {
			capturedLT, lerr := g.lowerType(envFieldType[i])
			if lerr != nil {
				g.popScope()
				return llvm.Value{}, nil, lerr
			}
			raw := g.builder.CreateLoad(g.builder.CreateStructGEP(envPtr, i, ""), "")
			typedAlloca := g.builder.CreateBitCast(raw, llvm.PointerType(capturedLT, 0), name)
			g.declareLocal(name, typedAlloca, envFieldType[i])
		}
	}
	for i, p := range v.Params {
		name := paramName(p.Pattern)
		if err := g.bindParam(params[i+1], name, paramTypes[i]); err != nil {
			g.popScope()
			return llvm.Value{}, nil, err
		}
	}
	bodyVal, _, berr := g.lowerExpr(v.Body)
	if berr == nil {
		if !g.terminated {
			if retT == nil || retT == types.Unit {
				g.builder.CreateRetVoid()
			} else {
				g.builder.CreateRet(bodyVal)
			}
		}
	}
	g.popScope()
	g.fn, g.fnRet, g.terminated = savedFn, savedRet, savedTerm
	g.scopes, g.locals = savedScopes, savedLocals
	g.builder.SetInsertPointAtEnd(g.currentBlock())
	if berr != nil {
		return llvm.Value{}, nil, berr
	}

	closureT := &types.Closure{Params: paramTypes, Ret: retT}
	lt, err := g.lowerType(closureT)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	slot := g.builder.CreateAlloca(lt, "closure")
	g.builder.CreateStore(g.builder.CreateBitCast(fn, g.opaquePtr, ""), g.builder.CreateStructGEP(slot, 0, ""))
	var envVal llvm.Value
	if len(captures) == 0 {
		envVal = llvm.ConstNull(g.opaquePtr)
	} else {
		envLT := llvm.StructType(envFieldLT, false)
		nullPtr := llvm.ConstNull(llvm.PointerType(envLT, 0))
		sizeGEP := g.builder.CreateGEP(nullPtr, []llvm.Value{llvm.ConstInt(g.i64, 1, false)}, "")
		size := g.builder.CreatePtrToInt(sizeGEP, g.i64, "")
		raw := g.builder.CreateCall(g.mallocFunc(), []llvm.Value{size}, "")
		envPtr := g.builder.CreateBitCast(raw, llvm.PointerType(envLT, 0), "")
		for i, alloca := range envAllocas {
			g.builder.CreateStore(g.builder.CreateBitCast(alloca, g.opaquePtr, ""), g.builder.CreateStructGEP(envPtr, i, ""))
		}
		envVal = g.builder.CreateBitCast(envPtr, g.opaquePtr, "")
	}
	g.builder.CreateStore(envVal, g.builder.CreateStructGEP(slot, 1, ""))
	return g.builder.CreateLoad(slot, ""), closureT, nil
}

func (g *Generator) currentBlock() llvm.BasicBlock {
	return g.builder.GetInsertBlock()
}

func (g *Generator) typeOrInfer(t ast.Type) types.Type {
	if t == nil {
		return types.I32
	}
	return g.resolveAstType(t)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// lowerNew implements `new C(args)`: a non-value class mallocs its sized
// layout (computed via the GEP-null-pointer trick), stores its vtable
// pointer, and calls the constructor; a `@value` class is stack-allocated
// instead, per §4.5.5.
func (g *Generator) lowerNew(v *ast.NewExpr) (llvm.Value, types.Type, error) {
	name := classTypeName(v.Type)
	ci, ok := g.env.Classes[name]
	if !ok {
		return llvm.Value{}, nil, errf(CUnknownStruct, "`new` on unknown class %q", name)
	}
	resultType := &types.Class{Name: ci.Name, ModulePath: ci.ModulePath}
	lt, err := g.lowerType(resultType)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	var obj llvm.Value
	if ci.IsValueClass {
		obj = g.builder.CreateAlloca(lt, "new_value")
	} else {
		nullPtr := llvm.ConstNull(llvm.PointerType(lt, 0))
		sizeGEP := g.builder.CreateGEP(nullPtr, []llvm.Value{llvm.ConstInt(g.i64, 1, false)}, "")
		size := g.builder.CreatePtrToInt(sizeGEP, g.i64, "")
		raw := g.builder.CreateCall(g.mallocFunc(), []llvm.Value{size}, "")
		obj = g.builder.CreateBitCast(raw, llvm.PointerType(lt, 0), "")
	}
	if g.classNeedsVtable(ci) {
		vt := g.vtableGlobal(ci)
		g.builder.CreateStore(g.builder.CreateBitCast(vt, g.opaquePtr, ""), g.builder.CreateStructGEP(obj, 0, ""))
	}
	if ctor := g.env.ResolveMethod(ci.Name, "init"); ctor != nil {
		args, err := g.lowerArgs(v.Args)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		symbol := mangledFuncName(ci.Name, "init", nil)
		if fn, ok := g.globals.get(symbol); ok {
			allArgs := append([]llvm.Value{obj}, args...)
			g.builder.CreateCall(fn, allArgs, "")
		}
	}
	return obj, resultType, nil
}

func classTypeName(t ast.Type) string {
	if nt, ok := t.(*ast.NamedType); ok {
		return nt.Path[len(nt.Path)-1]
	}
	return ""
}
