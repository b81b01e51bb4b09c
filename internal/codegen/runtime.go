package codegen

import "tinygo.org/x/go-llvm"

// externFunc lazily declares (once) an external symbol this generator's
// lowering relies on — malloc for `new`, libc's printf for the builtin
// print intrinsic, and a small set of runtime helpers a real TML runtime
// library would provide. Declared on demand so a module that never uses
// `new`/print never drags in unused externs, mirroring the teacher's
// genAtoi/genAtof "create once, reuse the cached llvm.Value" pattern.
func (g *Generator) externFunc(name string, ret llvm.Type, params []llvm.Type, variadic bool) llvm.Value {
	if fn, ok := g.globals.get(name); ok {
		return fn
	}
	fn := llvm.AddFunction(g.mod, name, llvm.FunctionType(ret, params, variadic))
	g.globals.set(name, fn)
	return fn
}

func (g *Generator) mallocFunc() llvm.Value {
	return g.externFunc("malloc", g.opaquePtr, []llvm.Type{g.i64}, false)
}

func (g *Generator) printfFunc() llvm.Value {
	return g.externFunc("printf", llvm.Int32Type(), []llvm.Type{g.opaquePtr}, true)
}

// stringConcatFunc declares tml_string_concat(ptr, ptr) ptr, the runtime
// helper interpolated-string lowering calls to join segments, per
// spec.md §4.5.5's note that Str is a runtime-managed heap pointer rather
// than a raw C string.
func (g *Generator) stringConcatFunc() llvm.Value {
	return g.externFunc("tml_string_concat", g.opaquePtr, []llvm.Type{g.opaquePtr, g.opaquePtr}, false)
}

func (g *Generator) intToStringFunc() llvm.Value {
	return g.externFunc("tml_int_to_string", g.opaquePtr, []llvm.Type{g.i64}, false)
}

func (g *Generator) floatToStringFunc() llvm.Value {
	return g.externFunc("tml_float_to_string", g.opaquePtr, []llvm.Type{g.f64}, false)
}

func (g *Generator) dropFunc(mangledClassName string) llvm.Value {
	return g.externFunc(mangledClassName+"$drop", g.ctx.VoidType(), []llvm.Type{g.opaquePtr}, false)
}

func (g *Generator) covHitFunc() llvm.Value {
	return g.externFunc("tml_cov_hit", g.ctx.VoidType(), []llvm.Type{llvm.Int32Type()}, false)
}

func (g *Generator) printCoverageReportFunc() llvm.Value {
	return g.externFunc("print_coverage_report", g.ctx.VoidType(), nil, false)
}

// emitCovHit inserts a `call void @tml_cov_hit(i32 id)`, assigning each
// call site the next sequential counter, per §4.5.9's optional
// instrumentation contract. A no-op when coverage instrumentation was not
// requested.
func (g *Generator) emitCovHit() {
	if !g.coverage {
		return
	}
	id := g.covCounter
	g.covCounter++
	g.builder.CreateCall(g.covHitFunc(), []llvm.Value{llvm.ConstInt(llvm.Int32Type(), uint64(id), false)}, "")
}
