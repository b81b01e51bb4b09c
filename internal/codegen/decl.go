package codegen

import (
	"tinygo.org/x/go-llvm"

	"tml/internal/ast"
	"tml/internal/types"
)

// funcEntry is a registered function/method declaration plus the context
// (owning class/impl self-type, if any) needed to lower its body, keyed by
// mangled name so monomorphization's instantiate() can find it later.
type funcEntry struct {
	decl     *ast.FuncDecl
	owner    *types.ClassInfo
	selfType types.Type
	ownerName string
}

// declareTop lowers one top-level declaration's *header* (type layout,
// function signature, global variable) and returns the non-generic
// function bodies still needing lowering. Generic functions/methods are
// registered in g.funcEntries but their bodies are deferred to
// monomorphization, emitted only once a call site requires an
// instantiation (§4.5.4).
func (g *Generator) declareTop(d ast.Decl) ([]funcTodo, error) {
	if g.funcEntries == nil {
		g.funcEntries = make(map[string]funcEntry)
	}
	switch v := d.(type) {
	case *ast.FuncDecl:
		return g.declareFunc(v, nil, nil, "")
	case *ast.ClassDecl:
		return g.declareClassMethods(v)
	case *ast.ImplDecl:
		return g.declareImplMethods(v)
	case *ast.ConstDecl:
		return nil, g.declareGlobalConst(v)
	case *ast.StructDecl, *ast.EnumDecl, *ast.UnionDecl, *ast.TraitDecl, *ast.TypeAliasDecl, *ast.UseDecl:
		return nil, nil
	case *ast.ModDecl:
		var out []funcTodo
		for _, sub := range v.Decls {
			fs, err := g.declareTop(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, fs...)
		}
		return out, nil
	}
	return nil, nil
}

func (g *Generator) declareFunc(v *ast.FuncDecl, owner *types.ClassInfo, selfType types.Type, ownerName string) ([]funcTodo, error) {
	fs := g.env.Functions[v.Name]
	if ownerName != "" {
		fs = g.methodSig(ownerName, v.Name)
	}
	if fs == nil || len(fs.Generics) > 0 {
		// Generic: defer to on-demand instantiation.
		mangled := mangledFuncName(ownerName, v.Name, nil)
		g.funcEntries[mangled] = funcEntry{decl: v, owner: owner, selfType: selfType, ownerName: ownerName}
		return nil, nil
	}
	if v.Body == nil {
		return nil, nil
	}
	fn, err := g.lowerFuncHeader(mangledFuncName(ownerName, v.Name, nil), fs, v, selfType)
	if err != nil {
		return nil, err
	}
	return []funcTodo{{fn: fn, decl: v, owner: owner, selfType: selfType, fs: fs}}, nil
}

func (g *Generator) methodSig(ownerName, method string) *types.FuncSig {
	return g.env.ResolveMethod(ownerName, method)
}

func (g *Generator) declareClassMethods(v *ast.ClassDecl) ([]funcTodo, error) {
	ci := g.env.Classes[v.Name]
	if ci == nil {
		return nil, errf(CUnknownStruct, "class %q not registered before codegen", v.Name)
	}
	selfType := &types.Class{Name: v.Name, ModulePath: ci.ModulePath}
	var out []funcTodo
	for _, m := range v.Methods {
		fs, err := g.declareFunc(m, ci, selfType, v.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, fs...)
	}
	return out, nil
}

func (g *Generator) declareImplMethods(v *ast.ImplDecl) ([]funcTodo, error) {
	selfName := implSelfName(v.SelfType)
	var owner *types.ClassInfo
	if ci, ok := g.env.Classes[selfName]; ok {
		owner = ci
	}
	selfType, err := g.resolveSelfType(v.SelfType)
	if err != nil {
		return nil, err
	}
	var out []funcTodo
	for _, m := range v.Methods {
		fs, err := g.declareFunc(m, owner, selfType, selfName)
		if err != nil {
			return nil, err
		}
		out = append(out, fs...)
	}
	return out, nil
}

func implSelfName(t ast.Type) string {
	if nt, ok := t.(*ast.NamedType); ok {
		return nt.Path[len(nt.Path)-1]
	}
	return ""
}

func (g *Generator) resolveSelfType(t ast.Type) (types.Type, error) {
	name := implSelfName(t)
	if ci, ok := g.env.Classes[name]; ok {
		return &types.Class{Name: ci.Name, ModulePath: ci.ModulePath}, nil
	}
	return &types.Named{Name: name}, nil
}

// lowerFuncHeader declares an LLVM function signature for decl under the
// already-mangled symbol name, registering it in g.globals. When selfType
// is non-nil and decl.HasThis, an implicit leading `ptr` (or by-value
// aggregate, for a value-class receiver) parameter is prepended, mirroring
// the teacher's genFuncHeader but generalized for a receiver argument VSL
// never had.
func (g *Generator) lowerFuncHeader(symbol string, fs *types.FuncSig, decl *ast.FuncDecl, selfType types.Type) (llvm.Value, error) {
	if existing, ok := g.globals.get(symbol); ok {
		return existing, nil
	}
	var params []llvm.Type
	if decl.HasThis && selfType != nil {
		recv, err := g.lowerType(selfType)
		if err != nil {
			return llvm.Value{}, err
		}
		if _, isClass := selfType.(*types.Class); isClass {
			recv = llvm.PointerType(recv, 0)
		}
		params = append(params, recv)
	}
	for _, p := range fs.Params {
		lt, err := g.lowerType(p)
		if err != nil {
			return llvm.Value{}, err
		}
		params = append(params, lt)
	}
	var ret llvm.Type
	if fs.Ret == nil {
		ret = g.ctx.VoidType()
	} else {
		rt, err := g.lowerType(fs.Ret)
		if err != nil {
			return llvm.Value{}, err
		}
		ret = rt
	}
	ftyp := llvm.FunctionType(ret, params, false)
	fn := llvm.AddFunction(g.mod, symbol, ftyp)
	g.globals.set(symbol, fn)
	return fn, nil
}

// declareGlobalConst emits a module-level global for a top-level `const`,
// generalizing the teacher's genDeclarationGlobal to a single named value
// rather than a typed-variable-list of several.
func (g *Generator) declareGlobalConst(v *ast.ConstDecl) error {
	t := g.constType(v)
	lt, err := g.lowerType(t)
	if err != nil {
		return err
	}
	global := llvm.AddGlobal(g.mod, lt, v.Name)
	global.SetInitializer(llvm.ConstNull(lt))
	g.globals.set(v.Name, global)
	return nil
}

func (g *Generator) constType(v *ast.ConstDecl) types.Type {
	if t, ok := g.env.Consts[v.Name]; ok {
		return t
	}
	return types.I32
}
