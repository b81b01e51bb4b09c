package codegen

import (
	"sort"

	"tinygo.org/x/go-llvm"

	"tml/internal/ast"
	"tml/internal/types"
)

// classNeedsVtable reports whether ci (or any class in its base chain)
// declares a virtual method or implements a behavior — the condition
// under which defineClassLayout prepends a vtable-pointer field and
// `new` stores a populated `@vtable.C` global, per §4.5.8.
func (g *Generator) classNeedsVtable(ci *types.ClassInfo) bool {
	for cur := ci; cur != nil; {
		for _, fs := range cur.Methods {
			if fs.IsVirtual || fs.IsOverride {
				return true
			}
		}
		if len(cur.Interfaces) > 0 {
			return true
		}
		if cur.Base == "" {
			break
		}
		cur = g.env.Classes[cur.Base]
	}
	return false
}

// virtualSlots computes ci's stable vtable slot order: inherited virtual
// methods keep their parent's slot position, then ci's own newly
// introduced virtual/override methods follow in name order (see
// ownVirtualNames), per §4.5.8. Only methods flagged virtual or override
// get slots.
func (g *Generator) virtualSlots(ci *types.ClassInfo) []string {
	if ci.Base != "" {
		if base, ok := g.env.Classes[ci.Base]; ok {
			slots := g.virtualSlots(base)
			have := make(map[string]bool, len(slots))
			for _, s := range slots {
				have[s] = true
			}
			for _, name := range ownVirtualNames(ci) {
				if !have[name] {
					slots = append(slots, name)
					have[name] = true
				}
			}
			return slots
		}
	}
	return ownVirtualNames(ci)
}

// ownVirtualNames lists ci's own declared virtual-method names in a
// deterministic (sorted) order, since Go map iteration over ci.Methods is
// otherwise unordered and vtable slot indices must be stable across
// compiles.
func ownVirtualNames(ci *types.ClassInfo) []string {
	var names []string
	for name, fs := range ci.Methods {
		if fs.IsVirtual || fs.IsOverride {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (g *Generator) vtableGlobal(ci *types.ClassInfo) llvm.Value {
	gname := "vtable." + ci.Name
	if v, ok := g.globals.get(gname); ok {
		return v
	}
	slots := g.virtualSlots(ci)
	entries := make([]llvm.Value, len(slots))
	for i, method := range slots {
		owner := g.virtualOwner(ci, method)
		symbol := mangledFuncName(owner, method, nil)
		fn, ok := g.globals.get(symbol)
		if !ok {
			entries[i] = llvm.ConstNull(g.opaquePtr)
			continue
		}
		entries[i] = g.builder.CreateBitCast(fn, g.opaquePtr, "")
	}
	tableType := llvm.ArrayType(g.opaquePtr, len(entries))
	table := llvm.AddGlobal(g.mod, tableType, gname)
	table.SetInitializer(llvm.ConstArray(g.opaquePtr, entries))
	table.SetGlobalConstant(true)
	g.globals.set(gname, table)
	return table
}

// virtualOwner finds which class in ci's base chain actually declares
// method, so an inherited-but-unoverridden virtual method's vtable slot
// points at the ancestor's implementation.
func (g *Generator) virtualOwner(ci *types.ClassInfo, method string) string {
	for cur := ci; cur != nil; {
		if _, ok := cur.Methods[method]; ok {
			return cur.Name
		}
		if cur.Base == "" {
			break
		}
		cur = g.env.Classes[cur.Base]
	}
	return ci.Name
}

// lowerVirtualCallOnClass dispatches a method call through obj's own
// vtable pointer rather than a statically resolved symbol, used when the
// checked method is declared virtual/override and no direct non-virtual
// symbol exists.
func (g *Generator) lowerVirtualCallOnClass(ci *types.ClassInfo, obj llvm.Value, method string, fs *types.FuncSig, args []llvm.Value) (llvm.Value, types.Type, error) {
	slots := g.virtualSlots(ci)
	slot := -1
	for i, name := range slots {
		if name == method {
			slot = i
			break
		}
	}
	if slot < 0 {
		return llvm.Value{}, nil, errf(CMissingVtableSlot, "no vtable slot for %q on class %q", method, ci.Name)
	}
	vtablePtr := g.builder.CreateLoad(g.builder.CreateStructGEP(obj, 0, ""), "")
	tableType := llvm.ArrayType(g.opaquePtr, len(slots))
	typedTable := g.builder.CreateBitCast(vtablePtr, llvm.PointerType(tableType, 0), "")
	slotPtr := g.builder.CreateGEP(typedTable, []llvm.Value{llvm.ConstInt(g.i64, 0, false), llvm.ConstInt(g.i64, uint64(slot), false)}, "")
	fnPtr := g.builder.CreateLoad(slotPtr, "")

	paramTypes, retLT, err := g.funcLLVMSig(fs, ci)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	typedFn := g.builder.CreateBitCast(fnPtr, llvm.PointerType(llvm.FunctionType(retLT, paramTypes, false), 0), "")
	allArgs := append([]llvm.Value{obj}, args...)
	return g.emitCall(typedFn, allArgs, fs.Ret)
}

// lowerDynDispatch lowers a call through a `dyn Behavior` value's own
// `{data, vtable}` fat pointer, per §4.5.8's dynamic-call rule.
func (g *Generator) lowerDynDispatch(v *ast.MethodCallExpr, dyn *types.DynBehavior) (llvm.Value, types.Type, error) {
	recvVal, _, err := g.lowerExpr(v.Receiver)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	data := g.builder.CreateExtractValue(recvVal, 0, "")
	vtable := g.builder.CreateExtractValue(recvVal, 1, "")

	trait, ok := g.env.Traits[dyn.Trait]
	if !ok {
		return llvm.Value{}, nil, errf(CUnknownMethod, "unknown behavior %q", dyn.Trait)
	}
	names := traitMethodNames(trait)
	slot := -1
	for i, name := range names {
		if name == v.Method {
			slot = i
			break
		}
	}
	if slot < 0 {
		return llvm.Value{}, nil, errf(CMissingVtableSlot, "behavior %q has no method %q", dyn.Trait, v.Method)
	}
	fs := trait.Methods[v.Method]
	tableType := llvm.ArrayType(g.opaquePtr, len(names))
	typedTable := g.builder.CreateBitCast(vtable, llvm.PointerType(tableType, 0), "")
	slotPtr := g.builder.CreateGEP(typedTable, []llvm.Value{llvm.ConstInt(g.i64, 0, false), llvm.ConstInt(g.i64, uint64(slot), false)}, "")
	fnPtr := g.builder.CreateLoad(slotPtr, "")

	paramTypes, retLT, err := g.funcLLVMSigRaw(fs)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	typedFn := g.builder.CreateBitCast(fnPtr, llvm.PointerType(llvm.FunctionType(retLT, paramTypes, false), 0), "")
	args, err := g.lowerArgs(v.Args)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	allArgs := append([]llvm.Value{data}, args...)
	return g.emitCall(typedFn, allArgs, fs.Ret)
}

func traitMethodNames(t *types.TraitInfo) []string {
	var names []string
	for name := range t.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Generator) funcLLVMSig(fs *types.FuncSig, ci *types.ClassInfo) ([]llvm.Type, llvm.Type, error) {
	recvLT, err := g.lowerType(&types.Class{Name: ci.Name})
	if err != nil {
		return nil, llvm.Type{}, err
	}
	params := []llvm.Type{llvm.PointerType(recvLT, 0)}
	for _, p := range fs.Params {
		lt, err := g.lowerType(p)
		if err != nil {
			return nil, llvm.Type{}, err
		}
		params = append(params, lt)
	}
	var ret llvm.Type
	if fs.Ret == nil {
		ret = g.ctx.VoidType()
	} else {
		ret, err = g.lowerType(fs.Ret)
		if err != nil {
			return nil, llvm.Type{}, err
		}
	}
	return params, ret, nil
}

func (g *Generator) funcLLVMSigRaw(fs *types.FuncSig) ([]llvm.Type, llvm.Type, error) {
	params := []llvm.Type{g.opaquePtr}
	for _, p := range fs.Params {
		lt, err := g.lowerType(p)
		if err != nil {
			return nil, llvm.Type{}, err
		}
		params = append(params, lt)
	}
	var ret llvm.Type
	var err error
	if fs.Ret == nil {
		ret = g.ctx.VoidType()
	} else {
		ret, err = g.lowerType(fs.Ret)
		if err != nil {
			return nil, llvm.Type{}, err
		}
	}
	return params, ret, nil
}
