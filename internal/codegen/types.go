package codegen

import (
	"tinygo.org/x/go-llvm"

	"tml/internal/mangle"
	"tml/internal/types"
)

// lowerType maps a semantic type to its LLVM textual representation per
// spec.md §4.5.2's lowering table. Struct/enum/union/class layouts are
// looked up (and lazily created, opaque-then-filled, so mutually recursive
// layouts referencing each other through a pointer resolve) in g.layouts.
func (g *Generator) lowerType(t types.Type) (llvm.Type, error) {
	switch v := t.(type) {
	case types.Primitive:
		return g.lowerPrimitive(v)
	case *types.Named:
		return g.lowerNamed(v)
	case *types.Class:
		return g.lowerClass(v)
	case *types.Ref:
		inner, err := g.lowerType(v.Inner)
		if err != nil {
			return llvm.Type{}, err
		}
		return llvm.PointerType(inner, 0), nil
	case *types.Ptr:
		inner, err := g.lowerType(v.Inner)
		if err != nil {
			return llvm.Type{}, err
		}
		return llvm.PointerType(inner, 0), nil
	case *types.Array:
		elem, err := g.lowerType(v.Elem)
		if err != nil {
			return llvm.Type{}, err
		}
		return llvm.ArrayType(elem, int(v.Size)), nil
	case *types.Slice:
		elem, err := g.lowerType(v.Elem)
		if err != nil {
			return llvm.Type{}, err
		}
		return llvm.StructType([]llvm.Type{llvm.PointerType(elem, 0), g.i64}, false), nil
	case *types.Tuple:
		elems := make([]llvm.Type, len(v.Elems))
		for i, e := range v.Elems {
			lt, err := g.lowerType(e)
			if err != nil {
				return llvm.Type{}, err
			}
			elems[i] = lt
		}
		return llvm.StructType(elems, false), nil
	case *types.Func:
		return g.opaquePtr, nil
	case *types.Closure:
		// {ptr fn, ptr env}, per §4.5.2's "fat pointer" row.
		return llvm.StructType([]llvm.Type{g.opaquePtr, g.opaquePtr}, false), nil
	case *types.DynBehavior:
		// {ptr data, ptr vtable}.
		return llvm.StructType([]llvm.Type{g.opaquePtr, g.opaquePtr}, false), nil
	case *types.TypeVar:
		return llvm.Type{}, errf(CUnresolvedType, "unresolved type variable ?%d reached codegen", v.ID)
	}
	return llvm.Type{}, errf(CUnresolvedType, "no lowering for semantic type %s", t)
}

func (g *Generator) lowerPrimitive(p types.Primitive) (llvm.Type, error) {
	switch p {
	case types.I8, types.U8, types.Bool, types.Char:
		return llvm.Int8Type(), nil
	case types.I16, types.U16:
		return llvm.Int16Type(), nil
	case types.I32, types.U32:
		return llvm.Int32Type(), nil
	case types.I64, types.U64:
		return g.i64, nil
	case types.I128, types.U128:
		return llvm.IntType(128), nil
	case types.F32:
		return llvm.FloatType(), nil
	case types.F64:
		return g.f64, nil
	case types.Str:
		return g.opaquePtr, nil
	case types.Unit:
		return g.ctx.VoidType(), nil
	}
	return llvm.Type{}, errf(CUnresolvedType, "unhandled primitive %s", p)
}

// lowerNamed resolves a struct/enum/union reference to its `%struct.Mangled`
// layout, instantiating a generic definition on demand (§4.5.4) before
// lowering.
func (g *Generator) lowerNamed(n *types.Named) (llvm.Type, error) {
	mangled := mangle.Mangle(n.Name, mangleTypeArgs(n.TypeArgs))
	if lt, ok := g.layouts[mangled]; ok {
		return lt, nil
	}
	switch n.Name {
	case "Outcome", "Maybe", "Range":
		return g.lowerBuiltinEnumLike(n, mangled)
	}
	if si, ok := g.env.Structs[n.Name]; ok {
		return g.defineStructLayout(mangled, si, n.TypeArgs)
	}
	if ei, ok := g.env.Enums[n.Name]; ok {
		return g.defineEnumLayout(mangled, ei, n.TypeArgs)
	}
	if ui, ok := g.env.Unions[n.Name]; ok {
		return g.defineUnionLayout(mangled, ui)
	}
	return llvm.Type{}, errf(CUnknownStruct, "unknown named type %q", n.Name)
}

func (g *Generator) lowerClass(c *types.Class) (llvm.Type, error) {
	mangled := "class." + mangle.Mangle(c.Name, mangleTypeArgs(c.TypeArgs))
	if lt, ok := g.layouts[mangled]; ok {
		return lt, nil
	}
	ci, ok := g.env.Classes[c.Name]
	if !ok {
		return llvm.Type{}, errf(CUnknownStruct, "unknown class %q", c.Name)
	}
	return g.defineClassLayout(mangled, ci)
}

func mangleTypeArgs(args []types.Type) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = mangle.Type(a)
	}
	return out
}

// defineStructLayout creates an opaque named struct, registers it in
// g.layouts *before* lowering field types, then fills the body — so a
// struct containing `ptr Self` (or a cycle through two structs) resolves
// without infinite recursion.
func (g *Generator) defineStructLayout(mangled string, si *types.StructInfo, typeArgs []types.Type) (llvm.Type, error) {
	named := g.ctx.StructCreateNamed("struct." + mangled)
	g.layouts[mangled] = named

	subst := substitutionOf(si.TypeParams, typeArgs)
	fields := make([]llvm.Type, len(si.Fields))
	for i, f := range si.Fields {
		ft, err := g.lowerType(applySubst(f.Type, subst))
		if err != nil {
			return llvm.Type{}, err
		}
		fields[i] = ft
	}
	named.StructSetBody(fields, false)
	return named, nil
}

// defineEnumLayout lowers an enum to `{ i32 tag, [N x i8] }` per §4.5.2,
// where N is sized to the largest variant's packed payload.
func (g *Generator) defineEnumLayout(mangled string, ei *types.EnumInfo, typeArgs []types.Type) (llvm.Type, error) {
	named := g.ctx.StructCreateNamed("struct." + mangled)
	g.layouts[mangled] = named

	subst := substitutionOf(ei.TypeParams, typeArgs)
	maxBytes := int64(0)
	for _, vr := range ei.Variants {
		var sz int64
		for _, p := range vr.Payload {
			lt, err := g.lowerType(applySubst(p, subst))
			if err != nil {
				return llvm.Type{}, err
			}
			sz += g.sizeOf(lt)
		}
		if sz > maxBytes {
			maxBytes = sz
		}
	}
	payload := llvm.ArrayType(llvm.Int8Type(), int(maxBytes))
	named.StructSetBody([]llvm.Type{llvm.Int32Type(), payload}, false)
	return named, nil
}

func (g *Generator) lowerBuiltinEnumLike(n *types.Named, mangled string) (llvm.Type, error) {
	named := g.ctx.StructCreateNamed("struct." + mangled)
	g.layouts[mangled] = named
	maxBytes := int64(0)
	for _, a := range n.TypeArgs {
		lt, err := g.lowerType(a)
		if err != nil {
			return llvm.Type{}, err
		}
		if sz := g.sizeOf(lt); sz > maxBytes {
			maxBytes = sz
		}
	}
	if maxBytes == 0 {
		maxBytes = 8
	}
	named.StructSetBody([]llvm.Type{llvm.Int32Type(), llvm.ArrayType(llvm.Int8Type(), int(maxBytes))}, false)
	return named, nil
}

// defineUnionLayout sizes a union to its largest member, per §4.5.2's
// "sized to max field; stored/loaded with bitcast" rule.
func (g *Generator) defineUnionLayout(mangled string, ui *types.UnionInfo) (llvm.Type, error) {
	named := g.ctx.StructCreateNamed("union." + mangled)
	g.layouts[mangled] = named
	maxBytes := int64(0)
	for _, f := range ui.Fields {
		lt, err := g.lowerType(f.Type)
		if err != nil {
			return llvm.Type{}, err
		}
		if sz := g.sizeOf(lt); sz > maxBytes {
			maxBytes = sz
		}
	}
	named.StructSetBody([]llvm.Type{llvm.ArrayType(llvm.Int8Type(), int(maxBytes))}, false)
	return named, nil
}

// defineClassLayout lowers a class to `%class.Mangled`. Field 0 is always
// the vtable pointer (nil-typed away when the class declares no virtual
// method and implements no behavior) so field GEP indices for user fields
// are uniformly offset by one when a vtable is present; see class.go.
func (g *Generator) defineClassLayout(mangled string, ci *types.ClassInfo) (llvm.Type, error) {
	named := g.ctx.StructCreateNamed(mangled)
	g.layouts[mangled] = named

	hasVtable := g.classNeedsVtable(ci)
	fields := make([]llvm.Type, 0, len(ci.Fields)+1)
	if hasVtable {
		fields = append(fields, g.opaquePtr)
	}
	for _, f := range ci.Fields {
		ft, err := g.lowerType(f.Type)
		if err != nil {
			return llvm.Type{}, err
		}
		fields = append(fields, ft)
	}
	named.StructSetBody(fields, false)
	return named, nil
}

// sizeOf returns a conservative byte size for an enum-payload sizing
// computation. LLVM's ABI size depends on target data layout; since the
// generator computes this before a TargetData is available for every
// layout, it uses a fixed-width approximation consistent with §4.5.2's
// type-width table rather than querying the target (a documented
// simplification — real size-of queries happen only when the driver holds
// a TargetData after target-machine construction, per the teacher's own
// `tm.CreateTargetData()` sequencing in ir/llvm/transform.go).
func (g *Generator) sizeOf(t llvm.Type) int64 {
	switch t.TypeKind() {
	case llvm.IntegerTypeKind:
		return int64((t.IntTypeWidth() + 7) / 8)
	case llvm.FloatTypeKind:
		return 4
	case llvm.DoubleTypeKind:
		return 8
	case llvm.PointerTypeKind:
		return 8
	case llvm.ArrayTypeKind:
		return int64(t.ArrayLength()) * g.sizeOf(t.ElementType())
	case llvm.StructTypeKind:
		var sz int64
		for _, f := range t.StructElementTypes() {
			sz += g.sizeOf(f)
		}
		return sz
	}
	return 8
}

func substitutionOf(params []string, args []types.Type) map[string]types.Type {
	m := make(map[string]types.Type, len(params))
	for i, p := range params {
		if i < len(args) {
			m[p] = args[i]
		}
	}
	return m
}

// applySubst replaces any Named{Name: p} matching a generic parameter with
// its bound type argument, per §4.5.4's substitution rule.
func applySubst(t types.Type, subst map[string]types.Type) types.Type {
	if len(subst) == 0 {
		return t
	}
	switch v := t.(type) {
	case *types.Named:
		if bound, ok := subst[v.Name]; ok && len(v.TypeArgs) == 0 {
			return bound
		}
		args := make([]types.Type, len(v.TypeArgs))
		for i, a := range v.TypeArgs {
			args[i] = applySubst(a, subst)
		}
		return &types.Named{Name: v.Name, ModulePath: v.ModulePath, TypeArgs: args}
	case *types.Ref:
		return &types.Ref{Mut: v.Mut, Inner: applySubst(v.Inner, subst)}
	case *types.Ptr:
		return &types.Ptr{Mut: v.Mut, Inner: applySubst(v.Inner, subst)}
	case *types.Array:
		return &types.Array{Elem: applySubst(v.Elem, subst), Size: v.Size}
	case *types.Slice:
		return &types.Slice{Elem: applySubst(v.Elem, subst)}
	case *types.Tuple:
		elems := make([]types.Type, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = applySubst(e, subst)
		}
		return &types.Tuple{Elems: elems}
	}
	return t
}
