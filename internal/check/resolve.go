package check

import (
	"strings"

	"tml/internal/ast"
	"tml/internal/types"
)

// kind tags what a declared name resolves to, so resolveType can tell a
// reference to a struct from a reference to a class or trait (and thus
// whether a bare NamedType should become a *types.Named, a *types.Class,
// or — when it names a behavior — a *types.DynBehavior; see DESIGN.md's
// parser note on why there is no syntactic Dyn type).
type kind int

const (
	kindUnknown kind = iota
	kindStruct
	kindEnum
	kindUnion
	kindClass
	kindTrait
)

// resolveType converts a syntactic ast.Type into a semantic types.Type,
// consulting c.kinds to decide whether a bare name is a struct/enum/union
// (-> *types.Named), a class (-> *types.Class), or a trait referenced
// where a concrete type is expected (-> *types.DynBehavior, the "dyn
// Behavior" promotion spec.md §3 assigns to the checker). An unresolved
// name is recorded as *types.Named; no unknown-type diagnostic (T002) is
// raised for it, here or in a later pass.
func (c *Checker) resolveType(t ast.Type) types.Type {
	switch v := t.(type) {
	case nil:
		return types.Unit
	case *ast.InferType:
		return c.freshVar()
	case *ast.NamedType:
		return c.resolveNamedType(v)
	case *ast.RefType:
		return &types.Ref{Mut: v.Mut, Inner: c.resolveType(v.Inner), Lifetime: v.Lifetime}
	case *ast.PtrType:
		return &types.Ptr{Mut: v.Mut, Inner: c.resolveType(v.Inner)}
	case *ast.ArrayType:
		size := c.constIntOf(v.Size)
		return &types.Array{Elem: c.resolveType(v.Elem), Size: size}
	case *ast.SliceType:
		return &types.Slice{Elem: c.resolveType(v.Elem)}
	case *ast.TupleType:
		elems := make([]types.Type, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = c.resolveType(e)
		}
		return &types.Tuple{Elems: elems}
	case *ast.FuncType:
		params := make([]types.Type, len(v.Params))
		for i, p := range v.Params {
			params[i] = c.resolveType(p)
		}
		return &types.Func{Params: params, Ret: c.resolveType(v.Ret), IsAsync: v.IsAsync}
	}
	return types.Unit
}

func (c *Checker) resolveNamedType(v *ast.NamedType) types.Type {
	name := v.Path[len(v.Path)-1]
	modulePath := ""
	if len(v.Path) > 1 {
		modulePath = strings.Join(v.Path[:len(v.Path)-1], "::")
	}
	args := make([]types.Type, len(v.Generics))
	for i, g := range v.Generics {
		args[i] = c.resolveType(g)
	}

	switch name {
	case "I8":
		return types.I8
	case "I16":
		return types.I16
	case "I32":
		return types.I32
	case "I64", "Isize":
		return types.I64
	case "I128":
		return types.I128
	case "U8":
		return types.U8
	case "U16":
		return types.U16
	case "U32":
		return types.U32
	case "U64", "Usize":
		return types.U64
	case "U128":
		return types.U128
	case "F32":
		return types.F32
	case "F64":
		return types.F64
	case "Bool":
		return types.Bool
	case "Char":
		return types.Char
	case "Str":
		return types.Str
	case "Unit":
		return types.Unit
	}

	switch c.kinds[name] {
	case kindClass:
		return &types.Class{Name: name, ModulePath: modulePath, TypeArgs: args}
	case kindTrait:
		return &types.DynBehavior{Trait: name, TypeArgs: args}
	default:
		return &types.Named{Name: name, ModulePath: modulePath, TypeArgs: args}
	}
}

// constIntOf evaluates an array-size expression that must be a compile-time
// integer constant. Only bare integer literals are evaluated; any other
// size expression (named consts, arithmetic) yields 0 and no diagnostic
// is reported; this mirrors spec.md's own Non-goal scoping of full
// const-eval.
func (c *Checker) constIntOf(e ast.Expr) int64 {
	lit, ok := e.(*ast.LiteralExpr)
	if !ok || lit.Literal == nil {
		return 0
	}
	return int64(lit.Literal.IntVal)
}
