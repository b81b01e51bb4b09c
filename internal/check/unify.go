package check

import "tml/internal/types"

// resolveVar follows t through the substitution map until it reaches a
// concrete type or an unbound TypeVar.
func (c *Checker) resolveVar(t types.Type) types.Type {
	for {
		tv, ok := t.(*types.TypeVar)
		if !ok {
			return t
		}
		bound, ok := c.subst[tv.ID]
		if !ok {
			return t
		}
		t = bound
	}
}

// unify walks a and b structurally, binding any encountered TypeVar in the
// substitution map, per spec.md §4.4.2's unify_types. Returns false (and
// leaves bindings already made) when the two types cannot unify.
func (c *Checker) unify(a, b types.Type) bool {
	a, b = c.resolveVar(a), c.resolveVar(b)
	if av, ok := a.(*types.TypeVar); ok {
		c.subst[av.ID] = b
		return true
	}
	if bv, ok := b.(*types.TypeVar); ok {
		c.subst[bv.ID] = a
		return true
	}
	switch av := a.(type) {
	case types.Primitive:
		bv, ok := b.(types.Primitive)
		return ok && av == bv
	case *types.Named:
		bv, ok := b.(*types.Named)
		if !ok || av.Name != bv.Name || len(av.TypeArgs) != len(bv.TypeArgs) {
			return false
		}
		for i := range av.TypeArgs {
			if !c.unify(av.TypeArgs[i], bv.TypeArgs[i]) {
				return false
			}
		}
		return true
	case *types.Class:
		bv, ok := b.(*types.Class)
		return ok && av.Name == bv.Name
	case *types.Ref:
		bv, ok := b.(*types.Ref)
		return ok && av.Mut == bv.Mut && c.unify(av.Inner, bv.Inner)
	case *types.Ptr:
		bv, ok := b.(*types.Ptr)
		return ok && av.Mut == bv.Mut && c.unify(av.Inner, bv.Inner)
	case *types.Array:
		bv, ok := b.(*types.Array)
		return ok && av.Size == bv.Size && c.unify(av.Elem, bv.Elem)
	case *types.Slice:
		bv, ok := b.(*types.Slice)
		return ok && c.unify(av.Elem, bv.Elem)
	case *types.Tuple:
		bv, ok := b.(*types.Tuple)
		if !ok || len(av.Elems) != len(bv.Elems) {
			return false
		}
		for i := range av.Elems {
			if !c.unify(av.Elems[i], bv.Elems[i]) {
				return false
			}
		}
		return true
	case *types.Func:
		bv, ok := b.(*types.Func)
		if !ok || len(av.Params) != len(bv.Params) {
			return false
		}
		for i := range av.Params {
			if !c.unify(av.Params[i], bv.Params[i]) {
				return false
			}
		}
		return c.unify(av.Ret, bv.Ret)
	case *types.DynBehavior:
		bv, ok := b.(*types.DynBehavior)
		return ok && av.Trait == bv.Trait
	}
	return types.Equal(a, b)
}

// apply substitutes every bound TypeVar in t with its resolved type,
// recursively, producing the fully-resolved type used once inference for
// an expression is complete.
func (c *Checker) apply(t types.Type) types.Type {
	t = c.resolveVar(t)
	switch v := t.(type) {
	case *types.Named:
		args := make([]types.Type, len(v.TypeArgs))
		for i, a := range v.TypeArgs {
			args[i] = c.apply(a)
		}
		return &types.Named{Name: v.Name, ModulePath: v.ModulePath, TypeArgs: args}
	case *types.Ref:
		return &types.Ref{Mut: v.Mut, Inner: c.apply(v.Inner), Lifetime: v.Lifetime}
	case *types.Ptr:
		return &types.Ptr{Mut: v.Mut, Inner: c.apply(v.Inner)}
	case *types.Array:
		return &types.Array{Elem: c.apply(v.Elem), Size: v.Size}
	case *types.Slice:
		return &types.Slice{Elem: c.apply(v.Elem)}
	case *types.Tuple:
		elems := make([]types.Type, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = c.apply(e)
		}
		return &types.Tuple{Elems: elems}
	}
	return t
}

// isNumeric reports whether t (after substitution) is an integer or float
// primitive.
func (c *Checker) isNumeric(t types.Type) bool {
	p, ok := c.resolveVar(t).(types.Primitive)
	return ok && (p.IsInteger() || p.IsFloat())
}
