package check

import (
	"tml/internal/ast"
	"tml/internal/types"
)

// inferCall handles plain calls: free functions, generic function calls
// (inferring type arguments by unifying declared parameter types against
// argument types per §4.4.2), enum tuple-variant constructors, and calls
// through a local closure/function-typed value.
func (c *Checker) inferCall(v *ast.CallExpr) types.Type {
	args := make([]types.Type, len(v.Args))
	for i, a := range v.Args {
		args[i] = c.inferExpr(a)
		c.consumeIfMoved(a)
	}

	if id, ok := v.Callee.(*ast.IdentExpr); ok {
		if fs, ok := c.Env.Functions[id.Name]; ok {
			return c.applyFuncSig(v, fs, args, v.TypeArgs)
		}
		if ei, variant, ok := c.findEnumVariant(id.Name); ok {
			return c.checkVariantConstructor(v, ei, variant, args)
		}
	}
	if pe, ok := v.Callee.(*ast.PathExpr); ok && len(pe.Segments) >= 2 {
		enumName := pe.Segments[len(pe.Segments)-2]
		variantName := pe.Segments[len(pe.Segments)-1]
		if ei, ok := c.Env.Enums[enumName]; ok {
			for _, vr := range ei.Variants {
				if vr.Name == variantName {
					return c.checkVariantConstructor(v, ei, vr, args)
				}
			}
		}
	}

	calleeT := c.apply(c.inferExpr(v.Callee))
	switch fn := calleeT.(type) {
	case *types.Func:
		c.checkArity(v, len(fn.Params), len(args))
		for i := 0; i < len(fn.Params) && i < len(args); i++ {
			if !c.unify(fn.Params[i], args[i]) {
				c.errorf(TMismatch, v.Args[i], "argument %d type mismatch", i)
			}
		}
		return fn.Ret
	case *types.Closure:
		c.checkArity(v, len(fn.Params), len(args))
		return fn.Ret
	}
	if _, isVar := calleeT.(*types.TypeVar); isVar {
		return c.freshVar()
	}
	c.errorf(TNotCallable, v, "expression is not callable")
	return c.freshVar()
}

func (c *Checker) findEnumVariant(name string) (*types.EnumInfo, types.EnumVariantInfo, bool) {
	for _, ei := range c.Env.Enums {
		for _, vr := range ei.Variants {
			if vr.Name == name {
				return ei, vr, true
			}
		}
	}
	return nil, types.EnumVariantInfo{}, false
}

func (c *Checker) checkVariantConstructor(v *ast.CallExpr, ei *types.EnumInfo, vr types.EnumVariantInfo, args []types.Type) types.Type {
	if len(vr.Payload) != len(args) {
		c.errorf(TVariantArity, v, "variant %q expects %d argument(s), got %d", vr.Name, len(vr.Payload), len(args))
	}
	for i := 0; i < len(vr.Payload) && i < len(args); i++ {
		if !c.unify(vr.Payload[i], args[i]) {
			c.errorf(TMismatch, v.Args[i], "variant %q argument %d type mismatch", vr.Name, i)
		}
	}
	return &types.Named{Name: ei.Name, ModulePath: ei.ModulePath}
}

func (c *Checker) checkArity(v ast.Node, want, got int) {
	if want != got {
		c.errorf(TArity, v, "expected %d argument(s), got %d", want, got)
	}
}

// applyFuncSig unifies fs's declared parameter types with the inferred
// argument types (inferring fs's own generics in the process, per
// §4.4.2), and returns the substituted return type.
func (c *Checker) applyFuncSig(v *ast.CallExpr, fs *types.FuncSig, args []types.Type, explicitTypeArgs []ast.Type) types.Type {
	c.checkArity(v, len(fs.Params), len(args))
	for i := 0; i < len(fs.Params) && i < len(args); i++ {
		if !c.unify(fs.Params[i], args[i]) {
			c.errorf(TMismatch, v.Args[i], "argument %d: expected %s, got %s", i, c.apply(fs.Params[i]), c.apply(args[i]))
		}
	}
	if fs.Ret == nil {
		return types.Unit
	}
	return c.apply(fs.Ret)
}

// inferMethodCall resolves a method call in the order §4.5.5 documents
// for codegen (this checker mirrors it for name/arity validation): first
// a user struct/class method reachable via Env.ResolveMethod, falling
// back to the built-in `len` and `is_empty` methods the checker
// recognizes by name since they have no Env entry.
func (c *Checker) inferMethodCall(v *ast.MethodCallExpr) types.Type {
	recvT := c.apply(c.inferExpr(v.Receiver))
	args := make([]types.Type, len(v.Args))
	for i, a := range v.Args {
		args[i] = c.inferExpr(a)
		c.consumeIfMoved(a)
	}

	name := typeConstructorName(recvT)
	if name != "" {
		if fs := c.Env.ResolveMethod(name, v.Method); fs != nil {
			return c.applyMethodSig(v, fs, args)
		}
	}
	switch v.Method {
	case "len":
		return types.U64
	case "is_empty":
		return types.Bool
	}
	if name == "" {
		return c.freshVar()
	}
	c.errorf(TUnknownMethod, v, "no method %q on %s", v.Method, recvT)
	return c.freshVar()
}

// applyMethodSig checks a resolved method's declared parameters against
// the call-site arguments. fs.Params never includes the implicit `this`
// receiver — the parser strips it into the HasThis flag (see
// internal/parser/decl.go's parseParamList) — so no arity offset is
// needed here.
func (c *Checker) applyMethodSig(v *ast.MethodCallExpr, fs *types.FuncSig, args []types.Type) types.Type {
	c.checkArity(v, len(fs.Params), len(args))
	for i := 0; i < len(fs.Params) && i < len(args); i++ {
		if !c.unify(fs.Params[i], args[i]) {
			c.errorf(TMismatch, v.Args[i], "argument %d to %q type mismatch", i, fs.Name)
		}
	}
	if fs.Ret == nil {
		return types.Unit
	}
	return c.apply(fs.Ret)
}

func typeConstructorName(t types.Type) string {
	switch v := t.(type) {
	case *types.Named:
		return v.Name
	case *types.Class:
		return v.Name
	case *types.Ref:
		return typeConstructorName(v.Inner)
	case *types.Ptr:
		return typeConstructorName(v.Inner)
	}
	return ""
}
