// Package check implements TML's type checker: module resolution, bidirectional
// type inference with unification, trait/impl resolution, class hierarchy
// validation, borrow/move analysis, and `when` exhaustiveness checking, per
// spec.md §4.4. It populates and consumes a *types.Env (internal/types)
// and reports diagnostics to a *diag.Bag (internal/diag).
package check

import (
	"fmt"

	"tml/internal/ast"
	"tml/internal/diag"
	"tml/internal/types"
)

// Checker holds the state threaded through one module's checking pass:
// the type environment being populated, the diagnostic sink, the
// unification substitution, and a stack of loop labels / the current
// function's declared return type for control-flow-sensitive checks
// (T029-T032).
type Checker struct {
	Env        *types.Env
	bag        *diag.Bag
	modulePath string

	kinds map[string]kind

	subst   map[int]types.Type
	nextVar int

	scopes []scope

	currentRet     types.Type
	currentAsync   bool
	loopLabels     []string
	currentClass   *types.ClassInfo
	currentIsValue bool
}

// New returns a Checker ready to collect and check one module's
// declarations into env, recording diagnostics in bag.
func New(env *types.Env, bag *diag.Bag, modulePath string) *Checker {
	return &Checker{
		Env:        env,
		bag:        bag,
		modulePath: modulePath,
		kinds:      make(map[string]kind),
		subst:      make(map[int]types.Type),
	}
}

// CheckModule runs the full pipeline over one parsed module: declare
// (register every top-level name and its kind so forward references
// resolve), collect (resolve field/signature types into Env), then check
// (infer and borrow-check every function/method body).
func (c *Checker) CheckModule(mod *ast.Module) {
	c.declarePass(mod.Decls)
	c.collectPass(mod.Decls)
	c.checkHierarchy(mod.Decls)
	c.checkPass(mod.Decls)
}

// declarePass records every declared name's kind before any type is
// resolved, so a field of type `Node` inside `struct Node { next: ptr Node
// }` — or two structs referencing each other — both resolve correctly
// regardless of declaration order.
func (c *Checker) declarePass(decls []ast.Decl) {
	for _, d := range decls {
		switch v := d.(type) {
		case *ast.StructDecl:
			c.kinds[v.Name] = kindStruct
		case *ast.EnumDecl:
			c.kinds[v.Name] = kindEnum
		case *ast.UnionDecl:
			c.kinds[v.Name] = kindUnion
		case *ast.ClassDecl:
			c.kinds[v.Name] = kindClass
		case *ast.TraitDecl:
			c.kinds[v.Name] = kindTrait
		case *ast.ModDecl:
			c.declarePass(v.Decls)
		}
	}
}

// collectPass resolves every declaration's signature/field/layout types
// into the Env, without yet checking any function body.
func (c *Checker) collectPass(decls []ast.Decl) {
	for _, d := range decls {
		switch v := d.(type) {
		case *ast.StructDecl:
			c.collectStruct(v)
		case *ast.EnumDecl:
			c.collectEnum(v)
		case *ast.UnionDecl:
			c.collectUnion(v)
		case *ast.ClassDecl:
			c.collectClass(v)
		case *ast.TraitDecl:
			c.collectTrait(v)
		case *ast.FuncDecl:
			c.collectFunc(v, nil)
		case *ast.ImplDecl:
			c.collectImpl(v)
		case *ast.ConstDecl:
			c.Env.Consts[v.Name] = c.resolveType(v.Type)
		case *ast.UseDecl:
			c.collectUse(v)
		case *ast.ModDecl:
			c.collectPass(v.Decls)
		}
	}
}

func (c *Checker) checkPass(decls []ast.Decl) {
	for _, d := range decls {
		switch v := d.(type) {
		case *ast.FuncDecl:
			c.checkFunc(v, nil, nil)
		case *ast.ImplDecl:
			selfType := c.resolveType(v.SelfType)
			self := c.selfNameOf(v.SelfType)
			for _, m := range v.Methods {
				c.checkFunc(m, selfType, c.Env.Classes[self])
			}
		case *ast.ClassDecl:
			selfType := &types.Class{Name: v.Name, ModulePath: c.modulePath}
			c.currentClass = c.Env.Classes[v.Name]
			c.currentIsValue = v.IsValue
			for _, m := range v.Methods {
				c.checkFunc(m, selfType, c.currentClass)
			}
			c.currentClass = nil
			c.currentIsValue = false
		case *ast.ModDecl:
			c.checkPass(v.Decls)
		}
	}
}

func (c *Checker) genericNames(gs []ast.GenericParam) []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.Name
	}
	return out
}

func (c *Checker) fieldsOf(fs []ast.FieldDecl) []types.StructField {
	out := make([]types.StructField, len(fs))
	for i, f := range fs {
		out[i] = types.StructField{
			Name:    f.Name,
			Type:    c.resolveType(f.Type),
			Public:  f.Vis == ast.Public,
			Default: f.Default != nil,
		}
	}
	return out
}

func (c *Checker) collectStruct(v *ast.StructDecl) {
	if _, dup := c.Env.Structs[v.Name]; dup {
		c.bag.Errorf(TDuplicateDef, v.Span(), "duplicate definition of struct %q", v.Name)
		return
	}
	c.Env.Structs[v.Name] = &types.StructInfo{
		Name:       v.Name,
		ModulePath: c.modulePath,
		TypeParams: c.genericNames(v.Generics),
		Fields:     c.fieldsOf(v.Fields),
	}
}

func (c *Checker) collectEnum(v *ast.EnumDecl) {
	if _, dup := c.Env.Enums[v.Name]; dup {
		c.bag.Errorf(TDuplicateDef, v.Span(), "duplicate definition of enum %q", v.Name)
		return
	}
	variants := make([]types.EnumVariantInfo, len(v.Variants))
	for i, vr := range v.Variants {
		payload := make([]types.Type, len(vr.Payload))
		for j, p := range vr.Payload {
			payload[j] = c.resolveType(p)
		}
		variants[i] = types.EnumVariantInfo{Name: vr.Name, Payload: payload}
	}
	c.Env.Enums[v.Name] = &types.EnumInfo{
		Name:       v.Name,
		ModulePath: c.modulePath,
		TypeParams: c.genericNames(v.Generics),
		Variants:   variants,
	}
}

func (c *Checker) collectUnion(v *ast.UnionDecl) {
	c.Env.Unions[v.Name] = &types.UnionInfo{
		Name:       v.Name,
		ModulePath: c.modulePath,
		Fields:     c.fieldsOf(v.Fields),
	}
}

func (c *Checker) collectClass(v *ast.ClassDecl) {
	base := ""
	if v.Extends != nil {
		base = v.Extends.Path[len(v.Extends.Path)-1]
	}
	ifaces := make([]string, len(v.Implements))
	for i, im := range v.Implements {
		ifaces[i] = im.Path[len(im.Path)-1]
	}

	fields := c.fieldsOf(v.Fields)
	if base != "" {
		if bi, ok := c.Env.Classes[base]; ok {
			fields = append(append([]types.StructField{}, bi.Fields...), fields...)
		}
	}

	ci := &types.ClassInfo{
		Name:         v.Name,
		ModulePath:   c.modulePath,
		TypeParams:   c.genericNames(v.Generics),
		Base:         base,
		Interfaces:   ifaces,
		Fields:       fields,
		Methods:      make(map[string]*types.FuncSig),
		IsAbstract:   v.IsAbstract,
		IsSealed:     v.IsSealed,
		IsValueClass: v.IsValue,
		IsPool:       v.IsPool,
	}
	if ci.IsValueClass && ci.IsPool {
		c.bag.Errorf(TValuePoolConflict, v.Span(), "class %q cannot be both @value and @pool", v.Name)
	}
	c.Env.Classes[v.Name] = ci
	for _, m := range v.Methods {
		sig := c.funcSig(m)
		if sig.IsVirtual && v.IsValue {
			c.bag.Errorf(TValueVirtual, m.Span(), "value class %q cannot declare virtual method %q", v.Name, m.Name)
		}
		ci.Methods[m.Name] = sig
	}
}

func (c *Checker) collectTrait(v *ast.TraitDecl) {
	ti := &types.TraitInfo{
		Name:            v.Name,
		Generics:        c.genericNames(v.Generics),
		Methods:         make(map[string]*types.FuncSig),
		HasDefaultBody:  make(map[string]bool),
		AssociatedTypes: make([]string, len(v.AssociatedTypes)),
	}
	for i, at := range v.AssociatedTypes {
		ti.AssociatedTypes[i] = at.Name
	}
	for _, st := range v.SuperTraits {
		ti.SuperTraits = append(ti.SuperTraits, st.Path[len(st.Path)-1])
	}
	for _, m := range v.Methods {
		ti.Methods[m.Name] = c.funcSig(m)
		ti.HasDefaultBody[m.Name] = m.Body != nil
	}
	c.Env.Traits[v.Name] = ti
}

func (c *Checker) collectFunc(v *ast.FuncDecl, _ *types.ClassInfo) {
	if _, dup := c.Env.Functions[v.Name]; dup {
		c.bag.Errorf(TDuplicateDef, v.Span(), "duplicate definition of function %q", v.Name)
		return
	}
	c.Env.Functions[v.Name] = c.funcSig(v)
}

func (c *Checker) collectImpl(v *ast.ImplDecl) {
	self := c.resolveType(v.SelfType)
	selfName := c.selfNameOf(v.SelfType)
	trait := ""
	if v.Trait != nil {
		trait = v.Trait.Path[len(v.Trait.Path)-1]
	}
	rec := &types.ImplRecord{
		Trait:    trait,
		SelfType: self,
		SelfName: selfName,
		Generics: c.genericNames(v.Generics),
		Methods:  make(map[string]*types.FuncSig),
	}
	for _, m := range v.Methods {
		rec.Methods[m.Name] = c.funcSig(m)
	}
	if trait != "" {
		if ti, ok := c.Env.Traits[trait]; ok {
			for name, need := range ti.Methods {
				if ti.HasDefaultBody[name] {
					continue
				}
				if _, has := rec.Methods[name]; !has {
					c.bag.Errorf(TImplMissingMethod, v.Span(), "impl %s for %s is missing required method %q", trait, selfName, need.Name)
				}
			}
		} else {
			c.bag.Errorf(TUnknownBehavior, v.Span(), "unknown behavior %q", trait)
		}
	}
	c.Env.Impls = append(c.Env.Impls, rec)
}

func (c *Checker) selfNameOf(t ast.Type) string {
	if nt, ok := t.(*ast.NamedType); ok {
		return nt.Path[len(nt.Path)-1]
	}
	return ""
}

func (c *Checker) funcSig(v *ast.FuncDecl) *types.FuncSig {
	params := make([]types.Type, 0, len(v.Params))
	names := make([]string, 0, len(v.Params))
	for _, p := range v.Params {
		params = append(params, c.resolveType(p.Type))
		names = append(names, paramName(p.Pattern))
	}
	return &types.FuncSig{
		Name:       v.Name,
		Generics:   c.genericNames(v.Generics),
		Params:     params,
		ParamNames: names,
		Ret:        c.resolveType(v.Ret),
		IsAsync:    v.IsAsync,
		IsLowlevel: v.IsLowlevel,
		HasBody:    v.Body != nil,
		Allocates:  v.Allocates(),
		IsVirtual:  v.IsVirtual,
		IsOverride: v.IsOverride,
		IsStatic:   v.IsStatic,
		HasThis:    v.HasThis,
	}
}

func paramName(p ast.Pattern) string {
	if ip, ok := p.(*ast.IdentPattern); ok {
		return ip.Name
	}
	return "_"
}

func (c *Checker) freshVar() types.Type {
	c.nextVar++
	return &types.TypeVar{ID: c.nextVar}
}

func (c *Checker) errorf(code string, e ast.Node, format string, args ...any) {
	c.bag.Add(diagErr(code, e, format, args...))
}

func diagErr(code string, e ast.Node, format string, args ...any) diag.Diagnostic {
	return diag.Diagnostic{
		Severity: diag.Error,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Primary:  e.Span(),
	}
}
