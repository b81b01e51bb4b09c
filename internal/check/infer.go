package check

import (
	"tml/internal/ast"
	"tml/internal/token"
	"tml/internal/types"
)

// inferExpr computes e's type bottom-up, unifying as it goes and
// performing the borrow/move bookkeeping of §4.4.5 inline: a non-Copy
// value read as a whole (not through a reference) is treated as consumed
// at the point it is used by value. This folds borrow/move analysis into
// the same walk as inference rather than a separate CFG pass, which is a
// deliberate simplification of §4.4.5's intraprocedural-CFG formulation —
// recorded in DESIGN.md — sufficient to catch the common B001-B004
// violations the S4 scenario and similar straight-line/branching code
// exercise without building a full CFG lowering.
func (c *Checker) inferExpr(e ast.Expr) types.Type {
	switch v := e.(type) {
	case *ast.LiteralExpr:
		return c.inferLiteral(v)
	case *ast.InterpolatedStringExpr:
		for _, seg := range v.Segments {
			if seg.IsExpr {
				c.inferExpr(seg.Expr)
			}
		}
		return types.Str
	case *ast.IdentExpr:
		return c.inferIdent(v)
	case *ast.PathExpr:
		return c.inferPath(v)
	case *ast.BinaryExpr:
		return c.inferBinary(v)
	case *ast.UnaryExpr:
		return c.inferUnary(v)
	case *ast.TernaryExpr:
		if !c.isBoolean(c.inferExpr(v.Cond)) {
			c.errorf(TNonBoolCondition, v.Cond, "ternary condition must be Bool")
		}
		t := c.inferExpr(v.Then)
		e2 := c.inferExpr(v.Else)
		if !c.unify(t, e2) {
			c.errorf(TBranchMismatch, v, "ternary branches have incompatible types %s and %s", c.apply(t), c.apply(e2))
		}
		return t
	case *ast.RangeExpr:
		if v.Lo != nil {
			c.inferExpr(v.Lo)
		}
		if v.Hi != nil {
			c.inferExpr(v.Hi)
		}
		return &types.Named{Name: "Range"}
	case *ast.CastExpr:
		c.inferExpr(v.Value)
		return c.resolveType(v.Type)
	case *ast.TryExpr:
		return c.inferTry(v)
	case *ast.AwaitExpr:
		if !c.currentAsync {
			c.errorf(TAwaitOutsideAsync, v, "`.await` used outside an async function")
		}
		return c.inferExpr(v.Value)
	case *ast.CallExpr:
		return c.inferCall(v)
	case *ast.MethodCallExpr:
		return c.inferMethodCall(v)
	case *ast.FieldExpr:
		return c.inferField(v)
	case *ast.IndexExpr:
		return c.inferIndex(v)
	case *ast.StructExpr:
		return c.inferStructLit(v)
	case *ast.TupleExpr:
		elems := make([]types.Type, len(v.Elems))
		for i, el := range v.Elems {
			elems[i] = c.inferExpr(el)
		}
		return &types.Tuple{Elems: elems}
	case *ast.ArrayExpr:
		return c.inferArray(v)
	case *ast.ClosureExpr:
		return c.inferClosure(v)
	case *ast.NewExpr:
		return c.inferNew(v)
	case *ast.IfExpr:
		return c.inferIf(v)
	case *ast.BlockExpr:
		return c.inferBlock(v)
	case *ast.WhenExpr:
		return c.inferWhen(v)
	case *ast.LoopExpr:
		return c.inferLoop(v)
	case *ast.WhileExpr:
		return c.inferWhile(v)
	case *ast.ForExpr:
		return c.inferFor(v)
	case *ast.ReturnExpr:
		var t types.Type = types.Unit
		if v.Value != nil {
			t = c.inferExpr(v.Value)
		}
		if c.currentRet != nil && !c.unify(t, c.currentRet) {
			c.errorf(TReturnMismatch, v, "return type %s does not match function's declared return type %s", c.apply(t), c.apply(c.currentRet))
		}
		return &types.Named{Name: "Never"}
	case *ast.BreakExpr:
		if len(c.loopLabels) == 0 {
			c.errorf(TBreakOutsideLoop, v, "`break` used outside a loop")
		}
		if v.Value != nil {
			return c.inferExpr(v.Value)
		}
		return types.Unit
	case *ast.ContinueExpr:
		if len(c.loopLabels) == 0 {
			c.errorf(TContinueOutside, v, "`continue` used outside a loop")
		}
		return types.Unit
	case *ast.BaseExpr:
		if c.currentClass != nil && c.currentClass.Base != "" {
			return &types.Class{Name: c.currentClass.Base}
		}
		return types.Unit
	}
	return c.freshVar()
}

func (c *Checker) inferLiteral(v *ast.LiteralExpr) types.Type {
	switch v.Kind {
	case token.INT:
		if v.Literal != nil && v.Literal.Suffix != "" {
			if p, ok := suffixPrimitive(v.Literal.Suffix); ok {
				return p
			}
		}
		return types.I32
	case token.FLOAT:
		if v.Literal != nil && v.Literal.Suffix == "f32" {
			return types.F32
		}
		return types.F64
	case token.STRING, token.RAW_STRING, token.TEMPLATE_STRING:
		return types.Str
	case token.CHAR:
		return types.Char
	case token.BOOL:
		return types.Bool
	case token.NULL:
		return c.freshVar()
	}
	return c.freshVar()
}

func suffixPrimitive(s string) (types.Primitive, bool) {
	m := map[string]types.Primitive{
		"i8": types.I8, "i16": types.I16, "i32": types.I32, "i64": types.I64, "i128": types.I128,
		"u8": types.U8, "u16": types.U16, "u32": types.U32, "u64": types.U64, "u128": types.U128,
		"f32": types.F32, "f64": types.F64,
	}
	p, ok := m[s]
	return p, ok
}

func (c *Checker) inferIdent(v *ast.IdentExpr) types.Type {
	if l := c.lookup(v.Name); l != nil {
		if l.moved {
			c.errorf(BMoveUsedAfter, v, "use of moved value %q", v.Name)
		}
		return l.typ
	}
	if ct, ok := c.Env.Consts[v.Name]; ok {
		return ct
	}
	if fs, ok := c.Env.Functions[v.Name]; ok {
		return &types.Func{Params: fs.Params, Ret: fs.Ret, IsAsync: fs.IsAsync}
	}
	c.errorf(TUndeclared, v, "undeclared identifier %q", v.Name)
	return c.freshVar()
}

func (c *Checker) inferPath(v *ast.PathExpr) types.Type {
	last := v.Segments[len(v.Segments)-1]
	if len(v.Segments) >= 2 {
		enumName := v.Segments[len(v.Segments)-2]
		if ei, ok := c.Env.Enums[enumName]; ok {
			for _, vr := range ei.Variants {
				if vr.Name == last {
					return &types.Named{Name: ei.Name, ModulePath: ei.ModulePath}
				}
			}
			c.errorf(TUnknownVariant, v, "enum %q has no variant %q", enumName, last)
		}
	}
	if ct, ok := c.Env.Consts[last]; ok {
		return ct
	}
	return c.freshVar()
}

func (c *Checker) isBoolean(t types.Type) bool {
	p, ok := c.resolveVar(t).(types.Primitive)
	return ok && p == types.Bool
}

func (c *Checker) inferBinary(v *ast.BinaryExpr) types.Type {
	switch v.Op {
	case "=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<=", ">>=":
		return c.inferAssign(v)
	}
	lt := c.inferExpr(v.Left)
	rt := c.inferExpr(v.Right)
	switch v.Op {
	case "and", "or":
		if !c.isBoolean(lt) || !c.isBoolean(rt) {
			c.errorf(TMismatch, v, "logical operator %q requires Bool operands", v.Op)
		}
		return types.Bool
	case "==", "!=", "<", ">", "<=", ">=":
		if !c.unify(lt, rt) {
			c.errorf(TMismatch, v, "cannot compare %s with %s", c.apply(lt), c.apply(rt))
		}
		return types.Bool
	default:
		if !c.unify(lt, rt) {
			c.errorf(TMismatch, v, "mismatched operand types %s and %s for %q", c.apply(lt), c.apply(rt), v.Op)
		}
		return lt
	}
}

func (c *Checker) inferAssign(v *ast.BinaryExpr) types.Type {
	c.checkAssignTarget(v.Left)
	lt := c.inferExpr(v.Left)
	rt := c.inferExpr(v.Right)
	if !c.unify(lt, rt) {
		c.errorf(TMismatch, v, "cannot assign %s to place of type %s", c.apply(rt), c.apply(lt))
	}
	return types.Unit
}

// checkAssignTarget reports T013/B002 when the assigned-to place is
// either not declared mutable or currently under an outstanding borrow.
func (c *Checker) checkAssignTarget(target ast.Expr) {
	id, ok := target.(*ast.IdentExpr)
	if !ok {
		return
	}
	l := c.lookup(id.Name)
	if l == nil {
		return
	}
	if l.shared > 0 || l.exclusive {
		c.errorf(BAssignBorrowed, target, "cannot assign to %q while it is borrowed", id.Name)
		return
	}
	if !l.mutable {
		c.errorf(TMutateImmutable, target, "cannot assign to immutable binding %q; declare it with `var`", id.Name)
	}
	l.moved = false
}

func (c *Checker) inferUnary(v *ast.UnaryExpr) types.Type {
	switch v.Op {
	case "ref":
		return c.inferBorrow(v, false)
	case "mut ref":
		return c.inferBorrow(v, true)
	case "not":
		t := c.inferExpr(v.Operand)
		if !c.isBoolean(t) {
			c.errorf(TMismatch, v, "`not` requires a Bool operand")
		}
		return types.Bool
	case "*":
		t := c.inferExpr(v.Operand)
		if p, ok := c.resolveVar(t).(*types.Ptr); ok {
			return p.Inner
		}
		if r, ok := c.resolveVar(t).(*types.Ref); ok {
			return r.Inner
		}
		c.errorf(TMismatch, v, "cannot dereference non-pointer type %s", c.apply(t))
		return c.freshVar()
	default:
		return c.inferExpr(v.Operand)
	}
}

// inferBorrow implements the shared/exclusive borrow-state transition of
// §4.4.5: any number of shared borrows, or exactly one exclusive one,
// never both; a `mut ref` additionally requires the place be declared
// `var` (B003/B006).
func (c *Checker) inferBorrow(v *ast.UnaryExpr, exclusive bool) types.Type {
	inner := c.inferExpr(v.Operand)
	if id, ok := v.Operand.(*ast.IdentExpr); ok {
		if l := c.lookup(id.Name); l != nil {
			if exclusive {
				if !l.mutable {
					c.errorf(BMutRefNotVar, v, "exclusive borrow of %q requires it be declared `var`", id.Name)
				}
				if l.shared > 0 || l.exclusive {
					c.errorf(BMutRefImmutable, v, "cannot take an exclusive borrow of %q while already borrowed", id.Name)
				}
				l.exclusive = true
			} else {
				if l.exclusive {
					c.errorf(BMutRefImmutable, v, "cannot take a shared borrow of %q while exclusively borrowed", id.Name)
				}
				l.shared++
			}
		}
	}
	return &types.Ref{Mut: exclusive, Inner: inner}
}

func (c *Checker) inferTry(v *ast.TryExpr) types.Type {
	t := c.inferExpr(v.Value)
	named, ok := c.resolveVar(t).(*types.Named)
	if !ok || (named.Name != "Outcome" && named.Name != "Maybe") {
		c.errorf(TTryOnNonOutcome, v, "`!` can only be used on an Outcome or Maybe value")
		return c.freshVar()
	}
	if c.currentRet != nil {
		if retNamed, ok := c.resolveVar(c.currentRet).(*types.Named); !ok || retNamed.Name != named.Name {
			c.errorf(TTryOnNonOutcome, v, "`!` used in a function not returning %s", named.Name)
		}
	}
	if len(named.TypeArgs) > 0 {
		return named.TypeArgs[0]
	}
	return c.freshVar()
}

func (c *Checker) inferField(v *ast.FieldExpr) types.Type {
	rt := c.apply(c.inferExpr(v.Receiver))
	fields, ok := c.fieldsForType(rt)
	if !ok {
		return c.freshVar()
	}
	for _, f := range fields {
		if f.Name == v.Name {
			return f.Type
		}
	}
	c.errorf(TUnknownField, v, "no field %q on %s", v.Name, rt)
	return c.freshVar()
}

// fieldsForType resolves the struct/class field list for t, auto-deref'ing
// through one level of Ref/Ptr the way codegen's field-access lowering
// does (§4.5.5), so `this.field` and `ref x; x.field` both resolve.
func (c *Checker) fieldsForType(t types.Type) ([]types.StructField, bool) {
	switch v := t.(type) {
	case *types.Named:
		if si, ok := c.Env.Structs[v.Name]; ok {
			return si.Fields, true
		}
		if ui, ok := c.Env.Unions[v.Name]; ok {
			return ui.Fields, true
		}
	case *types.Class:
		if ci, ok := c.Env.Classes[v.Name]; ok {
			return ci.Fields, true
		}
	case *types.Ref:
		return c.fieldsForType(v.Inner)
	case *types.Ptr:
		return c.fieldsForType(v.Inner)
	}
	return nil, false
}

func (c *Checker) inferIndex(v *ast.IndexExpr) types.Type {
	rt := c.apply(c.inferExpr(v.Receiver))
	c.inferExpr(v.Index)
	switch r := rt.(type) {
	case *types.Array:
		return r.Elem
	case *types.Slice:
		return r.Elem
	}
	c.errorf(TMismatch, v, "cannot index %s", rt)
	return c.freshVar()
}

func (c *Checker) inferStructLit(v *ast.StructExpr) types.Type {
	name := v.Path[len(v.Path)-1]
	si, ok := c.Env.Structs[name]
	if !ok {
		if ci, ok2 := c.Env.Classes[name]; ok2 {
			for _, f := range v.Fields {
				c.inferExpr(f.Value)
			}
			return &types.Class{Name: ci.Name, ModulePath: ci.ModulePath}
		}
		c.errorf(TUnknownStruct, v, "unknown struct %q", name)
		for _, f := range v.Fields {
			c.inferExpr(f.Value)
		}
		return c.freshVar()
	}
	for _, f := range v.Fields {
		ft := c.inferExpr(f.Value)
		for _, sf := range si.Fields {
			if sf.Name == f.Name {
				if !c.unify(ft, sf.Type) {
					c.errorf(TMismatch, v, "field %q expects %s, got %s", f.Name, c.apply(sf.Type), c.apply(ft))
				}
			}
		}
	}
	if v.Spread != nil {
		c.inferExpr(v.Spread)
	}
	return &types.Named{Name: si.Name, ModulePath: si.ModulePath}
}

func (c *Checker) inferArray(v *ast.ArrayExpr) types.Type {
	if v.Repeat != nil {
		elem := c.inferExpr(v.Repeat)
		c.inferExpr(v.Count)
		n := c.constIntOf(v.Count)
		return &types.Array{Elem: elem, Size: n}
	}
	var elem types.Type = c.freshVar()
	for i, e := range v.Elems {
		t := c.inferExpr(e)
		if i == 0 {
			elem = t
		} else if !c.unify(elem, t) {
			c.errorf(TMismatch, v, "array elements have mismatched types")
		}
	}
	return &types.Array{Elem: elem, Size: int64(len(v.Elems))}
}

func (c *Checker) inferClosure(v *ast.ClosureExpr) types.Type {
	c.pushScope()
	params := make([]types.Type, len(v.Params))
	for i, p := range v.Params {
		pt := c.resolveType(p.Type)
		if _, isInfer := p.Type.(*ast.InferType); p.Type == nil || isInfer {
			pt = c.freshVar()
		}
		params[i] = pt
		c.declare(paramName(p.Pattern), pt, false)
	}
	ret := c.resolveType(v.Ret)
	prevRet := c.currentRet
	c.currentRet = ret
	bodyT := c.inferExpr(v.Body)
	if v.Ret == nil {
		ret = bodyT
	}
	c.currentRet = prevRet
	c.popScope()
	return &types.Closure{Params: params, Ret: ret}
}

func (c *Checker) inferNew(v *ast.NewExpr) types.Type {
	t := c.resolveType(v.Type)
	if cl, ok := t.(*types.Class); ok {
		if ci, ok := c.Env.Classes[cl.Name]; ok && ci.IsAbstract {
			c.errorf(TAbstractNew, v, "cannot instantiate abstract class %q", cl.Name)
		}
	}
	for _, a := range v.Args {
		c.inferExpr(a)
	}
	return t
}

func (c *Checker) inferIf(v *ast.IfExpr) types.Type {
	if !c.isBoolean(c.inferExpr(v.Cond)) {
		c.errorf(TNonBoolCondition, v.Cond, "`if` condition must be Bool")
	}
	before := c.snapshotMoves()
	thenT := c.inferExpr(v.Then)
	c.restoreThenUnion(before)
	if v.Else == nil {
		return types.Unit
	}
	before2 := c.snapshotMoves()
	elseT := c.inferExpr(v.Else)
	c.restoreThenUnion(before2)
	if !c.unify(thenT, elseT) {
		c.errorf(TBranchMismatch, v, "`if`/`else` branches have incompatible types %s and %s", c.apply(thenT), c.apply(elseT))
	}
	return thenT
}

// restoreThenUnion re-marks every local that was already moved-out before
// a branch as still moved-out afterward (moves never un-happen), folding
// the branch's own newly-moved locals into the outer scope's view — the
// "union of moved-out sets" join rule from §4.4.5, simplified to operate
// over the flat scope stack this checker uses instead of a real CFG.
func (c *Checker) restoreThenUnion(before map[*local]bool) {
	for l := range before {
		l.moved = true
	}
}

func (c *Checker) inferBlock(v *ast.BlockExpr) types.Type {
	c.pushScope()
	defer c.popScope()
	for _, s := range v.Stmts {
		c.checkStmt(s)
	}
	if v.Tail != nil {
		return c.inferExpr(v.Tail)
	}
	return types.Unit
}

func (c *Checker) inferWhen(v *ast.WhenExpr) types.Type {
	st := c.inferExpr(v.Scrutinee)
	var result types.Type = c.freshVar()
	for i, arm := range v.Arms {
		c.pushScope()
		c.bindPattern(arm.Pattern, st)
		if arm.Guard != nil {
			if !c.isBoolean(c.inferExpr(arm.Guard)) {
				c.errorf(TNonBoolCondition, arm.Guard, "`when` guard must be Bool")
			}
		}
		bt := c.inferExpr(arm.Body)
		c.popScope()
		if i == 0 {
			result = bt
		} else if !c.unify(result, bt) {
			c.errorf(TBranchMismatch, arm.Body, "`when` arms have incompatible types")
		}
	}
	c.checkExhaustive(v, st)
	return result
}

func (c *Checker) inferLoop(v *ast.LoopExpr) types.Type {
	c.loopLabels = append(c.loopLabels, v.Label)
	c.inferExpr(v.Body)
	c.loopLabels = c.loopLabels[:len(c.loopLabels)-1]
	return types.Unit
}

func (c *Checker) inferWhile(v *ast.WhileExpr) types.Type {
	if !c.isBoolean(c.inferExpr(v.Cond)) {
		c.errorf(TNonBoolCondition, v.Cond, "`while` condition must be Bool")
	}
	c.loopLabels = append(c.loopLabels, v.Label)
	c.inferExpr(v.Body)
	c.loopLabels = c.loopLabels[:len(c.loopLabels)-1]
	return types.Unit
}

func (c *Checker) inferFor(v *ast.ForExpr) types.Type {
	iterT := c.apply(c.inferExpr(v.Iter))
	elem := c.iterElemType(iterT)
	c.pushScope()
	c.bindPattern(v.Pattern, elem)
	c.loopLabels = append(c.loopLabels, v.Label)
	c.inferExpr(v.Body)
	c.loopLabels = c.loopLabels[:len(c.loopLabels)-1]
	c.popScope()
	return types.Unit
}

func (c *Checker) iterElemType(t types.Type) types.Type {
	switch v := t.(type) {
	case *types.Array:
		return v.Elem
	case *types.Slice:
		return v.Elem
	case *types.Named:
		if v.Name == "Range" {
			return types.I32
		}
		if len(v.TypeArgs) > 0 {
			return v.TypeArgs[0]
		}
	}
	return c.freshVar()
}
