package codegen

import (
	"tinygo.org/x/go-llvm"

	"tml/internal/ast"
	"tml/internal/token"
	"tml/internal/types"
)

// lowerExpr lowers one expression to an LLVM value plus its semantic type,
// per spec.md §4.5.5. Every case mirrors the teacher's genExpression
// dispatch shape (switch on node kind, recurse into operands, emit one
// instruction) generalized to TML's richer expression set.
func (g *Generator) lowerExpr(e ast.Expr) (llvm.Value, types.Type, error) {
	switch v := e.(type) {
	case *ast.LiteralExpr:
		return g.lowerLiteral(v)
	case *ast.InterpolatedStringExpr:
		return g.lowerInterpolated(v)
	case *ast.IdentExpr:
		return g.lowerIdent(v)
	case *ast.PathExpr:
		return g.lowerPath(v)
	case *ast.BinaryExpr:
		return g.lowerBinary(v)
	case *ast.UnaryExpr:
		return g.lowerUnary(v)
	case *ast.TernaryExpr:
		return g.lowerTernary(v)
	case *ast.RangeExpr:
		return g.lowerRange(v)
	case *ast.CastExpr:
		return g.lowerCast(v)
	case *ast.TryExpr:
		return g.lowerTry(v)
	case *ast.AwaitExpr:
		// No async runtime: an awaited future is already its resolved
		// value by the time it reaches codegen (§5's documented
		// simplification — see DESIGN.md).
		return g.lowerExpr(v.Value)
	case *ast.CallExpr:
		return g.lowerCall(v)
	case *ast.MethodCallExpr:
		return g.lowerMethodCall(v)
	case *ast.FieldExpr:
		return g.lowerField(v)
	case *ast.IndexExpr:
		return g.lowerIndex(v)
	case *ast.StructExpr:
		return g.lowerStructLit(v)
	case *ast.TupleExpr:
		return g.lowerTuple(v)
	case *ast.ArrayExpr:
		return g.lowerArray(v)
	case *ast.ClosureExpr:
		return g.lowerClosure(v)
	case *ast.NewExpr:
		return g.lowerNew(v)
	case *ast.IfExpr:
		return g.lowerIf(v)
	case *ast.BlockExpr:
		return g.lowerBlockExpr(v)
	case *ast.WhenExpr:
		return g.lowerWhen(v)
	case *ast.LoopExpr:
		return g.lowerLoop(v)
	case *ast.WhileExpr:
		return g.lowerWhileExpr(v)
	case *ast.ForExpr:
		return g.lowerFor(v)
	case *ast.ReturnExpr:
		return g.lowerReturn(v)
	case *ast.BreakExpr:
		return g.lowerBreak(v)
	case *ast.ContinueExpr:
		return g.lowerContinue(v)
	case *ast.BaseExpr:
		alloca, ok := g.lookupAlloca("this")
		if !ok {
			return llvm.Value{}, nil, errf(CNotAPlace, "`base` used outside a method body")
		}
		t, _ := g.lookupLocalType("this")
		return alloca, t, nil
	}
	return llvm.Value{}, nil, errf(CUnsupportedPattern, "unhandled expression %T", e)
}

func (g *Generator) lowerLiteral(v *ast.LiteralExpr) (llvm.Value, types.Type, error) {
	switch v.Kind {
	case token.INT:
		t := types.Primitive(types.I32)
		if v.Literal != nil && v.Literal.Suffix != "" {
			if p, ok := suffixPrimitive(v.Literal.Suffix); ok {
				t = p
			}
		}
		lt, err := g.lowerType(t)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		return llvm.ConstInt(lt, v.Literal.IntVal, false), t, nil
	case token.FLOAT:
		t := types.F64
		if v.Literal != nil && v.Literal.Suffix == "f32" {
			t = types.F32
		}
		lt, err := g.lowerType(t)
		if err != nil {
			return llvm.Value{}, nil, err
		}
		return llvm.ConstFloat(lt, v.Literal.FloatVal), t, nil
	case token.STRING, token.RAW_STRING:
		return g.internString(v.Literal.StrVal), types.Str, nil
	case token.CHAR:
		return llvm.ConstInt(llvm.Int8Type(), v.Literal.IntVal, false), types.Char, nil
	case token.BOOL:
		b := uint64(0)
		if v.Literal.BoolVal {
			b = 1
		}
		return llvm.ConstInt(llvm.Int8Type(), b, false), types.Bool, nil
	case token.NULL:
		return llvm.ConstNull(g.opaquePtr), &types.Ptr{Inner: types.Unit}, nil
	case token.TEMPLATE_STRING:
		return g.lowerTemplateLiteral(v)
	}
	return llvm.Value{}, nil, errf(CUnresolvedType, "unhandled literal kind %s", v.Kind)
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

// internString creates (or reuses) a module-level constant for a string
// literal's bytes, returning a pointer to its first byte, mirroring the
// teacher's CreateGlobalStringPtr use in genPrint.
func (g *Generator) internString(s string) llvm.Value {
	if v, ok := g.strings.get(s); ok {
		return v
	}
	name := "str"
	g.strCounter++
	v := g.builder.CreateGlobalStringPtr(s, name)
	g.strings.set(s, v)
	return v
}

func (g *Generator) lowerTemplateLiteral(v *ast.LiteralExpr) (llvm.Value, types.Type, error) {
	return g.internString(v.Literal.StrVal), types.Str, nil
}

// lowerInterpolated joins the text segments with tml_string_concat. A
// segment holding an embedded expression is not lowered: it fails with a
// CUnsupportedPattern (C010) error.
func (g *Generator) lowerInterpolated(v *ast.InterpolatedStringExpr) (llvm.Value, types.Type, error) {
	var acc llvm.Value
	first := true
	for _, seg := range v.Segments {
		var piece llvm.Value
		if !seg.IsExpr {
			piece = g.internString(seg.Text)
		} else {
			return llvm.Value{}, nil, errf(CUnsupportedPattern, "interpolated expression segments require a parsed sub-expression, not raw source text")
		}
		if first {
			acc = piece
			first = false
		} else {
			acc = g.builder.CreateCall(g.stringConcatFunc(), []llvm.Value{acc, piece}, "")
		}
	}
	if first {
		acc = g.internString("")
	}
	return acc, types.Str, nil
}

func (g *Generator) lowerIdent(v *ast.IdentExpr) (llvm.Value, types.Type, error) {
	alloca, ok := g.lookupAlloca(v.Name)
	if !ok {
		return llvm.Value{}, nil, errf(CNotAPlace, "undeclared identifier %q reached codegen", v.Name)
	}
	if t, ok := g.lookupLocalType(v.Name); ok {
		if _, isClass := t.(*types.Class); isClass {
			// Classes are always reference semantics at this layer: the
			// "value" of a class-typed local already is the pointer.
			return alloca, t, nil
		}
		if _, err := g.lowerType(t); err != nil {
			return llvm.Value{}, nil, err
		}
		return g.builder.CreateLoad(alloca, v.Name), t, nil
	}
	// A global function/variable reference.
	return alloca, &types.Func{}, nil
}

func (g *Generator) lowerPath(v *ast.PathExpr) (llvm.Value, types.Type, error) {
	last := v.Segments[len(v.Segments)-1]
	if len(v.Segments) >= 2 {
		enumName := v.Segments[len(v.Segments)-2]
		if ei, ok := g.env.Enums[enumName]; ok {
			return g.constructEnumVariant(ei, last, nil)
		}
	}
	if ct, ok := g.env.Consts[last]; ok {
		if gv, ok := g.globals.get(last); ok {
			if _, err := g.lowerType(ct); err != nil {
				return llvm.Value{}, nil, err
			}
			return g.builder.CreateLoad(gv, last), ct, nil
		}
	}
	return llvm.Value{}, nil, errf(CUnknownVariant, "unresolved path %v", v.Segments)
}

// variantTag returns an enum type's stable tag index for a named variant,
// per §4.5.2's `{i32 tag, payload}` layout.
func (g *Generator) variantTag(t types.Type, variant string) int {
	named, ok := t.(*types.Named)
	if !ok {
		return 0
	}
	ei, ok := g.env.Enums[named.Name]
	if !ok {
		return 0
	}
	for i, vr := range ei.Variants {
		if vr.Name == variant {
			return i
		}
	}
	return 0
}

func (g *Generator) constructEnumVariant(ei *types.EnumInfo, variant string, args []ast.Expr) (llvm.Value, types.Type, error) {
	resultType := &types.Named{Name: ei.Name, ModulePath: ei.ModulePath}
	lt, err := g.lowerType(resultType)
	if err != nil {
		return llvm.Value{}, nil, err
	}
	slot := g.builder.CreateAlloca(lt, "enum_lit")
	tag := -1
	var payload []types.Type
	for i, vr := range ei.Variants {
		if vr.Name == variant {
			tag = i
			payload = vr.Payload
			break
		}
	}
	if tag < 0 {
		return llvm.Value{}, nil, errf(CUnknownVariant, "unknown variant %q of %q", variant, ei.Name)
	}
	g.builder.CreateStore(llvm.ConstInt(llvm.Int32Type(), uint64(tag), false), g.builder.CreateStructGEP(slot, 0, ""))
	if len(args) > 0 {
		payloadPtr := g.builder.CreateStructGEP(slot, 1, "")
		off := int64(0)
		for i, a := range args {
			av, at, err := g.lowerExpr(a)
			if err != nil {
				return llvm.Value{}, nil, err
			}
			alt, err := g.lowerType(at)
			if err != nil {
				return llvm.Value{}, nil, err
			}
			raw := g.builder.CreateGEP(payloadPtr, []llvm.Value{llvm.ConstInt(g.i64, uint64(off), false)}, "")
			cast := g.builder.CreateBitCast(raw, llvm.PointerType(alt, 0), "")
			g.builder.CreateStore(av, cast)
			if i < len(payload) {
				off += g.sizeOf(alt)
			}
		}
	}
	val := g.builder.CreateLoad(slot, "")
	return val, resultType, nil
}

func (g *Generator) bindEnumPayload(ep *ast.EnumPattern, slot llvm.Value, t types.Type) error {
	named, ok := t.(*types.Named)
	if !ok {
		return nil
	}
	ei, ok := g.env.Enums[named.Name]
	if !ok {
		return nil
	}
	variant := ep.Path[len(ep.Path)-1]
	var payload []types.Type
	for _, vr := range ei.Variants {
		if vr.Name == variant {
			payload = vr.Payload
		}
	}
	if len(ep.Payload) == 0 {
		return nil
	}
	payloadPtr := g.builder.CreateStructGEP(slot, 1, "")
	off := int64(0)
	for i, sub := range ep.Payload {
		if i >= len(payload) {
			break
		}
		pt, err := g.lowerType(payload[i])
		if err != nil {
			return err
		}
		raw := g.builder.CreateGEP(payloadPtr, []llvm.Value{llvm.ConstInt(g.i64, uint64(off), false)}, "")
		cast := g.builder.CreateBitCast(raw, llvm.PointerType(pt, 0), "")
		if err := g.bindPattern(sub, cast, payload[i]); err != nil {
			return err
		}
		off += g.sizeOf(pt)
	}
	return nil
}

// zeroValue returns a type's zero/null representation, used for an
// implicit fallthrough return when the checker has already proven every
// path otherwise returns (so this value is never actually observed).
func (g *Generator) zeroValue(t types.Type) (llvm.Value, error) {
	lt, err := g.lowerType(t)
	if err != nil {
		return llvm.Value{}, err
	}
	switch lt.TypeKind() {
	case llvm.FloatTypeKind, llvm.DoubleTypeKind:
		return llvm.ConstFloat(lt, 0), nil
	case llvm.PointerTypeKind:
		return llvm.ConstNull(lt), nil
	case llvm.StructTypeKind, llvm.ArrayTypeKind:
		return llvm.ConstNull(lt), nil
	}
	return llvm.ConstInt(lt, 0, false), nil
}
