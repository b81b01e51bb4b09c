package check_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tml/internal/ast"
	"tml/internal/check"
	"tml/internal/diag"
	"tml/internal/token"
	"tml/internal/types"
)

func ident(name string) *ast.IdentExpr { return &ast.IdentExpr{Name: name} }

func namedType(name string) *ast.NamedType { return &ast.NamedType{Path: []string{name}} }

func intLit(n int64) *ast.LiteralExpr {
	return &ast.LiteralExpr{Kind: token.INT, Literal: &token.Literal{IntVal: uint64(n)}}
}

func tokBool() token.Kind { return token.BOOL }

func boolLit(b bool) *token.Literal { return &token.Literal{BoolVal: b} }

func codesOf(diags []diag.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}

func runModule(t *testing.T, decls []ast.Decl) (*types.Env, []diag.Diagnostic) {
	t.Helper()
	env := types.NewEnv()
	bag := diag.NewBag()
	c := check.New(env, bag, "app")
	c.CheckModule(&ast.Module{Decls: decls})
	return env, bag.All()
}

func TestDuplicateStructDefinitionReported(t *testing.T) {
	a := &ast.StructDecl{Name: "Point", Fields: []ast.FieldDecl{{Name: "x", Type: namedType("I32")}}}
	b := &ast.StructDecl{Name: "Point", Fields: []ast.FieldDecl{{Name: "y", Type: namedType("I32")}}}
	_, diags := runModule(t, []ast.Decl{a, b})
	assert.Contains(t, codesOf(diags), check.TDuplicateDef)
}

// TestReturnMismatchReported builds `func f() -> I32 { return true }` and
// expects a T016 return-type-mismatch diagnostic.
func TestReturnMismatchReported(t *testing.T) {
	fn := &ast.FuncDecl{
		Name: "f",
		Ret:  namedType("I32"),
		Body: &ast.BlockExpr{
			Stmts: []ast.Stmt{
				&ast.ExprStmt{Value: &ast.ReturnExpr{Value: &ast.LiteralExpr{Kind: tokBool(), Literal: boolLit(true)}}},
			},
		},
	}
	_, diags := runModule(t, []ast.Decl{fn})
	assert.Contains(t, codesOf(diags), check.TReturnMismatch)
}

func TestUndeclaredIdentifierReported(t *testing.T) {
	fn := &ast.FuncDecl{
		Name: "f",
		Body: &ast.BlockExpr{
			Tail: ident("nonexistent"),
		},
	}
	_, diags := runModule(t, []ast.Decl{fn})
	assert.Contains(t, codesOf(diags), check.TUndeclared)
}

// TestAssignToImmutableReported mirrors `let x = 1; x = 2` and expects
// T013 (assigning to a non-`var` binding).
func TestAssignToImmutableReported(t *testing.T) {
	fn := &ast.FuncDecl{
		Name: "f",
		Body: &ast.BlockExpr{
			Stmts: []ast.Stmt{
				&ast.LetStmt{Pattern: &ast.IdentPattern{Name: "x"}, Value: intLit(1)},
				&ast.ExprStmt{Value: &ast.BinaryExpr{Op: "=", Left: ident("x"), Right: intLit(2)}},
			},
		},
	}
	_, diags := runModule(t, []ast.Decl{fn})
	assert.Contains(t, codesOf(diags), check.TMutateImmutable)
}

// TestBorrowThenAssignReported mirrors spec.md's S4 scenario:
//
//	var x = 1
//	let r = ref x
//	x = 2   // B002: assigning to a place held by an outstanding borrow
func TestBorrowThenAssignReported(t *testing.T) {
	fn := &ast.FuncDecl{
		Name: "main",
		Ret:  namedType("I32"),
		Body: &ast.BlockExpr{
			Stmts: []ast.Stmt{
				&ast.VarStmt{Pattern: &ast.IdentPattern{Name: "x"}, Value: intLit(1)},
				&ast.LetStmt{
					Pattern: &ast.IdentPattern{Name: "r"},
					Value:   &ast.UnaryExpr{Op: "ref", Operand: ident("x")},
				},
				&ast.ExprStmt{Value: &ast.BinaryExpr{Op: "=", Left: ident("x"), Right: intLit(2)}},
			},
			Tail: ident("r"),
		},
	}
	_, diags := runModule(t, []ast.Decl{fn})
	assert.Contains(t, codesOf(diags), check.BAssignBorrowed)
}

func TestEnumExhaustivenessMissingVariant(t *testing.T) {
	enum := &ast.EnumDecl{
		Name: "Maybe",
		Variants: []ast.EnumVariant{
			{Name: "Just", Payload: []ast.Type{namedType("I32")}},
			{Name: "Nothing"},
		},
	}
	fn := &ast.FuncDecl{
		Name: "describe",
		Params: []ast.Param{{
			Pattern: &ast.IdentPattern{Name: "m"},
			Type:    namedType("Maybe"),
		}},
		Body: &ast.BlockExpr{
			Tail: &ast.WhenExpr{
				Scrutinee: ident("m"),
				Arms: []ast.WhenArm{
					{Pattern: &ast.EnumPattern{Path: []string{"Just"}, Payload: []ast.Pattern{&ast.IdentPattern{Name: "v"}}}, Body: ident("v")},
				},
			},
		},
	}
	_, diags := runModule(t, []ast.Decl{enum, fn})
	assert.Contains(t, codesOf(diags), check.TWhenNotExhaustive)
}

func TestEnumExhaustivenessCoveredByWildcard(t *testing.T) {
	enum := &ast.EnumDecl{
		Name: "Maybe",
		Variants: []ast.EnumVariant{
			{Name: "Just", Payload: []ast.Type{namedType("I32")}},
			{Name: "Nothing"},
		},
	}
	fn := &ast.FuncDecl{
		Name: "describe",
		Params: []ast.Param{{
			Pattern: &ast.IdentPattern{Name: "m"},
			Type:    namedType("Maybe"),
		}},
		Body: &ast.BlockExpr{
			Tail: &ast.WhenExpr{
				Scrutinee: ident("m"),
				Arms: []ast.WhenArm{
					{Pattern: &ast.EnumPattern{Path: []string{"Just"}, Payload: []ast.Pattern{&ast.IdentPattern{Name: "v"}}}, Body: ident("v")},
					{Pattern: &ast.WildcardPattern{}, Body: intLit(0)},
				},
			},
		},
	}
	_, diags := runModule(t, []ast.Decl{enum, fn})
	assert.NotContains(t, codesOf(diags), check.TWhenNotExhaustive)
}

func TestAbstractClassCannotBeInstantiated(t *testing.T) {
	animal := &ast.ClassDecl{
		Name:       "Animal",
		IsAbstract: true,
		Decorators: []ast.Decorator{{Name: "abstract"}},
	}
	fn := &ast.FuncDecl{
		Name: "main",
		Body: &ast.BlockExpr{
			Tail: &ast.NewExpr{Type: namedType("Animal")},
		},
	}
	_, diags := runModule(t, []ast.Decl{animal, fn})
	assert.Contains(t, codesOf(diags), check.TAbstractNew)
}

func TestOverrideWithoutVirtualReported(t *testing.T) {
	base := &ast.ClassDecl{Name: "Animal"}
	dog := &ast.ClassDecl{
		Name:    "Dog",
		Extends: namedType("Animal"),
		Methods: []*ast.FuncDecl{
			{Name: "speak", IsOverride: true, HasThis: true, Body: &ast.BlockExpr{}},
		},
	}
	_, diags := runModule(t, []ast.Decl{base, dog})
	assert.Contains(t, codesOf(diags), check.TOverrideNoVirtual)
}

func TestImplMissingTraitMethodReported(t *testing.T) {
	trait := &ast.TraitDecl{
		Name: "Greet",
		Methods: []*ast.FuncDecl{
			{Name: "hello", HasThis: true},
		},
	}
	strct := &ast.StructDecl{Name: "Widget"}
	impl := &ast.ImplDecl{
		Trait:    namedType("Greet"),
		SelfType: namedType("Widget"),
	}
	_, diags := runModule(t, []ast.Decl{trait, strct, impl})
	assert.Contains(t, codesOf(diags), check.TImplMissingMethod)
}

func TestResolveMethodAndFindImplWiredThroughCheckedImpl(t *testing.T) {
	strct := &ast.StructDecl{Name: "Widget"}
	impl := &ast.ImplDecl{
		SelfType: namedType("Widget"),
		Methods: []*ast.FuncDecl{
			{Name: "area", HasThis: true, Ret: namedType("I32"), Body: &ast.BlockExpr{Tail: intLit(1)}},
		},
	}
	env, diags := runModule(t, []ast.Decl{strct, impl})
	require.Empty(t, codesOf(diags))
	fs := env.ResolveMethod("Widget", "area")
	require.NotNil(t, fs)
	assert.Equal(t, "area", fs.Name)
	assert.NotNil(t, env.FindImpl("", "Widget"))
}
