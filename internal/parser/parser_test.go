package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tml/internal/ast"
	"tml/internal/diag"
	"tml/internal/lexer"
	"tml/internal/parser"
	"tml/internal/source"
)

func parseText(t *testing.T, src string) (*ast.Module, *diag.Bag) {
	t.Helper()
	fs := source.NewFileSet()
	id := fs.AddFile("test.tml", src)
	f := fs.File(id)
	bag := diag.NewBag()
	toks := lexer.Lex(f, bag)
	require.False(t, bag.HasErrors(), "lexer errors: %+v", bag.All())
	mod := parser.Parse(f, toks, bag)
	return mod, bag
}

func TestParseHelloWorld(t *testing.T) {
	mod, bag := parseText(t, `
func main() -> I32 {
    print("hello");
    0
}
`)
	assert.False(t, bag.HasErrors(), "%+v", bag.All())
	require.Len(t, mod.Decls, 1)
	fd, ok := mod.Decls[0].(*ast.FuncDecl)
	require.True(t, ok)
	assert.Equal(t, "main", fd.Name)
	require.NotNil(t, fd.Body)
	require.Len(t, fd.Body.Stmts, 1)
	assert.NotNil(t, fd.Body.Tail)
}

func TestParseStructAndLet(t *testing.T) {
	mod, bag := parseText(t, `
struct Point {
    pub x: I32,
    pub y: I32,
}

func origin() -> Point {
    let p: Point = Point { x: 0, y: 0 };
    p
}
`)
	assert.False(t, bag.HasErrors(), "%+v", bag.All())
	require.Len(t, mod.Decls, 2)
	sd, ok := mod.Decls[0].(*ast.StructDecl)
	require.True(t, ok)
	assert.Equal(t, "Point", sd.Name)
	require.Len(t, sd.Fields, 2)
	assert.Equal(t, ast.Public, sd.Fields[0].Vis)

	fd := mod.Decls[1].(*ast.FuncDecl)
	require.Len(t, fd.Body.Stmts, 1)
	let, ok := fd.Body.Stmts[0].(*ast.LetStmt)
	require.True(t, ok)
	se, ok := let.Value.(*ast.StructExpr)
	require.True(t, ok)
	assert.Equal(t, []string{"Point"}, se.Path)
	require.Len(t, se.Fields, 2)
}

func TestParseClassInheritanceAndVirtual(t *testing.T) {
	mod, bag := parseText(t, `
class Animal {
    pub name: Str;

    virtual func speak(this) -> Str {
        "..."
    }
}

class Dog extends Animal {
    override func speak(this) -> Str {
        "woof"
    }
}
`)
	assert.False(t, bag.HasErrors(), "%+v", bag.All())
	require.Len(t, mod.Decls, 2)
	animal := mod.Decls[0].(*ast.ClassDecl)
	assert.Equal(t, "Animal", animal.Name)
	require.Len(t, animal.Methods, 1)
	assert.True(t, animal.Methods[0].IsVirtual)
	assert.True(t, animal.Methods[0].HasThis)

	dog := mod.Decls[1].(*ast.ClassDecl)
	require.NotNil(t, dog.Extends)
	assert.Equal(t, []string{"Animal"}, dog.Extends.Path)
	require.Len(t, dog.Methods, 1)
	assert.True(t, dog.Methods[0].IsOverride)
}

func TestParseEnumAndWhen(t *testing.T) {
	mod, bag := parseText(t, `
enum Shape {
    Circle(F64),
    Rect(F64, F64),
    Point,
}

func area(s: Shape) -> F64 {
    when s {
        Shape::Circle(r) => r * r,
        Shape::Rect(w, h) => w * h,
        Shape::Point => 0.0,
    }
}
`)
	assert.False(t, bag.HasErrors(), "%+v", bag.All())
	ed := mod.Decls[0].(*ast.EnumDecl)
	require.Len(t, ed.Variants, 3)
	assert.Equal(t, "Circle", ed.Variants[0].Name)
	require.Len(t, ed.Variants[0].Payload, 1)

	fd := mod.Decls[1].(*ast.FuncDecl)
	we := fd.Body.Tail.(*ast.WhenExpr)
	require.Len(t, we.Arms, 3)
	enumPat, ok := we.Arms[0].Pattern.(*ast.EnumPattern)
	require.True(t, ok)
	assert.Equal(t, []string{"Shape", "Circle"}, enumPat.Path)
}

func TestParseBehaviorAndImpl(t *testing.T) {
	mod, bag := parseText(t, `
behavior Greet {
    func hello(this) -> Str;
}

impl Greet for Dog {
    func hello(this) -> Str {
        "hi"
    }
}
`)
	assert.False(t, bag.HasErrors(), "%+v", bag.All())
	td := mod.Decls[0].(*ast.TraitDecl)
	assert.Equal(t, "Greet", td.Name)
	require.Len(t, td.Methods, 1)
	assert.Nil(t, td.Methods[0].Body)

	id := mod.Decls[1].(*ast.ImplDecl)
	require.NotNil(t, id.Trait)
	assert.Equal(t, []string{"Greet"}, id.Trait.Path)
	require.Len(t, id.Methods, 1)
	assert.NotNil(t, id.Methods[0].Body)
}

func TestParseGenericsAndClosure(t *testing.T) {
	mod, bag := parseText(t, `
func map<T, U>(xs: [T], f: func(T) -> U) -> [U] {
    xs
}

func use_closure() -> I32 {
    let add = |a: I32, b: I32| -> I32 { a + b };
    add(1, 2)
}
`)
	assert.False(t, bag.HasErrors(), "%+v", bag.All())
	fd := mod.Decls[0].(*ast.FuncDecl)
	require.Len(t, fd.Generics, 2)
	assert.Equal(t, "T", fd.Generics[0].Name)

	fd2 := mod.Decls[1].(*ast.FuncDecl)
	let := fd2.Body.Stmts[0].(*ast.LetStmt)
	cl, ok := let.Value.(*ast.ClosureExpr)
	require.True(t, ok)
	require.Len(t, cl.Params, 2)
}

func TestParseTemplateString(t *testing.T) {
	mod, bag := parseText(t, "func greet(name: Str) -> Str {\n    `hello ${name}!`\n}\n")
	assert.False(t, bag.HasErrors(), "%+v", bag.All())
	fd := mod.Decls[0].(*ast.FuncDecl)
	ie, ok := fd.Body.Tail.(*ast.InterpolatedStringExpr)
	require.True(t, ok)
	require.Len(t, ie.Segments, 3)
	assert.Equal(t, "hello ", ie.Segments[0].Text)
	assert.True(t, ie.Segments[1].IsExpr)
	ident, ok := ie.Segments[1].Expr.(*ast.IdentExpr)
	require.True(t, ok)
	assert.Equal(t, "name", ident.Name)
	assert.Equal(t, "!", ie.Segments[2].Text)
}

func TestParseRecoversFromErrorAndContinues(t *testing.T) {
	mod, bag := parseText(t, `
func broken( -> I32 { 0 }

func ok() -> I32 { 1 }
`)
	assert.True(t, bag.HasErrors())
	require.Len(t, mod.Decls, 2)
	ok, isFunc := mod.Decls[1].(*ast.FuncDecl)
	require.True(t, isFunc)
	assert.Equal(t, "ok", ok.Name)
}
