// Package ast defines TML's sum-typed syntax tree, per spec.md §3 "AST —
// sum types" and §9's design note: each syntactic category (Decl, Stmt,
// Expr, Pattern, Type) is a Go interface with a small closed set of
// implementations, dispatched via type switch rather than a dynamic
// virtual hierarchy. Every node carries a source.Span so the diagnostic
// engine and IR generator can always point back at source text.
package ast

import "tml/internal/source"

// Node is implemented by every AST node; it exists so code that handles
// any kind of node (for example, reading its span) doesn't need five
// separate signatures.
type Node interface {
	Span() source.Span
}

// Base is embedded by every concrete node to provide Span() without
// repeating the field and accessor in every struct, mirroring the
// teacher's single ir.Node carrying Line/Pos on every node uniformly. It is
// exported (unlike a bare lowercase embed would be) so the parser package
// can construct nodes with composite literals: ast.LiteralExpr{Base:
// ast.At(span), ...}.
type Base struct {
	SpanVal source.Span
}

func (b Base) Span() source.Span { return b.SpanVal }

// At builds a Base carrying span, for terse node construction at each
// parser call site.
func At(span source.Span) Base { return Base{SpanVal: span} }

// Module is the root of one translation unit: an ordered sequence of
// top-level declarations, per spec.md §3.
type Module struct {
	Base
	Path  string // Dotted module path, e.g. "app::util".
	Decls []Decl
}

// Visibility marks pub/non-pub items.
type Visibility int

const (
	Private Visibility = iota
	Public
)

// Decorator is a `@name(args...)` annotation attached to a declaration,
// e.g. `@abstract`, `@sealed`, `@value`, `@pool`, `@allocates`.
type Decorator struct {
	Name string
	Args []string
	Span source.Span
}

func hasDecorator(ds []Decorator, name string) bool {
	for _, d := range ds {
		if d.Name == name {
			return true
		}
	}
	return false
}
