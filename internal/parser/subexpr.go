package parser

import (
	"tml/internal/ast"
	"tml/internal/diag"
	"tml/internal/lexer"
	"tml/internal/source"
	"tml/internal/token"
)

// parseSubExpr re-lexes and re-parses the raw source text captured for a
// template-string `${...}` segment. The lexer already sliced out the exact
// expression text (see internal/lexer's lexTemplateString), so this is a
// second, independent lex/parse pass scoped to that slice rather than a
// re-entrant call into the enclosing Parser — template expressions cannot
// nest a statement, only an expression, so a fresh Parser over a fresh
// one-off FileSet entry is simpler than threading a sub-cursor through the
// outer token slice. Diagnostics from the sub-parse are folded into the
// same bag the caller is using, with spans for fallbacks.
func parseSubExpr(outer *source.File, text string, outerSpan source.Span, bag *diag.Bag) ast.Expr {
	fs := source.NewFileSet()
	path := "<template-expr>"
	if outer != nil {
		path = outer.Path
	}
	id := fs.AddFile(path, text)
	f := fs.File(id)
	toks := lexer.Lex(f, bag)
	p := New(f, toks, bag)
	e := p.parseExpr()
	if e == nil {
		return &ast.LiteralExpr{Base: ast.At(outerSpan), Kind: token.NULL, Literal: &token.Literal{}}
	}
	return e
}
