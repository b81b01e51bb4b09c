// Package parser implements TML's recursive-descent parser with Pratt
// expression precedence, per spec.md §4.3. It turns a token slice from
// internal/lexer into an *ast.Module, collecting structured ParseErrors
// (with fix-it hints) into a diag.Bag instead of aborting on the first
// failure — mirroring the teacher's "never abort on a single error"
// contract but generalized from goyacc grammar actions to hand-written
// recursive functions, since TML's grammar is far larger than VSL's.
package parser

import (
	"fmt"

	"tml/internal/ast"
	"tml/internal/diag"
	"tml/internal/source"
	"tml/internal/token"
)

// Parser-level error codes (P001-P065 per spec.md §4.3); only a subset of
// the range is named here. PUnclosedParen, PUnclosedBrace,
// PUnclosedBracket, PInvalidStmt, PWrongArrow, PInvalidDecorator and
// PDuplicateModifier are declared but never reported; a missing closing
// delimiter surfaces as PExpectedToken.
const (
	PExpectedToken     = "P001"
	PExpectedExpr      = "P002"
	PExpectedType      = "P003"
	PExpectedPattern   = "P004"
	PExpectedIdent     = "P005"
	PUnclosedParen     = "P006"
	PUnclosedBrace     = "P007"
	PUnclosedBracket   = "P008"
	PInvalidDecl       = "P009"
	PInvalidStmt       = "P010"
	PMissingComma      = "P011"
	PWrongArrow        = "P012"
	PInvalidDecorator  = "P013"
	PDuplicateModifier = "P014"
	PInvalidWhen       = "P015"
)

// Parser holds parse state over one token slice.
type Parser struct {
	toks []token.Token
	pos  int
	bag  *diag.Bag
	file *source.File

	// allowStructLiteral is false while parsing the condition of an
	// `if`/`when`/`while`/`for` so that `x {` is not mistaken for a
	// struct literal opening the condition's own trailing block.
	allowStructLiteral bool
}

// New builds a Parser over toks, reporting errors into bag.
func New(file *source.File, toks []token.Token, bag *diag.Bag) *Parser {
	return &Parser{toks: toks, bag: bag, file: file, allowStructLiteral: true}
}

// Parse parses a full module. It always returns a non-nil *ast.Module; the
// caller checks bag.HasErrors() to decide whether to proceed, per spec.md
// §7 ("each stage returns Artifact | Errors").
func Parse(file *source.File, toks []token.Token, bag *diag.Bag) *ast.Module {
	p := New(file, toks, bag)
	start := p.here()
	decls := make([]ast.Decl, 0, 32)
	for !p.atEnd() {
		before := p.pos
		if d := p.parseDecl(); d != nil {
			decls = append(decls, d)
		}
		if p.pos == before {
			// Safety valve: parseDecl must always make progress or
			// synchronize; this should be unreachable, but avoids an
			// infinite loop if a future grammar addition forgets to.
			p.advance()
		}
	}
	return &ast.Module{Base: ast.At(p.spanFrom(start)), Decls: decls}
}

// --- token cursor primitives ---

func (p *Parser) here() token.Token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return p.toks[len(p.toks)-1] // EOF
}

func (p *Parser) peekAt(n int) token.Token {
	i := p.pos + n
	if i < 0 || i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *Parser) atEnd() bool {
	return p.here().Kind == token.EOF
}

func (p *Parser) advance() token.Token {
	t := p.here()
	if !p.atEnd() {
		p.pos++
	}
	return t
}

func (p *Parser) check(k token.Kind) bool {
	return p.here().Kind == k
}

func (p *Parser) match(k token.Kind) bool {
	if p.check(k) {
		p.advance()
		return true
	}
	return false
}

// expect consumes a token of kind k or reports P001 and returns the
// current (unconsumed) token as a best-effort placeholder.
func (p *Parser) expect(k token.Kind, context string) token.Token {
	if p.check(k) {
		return p.advance()
	}
	tok := p.here()
	p.bag.Add(diag.Diagnostic{
		Severity: diag.Error,
		Code:     PExpectedToken,
		Message:  fmt.Sprintf("expected %s %s, found %q", k, context, tok.Lexeme),
		Primary:  tok.Span,
	}.WithFix(tok.Span, k.String(), fmt.Sprintf("insert %q", k.String())))
	return tok
}

func (p *Parser) expectIdent(context string) string {
	if p.check(token.IDENT) {
		return p.advance().Lexeme
	}
	tok := p.here()
	p.bag.Errorf(PExpectedIdent, tok.Span, "expected identifier %s, found %q", context, tok.Lexeme)
	return "<error>"
}

func (p *Parser) spanFrom(start token.Token) source.Span {
	end := p.peekAt(-1)
	if end.Span.End.Offset < start.Span.Start.Offset {
		end = start
	}
	return source.Span{File: start.Span.File, Start: start.Span.Start, End: end.Span.End}
}

// synchronize skips tokens until a top-level keyword or a matching brace,
// per spec.md §4.3's error-recovery contract ("skip tokens until a
// synchronizing point... and continue").
func (p *Parser) synchronize() {
	depth := 0
	for !p.atEnd() {
		switch p.here().Kind {
		case token.LBRACE:
			depth++
		case token.RBRACE:
			if depth == 0 {
				p.advance()
				return
			}
			depth--
		case token.SEMI:
			if depth == 0 {
				p.advance()
				return
			}
		case token.KW_FUNC, token.KW_STRUCT, token.KW_ENUM, token.KW_UNION,
			token.KW_CLASS, token.KW_BEHAVIOR, token.KW_IMPL, token.KW_USE,
			token.KW_MOD, token.KW_CONST, token.KW_TYPE, token.KW_PUB:
			if depth == 0 {
				return
			}
		}
		p.advance()
	}
}

func (p *Parser) errorf(code string, span source.Span, format string, args ...any) {
	p.bag.Errorf(code, span, format, args...)
}
