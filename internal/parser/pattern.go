package parser

import (
	"tml/internal/ast"
	"tml/internal/token"
)

// parsePattern parses the pattern grammar: Wildcard | Ident | Literal |
// Tuple | Struct | Enum | Or | Range, per spec.md §3/§4.3. Or-patterns
// (`a | b | c`) wrap whatever a single alternative parses to.
func (p *Parser) parsePattern() ast.Pattern {
	first := p.parsePatternPrimary()
	if !p.check(token.PIPE) {
		return first
	}
	alts := []ast.Pattern{first}
	for p.match(token.PIPE) {
		alts = append(alts, p.parsePatternPrimary())
	}
	return &ast.OrPattern{Base: ast.At(p.spanFromNode(first)), Alts: alts}
}

func (p *Parser) parsePatternPrimary() ast.Pattern {
	t := p.here()
	switch t.Kind {
	case token.IDENT:
		if t.Lexeme == "_" {
			p.advance()
			return &ast.WildcardPattern{Base: ast.At(t.Span)}
		}
		return p.parseIdentOrStructOrEnumPattern()
	case token.KW_MUT:
		p.advance()
		name := p.expectIdent("in mutable binding pattern")
		var ty ast.Type
		if p.match(token.COLON) {
			ty = p.parseType()
		}
		return &ast.IdentPattern{Base: ast.At(p.spanFrom(t)), Name: name, Mut: true, Type: ty}
	case token.INT, token.FLOAT, token.STRING, token.RAW_STRING, token.CHAR, token.KW_TRUE, token.KW_FALSE:
		return p.parseLiteralOrRangePattern()
	case token.MINUS:
		return p.parseLiteralOrRangePattern()
	case token.LPAREN:
		return p.parseTuplePattern()
	}
	p.errorf(PExpectedPattern, t.Span, "expected a pattern, found %q", t.Lexeme)
	p.advance()
	return &ast.WildcardPattern{Base: ast.At(t.Span)}
}

func (p *Parser) parseLiteralOrRangePattern() ast.Pattern {
	start := p.here()
	lo := p.parseUnary()
	if p.check(token.DOTDOT) {
		p.advance()
		inclusive := p.match(token.ASSIGN)
		hi := p.parseUnary()
		return &ast.RangePattern{Base: ast.At(p.spanFrom(start)), Lo: lo, Hi: hi, Inclusive: inclusive}
	}
	return &ast.LiteralPattern{Base: ast.At(p.spanFrom(start)), Expr: lo}
}

func (p *Parser) parseTuplePattern() ast.Pattern {
	start := p.advance() // '('
	var elems []ast.Pattern
	for !p.check(token.RPAREN) && !p.atEnd() {
		elems = append(elems, p.parsePattern())
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN, "to close tuple pattern")
	return &ast.TuplePattern{Base: ast.At(p.spanFrom(start)), Elems: elems}
}

// parseIdentOrStructOrEnumPattern handles the family of patterns that start
// with an identifier: a plain binding, a module/enum path, a struct
// pattern `Name { field, .. }`, or an enum pattern `Name(pat, pat)`.
func (p *Parser) parseIdentOrStructOrEnumPattern() ast.Pattern {
	start := p.advance()
	path := []string{start.Lexeme}
	for p.check(token.COLONCOLON) {
		p.advance()
		path = append(path, p.expectIdent("after '::' in pattern path"))
	}
	switch {
	case p.check(token.LBRACE):
		return p.parseStructPattern(start, path)
	case p.check(token.LPAREN):
		return p.parseEnumPattern(start, path)
	}
	if len(path) > 1 {
		return &ast.EnumPattern{Base: ast.At(p.spanFrom(start)), Path: path}
	}
	var ty ast.Type
	if p.match(token.COLON) {
		ty = p.parseType()
	}
	return &ast.IdentPattern{Base: ast.At(p.spanFrom(start)), Name: start.Lexeme, Type: ty}
}

func (p *Parser) parseStructPattern(start token.Token, path []string) ast.Pattern {
	p.advance() // '{'
	var fields []ast.FieldPattern
	rest := false
	for !p.check(token.RBRACE) && !p.atEnd() {
		if p.match(token.DOTDOT) {
			rest = true
			break
		}
		name := p.expectIdent("struct field pattern name")
		var pat ast.Pattern
		if p.match(token.COLON) {
			pat = p.parsePattern()
		} else {
			pat = &ast.IdentPattern{Base: ast.At(p.toks[p.pos-1].Span), Name: name}
		}
		fields = append(fields, ast.FieldPattern{Name: name, Pattern: pat})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE, "to close struct pattern")
	return &ast.StructPattern{Base: ast.At(p.spanFrom(start)), Path: path, Fields: fields, Rest: rest}
}

func (p *Parser) parseEnumPattern(start token.Token, path []string) ast.Pattern {
	p.advance() // '('
	var payload []ast.Pattern
	for !p.check(token.RPAREN) && !p.atEnd() {
		payload = append(payload, p.parsePattern())
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN, "to close enum pattern payload")
	return &ast.EnumPattern{Base: ast.At(p.spanFrom(start)), Path: path, Payload: payload}
}
