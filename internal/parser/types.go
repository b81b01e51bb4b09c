package parser

import (
	"tml/internal/ast"
	"tml/internal/token"
)

// parseType parses the syntactic type grammar: Named | Ref | Ptr | Array |
// Slice | Tuple | Func | Infer, per spec.md §3/§4.3.
func (p *Parser) parseType() ast.Type {
	switch p.here().Kind {
	case token.AMP:
		return p.parseRefType()
	case token.KW_PTR:
		return p.parsePtrType()
	case token.LBRACKET:
		return p.parseArrayOrSliceType()
	case token.LPAREN:
		return p.parseTupleOrFuncType()
	case token.KW_FUNC:
		return p.parseFuncTypeKeyword()
	case token.IDENT:
		return p.parseNamedType()
	case token.QUESTION:
		// `?` as a bare infer marker, e.g. `let x: ? = ...` (rare; most
		// inference omits the annotation entirely).
		start := p.advance()
		return &ast.InferType{Base: ast.At(start.Span)}
	}
	t := p.here()
	p.errorf(PExpectedType, t.Span, "expected a type, found %q", t.Lexeme)
	p.advance()
	return &ast.InferType{Base: ast.At(t.Span)}
}

func (p *Parser) parseRefType() ast.Type {
	start := p.advance() // '&'
	mut := p.match(token.KW_MUT)
	lifetime := ""
	if p.check(token.IDENT) && len(p.here().Lexeme) > 0 && p.here().Lexeme[0] == '\'' {
		lifetime = p.advance().Lexeme
	}
	inner := p.parseType()
	return &ast.RefType{Base: ast.At(p.spanFrom(start)), Mut: mut, Inner: inner, Lifetime: lifetime}
}

func (p *Parser) parsePtrType() ast.Type {
	start := p.advance() // 'ptr'
	mut := p.match(token.KW_MUT)
	inner := p.parseType()
	return &ast.PtrType{Base: ast.At(p.spanFrom(start)), Mut: mut, Inner: inner}
}

func (p *Parser) parseArrayOrSliceType() ast.Type {
	start := p.advance() // '['
	elem := p.parseType()
	if p.match(token.SEMI) {
		size := p.parseExpr()
		p.expect(token.RBRACKET, "to close array type")
		return &ast.ArrayType{Base: ast.At(p.spanFrom(start)), Elem: elem, Size: size}
	}
	p.expect(token.RBRACKET, "to close slice type")
	return &ast.SliceType{Base: ast.At(p.spanFrom(start)), Elem: elem}
}

func (p *Parser) parseTupleOrFuncType() ast.Type {
	start := p.advance() // '('
	var elems []ast.Type
	for !p.check(token.RPAREN) && !p.atEnd() {
		elems = append(elems, p.parseType())
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN, "to close type list")
	if p.match(token.ARROW) {
		ret := p.parseType()
		return &ast.FuncType{Base: ast.At(p.spanFrom(start)), Params: elems, Ret: ret}
	}
	return &ast.TupleType{Base: ast.At(p.spanFrom(start)), Elems: elems}
}

func (p *Parser) parseFuncTypeKeyword() ast.Type {
	start := p.advance() // 'func'
	isAsync := false
	p.expect(token.LPAREN, "to start function-type parameters")
	var params []ast.Type
	for !p.check(token.RPAREN) && !p.atEnd() {
		params = append(params, p.parseType())
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN, "to close function-type parameters")
	var ret ast.Type
	if p.match(token.ARROW) {
		ret = p.parseType()
	}
	return &ast.FuncType{Base: ast.At(p.spanFrom(start)), Params: params, Ret: ret, IsAsync: isAsync}
}

func (p *Parser) parseNamedType() ast.Type {
	start := p.advance() // first ident
	path := []string{start.Lexeme}
	for p.check(token.COLONCOLON) {
		p.advance()
		path = append(path, p.expectIdent("after '::' in type path"))
	}
	var generics []ast.Type
	if p.check(token.LT) {
		generics = p.parseGenericTypeArgs()
	}
	return ast.NewNamed(p.spanFrom(start), path, generics)
}

// parseGenericTypeArgs parses `<T, U>` in type position, where there is no
// call-vs-comparison ambiguity to guard against (unlike in expressions).
func (p *Parser) parseGenericTypeArgs() []ast.Type {
	p.advance() // '<'
	var out []ast.Type
	for !p.check(token.GT) && !p.atEnd() {
		out = append(out, p.parseType())
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.GT, "to close generic type argument list")
	return out
}
