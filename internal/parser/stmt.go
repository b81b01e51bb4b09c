package parser

import (
	"tml/internal/ast"
	"tml/internal/token"
)

// parseStmtOrTailExpr parses one block-level item. It returns
// (*ast.ExprStmt, true) when the item is a trailing tail expression (an
// expression not terminated by `;`, immediately followed by the block's
// closing `}`) — the caller unwraps that case into BlockExpr.Tail.
func (p *Parser) parseStmtOrTailExpr() (ast.Stmt, bool) {
	switch p.here().Kind {
	case token.KW_LET:
		return p.parseLetStmt(), false
	case token.KW_VAR:
		return p.parseVarStmt(), false
	case token.KW_FUNC, token.KW_STRUCT, token.KW_ENUM, token.KW_UNION, token.KW_CLASS,
		token.KW_CONST, token.KW_TYPE, token.KW_USE:
		start := p.here()
		d := p.parseDecl()
		return &ast.NestedDeclStmt{Base: ast.At(p.spanFrom(start)), Decl: d}, false
	}
	start := p.here()
	e := p.parseExpr()
	if p.match(token.SEMI) {
		return &ast.ExprStmt{Base: ast.At(p.spanFrom(start)), Value: e}, false
	}
	if p.check(token.RBRACE) {
		return &ast.ExprStmt{Base: ast.At(p.spanFrom(start)), Value: e}, true
	}
	// A block-form expression (if/when/loop/while/for/block) may stand
	// alone as a statement without a trailing `;`, matching the teacher's
	// "expression statement" handling for bare calls in frontend/tree.go.
	switch e.(type) {
	case *ast.IfExpr, *ast.WhenExpr, *ast.LoopExpr, *ast.WhileExpr, *ast.ForExpr, *ast.BlockExpr:
		return &ast.ExprStmt{Base: ast.At(p.spanFrom(start)), Value: e}, false
	}
	p.errorf(PMissingComma, p.here().Span, "expected ';' after expression statement, found %q", p.here().Lexeme)
	return &ast.ExprStmt{Base: ast.At(p.spanFrom(start)), Value: e}, false
}

func (p *Parser) parseLetStmt() ast.Stmt {
	start := p.advance() // 'let'
	pat := p.parsePattern()
	var ty ast.Type
	if p.match(token.COLON) {
		ty = p.parseType()
	}
	p.expect(token.ASSIGN, "in `let` binding")
	value := p.parseExpr()
	if p.match(token.KW_ELSE) {
		elseBlock := p.parseBlockExpr("").(*ast.BlockExpr)
		return &ast.LetElseStmt{Base: ast.At(p.spanFrom(start)), Pattern: pat, Type: ty, Value: value, Else: elseBlock}
	}
	p.expect(token.SEMI, "after `let` binding")
	return &ast.LetStmt{Base: ast.At(p.spanFrom(start)), Pattern: pat, Type: ty, Value: value}
}

func (p *Parser) parseVarStmt() ast.Stmt {
	start := p.advance() // 'var'
	pat := p.parsePattern()
	var ty ast.Type
	if p.match(token.COLON) {
		ty = p.parseType()
	}
	var value ast.Expr
	if p.match(token.ASSIGN) {
		value = p.parseExpr()
	}
	p.expect(token.SEMI, "after `var` declaration")
	return &ast.VarStmt{Base: ast.At(p.spanFrom(start)), Pattern: pat, Type: ty, Value: value}
}
