package parser

import (
	"tml/internal/ast"
	"tml/internal/source"
	"tml/internal/token"
)

// precedence table, per spec.md §4.3 (loosest to tightest): assignment,
// ternary, range, or, and, equality, comparison, bitor, bitxor, bitand,
// shift, additive, multiplicative, cast/unary, postfix, primary.
const (
	precNone = iota
	precAssign
	precTernary
	precRange
	precOr
	precAnd
	precEquality
	precComparison
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precAdditive
	precMultiplicative
	precCast
	precUnary
	precPostfix
)

var binPrec = map[token.Kind]int{
	token.ASSIGN: precAssign, token.PLUS_ASSIGN: precAssign, token.MINUS_ASSIGN: precAssign,
	token.STAR_ASSIGN: precAssign, token.SLASH_ASSIGN: precAssign, token.PERCENT_ASSIGN: precAssign,
	token.AMP_ASSIGN: precAssign, token.PIPE_ASSIGN: precAssign, token.CARET_ASSIGN: precAssign,
	token.SHL_ASSIGN: precAssign, token.SHR_ASSIGN: precAssign,

	token.DOTDOT: precRange,

	token.KW_OR: precOr,

	token.KW_AND: precAnd,

	token.EQ: precEquality, token.NE: precEquality,

	token.LT: precComparison, token.GT: precComparison, token.LE: precComparison, token.GE: precComparison,
	token.KW_IS: precComparison, token.KW_IN: precComparison,

	token.PIPE: precBitOr,
	token.CARET: precBitXor,
	token.AMP:   precBitAnd,
	token.SHL:   precShift, token.SHR: precShift,

	token.PLUS: precAdditive, token.MINUS: precAdditive,

	token.STAR: precMultiplicative, token.SLASH: precMultiplicative, token.PERCENT: precMultiplicative,

	token.KW_AS: precCast,
}

var rightAssoc = map[token.Kind]bool{
	token.ASSIGN: true, token.PLUS_ASSIGN: true, token.MINUS_ASSIGN: true, token.STAR_ASSIGN: true,
	token.SLASH_ASSIGN: true, token.PERCENT_ASSIGN: true, token.AMP_ASSIGN: true, token.PIPE_ASSIGN: true,
	token.CARET_ASSIGN: true, token.SHL_ASSIGN: true, token.SHR_ASSIGN: true,
}

// parseExpr parses a full expression at the loosest precedence.
func (p *Parser) parseExpr() ast.Expr {
	left := p.parseTernary()
	if binPrec[p.here().Kind] == precAssign {
		op := p.advance()
		right := p.parseExpr()
		return &ast.BinaryExpr{Base: ast.At(p.spanFromNode(left)), Op: op.Kind.String(), Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseTernary() ast.Expr {
	cond := p.parseBinary(precTernary + 1)
	if p.match(token.QUESTION) {
		start := p.toks[p.pos-1]
		then := p.parseExpr()
		p.expect(token.COLON, "in ternary expression")
		els := p.parseExpr()
		return &ast.TernaryExpr{Base: ast.At(p.spanFrom(start)), Cond: cond, Then: then, Else: els}
	}
	return cond
}

// parseBinary implements Pratt-style precedence climbing over the binPrec
// table, generalizing the teacher's LALR-grammar-encoded precedence (VSL
// left this to goyacc %left/%right directives) into an explicit table
// since TML's operator set is larger and includes keyword operators
// (`and`, `or`, `is`, `in`, `as`).
func (p *Parser) parseBinary(minPrec int) ast.Expr {
	left := p.parseUnary()
	for {
		op := p.here()
		prec, ok := binPrec[op.Kind]
		if !ok || prec < minPrec {
			return left
		}
		start := left
		p.advance()
		if op.Kind == token.KW_AS {
			ty := p.parseType()
			left = &ast.CastExpr{Base: ast.At(p.spanFromNode(start)), Value: left, Type: ty}
			continue
		}
		if op.Kind == token.DOTDOT {
			inclusive := p.match(token.ASSIGN)
			var hi ast.Expr
			if p.canStartExpr() {
				hi = p.parseBinary(precRange + 1)
			}
			left = &ast.RangeExpr{Base: ast.At(p.spanFromNode(start)), Lo: left, Hi: hi, Inclusive: inclusive}
			continue
		}
		nextMin := prec + 1
		if rightAssoc[op.Kind] {
			nextMin = prec
		}
		right := p.parseBinary(nextMin)
		left = &ast.BinaryExpr{Base: ast.At(p.spanFromNode(start)), Op: op.Kind.String(), Left: left, Right: right}
	}
}

func (p *Parser) canStartExpr() bool {
	switch p.here().Kind {
	case token.RPAREN, token.RBRACE, token.RBRACKET, token.COMMA, token.SEMI, token.EOF, token.LBRACE:
		return false
	default:
		return true
	}
}

func (p *Parser) parseUnary() ast.Expr {
	start := p.here()
	switch start.Kind {
	case token.MINUS, token.BANG, token.TILDE, token.KW_NOT, token.PLUSPLUS, token.MINUSMINUS:
		p.advance()
		operand := p.parseUnary()
		return &ast.UnaryExpr{Base: ast.At(p.spanFrom(start)), Op: start.Kind.String(), Operand: operand}
	case token.KW_REF:
		p.advance()
		mut := p.match(token.KW_MUT)
		operand := p.parseUnary()
		return &ast.UnaryExpr{Base: ast.At(p.spanFrom(start)), Op: "ref", Operand: operand, Mut: mut}
	case token.STAR:
		p.advance()
		operand := p.parseUnary()
		return &ast.UnaryExpr{Base: ast.At(p.spanFrom(start)), Op: "*", Operand: operand}
	case token.KW_NEW:
		return p.parseNewExpr()
	}
	return p.parsePostfix()
}

func (p *Parser) parseNewExpr() ast.Expr {
	start := p.advance() // 'new'
	ty := p.parseType()
	var args []ast.Expr
	if p.match(token.LPAREN) {
		args = p.parseExprList(token.RPAREN)
		p.expect(token.RPAREN, "to close `new(...)` arguments")
	}
	return &ast.NewExpr{Base: ast.At(p.spanFrom(start)), Type: ty, Args: args}
}

func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	for {
		switch p.here().Kind {
		case token.DOT:
			p.advance()
			start := expr
			if p.check(token.IDENT) && p.here().Lexeme == "await" {
				p.advance()
				expr = &ast.AwaitExpr{Base: ast.At(p.spanFromNode(start)), Value: expr}
				continue
			}
			name := p.expectIdent("after '.'")
			if p.check(token.LPAREN) || p.check(token.LT) && p.looksLikeTypeArgsAndCall() {
				typeArgs := p.maybeParseTypeArgs()
				p.expect(token.LPAREN, "to start method call arguments")
				args := p.parseExprList(token.RPAREN)
				p.expect(token.RPAREN, "to close method call arguments")
				expr = &ast.MethodCallExpr{Base: ast.At(p.spanFromNode(start)), Receiver: expr, Method: name, TypeArgs: typeArgs, Args: args}
				continue
			}
			expr = &ast.FieldExpr{Base: ast.At(p.spanFromNode(start)), Receiver: expr, Name: name}
		case token.LPAREN:
			start := expr
			p.advance()
			args := p.parseExprList(token.RPAREN)
			p.expect(token.RPAREN, "to close call arguments")
			expr = &ast.CallExpr{Base: ast.At(p.spanFromNode(start)), Callee: expr, Args: args}
		case token.LBRACKET:
			start := expr
			p.advance()
			idx := p.parseExpr()
			p.expect(token.RBRACKET, "to close index expression")
			expr = &ast.IndexExpr{Base: ast.At(p.spanFromNode(start)), Receiver: expr, Index: idx}
		case token.BANG:
			start := expr
			p.advance()
			expr = &ast.TryExpr{Base: ast.At(p.spanFromNode(start)), Value: expr}
		case token.PLUSPLUS, token.MINUSMINUS:
			start := expr
			op := p.advance()
			expr = &ast.UnaryExpr{Base: ast.At(p.spanFromNode(start)), Op: "post" + op.Kind.String(), Operand: expr}
		default:
			return expr
		}
	}
}

// looksLikeTypeArgsAndCall is a conservative heuristic distinguishing
// `x.f<T>(...)` method calls from `x.f < y` comparisons: only commit to
// type-argument parsing when it is immediately followed by a call.
func (p *Parser) looksLikeTypeArgsAndCall() bool {
	depth := 0
	for i := p.pos; i < len(p.toks); i++ {
		switch p.toks[i].Kind {
		case token.LT:
			depth++
		case token.GT:
			depth--
			if depth == 0 {
				return i+1 < len(p.toks) && p.toks[i+1].Kind == token.LPAREN
			}
		case token.SEMI, token.LBRACE, token.RPAREN:
			return false
		}
		if i-p.pos > 64 {
			return false
		}
	}
	return false
}

func (p *Parser) maybeParseTypeArgs() []ast.Type {
	if !p.match(token.LT) {
		return nil
	}
	var args []ast.Type
	for !p.check(token.GT) {
		args = append(args, p.parseType())
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.GT, "to close type argument list")
	return args
}

func (p *Parser) parseExprList(end token.Kind) []ast.Expr {
	var out []ast.Expr
	for !p.check(end) && !p.atEnd() {
		out = append(out, p.parseExpr())
		if !p.match(token.COMMA) {
			break
		}
	}
	return out
}

// labelledLoopAhead reports whether the cursor sits at `ident :: (loop |
// while | for)`, TML's loop-label syntax — the same `::` qualifier used by
// labelled break/continue, rather than inventing a separate lifetime-like
// sigil.
func (p *Parser) labelledLoopAhead() bool {
	if p.here().Kind != token.IDENT || p.peekAt(1).Kind != token.COLONCOLON {
		return false
	}
	switch p.peekAt(2).Kind {
	case token.KW_LOOP, token.KW_WHILE, token.KW_FOR:
		return true
	}
	return false
}

func (p *Parser) parsePrimary() ast.Expr {
	if p.labelledLoopAhead() {
		label := p.advance().Lexeme
		p.advance() // '::'
		switch p.here().Kind {
		case token.KW_LOOP:
			return p.parseLoopExpr(label)
		case token.KW_WHILE:
			return p.parseWhileExpr(label)
		default:
			return p.parseForExpr(label)
		}
	}
	t := p.here()
	switch t.Kind {
	case token.INT, token.FLOAT, token.STRING, token.RAW_STRING, token.CHAR, token.BOOL, token.NULL:
		p.advance()
		return &ast.LiteralExpr{Base: ast.At(t.Span), Kind: t.Kind, Literal: t.Literal}
	case token.TEMPLATE_STRING:
		p.advance()
		return p.buildInterpolated(t)
	case token.KW_TRUE, token.KW_FALSE:
		p.advance()
		lit := &token.Literal{BoolVal: t.Kind == token.KW_TRUE}
		return &ast.LiteralExpr{Base: ast.At(t.Span), Kind: token.BOOL, Literal: lit}
	case token.KW_BASE:
		p.advance()
		return &ast.BaseExpr{Base: ast.At(t.Span)}
	case token.IDENT:
		return p.parseIdentOrPath()
	case token.LPAREN:
		return p.parseParenOrTuple()
	case token.LBRACKET:
		return p.parseArrayExpr()
	case token.LBRACE:
		return p.parseBlockExpr("")
	case token.KW_IF:
		return p.parseIfExpr()
	case token.KW_WHEN:
		return p.parseWhenExpr()
	case token.KW_LOOP:
		return p.parseLoopExpr("")
	case token.KW_WHILE:
		return p.parseWhileExpr("")
	case token.KW_FOR:
		return p.parseForExpr("")
	case token.KW_RETURN:
		p.advance()
		var v ast.Expr
		if p.canStartExpr() {
			v = p.parseExpr()
		}
		return &ast.ReturnExpr{Base: ast.At(p.spanFrom(t)), Value: v}
	case token.KW_BREAK:
		p.advance()
		label, v := p.parseLabelAndOptionalValue()
		return &ast.BreakExpr{Base: ast.At(p.spanFrom(t)), Label: label, Value: v}
	case token.KW_CONTINUE:
		p.advance()
		label := ""
		if p.check(token.COLONCOLON) {
			p.advance()
			label = p.expectIdent("loop label")
		}
		return &ast.ContinueExpr{Base: ast.At(p.spanFrom(t)), Label: label}
	case token.PIPE:
		return p.parseClosure(false)
	case token.KW_ASYNC:
		p.advance()
		return p.parseClosure(true)
	}
	p.bag.Errorf(PExpectedExpr, t.Span, "expected an expression, found %q", t.Lexeme)
	p.advance()
	return &ast.LiteralExpr{Base: ast.At(t.Span), Kind: token.NULL, Literal: &token.Literal{}}
}

func (p *Parser) parseLabelAndOptionalValue() (string, ast.Expr) {
	label := ""
	if p.check(token.COLONCOLON) {
		p.advance()
		label = p.expectIdent("loop label")
	}
	var v ast.Expr
	if p.canStartExpr() {
		v = p.parseExpr()
	}
	return label, v
}

func (p *Parser) buildInterpolated(t token.Token) ast.Expr {
	if t.Literal == nil {
		return &ast.InterpolatedStringExpr{Base: ast.At(t.Span)}
	}
	segs := make([]ast.InterpSegment, 0, len(t.Literal.Segments))
	for _, s := range t.Literal.Segments {
		if !s.IsExpr {
			segs = append(segs, ast.InterpSegment{Text: s.Text})
			continue
		}
		sub := parseSubExpr(p.file, s.Expr, s.Span, p.bag)
		segs = append(segs, ast.InterpSegment{Expr: sub, IsExpr: true})
	}
	return &ast.InterpolatedStringExpr{Base: ast.At(t.Span), Segments: segs}
}

// parseIdentOrPath parses a bare identifier, a `Mod::Path` reference, or a
// struct-literal expression when followed by `{` in a context where that is
// unambiguous (not inside an `if`/`when`/`while`/`for` condition, tracked by
// the caller disabling struct-literals there — see parseIfExpr etc.).
func (p *Parser) parseIdentOrPath() ast.Expr {
	start := p.advance()
	segs := []string{start.Lexeme}
	for p.check(token.COLONCOLON) {
		p.advance()
		segs = append(segs, p.expectIdent("after '::'"))
	}
	var base ast.Expr
	if len(segs) == 1 {
		base = &ast.IdentExpr{Base: ast.At(p.spanFrom(start)), Name: segs[0]}
	} else {
		base = &ast.PathExpr{Base: ast.At(p.spanFrom(start)), Segments: segs}
	}
	if p.check(token.LBRACE) && p.allowStructLiteral {
		return p.parseStructLiteral(start, segs)
	}
	return base
}

func (p *Parser) parseStructLiteral(start token.Token, path []string) ast.Expr {
	p.expect(token.LBRACE, "to start struct literal fields")
	var fields []ast.FieldInit
	var spread ast.Expr
	for !p.check(token.RBRACE) && !p.atEnd() {
		if p.match(token.DOTDOT) {
			spread = p.parseExpr()
			break
		}
		name := p.expectIdent("struct field name")
		var val ast.Expr
		if p.match(token.COLON) {
			val = p.parseExpr()
		} else {
			val = &ast.IdentExpr{Base: ast.At(p.toks[p.pos-1].Span), Name: name}
		}
		fields = append(fields, ast.FieldInit{Name: name, Value: val})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE, "to close struct literal")
	return &ast.StructExpr{Base: ast.At(p.spanFrom(start)), Path: path, Fields: fields, Spread: spread}
}

func (p *Parser) parseParenOrTuple() ast.Expr {
	start := p.advance() // '('
	if p.match(token.RPAREN) {
		return &ast.TupleExpr{Base: ast.At(p.spanFrom(start))}
	}
	first := p.parseExpr()
	if p.match(token.COMMA) {
		elems := []ast.Expr{first}
		for !p.check(token.RPAREN) && !p.atEnd() {
			elems = append(elems, p.parseExpr())
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RPAREN, "to close tuple expression")
		return &ast.TupleExpr{Base: ast.At(p.spanFrom(start)), Elems: elems}
	}
	p.expect(token.RPAREN, "to close parenthesized expression")
	return first
}

func (p *Parser) parseArrayExpr() ast.Expr {
	start := p.advance() // '['
	if p.match(token.RBRACKET) {
		return &ast.ArrayExpr{Base: ast.At(p.spanFrom(start))}
	}
	first := p.parseExpr()
	if p.match(token.SEMI) {
		count := p.parseExpr()
		p.expect(token.RBRACKET, "to close array-repeat expression")
		return &ast.ArrayExpr{Base: ast.At(p.spanFrom(start)), Repeat: first, Count: count}
	}
	elems := []ast.Expr{first}
	for p.match(token.COMMA) {
		if p.check(token.RBRACKET) {
			break
		}
		elems = append(elems, p.parseExpr())
	}
	p.expect(token.RBRACKET, "to close array expression")
	return &ast.ArrayExpr{Base: ast.At(p.spanFrom(start)), Elems: elems}
}

func (p *Parser) parseClosure(isMove bool) ast.Expr {
	start := p.here()
	p.expect(token.PIPE, "to start closure parameters")
	var params []ast.ClosureParam
	for !p.check(token.PIPE) && !p.atEnd() {
		pat := p.parsePatternPrimary()
		var ty ast.Type
		if p.match(token.COLON) {
			ty = p.parseType()
		}
		params = append(params, ast.ClosureParam{Pattern: pat, Type: ty})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.PIPE, "to close closure parameters")
	var ret ast.Type
	if p.match(token.ARROW) {
		ret = p.parseType()
	}
	body := p.parseExpr()
	return &ast.ClosureExpr{Base: ast.At(p.spanFrom(start)), Params: params, Ret: ret, Body: body, IsMove: isMove}
}

func (p *Parser) parseIfExpr() ast.Expr {
	start := p.advance() // 'if'
	cond := p.parseExprNoStruct()
	then := p.parseBlockExpr("").(*ast.BlockExpr)
	var els ast.Expr
	if p.match(token.KW_ELSE) {
		if p.check(token.KW_IF) {
			els = p.parseIfExpr()
		} else {
			els = p.parseBlockExpr("")
		}
	}
	return &ast.IfExpr{Base: ast.At(p.spanFrom(start)), Cond: cond, Then: then, Else: els}
}

// parseExprNoStruct parses an expression with struct-literal syntax
// suppressed, needed so `if x { ... }` parses `x` as the condition and `{`
// as the block opener rather than a struct literal — the same ambiguity
// Rust's grammar resolves the same way.
func (p *Parser) parseExprNoStruct() ast.Expr {
	save := p.allowStructLiteral
	p.allowStructLiteral = false
	e := p.parseExpr()
	p.allowStructLiteral = save
	return e
}

func (p *Parser) parseWhenExpr() ast.Expr {
	start := p.advance() // 'when'
	scrutinee := p.parseExprNoStruct()
	p.expect(token.LBRACE, "to start `when` arms")
	var arms []ast.WhenArm
	for !p.check(token.RBRACE) && !p.atEnd() {
		pat := p.parsePattern()
		var guard ast.Expr
		if p.match(token.KW_IF) {
			guard = p.parseExprNoStruct()
		}
		p.expect(token.FATARROW, "after `when` arm pattern")
		body := p.parseExpr()
		arms = append(arms, ast.WhenArm{Pattern: pat, Guard: guard, Body: body})
		if !p.match(token.COMMA) {
			if p.check(token.RBRACE) {
				break
			}
		}
	}
	p.expect(token.RBRACE, "to close `when` expression")
	if len(arms) == 0 {
		p.errorf(PInvalidWhen, p.spanFrom(start), "`when` expression must have at least one arm")
	}
	return &ast.WhenExpr{Base: ast.At(p.spanFrom(start)), Scrutinee: scrutinee, Arms: arms}
}

func (p *Parser) parseLoopExpr(label string) ast.Expr {
	start := p.advance() // 'loop'
	body := p.parseBlockExpr("").(*ast.BlockExpr)
	return &ast.LoopExpr{Base: ast.At(p.spanFrom(start)), Label: label, Body: body}
}

func (p *Parser) parseWhileExpr(label string) ast.Expr {
	start := p.advance() // 'while'
	cond := p.parseExprNoStruct()
	body := p.parseBlockExpr("").(*ast.BlockExpr)
	return &ast.WhileExpr{Base: ast.At(p.spanFrom(start)), Label: label, Cond: cond, Body: body}
}

func (p *Parser) parseForExpr(label string) ast.Expr {
	start := p.advance() // 'for'
	pat := p.parsePattern()
	p.expect(token.KW_IN, "between `for` pattern and iterable")
	iter := p.parseExprNoStruct()
	body := p.parseBlockExpr("").(*ast.BlockExpr)
	return &ast.ForExpr{Base: ast.At(p.spanFrom(start)), Label: label, Pattern: pat, Iter: iter, Body: body}
}

// parseBlockExpr parses `{ stmt* expr? }`. label is non-empty when called
// for a labelled loop form (`outer:: loop { ... }`), currently unused by
// blocks themselves but threaded through for symmetry with the loop forms.
func (p *Parser) parseBlockExpr(label string) ast.Expr {
	start := p.expect(token.LBRACE, "to start a block")
	save := p.allowStructLiteral
	p.allowStructLiteral = true
	var stmts []ast.Stmt
	var tail ast.Expr
	for !p.check(token.RBRACE) && !p.atEnd() {
		s, isTail := p.parseStmtOrTailExpr()
		if isTail {
			tail = s.(*ast.ExprStmt).Value
			break
		}
		stmts = append(stmts, s)
	}
	p.allowStructLiteral = save
	p.expect(token.RBRACE, "to close block")
	return &ast.BlockExpr{Base: ast.At(p.spanFrom(start)), Stmts: stmts, Tail: tail}
}

func (p *Parser) spanFromNode(n ast.Node) source.Span {
	s := n.Span()
	end := p.peekAt(-1)
	return source.Span{File: s.File, Start: s.Start, End: end.Span.End}
}
