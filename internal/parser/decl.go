package parser

import (
	"tml/internal/ast"
	"tml/internal/token"
)

// parseDecl parses one top-level (or nested) declaration. On a malformed
// declaration it reports PInvalidDecl and synchronizes to the next
// plausible declaration boundary, per spec.md §4.3's recovery contract.
func (p *Parser) parseDecl() ast.Decl {
	decorators := p.parseDecorators()
	vis := ast.Private
	if p.match(token.KW_PUB) {
		vis = ast.Public
	}
	switch p.here().Kind {
	case token.KW_FUNC:
		return p.parseFuncDecl(decorators, vis, false, false)
	case token.KW_ASYNC:
		p.advance()
		lowlevel := p.match(token.KW_LOWLEVEL)
		p.expect(token.KW_FUNC, "after `async`")
		return p.parseFuncDeclAfterKeyword(decorators, vis, true, lowlevel)
	case token.KW_LOWLEVEL:
		p.advance()
		async := p.match(token.KW_ASYNC)
		p.expect(token.KW_FUNC, "after `lowlevel`")
		return p.parseFuncDeclAfterKeyword(decorators, vis, async, true)
	case token.KW_STRUCT:
		return p.parseStructDecl(decorators, vis)
	case token.KW_ENUM:
		return p.parseEnumDecl(decorators, vis)
	case token.KW_UNION:
		return p.parseUnionDecl(decorators, vis)
	case token.KW_CLASS:
		return p.parseClassDecl(decorators, vis)
	case token.KW_BEHAVIOR:
		return p.parseTraitDecl(vis)
	case token.KW_IMPL:
		return p.parseImplDecl()
	case token.KW_TYPE:
		return p.parseTypeAliasDecl(vis)
	case token.KW_CONST:
		return p.parseConstDecl(vis)
	case token.KW_USE:
		return p.parseUseDecl()
	case token.KW_MOD:
		return p.parseModDecl()
	}
	t := p.here()
	p.errorf(PInvalidDecl, t.Span, "expected a declaration, found %q", t.Lexeme)
	p.synchronize()
	return nil
}

func (p *Parser) parseDecorators() []ast.Decorator {
	var out []ast.Decorator
	for p.check(token.AT) {
		start := p.advance()
		name := p.expectIdent("decorator name")
		var args []string
		if p.match(token.LPAREN) {
			for !p.check(token.RPAREN) && !p.atEnd() {
				args = append(args, p.advance().Lexeme)
				if !p.match(token.COMMA) {
					break
				}
			}
			p.expect(token.RPAREN, "to close decorator arguments")
		}
		out = append(out, ast.Decorator{Name: name, Args: args, Span: p.spanFrom(start)})
	}
	return out
}

func (p *Parser) parseFuncDecl(decorators []ast.Decorator, vis ast.Visibility, isAsync, isLowlevel bool) ast.Decl {
	p.expect(token.KW_FUNC, "to start a function declaration")
	return p.parseFuncDeclAfterKeyword(decorators, vis, isAsync, isLowlevel)
}

// parseFuncDeclAfterKeyword parses everything following the `func` keyword
// itself, shared by the plain, `async`, and `lowlevel` entry points.
func (p *Parser) parseFuncDeclAfterKeyword(decorators []ast.Decorator, vis ast.Visibility, isAsync, isLowlevel bool) *ast.FuncDecl {
	start := p.peekAt(-1)
	name := p.expectIdent("function name")
	generics := p.parseOptionalGenericParams()
	params, hasThis := p.parseParamList()
	var ret ast.Type
	if p.match(token.ARROW) {
		ret = p.parseType()
	}
	where := p.parseOptionalWhereClauses()
	var body *ast.BlockExpr
	if p.check(token.LBRACE) {
		body = p.parseBlockExpr("").(*ast.BlockExpr)
	} else {
		p.expect(token.SEMI, "after a function signature with no body")
	}
	return &ast.FuncDecl{
		Base: ast.At(p.spanFrom(start)), Name: name, Vis: vis, Decorators: decorators,
		IsAsync: isAsync, IsLowlevel: isLowlevel, Generics: generics, Params: params,
		Ret: ret, Where: where, Body: body, HasThis: hasThis,
	}
}

func (p *Parser) parseOptionalGenericParams() []ast.GenericParam {
	if !p.check(token.LT) {
		return nil
	}
	p.advance()
	var out []ast.GenericParam
	for !p.check(token.GT) && !p.atEnd() {
		name := p.expectIdent("generic parameter name")
		var bounds []ast.Type
		if p.match(token.COLON) {
			bounds = append(bounds, p.parseType())
			for p.match(token.PLUS) {
				bounds = append(bounds, p.parseType())
			}
		}
		out = append(out, ast.GenericParam{Name: name, Bounds: bounds})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.GT, "to close generic parameter list")
	return out
}

func (p *Parser) parseOptionalWhereClauses() []ast.WhereClause {
	if !p.match(token.KW_WHERE) {
		return nil
	}
	var out []ast.WhereClause
	for {
		name := p.expectIdent("in `where` clause")
		p.expect(token.COLON, "in `where` clause")
		bounds := []ast.Type{p.parseType()}
		for p.match(token.PLUS) {
			bounds = append(bounds, p.parseType())
		}
		out = append(out, ast.WhereClause{Param: name, Bounds: bounds})
		if !p.match(token.COMMA) {
			break
		}
	}
	return out
}

// parseParamList parses `(this, name: Type, ...)`. A leading bare `this`
// (optionally `ref this` / `ref mut this`) marks the function as a method
// and is not itself added to Params.
func (p *Parser) parseParamList() ([]ast.Param, bool) {
	p.expect(token.LPAREN, "to start parameter list")
	hasThis := false
	first := true
	var params []ast.Param
	for !p.check(token.RPAREN) && !p.atEnd() {
		if first && p.isThisParam() {
			p.consumeThisParam()
			hasThis = true
			first = false
			if !p.match(token.COMMA) {
				break
			}
			continue
		}
		first = false
		pat := p.parsePattern()
		p.expect(token.COLON, "between parameter name and type")
		ty := p.parseType()
		params = append(params, ast.Param{Pattern: pat, Type: ty})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN, "to close parameter list")
	return params, hasThis
}

func (p *Parser) isThisParam() bool {
	if p.check(token.IDENT) && p.here().Lexeme == "this" {
		return true
	}
	if p.check(token.KW_REF) {
		save := p.pos
		p.advance()
		p.match(token.KW_MUT)
		ok := p.check(token.IDENT) && p.here().Lexeme == "this"
		p.pos = save
		return ok
	}
	return false
}

func (p *Parser) consumeThisParam() {
	p.match(token.KW_REF)
	p.match(token.KW_MUT)
	p.advance() // 'this'
}

func (p *Parser) parseStructDecl(decorators []ast.Decorator, vis ast.Visibility) ast.Decl {
	start := p.advance() // 'struct'
	name := p.expectIdent("struct name")
	generics := p.parseOptionalGenericParams()
	where := p.parseOptionalWhereClauses()
	fields := p.parseFieldBlock()
	return &ast.StructDecl{
		Base: ast.At(p.spanFrom(start)), Name: name, Vis: vis, Decorators: decorators,
		Generics: generics, Where: where, Fields: fields,
	}
}

func (p *Parser) parseFieldBlock() []ast.FieldDecl {
	p.expect(token.LBRACE, "to start field list")
	var fields []ast.FieldDecl
	for !p.check(token.RBRACE) && !p.atEnd() {
		fieldVis := ast.Private
		if p.match(token.KW_PUB) {
			fieldVis = ast.Public
		}
		name := p.expectIdent("field name")
		p.expect(token.COLON, "between field name and type")
		ty := p.parseType()
		var def ast.Expr
		if p.match(token.ASSIGN) {
			def = p.parseExpr()
		}
		fields = append(fields, ast.FieldDecl{Name: name, Type: ty, Vis: fieldVis, Default: def})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE, "to close field list")
	return fields
}

func (p *Parser) parseEnumDecl(decorators []ast.Decorator, vis ast.Visibility) ast.Decl {
	start := p.advance() // 'enum'
	name := p.expectIdent("enum name")
	generics := p.parseOptionalGenericParams()
	where := p.parseOptionalWhereClauses()
	p.expect(token.LBRACE, "to start enum variant list")
	var variants []ast.EnumVariant
	for !p.check(token.RBRACE) && !p.atEnd() {
		vname := p.expectIdent("enum variant name")
		var payload []ast.Type
		if p.match(token.LPAREN) {
			for !p.check(token.RPAREN) && !p.atEnd() {
				payload = append(payload, p.parseType())
				if !p.match(token.COMMA) {
					break
				}
			}
			p.expect(token.RPAREN, "to close enum variant payload")
		}
		variants = append(variants, ast.EnumVariant{Name: vname, Payload: payload})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE, "to close enum variant list")
	return &ast.EnumDecl{
		Base: ast.At(p.spanFrom(start)), Name: name, Vis: vis, Decorators: decorators,
		Generics: generics, Where: where, Variants: variants,
	}
}

func (p *Parser) parseUnionDecl(decorators []ast.Decorator, vis ast.Visibility) ast.Decl {
	start := p.advance() // 'union'
	name := p.expectIdent("union name")
	fields := p.parseFieldBlock()
	return &ast.UnionDecl{Base: ast.At(p.spanFrom(start)), Name: name, Vis: vis, Decorators: decorators, Fields: fields}
}

func (p *Parser) parseClassDecl(decorators []ast.Decorator, vis ast.Visibility) ast.Decl {
	start := p.advance() // 'class'
	name := p.expectIdent("class name")
	generics := p.parseOptionalGenericParams()
	var extends *ast.NamedType
	if p.match(token.KW_EXTENDS) {
		extends = p.parseNamedType().(*ast.NamedType)
	}
	var implements []*ast.NamedType
	if p.match(token.KW_IMPLEMENTS) {
		implements = append(implements, p.parseNamedType().(*ast.NamedType))
		for p.match(token.COMMA) {
			implements = append(implements, p.parseNamedType().(*ast.NamedType))
		}
	}
	where := p.parseOptionalWhereClauses()
	p.expect(token.LBRACE, "to start class body")
	cd := &ast.ClassDecl{
		Name: name, Vis: vis, Decorators: decorators,
		Generics: generics, Where: where, Extends: extends, Implements: implements,
	}
	for _, d := range decorators {
		switch d.Name {
		case "abstract":
			cd.IsAbstract = true
		case "sealed":
			cd.IsSealed = true
		case "value":
			cd.IsValue = true
		case "pool":
			cd.IsPool = true
		}
	}
	for !p.check(token.RBRACE) && !p.atEnd() {
		p.parseClassMember(cd)
	}
	p.expect(token.RBRACE, "to close class body")
	cd.Base = ast.At(p.spanFrom(start))
	return cd
}

func (p *Parser) parseClassMember(cd *ast.ClassDecl) {
	memberDecorators := p.parseDecorators()
	vis := ast.Private
	if p.match(token.KW_PUB) {
		vis = ast.Public
	}
	isStatic := p.match(token.KW_STATIC)
	isVirtual := p.match(token.KW_VIRTUAL)
	isOverride := p.match(token.KW_OVERRIDE)

	switch p.here().Kind {
	case token.KW_GET, token.KW_SET:
		p.parsePropertyAccessor(cd, vis)
		return
	case token.KW_FUNC:
		fd := p.parseFuncDeclAfterKeywordFrom(memberDecorators, vis)
		fd.IsStatic = isStatic
		fd.IsVirtual = isVirtual
		fd.IsOverride = isOverride
		cd.Methods = append(cd.Methods, fd)
		return
	case token.KW_ASYNC:
		p.advance()
		p.expect(token.KW_FUNC, "after `async` in class method")
		fd := p.parseFuncDeclAfterKeyword(memberDecorators, vis, true, false)
		fd.IsStatic, fd.IsVirtual, fd.IsOverride = isStatic, isVirtual, isOverride
		cd.Methods = append(cd.Methods, fd)
		return
	}
	if isStatic {
		name := p.expectIdent("static field name")
		p.expect(token.COLON, "between static field name and type")
		ty := p.parseType()
		var def ast.Expr
		if p.match(token.ASSIGN) {
			def = p.parseExpr()
		}
		p.expect(token.SEMI, "after static field declaration")
		cd.StaticVars = append(cd.StaticVars, ast.FieldDecl{Name: name, Type: ty, Vis: vis, Default: def})
		return
	}
	name := p.expectIdent("class field name")
	p.expect(token.COLON, "between field name and type")
	ty := p.parseType()
	var def ast.Expr
	if p.match(token.ASSIGN) {
		def = p.parseExpr()
	}
	p.expect(token.SEMI, "after class field declaration")
	cd.Fields = append(cd.Fields, ast.FieldDecl{Name: name, Type: ty, Vis: vis, Default: def})
}

// parseFuncDeclAfterKeywordFrom consumes the `func` keyword itself before
// delegating, used where the caller has already peeled off `static` /
// `virtual` / `override` modifiers ahead of it.
func (p *Parser) parseFuncDeclAfterKeywordFrom(decorators []ast.Decorator, vis ast.Visibility) *ast.FuncDecl {
	p.advance() // 'func'
	return p.parseFuncDeclAfterKeyword(decorators, vis, false, false)
}

func (p *Parser) parsePropertyAccessor(cd *ast.ClassDecl, vis ast.Visibility) {
	isGet := p.check(token.KW_GET)
	p.advance() // get|set
	name := p.expectIdent("property name")
	p.expect(token.COLON, "between property name and type")
	ty := p.parseType()
	body := p.parseBlockExpr("").(*ast.BlockExpr)

	for i := range cd.Properties {
		if cd.Properties[i].Name == name {
			if isGet {
				cd.Properties[i].Get = body
			} else {
				cd.Properties[i].Set = body
			}
			return
		}
	}
	prop := ast.PropertyDecl{Name: name, Type: ty}
	if isGet {
		prop.Get = body
	} else {
		prop.Set = body
	}
	cd.Properties = append(cd.Properties, prop)
}

func (p *Parser) parseTraitDecl(vis ast.Visibility) ast.Decl {
	start := p.advance() // 'behavior'
	name := p.expectIdent("behavior name")
	generics := p.parseOptionalGenericParams()
	var super []*ast.NamedType
	if p.match(token.COLON) {
		super = append(super, p.parseNamedType().(*ast.NamedType))
		for p.match(token.PLUS) {
			super = append(super, p.parseNamedType().(*ast.NamedType))
		}
	}
	p.expect(token.LBRACE, "to start behavior body")
	td := &ast.TraitDecl{Base: ast.At(start.Span), Name: name, Vis: vis, Generics: generics, SuperTraits: super}
	for !p.check(token.RBRACE) && !p.atEnd() {
		if p.match(token.KW_TYPE) {
			aname := p.expectIdent("associated type name")
			var bounds []ast.Type
			if p.match(token.COLON) {
				bounds = append(bounds, p.parseType())
				for p.match(token.PLUS) {
					bounds = append(bounds, p.parseType())
				}
			}
			p.expect(token.SEMI, "after associated type declaration")
			td.AssociatedTypes = append(td.AssociatedTypes, ast.AssociatedType{Name: aname, Bounds: bounds})
			continue
		}
		decorators := p.parseDecorators()
		p.expect(token.KW_FUNC, "to start a behavior method signature")
		fd := p.parseFuncDeclAfterKeyword(decorators, ast.Public, false, false)
		td.Methods = append(td.Methods, fd)
	}
	p.expect(token.RBRACE, "to close behavior body")
	td.Base = ast.At(p.spanFrom(start))
	return td
}

// parseImplDecl parses `impl [Generics] [Trait for] Type [where ...] { ... }`
// per spec.md §4's impl grammar. Since both the trait name and the self
// type are parsed as the same NamedType production, the `for` keyword is
// what disambiguates `impl Trait for Type` from a bare `impl Type`.
func (p *Parser) parseImplDecl() ast.Decl {
	start := p.advance() // 'impl'
	generics := p.parseOptionalGenericParams()
	first := p.parseType()
	var trait *ast.NamedType
	var selfType ast.Type
	if p.match(token.KW_FOR) {
		nt, ok := first.(*ast.NamedType)
		if ok {
			trait = nt
		}
		selfType = p.parseType()
	} else {
		selfType = first
	}
	where := p.parseOptionalWhereClauses()
	p.expect(token.LBRACE, "to start impl body")
	id := &ast.ImplDecl{Base: ast.At(start.Span), Generics: generics, Trait: trait, SelfType: selfType, Where: where}
	for !p.check(token.RBRACE) && !p.atEnd() {
		decorators := p.parseDecorators()
		vis := ast.Private
		if p.match(token.KW_PUB) {
			vis = ast.Public
		}
		p.expect(token.KW_FUNC, "to start an impl method")
		fd := p.parseFuncDeclAfterKeyword(decorators, vis, false, false)
		id.Methods = append(id.Methods, fd)
	}
	p.expect(token.RBRACE, "to close impl body")
	id.Base = ast.At(p.spanFrom(start))
	return id
}

func (p *Parser) parseTypeAliasDecl(vis ast.Visibility) ast.Decl {
	start := p.advance() // 'type'
	name := p.expectIdent("type alias name")
	generics := p.parseOptionalGenericParams()
	p.expect(token.ASSIGN, "in type alias")
	target := p.parseType()
	p.expect(token.SEMI, "after type alias")
	return &ast.TypeAliasDecl{Base: ast.At(p.spanFrom(start)), Name: name, Vis: vis, Generics: generics, Target: target}
}

func (p *Parser) parseConstDecl(vis ast.Visibility) ast.Decl {
	start := p.advance() // 'const'
	name := p.expectIdent("const name")
	p.expect(token.COLON, "between const name and type")
	ty := p.parseType()
	p.expect(token.ASSIGN, "in const declaration")
	value := p.parseExpr()
	p.expect(token.SEMI, "after const declaration")
	return &ast.ConstDecl{Base: ast.At(p.spanFrom(start)), Name: name, Vis: vis, Type: ty, Value: value}
}

func (p *Parser) parseUseDecl() ast.Decl {
	start := p.advance() // 'use'
	path := []string{p.expectIdent("in `use` path")}
	for p.check(token.COLONCOLON) {
		p.advance()
		path = append(path, p.expectIdent("after '::' in `use` path"))
	}
	alias := ""
	if p.match(token.KW_AS) {
		alias = p.expectIdent("after `as` in `use` declaration")
	}
	p.expect(token.SEMI, "after `use` declaration")
	return &ast.UseDecl{Base: ast.At(p.spanFrom(start)), Path: path, Alias: alias}
}

func (p *Parser) parseModDecl() ast.Decl {
	start := p.advance() // 'mod'
	name := p.expectIdent("module name")
	if p.match(token.SEMI) {
		return &ast.ModDecl{Base: ast.At(p.spanFrom(start)), Name: name}
	}
	p.expect(token.LBRACE, "to start inline module body")
	var decls []ast.Decl
	for !p.check(token.RBRACE) && !p.atEnd() {
		before := p.pos
		if d := p.parseDecl(); d != nil {
			decls = append(decls, d)
		}
		if p.pos == before {
			p.advance()
		}
	}
	p.expect(token.RBRACE, "to close inline module body")
	return &ast.ModDecl{Base: ast.At(p.spanFrom(start)), Name: name, Decls: decls}
}
