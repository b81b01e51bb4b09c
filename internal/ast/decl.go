package ast

// Decl is the declaration sum type from spec.md §3: Func | Struct | Enum |
// Union | Class | Trait (Behavior) | Impl | TypeAlias | Const | Use | Mod.
type Decl interface {
	Node
	declNode()
}

// GenericParam is one entry in a generic binder, e.g. `T` or `T: Ord`.
type GenericParam struct {
	Name   string
	Bounds []Type // Trait bounds.
}

// WhereClause constrains a generic parameter beyond its binder bounds.
type WhereClause struct {
	Param  string
	Bounds []Type
}

// Param is one function parameter: a pattern (usually just an identifier)
// with a declared type.
type Param struct {
	Pattern Pattern
	Type    Type
}

type FuncDecl struct {
	Base
	Name       string
	Vis        Visibility
	Decorators []Decorator
	IsAsync    bool
	IsLowlevel bool
	Generics   []GenericParam
	Params     []Param
	Ret        Type // nil => Unit.
	Where      []WhereClause
	Body       *BlockExpr // nil for a trait method signature without a default body.

	// Class-method specifics; zero values for free functions.
	IsVirtual  bool
	IsOverride bool
	IsStatic   bool
	HasThis    bool
}

// Allocates reports whether this function is decorated `@allocates`,
// i.e. returns a freshly heap-allocated Str that the caller must free. This
// replaces the teacher's hand-maintained allocating-function name table
// with an explicit, type-checked decorator (see SPEC_FULL.md §9).
func (f *FuncDecl) Allocates() bool { return hasDecorator(f.Decorators, "allocates") }

type FieldDecl struct {
	Name    string
	Type    Type
	Vis     Visibility
	Default Expr // nil if none.
}

type StructDecl struct {
	Base
	Name       string
	Vis        Visibility
	Decorators []Decorator
	Generics   []GenericParam
	Where      []WhereClause
	Fields     []FieldDecl
}

type EnumVariant struct {
	Name    string
	Payload []Type // Empty for a unit variant.
}

type EnumDecl struct {
	Base
	Name       string
	Vis        Visibility
	Decorators []Decorator
	Generics   []GenericParam
	Where      []WhereClause
	Variants   []EnumVariant
}

type UnionDecl struct {
	Base
	Name       string
	Vis        Visibility
	Decorators []Decorator
	Fields     []FieldDecl
}

// PropertyDecl models a class `get`/`set` property accessor pair.
type PropertyDecl struct {
	Name string
	Type Type
	Get  *BlockExpr
	Set  *BlockExpr // nil if read-only; its implicit parameter is named `value`.
}

type ClassDecl struct {
	Base
	Name       string
	Vis        Visibility
	Decorators []Decorator // @abstract | @sealed | @value | @pool
	Generics   []GenericParam
	Where      []WhereClause
	Extends    *NamedType   // nil if no base class.
	Implements []*NamedType // behaviors implemented.
	Fields     []FieldDecl
	Properties []PropertyDecl
	Methods    []*FuncDecl
	StaticVars []FieldDecl

	// Redundant accessors so check/codegen don't re-scan Decorators everywhere.
	IsAbstract bool
	IsSealed   bool
	IsValue    bool
	IsPool     bool
}

// AssociatedType is a behavior's `type Item` declaration.
type AssociatedType struct {
	Name   string
	Bounds []Type
}

// TraitDecl is TML's `behavior`, per the glossary.
type TraitDecl struct {
	Base
	Name            string
	Vis             Visibility
	Generics        []GenericParam
	SuperTraits     []*NamedType
	AssociatedTypes []AssociatedType
	Methods         []*FuncDecl // Body non-nil => default method.
}

type ImplDecl struct {
	Base
	Generics []GenericParam
	Trait    *NamedType // nil for an inherent `impl Type { ... }`.
	SelfType Type
	Where    []WhereClause
	Methods  []*FuncDecl
}

type TypeAliasDecl struct {
	Base
	Name     string
	Vis      Visibility
	Generics []GenericParam
	Target   Type
}

type ConstDecl struct {
	Base
	Name  string
	Vis   Visibility
	Type  Type
	Value Expr
}

type UseDecl struct {
	Base
	Path  []string
	Alias string // Empty if none.
}

type ModDecl struct {
	Base
	Name  string
	Decls []Decl // Populated for an inline `mod name { ... }`; nil for `mod name;`.
}

func (*FuncDecl) declNode()      {}
func (*StructDecl) declNode()    {}
func (*EnumDecl) declNode()      {}
func (*UnionDecl) declNode()     {}
func (*ClassDecl) declNode()     {}
func (*TraitDecl) declNode()     {}
func (*ImplDecl) declNode()      {}
func (*TypeAliasDecl) declNode() {}
func (*ConstDecl) declNode()     {}
func (*UseDecl) declNode()       {}
func (*ModDecl) declNode()       {}
