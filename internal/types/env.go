package types

// FuncSig describes one function's checked signature, shared by free
// functions, trait methods, and class methods.
type FuncSig struct {
	Name       string
	Generics   []string
	Params     []Type
	ParamNames []string
	Ret        Type
	IsAsync    bool
	IsLowlevel bool
	HasBody    bool

	// Allocates mirrors ast.FuncDecl.Allocates(): true when this function
	// is decorated `@allocates` and returns a heap string the caller must
	// eventually free, replacing the teacher's hand-maintained
	// allocating-function name table (see DESIGN.md Open Question 3).
	Allocates bool

	// Class-method specifics.
	IsVirtual  bool
	IsOverride bool
	IsStatic   bool
	HasThis    bool
}

// StructField describes one field of a struct/class layout.
type StructField struct {
	Name    string
	Type    Type
	Public  bool
	Default bool // true if a default_expr is present (checked elsewhere)
}

// StructInfo is the checked shape of a `struct` declaration.
type StructInfo struct {
	Name       string
	ModulePath string
	TypeParams []string
	Fields     []StructField
}

// EnumVariantInfo is one checked enum variant.
type EnumVariantInfo struct {
	Name    string
	Payload []Type
}

// EnumInfo is the checked shape of an `enum` declaration.
type EnumInfo struct {
	Name       string
	ModulePath string
	TypeParams []string
	Variants   []EnumVariantInfo
}

// UnionInfo is the checked shape of a `union` declaration.
type UnionInfo struct {
	Name       string
	ModulePath string
	Fields     []StructField
}

// ClassInfo is the checked shape of a `class` declaration, including
// inherited fields/methods flattened in per spec.md §4.4.4's layout rule.
type ClassInfo struct {
	Name         string
	ModulePath   string
	TypeParams   []string
	Base         string // Empty if no `extends`.
	Interfaces   []string
	Fields       []StructField // Includes inherited fields, parent-first.
	Methods      map[string]*FuncSig
	IsAbstract   bool
	IsSealed     bool
	IsValueClass bool
	IsPool       bool
}

// TraitInfo is the checked shape of a `behavior` declaration.
type TraitInfo struct {
	Name            string
	Generics        []string
	Methods         map[string]*FuncSig
	HasDefaultBody  map[string]bool
	AssociatedTypes []string
	SuperTraits     []string
}

// ImplRecord is one `impl [Trait for] Type` block.
type ImplRecord struct {
	Trait      string // Empty for an inherent impl.
	SelfType   Type
	SelfName   string // Name of the struct/enum/class the impl targets.
	Generics   []string
	Methods    map[string]*FuncSig
}

// ModuleView is what the checker exposes to `use` resolution: the public
// surface of one compiled module.
type ModuleView struct {
	Path      string
	Functions map[string]*FuncSig
	Structs   map[string]*StructInfo
	Enums     map[string]*EnumInfo
	Classes   map[string]*ClassInfo
	Traits    map[string]*TraitInfo
	Consts    map[string]Type
}

// Env is the type environment threaded from the checker to the IR
// generator, per spec.md §3 "Type environment". Maps are keyed by bare
// name within one module; cross-module lookups go through ModuleRegistry,
// which additionally qualifies by module path to resolve the Open
// Question about colliding generic base names across modules.
type Env struct {
	Functions map[string]*FuncSig
	Structs   map[string]*StructInfo
	Enums     map[string]*EnumInfo
	Unions    map[string]*UnionInfo
	Classes   map[string]*ClassInfo
	Traits    map[string]*TraitInfo
	Impls     []*ImplRecord
	Consts    map[string]Type

	ModuleRegistry map[string]*ModuleView
}

// NewEnv returns an empty, ready-to-populate type environment.
func NewEnv() *Env {
	return &Env{
		Functions:      make(map[string]*FuncSig),
		Structs:        make(map[string]*StructInfo),
		Enums:          make(map[string]*EnumInfo),
		Unions:         make(map[string]*UnionInfo),
		Classes:        make(map[string]*ClassInfo),
		Traits:         make(map[string]*TraitInfo),
		Consts:         make(map[string]Type),
		ModuleRegistry: make(map[string]*ModuleView),
	}
}

// FindImpl returns the impl of trait (empty string for inherent) on a
// value whose type-constructor name is selfName. When trait is non-empty
// and no impl of it exists, an inherent impl of selfName is returned
// instead, or nil if there is none.
func (e *Env) FindImpl(trait, selfName string) *ImplRecord {
	var inherent *ImplRecord
	for _, im := range e.Impls {
		if im.SelfName != selfName {
			continue
		}
		if trait == "" && im.Trait == "" {
			return im
		}
		if im.Trait == trait {
			return im
		}
		if im.Trait == "" {
			inherent = im
		}
	}
	return inherent
}

// ResolveMethod looks up method `name` on the type-constructor selfName,
// searching inherent impls first, then any trait impl reachable from it,
// then (if it's a class) the class's own declared methods and its base
// chain, per §4.4.3/§4.4.4.
func (e *Env) ResolveMethod(selfName, name string) *FuncSig {
	for _, inherentPass := range []bool{true, false} {
		for _, im := range e.Impls {
			if im.SelfName != selfName || (im.Trait == "") != inherentPass {
				continue
			}
			if fs, ok := im.Methods[name]; ok {
				return fs
			}
		}
	}
	cur := selfName
	for cur != "" {
		ci, ok := e.Classes[cur]
		if !ok {
			break
		}
		if fs, ok := ci.Methods[name]; ok {
			return fs
		}
		cur = ci.Base
	}
	return nil
}
