// Package types implements TML's semantic type representations and the
// type environment the checker populates and the IR generator consumes,
// per spec.md §3 "Semantic types" / "Type environment". Semantic types are
// a second, separate Go sum type from internal/ast's syntactic Type —
// deliberately so: the syntactic tree is what the parser produced from
// source text, while semantic types carry resolved module paths, trait
// objects promoted from bare names, and unification variables that have
// no syntactic counterpart.
package types

import "fmt"

// Type is the semantic type sum type: Primitive | Named | Ref | Ptr |
// Array | Slice | Tuple | Func | Closure | Class | DynBehavior | TypeVar.
type Type interface {
	typeKind() string
	String() string
}

// Primitive enumerates TML's built-in scalar kinds.
type Primitive int

const (
	I8 Primitive = iota
	I16
	I32
	I64
	I128
	U8
	U16
	U32
	U64
	U128
	F32
	F64
	Bool
	Char
	Str
	Unit
)

var primNames = map[Primitive]string{
	I8: "I8", I16: "I16", I32: "I32", I64: "I64", I128: "I128",
	U8: "U8", U16: "U16", U32: "U32", U64: "U64", U128: "U128",
	F32: "F32", F64: "F64", Bool: "Bool", Char: "Char", Str: "Str", Unit: "Unit",
}

func (p Primitive) typeKind() string { return "Primitive" }
func (p Primitive) String() string   { return primNames[p] }

// IsInteger reports whether p is one of the fixed-width integer kinds.
func (p Primitive) IsInteger() bool {
	switch p {
	case I8, I16, I32, I64, I128, U8, U16, U32, U64, U128:
		return true
	}
	return false
}

// IsUnsigned reports whether p is an unsigned integer kind.
func (p Primitive) IsUnsigned() bool {
	switch p {
	case U8, U16, U32, U64, U128:
		return true
	}
	return false
}

// IsFloat reports whether p is a floating-point kind.
func (p Primitive) IsFloat() bool { return p == F32 || p == F64 }

// BitWidth returns the LLVM integer bit width for an integer primitive.
func (p Primitive) BitWidth() int {
	switch p {
	case I8, U8, Bool, Char:
		return 8
	case I16, U16:
		return 16
	case I32, U32:
		return 32
	case I64, U64:
		return 64
	case I128, U128:
		return 128
	}
	return 0
}

// Named is a reference to a user struct/enum/union declaration,
// module-path-qualified to resolve the "which module's Box<T>" Open
// Question (see DESIGN.md).
type Named struct {
	Name       string
	ModulePath string
	TypeArgs   []Type
}

func (n *Named) typeKind() string { return "Named" }
func (n *Named) String() string   { return mangleDisplay(n.Name, n.TypeArgs) }

type Ref struct {
	Mut      bool
	Inner    Type
	Lifetime string
}

func (r *Ref) typeKind() string { return "Ref" }
func (r *Ref) String() string {
	if r.Mut {
		return "&mut " + r.Inner.String()
	}
	return "&" + r.Inner.String()
}

type Ptr struct {
	Mut   bool
	Inner Type
}

func (p *Ptr) typeKind() string { return "Ptr" }
func (p *Ptr) String() string {
	if p.Mut {
		return "ptr mut " + p.Inner.String()
	}
	return "ptr " + p.Inner.String()
}

type Array struct {
	Elem Type
	Size int64
}

func (a *Array) typeKind() string { return "Array" }
func (a *Array) String() string   { return fmt.Sprintf("[%s; %d]", a.Elem, a.Size) }

type Slice struct{ Elem Type }

func (s *Slice) typeKind() string { return "Slice" }
func (s *Slice) String() string   { return "[" + s.Elem.String() + "]" }

type Tuple struct{ Elems []Type }

func (t *Tuple) typeKind() string { return "Tuple" }
func (t *Tuple) String() string {
	s := "("
	for i, e := range t.Elems {
		if i > 0 {
			s += ", "
		}
		s += e.String()
	}
	return s + ")"
}

type Func struct {
	Params  []Type
	Ret     Type
	IsAsync bool
}

func (f *Func) typeKind() string { return "Func" }
func (f *Func) String() string {
	s := "func("
	for i, p := range f.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	s += ")"
	if f.Ret != nil {
		s += " -> " + f.Ret.String()
	}
	return s
}

// Closure is Func plus its capture environment's element types, used to
// distinguish a thin function pointer from a fat `{fn, env}` closure value
// at the semantic level (per spec.md §4.5.2/§4.5.5).
type Closure struct {
	Params   []Type
	Ret      Type
	Captures []Type
}

func (c *Closure) typeKind() string { return "Closure" }
func (c *Closure) String() string   { return "closure(...)" }

// Class refers to a user class declaration.
type Class struct {
	Name       string
	ModulePath string
	TypeArgs   []Type
}

func (c *Class) typeKind() string { return "Class" }
func (c *Class) String() string   { return mangleDisplay(c.Name, c.TypeArgs) }

// DynBehavior is a dynamically dispatched trait object, produced by the
// checker when a NamedType resolves to a behavior rather than a concrete
// struct/enum/class — see DESIGN.md's parser note on why there is no
// syntactic Dyn type.
type DynBehavior struct {
	Trait    string
	TypeArgs []Type
}

func (d *DynBehavior) typeKind() string { return "DynBehavior" }
func (d *DynBehavior) String() string   { return "dyn " + mangleDisplay(d.Trait, d.TypeArgs) }

// TypeVar is a Hindley-Milner unification variable.
type TypeVar struct{ ID int }

func (t *TypeVar) typeKind() string { return "TypeVar" }
func (t *TypeVar) String() string   { return fmt.Sprintf("?%d", t.ID) }

func mangleDisplay(name string, args []Type) string {
	if len(args) == 0 {
		return name
	}
	s := name + "<"
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + ">"
}

// Equal reports structural equality after substitution, used by unify and
// by the exhaustiveness/override-matching checks.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch av := a.(type) {
	case Primitive:
		bv, ok := b.(Primitive)
		return ok && av == bv
	case *Named:
		bv, ok := b.(*Named)
		return ok && av.Name == bv.Name && av.ModulePath == bv.ModulePath && equalSlice(av.TypeArgs, bv.TypeArgs)
	case *Ref:
		bv, ok := b.(*Ref)
		return ok && av.Mut == bv.Mut && Equal(av.Inner, bv.Inner)
	case *Ptr:
		bv, ok := b.(*Ptr)
		return ok && av.Mut == bv.Mut && Equal(av.Inner, bv.Inner)
	case *Array:
		bv, ok := b.(*Array)
		return ok && av.Size == bv.Size && Equal(av.Elem, bv.Elem)
	case *Slice:
		bv, ok := b.(*Slice)
		return ok && Equal(av.Elem, bv.Elem)
	case *Tuple:
		bv, ok := b.(*Tuple)
		return ok && equalSlice(av.Elems, bv.Elems)
	case *Func:
		bv, ok := b.(*Func)
		return ok && Equal(av.Ret, bv.Ret) && equalSlice(av.Params, bv.Params)
	case *Closure:
		bv, ok := b.(*Closure)
		return ok && Equal(av.Ret, bv.Ret) && equalSlice(av.Params, bv.Params)
	case *Class:
		bv, ok := b.(*Class)
		return ok && av.Name == bv.Name && av.ModulePath == bv.ModulePath && equalSlice(av.TypeArgs, bv.TypeArgs)
	case *DynBehavior:
		bv, ok := b.(*DynBehavior)
		return ok && av.Trait == bv.Trait && equalSlice(av.TypeArgs, bv.TypeArgs)
	case *TypeVar:
		bv, ok := b.(*TypeVar)
		return ok && av.ID == bv.ID
	}
	return false
}

func equalSlice(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// IsCopy reports whether a value of type t is implicitly copyable rather
// than move-tracked by the borrow checker — primitives, references and raw
// pointers are Copy, as are tuples of Copy elements; everything else (structs/enums/classes/slices/tuples containing a
// non-Copy element) is move-by-default per spec.md §4.4.5.
func IsCopy(t Type) bool {
	switch v := t.(type) {
	case Primitive:
		return true
	case *Ref:
		return true
	case *Ptr:
		return true
	case *Tuple:
		for _, e := range v.Elems {
			if !IsCopy(e) {
				return false
			}
		}
		return true
	}
	return false
}
