package codegen

import "fmt"

// Error codes for the generator, per spec.md §4.5.10's C001-C035 taxonomy.
// As with internal/check's error table, this names a subset of the range
// rather than all of it. CInvalidMono and CMissingArg are declared but no
// lowering path raises them.
const (
	CUnresolvedType     = "C001" // a semantic type reached codegen with no lowering.
	CUnknownFunction    = "C002" // call to a function with no declared or instantiated body.
	CUnknownStruct      = "C003" // struct literal/field access against an unregistered layout.
	CUnknownVariant     = "C004" // enum constructor/pattern against an unregistered variant.
	CBadArity           = "C005" // a binding with neither an initializer nor a declared type.
	CNotAPlace          = "C006" // assignment/borrow target has no addressable alloca.
	CUnknownMethod      = "C007" // method resolution failed at codegen despite passing checking.
	CInvalidMono        = "C008" // monomorphization substitution produced an inconsistent type.
	CMissingVtableSlot  = "C009" // virtual dispatch found no vtable slot for a method name.
	CUnsupportedPattern = "C010" // a `when` pattern shape this generator does not lower.
	CBadCast            = "C011" // `as` cast between LLVM types this generator cannot bridge.
	CMissingArg         = "C015" // a known-shape builtin method call missing an expected argument.
)

// Error is a structured IR-generation failure, per spec.md §4.5.10's
// LLVMGenError{message, span, code}. Most codes here indicate a case the
// checker should have rejected first; the generator fails fast rather than
// emit malformed IR.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func errf(code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
