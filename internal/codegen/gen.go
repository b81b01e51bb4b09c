// Package codegen lowers a checked TML module into a textual LLVM IR
// module, per spec.md §4.5. It depends directly on tinygo.org/x/go-llvm —
// the teacher's own domain dependency (ir/llvm/transform.go) — building a
// real in-memory LLVM module via the C++ API bindings rather than
// formatting IR text by hand. The one deliberate deviation from the
// teacher: generation stops at `Module.String()`'s textual disassembly
// rather than compiling through a TargetMachine to an object file, per
// spec.md §6.2's "textual LLVM IR" contract (see DESIGN.md).
package codegen

import (
	"sort"
	"sync"

	"tinygo.org/x/go-llvm"

	"tml/internal/ast"
	"tml/internal/mangle"
	"tml/internal/types"
)

// symTab is a mutex-guarded name -> llvm.Value map, directly generalizing
// the teacher's ir/llvm/transform.go symTab to hold both globals and
// per-scope locals.
type symTab struct {
	mu sync.RWMutex
	m  map[string]llvm.Value
}

func newSymTab() *symTab { return &symTab{m: make(map[string]llvm.Value, 16)} }

func (s *symTab) get(name string) (llvm.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[name]
	return v, ok
}

func (s *symTab) set(name string, v llvm.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[name] = v
}

// local describes one stack-allocated binding reachable in the current
// function: its alloca, its semantic type (for auto-deref/field lookup),
// and whether it holds a capturing-closure fat pointer (§4.5.6).
type local struct {
	alloca           llvm.Value
	semType          types.Type
	isCapturingClosure bool
}

// Generator holds all state threaded through lowering one module: the
// LLVM context/builder/module triple, the checked type environment,
// layout/function/global caches, monomorphization queues, and the current
// function's scope stack of locals.
type Generator struct {
	ctx     llvm.Context
	builder llvm.Builder
	mod     llvm.Module
	env     *types.Env

	i64       llvm.Type
	f64       llvm.Type
	opaquePtr llvm.Type

	globals *symTab // Global functions and variables, keyed by mangled name.
	layouts map[string]llvm.Type
	strings *symTab // Interned string-literal globals, keyed by literal content.

	funcEntries map[string]funcEntry // Deferred generic function/method declarations, keyed by mangled name.

	scopes []*symTab // Local-variable scope stack; scopes[0] holds parameters.
	locals map[string]*local

	fn         llvm.Value
	fnRet      types.Type
	terminated bool

	loopExits    []llvm.BasicBlock
	loopContinue []llvm.BasicBlock
	loopLabels   []string

	strCounter int
	coverage   bool
	covCounter int

	mono *monoState
}

// New returns a Generator ready to lower decls registered in env into a
// module named modName.
func New(modName string, env *types.Env, coverage bool) *Generator {
	ctx := llvm.NewContext()
	g := &Generator{
		ctx:       ctx,
		builder:   ctx.NewBuilder(),
		mod:       ctx.NewModule(modName),
		env:       env,
		i64:       llvm.Int64Type(),
		f64:       llvm.DoubleType(),
		opaquePtr: llvm.PointerType(llvm.Int8Type(), 0),
		globals:   newSymTab(),
		layouts:   make(map[string]llvm.Type),
		strings:   newSymTab(),
		locals:    make(map[string]*local),
		coverage:  coverage,
		mono:      newMonoState(),
	}
	return g
}

// Dispose releases the underlying LLVM context and builder. Callers that
// only need the textual IR from Generate should call this once done.
func (g *Generator) Dispose() {
	g.builder.Dispose()
	g.mod.Dispose()
	g.ctx.Dispose()
}

// Generate lowers every declaration in mod, drains the monomorphization
// queues to a fixed point (§4.5.4), synthesizes @main, and returns the
// module's textual LLVM IR.
func (g *Generator) Generate(mod *ast.Module) (string, error) {
	var funcs []funcTodo
	for _, d := range mod.Decls {
		fs, err := g.declareTop(d)
		if err != nil {
			return "", err
		}
		funcs = append(funcs, fs...)
	}

	for _, ft := range funcs {
		if err := g.lowerFuncBody(ft.fn, ft.decl, ft.owner, ft.selfType, ft.fs); err != nil {
			return "", err
		}
	}

	// Emit every class's vtable eagerly, not only the ones a `new`
	// expression happens to construct: spec.md §6.2 requires vtables for
	// every class that needs one to precede @main regardless of whether
	// the module ever instantiates that exact class (a base class may
	// only ever appear as a static type, never directly constructed).
	// Sorted for the determinism §5 requires of map-keyed emission.
	var classNames []string
	for name := range g.env.Classes {
		classNames = append(classNames, name)
	}
	sort.Strings(classNames)
	for _, name := range classNames {
		ci := g.env.Classes[name]
		if g.classNeedsVtable(ci) {
			g.vtableGlobal(ci)
		}
	}

	// Drain monomorphization: instantiating one generic may reference
	// another not yet emitted, per §4.5.4 step 3.
	for {
		job, ok := g.mono.pop()
		if !ok {
			break
		}
		if err := g.instantiate(job); err != nil {
			return "", err
		}
	}

	if err := g.genMain(mod); err != nil {
		return "", err
	}

	return g.mod.String(), nil
}

type funcTodo struct {
	fn       llvm.Value
	decl     *ast.FuncDecl
	owner    *types.ClassInfo
	selfType types.Type
	fs       *types.FuncSig
}

// mangledFuncName computes a function/method's emitted symbol name. A
// user `main` is special-cased to `tml_main` per spec.md §6.2's "calls
// user @tml_main()" contract, freeing the real `main` symbol for the
// generator's own synthesized entry point.
func mangledFuncName(owner, name string, typeArgs []types.Type) string {
	base := name
	if owner != "" {
		base = owner + "$" + name
	}
	if base == "main" {
		return "tml_main"
	}
	if len(typeArgs) == 0 {
		return base
	}
	return mangle.Mangle(base, mangleTypeArgs(typeArgs))
}
