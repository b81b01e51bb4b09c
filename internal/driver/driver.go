package driver

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tml/internal/ast"
	"tml/internal/check"
	"tml/internal/codegen"
	"tml/internal/diag"
	"tml/internal/lexer"
	"tml/internal/parser"
	"tml/internal/source"
	"tml/internal/token"
	"tml/internal/types"
)

// stdinReadTimeout bounds how long a command with no --src waits for input
// on stdin before giving up, mirroring the teacher's util.ReadSource.
const stdinReadTimeout = 500 * time.Millisecond

// Driver owns the pipeline's shared, cross-compilation-unit state: the
// file set every stage borrows spans from, and the type environment's
// module registry that later translation units resolve `use` against. A
// fresh Driver should be built per invocation of the CLI (per spec.md §5,
// the module registry is shared read-only across checker and codegen
// within one compilation, never across compilations).
type Driver struct {
	Files *source.FileSet
	Env   *types.Env
	Cache *ObjectCache

	// checkMu serializes CompileAll's layered check phase: declarePass/
	// collectPass mutate the shared Env's plain (non-concurrent-safe) maps
	// directly, so each unit's whole CheckModule call runs under this lock
	// and units within one layer are checked one at a time.
	checkMu sync.Mutex
}

// New returns a Driver ready to compile one or more translation units.
func New() *Driver {
	return &Driver{
		Files: source.NewFileSet(),
		Env:   types.NewEnv(),
		Cache: NewObjectCache(),
	}
}

// LexResult is the outcome of the `lex` command.
type LexResult struct {
	Tokens []token.Token
	Bag    *diag.Bag
}

// ParseResult is the outcome of the `parse` command.
type ParseResult struct {
	Module *ast.Module
	Bag    *diag.Bag
}

// CheckResult is the outcome of the `check` command.
type CheckResult struct {
	Module *ast.Module
	Bag    *diag.Bag
}

// BuildResult is the outcome of the `build` command.
type BuildResult struct {
	IR  string
	Bag *diag.Bag
}

// RunResult is the outcome of the `run` command. Actually executing the
// compiled program is an external collaborator's job (the CLI layer's
// linker + exec step, per spec.md §6.1's "Run is a non-goal stub"); the
// core only hands back the IR text and the `.ll` path derived from the
// source file name; cmd/tmlc writes the IR to that path.
type RunResult struct {
	IRPath string
	IR     string
	Bag    *diag.Bag
}

// loadFile reads path into the driver's shared FileSet, recording an E001
// diagnostic (source errors taxonomy, spec.md §7) instead of returning a
// bare error so every command funnels failures through the same Bag the
// caller already knows how to render. An empty path reads one program from
// stdin instead, so `tmlc build < prog.tml` works without naming a file.
func (d *Driver) loadFile(path string, bag *diag.Bag) (*source.File, bool) {
	if path == "" {
		text, err := readStdin()
		if err != nil {
			bag.Add(diag.Diagnostic{
				Severity: diag.Error,
				Code:     "E001",
				Message:  "cannot read source from stdin: " + err.Error(),
			})
			return nil, false
		}
		id := d.Files.AddFile("<stdin>", text)
		return d.Files.File(id), true
	}

	id, err := d.Files.LoadFile(path)
	if err != nil {
		bag.Add(diag.Diagnostic{
			Severity: diag.Error,
			Code:     "E001",
			Message:  "cannot read source file " + path + ": " + err.Error(),
		})
		return nil, false
	}
	return d.Files.File(id), true
}

// readStdin waits briefly for a program piped into stdin, generalizing the
// teacher's util.ReadSource stdin branch from VSL's single-source CLI to
// every tmlc command that takes an optional --src.
func readStdin() (string, error) {
	c := make(chan string, 1)
	cerr := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		text, err := reader.ReadString(0)
		if err != nil && len(text) == 0 {
			cerr <- err
			return
		}
		c <- text
	}()

	select {
	case <-time.After(stdinReadTimeout):
		return "", errors.New("expected input from stdin, got none")
	case err := <-cerr:
		return "", err
	case text := <-c:
		return text, nil
	}
}

// Lex implements the `lex FILE` command: scans path and returns its token
// stream plus any lexical diagnostics.
func (d *Driver) Lex(opt Options) (*LexResult, error) {
	bag := diag.NewBag()
	f, ok := d.loadFile(opt.Src, bag)
	if !ok {
		return &LexResult{Bag: bag}, nil
	}
	toks := lexer.Lex(f, bag)
	return &LexResult{Tokens: toks, Bag: bag}, nil
}

// ParseOnly implements the `parse FILE` command: lexes then parses path,
// without running the type checker.
func (d *Driver) ParseOnly(opt Options) (*ParseResult, error) {
	bag := diag.NewBag()
	f, ok := d.loadFile(opt.Src, bag)
	if !ok {
		return &ParseResult{Bag: bag}, nil
	}
	toks := lexer.Lex(f, bag)
	mod := parser.Parse(f, toks, bag)
	return &ParseResult{Module: mod, Bag: bag}, nil
}

// Check implements the `check FILE` command: runs the full pipeline
// through the type checker and reports whichever stage first produced
// errors (lex/parse errors suppress checking, per spec.md §7's
// "errors suppress successor stages").
func (d *Driver) Check(opt Options) (*CheckResult, error) {
	bag := diag.NewBag()
	f, ok := d.loadFile(opt.Src, bag)
	if !ok {
		return &CheckResult{Bag: bag}, nil
	}
	toks := lexer.Lex(f, bag)
	if bag.HasErrors() {
		return &CheckResult{Bag: bag}, nil
	}
	mod := parser.Parse(f, toks, bag)
	if bag.HasErrors() {
		return &CheckResult{Module: mod, Bag: bag}, nil
	}
	modulePath := modulePathOf(f.Path)
	c := check.New(d.Env, bag, modulePath)
	c.CheckModule(mod)
	d.registerModule(modulePath, mod)
	return &CheckResult{Module: mod, Bag: bag}, nil
}

// Build implements the `build FILE` command: runs check then lowers to
// textual LLVM IR, per spec.md §6.2. ObjectCache dedupes repeat builds of
// the same file content unless --no-cache is given.
func (d *Driver) Build(opt Options) (*BuildResult, error) {
	bag := diag.NewBag()
	f, ok := d.loadFile(opt.Src, bag)
	if !ok {
		return &BuildResult{Bag: bag}, nil
	}

	key := f.Path + "\x00" + f.Text
	if !opt.NoCache {
		if ir, ok := d.Cache.Peek(key); ok {
			return &BuildResult{IR: ir, Bag: bag}, nil
		}
	}

	toks := lexer.Lex(f, bag)
	if bag.HasErrors() {
		return &BuildResult{Bag: bag}, nil
	}
	mod := parser.Parse(f, toks, bag)
	if bag.HasErrors() {
		return &BuildResult{Bag: bag}, nil
	}
	modulePath := modulePathOf(f.Path)
	c := check.New(d.Env, bag, modulePath)
	c.CheckModule(mod)
	if bag.HasErrors() {
		return &BuildResult{Bag: bag}, nil
	}
	d.registerModule(modulePath, mod)

	ir, err := d.Cache.Compute(key, func() (string, error) {
		g := codegen.New(moduleNameOf(f.Path), d.Env, opt.Coverage)
		defer g.Dispose()
		return g.Generate(mod)
	})
	if err != nil {
		bag.Add(diag.Diagnostic{Severity: diag.Error, Code: "E003", Message: err.Error()})
		return &BuildResult{Bag: bag}, nil
	}
	return &BuildResult{IR: ir, Bag: bag}, nil
}

// Run implements the `run FILE [args...]` command's in-core half: build
// the program and hand the textual IR (plus the path it would be written
// to) back to the external linker/exec collaborator, which actually
// produces the program's exit code. Compiling to a runnable binary and
// invoking it is explicitly out of scope for the core (spec.md §6.1).
func (d *Driver) Run(opt Options) (*RunResult, error) {
	buildOpt := opt
	res, err := d.Build(buildOpt)
	if err != nil {
		return nil, err
	}
	if res.Bag.HasErrors() {
		return &RunResult{Bag: res.Bag}, nil
	}
	src := opt.Src
	if src == "" {
		src = "stdin.tml"
	}
	irPath := strings.TrimSuffix(src, filepath.Ext(src)) + ".ll"
	return &RunResult{IRPath: irPath, IR: res.IR, Bag: res.Bag}, nil
}

// registerModule copies every entry of the shared Env's tables (everything
// checked so far, public or not; mod is not consulted) into a ModuleView
// registered under modulePath, so later translation units' `use`
// declarations resolve against it, per spec.md §3's "module registry is
// shared read-only across the type checker and IR generator".
func (d *Driver) registerModule(modulePath string, mod *ast.Module) {
	view := &types.ModuleView{
		Path:      modulePath,
		Functions: make(map[string]*types.FuncSig),
		Structs:   make(map[string]*types.StructInfo),
		Enums:     make(map[string]*types.EnumInfo),
		Classes:   make(map[string]*types.ClassInfo),
		Traits:    make(map[string]*types.TraitInfo),
		Consts:    make(map[string]types.Type),
	}
	for name, fs := range d.Env.Functions {
		view.Functions[name] = fs
	}
	for name, si := range d.Env.Structs {
		view.Structs[name] = si
	}
	for name, ei := range d.Env.Enums {
		view.Enums[name] = ei
	}
	for name, ci := range d.Env.Classes {
		view.Classes[name] = ci
	}
	for name, ti := range d.Env.Traits {
		view.Traits[name] = ti
	}
	for name, t := range d.Env.Consts {
		view.Consts[name] = t
	}
	d.Env.ModuleRegistry[modulePath] = view
}

// moduleNameOf derives the base module/LLVM-module name from a source
// path, mirroring the teacher's `filepath.Base(opt.Src)` convention in
// GenLLVM for naming the LLVM module after the source file.
func moduleNameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// modulePathOf derives a TML module path from a file path for registry
// keying, joining directory components and the file's base name with `::`
// the way `use a::b::c` paths are written.
func modulePathOf(path string) string {
	name := moduleNameOf(path)
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return name
	}
	parts := strings.Split(filepath.ToSlash(dir), "/")
	parts = append(parts, name)
	return strings.Join(parts, "::")
}

// usePaths collects every `use` declaration's module path from mod's
// top-level declarations, for CompileAll's dependency-layering pass.
func usePaths(mod *ast.Module) []string {
	var out []string
	for _, d := range mod.Decls {
		if u, ok := d.(*ast.UseDecl); ok {
			out = append(out, strings.Join(u.Path, "::"))
		}
	}
	return out
}
