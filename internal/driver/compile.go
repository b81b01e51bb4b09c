package driver

import (
	"fmt"
	"sort"
	"sync"

	"tml/internal/ast"
	"tml/internal/check"
	"tml/internal/codegen"
	"tml/internal/diag"
	"tml/internal/lexer"
	"tml/internal/parser"
	"tml/internal/source"
)

// ObjectCache is a mutex-guarded map of in-progress/completed build
// results, keyed by a translation unit's path+content. It generalizes the
// teacher's `symTab` (`ir/llvm/transform.go`'s RWMutex-guarded
// map[string]llvm.Value) from "one compile's global symbol table" to
// "the cache shared object file store across compiles" described in
// spec.md §5: the first goroutine to ask for a given key actually runs the
// generator; every other asker for the same key blocks on that one
// computation via sync.Once rather than repeating it.
type ObjectCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	done chan struct{}
	ir   string
	err  error
}

// NewObjectCache returns an empty cache.
func NewObjectCache() *ObjectCache {
	return &ObjectCache{entries: make(map[string]*cacheEntry, 16)}
}

func (c *ObjectCache) entry(key string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{done: make(chan struct{})}
		c.entries[key] = e
	}
	return e
}

// Peek returns a previously completed result without triggering
// computation, used by Build to honor --no-cache by simply never peeking.
func (c *ObjectCache) Peek(key string) (string, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	select {
	case <-e.done:
		return e.ir, e.err == nil
	default:
		return "", false
	}
}

// Compute returns the cached result for key, running fn exactly once
// across any number of concurrent callers.
func (c *ObjectCache) Compute(key string, fn func() (string, error)) (string, error) {
	e := c.entry(key)
	e.once.Do(func() {
		e.ir, e.err = fn()
		close(e.done)
	})
	<-e.done
	return e.ir, e.err
}

// unit is one translation unit as it flows through CompileAll's phases.
type unit struct {
	path       string
	modulePath string
	mod        *ast.Module
	bag        *diag.Bag
	deps       []string
}

// CompileAllResult collects every translation unit's IR and diagnostics.
type CompileAllResult struct {
	IR  map[string]string // path -> textual LLVM IR
	Bag *diag.Bag         // merged diagnostics across every unit
}

// CompileAll compiles many independent translation units, parallelizing
// work the way the teacher's GenLLVM does — N worker goroutines fanned out
// over a slice of work items, a sync.WaitGroup barrier, and a buffered
// error/diagnostic channel — generalized from "N threads over one file's
// top-level declarations" to "N threads over M files", the correct unit of
// parallelism per spec.md §5. Unlike the teacher's single flat pass,
// CompileAll first layers units by `use` dependency (Kahn's algorithm) so
// a unit is only type-checked once every module it uses has already
// registered its view in the shared registry; each layer's units are then
// checked one at a time (checkMu serializes the checker), then the next
// layer proceeds.
func (d *Driver) CompileAll(paths []string, opt Options) (*CompileAllResult, error) {
	merged := diag.NewBag()
	units := make(map[string]*unit, len(paths))
	order := append([]string(nil), paths...)
	sort.Strings(order) // deterministic merge order regardless of goroutine finish order

	// Loading must happen sequentially: *source.FileSet is, by its own
	// contract, only safe for concurrent reads once every file is loaded
	// (internal/source.FileSet's doc comment), since LoadFile appends to
	// its backing slice. Only lexing and parsing — which merely read an
	// already-loaded *source.File — fan out in phase 1 below.
	files := make(map[string]*source.File, len(paths))
	for _, p := range order {
		bag := diag.NewBag()
		f, ok := d.loadFile(p, bag)
		units[p] = &unit{path: p, bag: bag}
		if ok {
			files[p] = f
		}
	}

	// Phase 1: lex + parse every successfully loaded unit in parallel.
	// Parsing one file never depends on another, so this phase has no
	// layering at all.
	var wg sync.WaitGroup
	for p, f := range files {
		p, f := p, f
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := units[p]
			toks := lexer.Lex(f, u.bag)
			mod := parser.Parse(f, toks, u.bag)
			u.modulePath = modulePathOf(p)
			u.mod = mod
			u.deps = usePaths(mod)
		}()
	}
	wg.Wait()

	for _, p := range order {
		for _, diagMsg := range units[p].bag.All() {
			merged.Add(diagMsg)
		}
	}
	if merged.HasErrors() {
		return &CompileAllResult{Bag: merged}, nil
	}

	// Phase 2: layer by module-path dependency and check each layer (one
	// goroutine per unit, each holding checkMu for its whole CheckModule
	// call), publishing into the shared registry between layers.
	byModule := make(map[string]*unit, len(units))
	for _, u := range units {
		byModule[u.modulePath] = u
	}
	layers, err := topoLayers(units, byModule)
	if err != nil {
		merged.Add(diag.Diagnostic{Severity: diag.Error, Code: "E003", Message: err.Error()})
		return &CompileAllResult{Bag: merged}, nil
	}
	for _, layer := range layers {
		var lwg sync.WaitGroup
		for _, p := range layer {
			u := units[p]
			lwg.Add(1)
			go func(u *unit) {
				defer lwg.Done()
				d.checkMu.Lock()
				defer d.checkMu.Unlock()
				c := check.New(d.Env, u.bag, u.modulePath)
				c.CheckModule(u.mod)
			}(u)
		}
		lwg.Wait()
		// Registry writes happen sequentially after the layer's checkers
		// finish, since *types.Env's plain maps are not safe for
		// concurrent writers (only ModuleRegistry reads are shared).
		for _, p := range layer {
			d.registerModule(units[p].modulePath, units[p].mod)
		}
	}
	for _, p := range order {
		for _, diagMsg := range units[p].bag.All() {
			merged.Add(diagMsg)
		}
	}
	if merged.HasErrors() {
		return &CompileAllResult{Bag: merged}, nil
	}

	// Phase 3: lower every unit to LLVM IR in parallel. Each Generator owns
	// its own llvm.Context, so no cross-goroutine LLVM state is shared;
	// only the read-only *types.Env is, matching spec.md §5's resource
	// policy.
	result := &CompileAllResult{IR: make(map[string]string, len(units)), Bag: merged}
	var gwg sync.WaitGroup
	var gmu sync.Mutex
	for _, p := range order {
		u := units[p]
		gwg.Add(1)
		go func(u *unit) {
			defer gwg.Done()
			g := codegen.New(moduleNameOf(u.path), d.Env, opt.Coverage)
			defer g.Dispose()
			ir, err := g.Generate(u.mod)
			if err != nil {
				u.bag.Add(diag.Diagnostic{Severity: diag.Error, Code: "E003", Message: err.Error()})
				return
			}
			gmu.Lock()
			result.IR[u.path] = ir
			gmu.Unlock()
		}(u)
	}
	gwg.Wait()
	for _, p := range order {
		for _, diagMsg := range units[p].bag.All() {
			merged.Add(diagMsg)
		}
	}
	return result, nil
}

// topoLayers groups units into dependency layers: layer 0 has no
// unresolved `use` dependency on another unit in this same batch, layer 1
// depends only on layer 0, and so on. A `use` of a module outside this
// batch (already in the registry, or simply absent) is not a dependency
// edge here — it resolves against whatever the registry already holds.
func topoLayers(units map[string]*unit, byModule map[string]*unit) ([][]string, error) {
	remaining := make(map[string]*unit, len(units))
	for p, u := range units {
		remaining[p] = u
	}
	var layers [][]string
	for len(remaining) > 0 {
		var layer []string
		for p, u := range remaining {
			ready := true
			for _, dep := range u.deps {
				if depUnit, ok := byModule[dep]; ok {
					if _, stillPending := remaining[depUnit.path]; stillPending {
						ready = false
						break
					}
				}
			}
			if ready {
				layer = append(layer, p)
			}
		}
		if len(layer) == 0 {
			var stuck []string
			for p := range remaining {
				stuck = append(stuck, p)
			}
			sort.Strings(stuck)
			return nil, fmt.Errorf("cyclic module dependency among: %v", stuck)
		}
		sort.Strings(layer)
		for _, p := range layer {
			delete(remaining, p)
		}
		layers = append(layers, layer)
	}
	return layers, nil
}
