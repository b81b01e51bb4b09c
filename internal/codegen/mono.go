package codegen

import (
	"sync"

	"tml/internal/types"
)

// monoKind distinguishes the three pending-instantiation registries
// spec.md §4.5.4 names: generic functions, generic structs/enums/unions,
// and generic class methods.
type monoKind int

const (
	monoFunc monoKind = iota
	monoLayout
	monoMethod
)

// monoJob is one queued instantiation record: a generic declaration plus
// the substitution (type-argument list) that makes it concrete.
type monoJob struct {
	kind     monoKind
	owner    string // Class/struct name, for monoMethod.
	name     string
	typeArgs []types.Type
	mangled  string
}

// monoState tracks which mangled-name instantiations have already been
// requested — so repeated calls at different call sites collapse to
// one queued job — and the FIFO of not-yet-emitted jobs, drained to a
// fixed point by Generator.Generate per §4.5.4 step 3 ("new instantiations
// may spawn more").
type monoState struct {
	mu      sync.Mutex
	seen    map[string]bool
	pending []monoJob
}

func newMonoState() *monoState {
	return &monoState{seen: make(map[string]bool)}
}

// requireInstantiation implements §4.5.4's require_*_instantiation: return
// the cached mangled name if an instantiation with the same mangled name
// (built from owner, name and typeArgs; kind is not part of the key) was
// already requested, otherwise queue it and return the
// eagerly-computed mangled name so the caller can reference it before the
// body is actually lowered.
func (m *monoState) requireInstantiation(kind monoKind, owner, name string, typeArgs []types.Type) string {
	mangled := mangledFuncName(owner, name, typeArgs)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mangled
	if m.seen[key] {
		return mangled
	}
	m.seen[key] = true
	m.pending = append(m.pending, monoJob{kind: kind, owner: owner, name: name, typeArgs: typeArgs, mangled: mangled})
	return mangled
}

func (m *monoState) pop() (monoJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return monoJob{}, false
	}
	job := m.pending[0]
	m.pending = m.pending[1:]
	return job, true
}

// instantiate substitutes job's type arguments into its declaration and
// re-invokes lowering for that concrete instance (§4.5.4's "re-invokes the
// lowering for that decl body"). Layout instantiation happens implicitly
// through lowerType/lowerNamed's own g.layouts cache, so only function and
// method instantiation needs explicit body generation here.
func (g *Generator) instantiate(job monoJob) error {
	switch job.kind {
	case monoFunc:
		fs, ok := g.env.Functions[job.name]
		if !ok || !fs.HasBody {
			return nil
		}
		return g.instantiateFuncBody(job, fs)
	case monoMethod:
		fs := g.env.ResolveMethod(job.owner, job.name)
		if fs == nil || !fs.HasBody {
			return nil
		}
		return g.instantiateFuncBody(job, fs)
	}
	return nil
}

// instantiateFuncBody substitutes job.typeArgs into the generic signature
// fs registered under job.name (keyed by job.owner for a method, empty for
// a free function), then lowers the header and body under the already
// eagerly-computed mangled name, per §4.5.4 steps 2-3. The declaring
// ast.FuncDecl was captured in g.funcEntries at declareTop time (free
// functions/methods are deferred there whenever FuncSig.Generics is
// non-empty).
func (g *Generator) instantiateFuncBody(job monoJob, fs *types.FuncSig) error {
	entry, ok := g.funcEntries[mangledFuncName(job.owner, job.name, nil)]
	if !ok {
		return errf(CUnknownFunction, "no declaration registered for generic %q", job.name)
	}
	subst := substitutionOf(fs.Generics, job.typeArgs)
	substParams := make([]types.Type, len(fs.Params))
	for i, p := range fs.Params {
		substParams[i] = applySubst(p, subst)
	}
	var substRet types.Type
	if fs.Ret != nil {
		substRet = applySubst(fs.Ret, subst)
	}
	concrete := &types.FuncSig{
		Name: fs.Name, Params: substParams, ParamNames: fs.ParamNames, Ret: substRet,
		IsAsync: fs.IsAsync, HasBody: fs.HasBody, IsVirtual: fs.IsVirtual,
		IsOverride: fs.IsOverride, IsStatic: fs.IsStatic, HasThis: fs.HasThis,
	}
	fn, err := g.lowerFuncHeader(job.mangled, concrete, entry.decl, entry.selfType)
	if err != nil {
		return err
	}
	return g.lowerFuncBody(fn, entry.decl, entry.owner, entry.selfType, concrete)
}
