package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tml/internal/types"
)

// The teacher's ir/llvm/transform.go carries zero _test.go coverage — it
// never unit-tests LLVM emission directly. This package follows the same
// texture for anything that needs a live llvm.Context, but the pure-Go
// bookkeeping around monomorphization, name mangling, and substitution
// has no such dependency and is tested directly here.

func TestMangledFuncNameSpecialCasesMain(t *testing.T) {
	assert.Equal(t, "tml_main", mangledFuncName("", "main", nil))
	assert.Equal(t, "add", mangledFuncName("", "add", nil))
	assert.Equal(t, "Counter$incr", mangledFuncName("Counter", "incr", nil))
}

func TestMangledFuncNameWithTypeArgsIsMangled(t *testing.T) {
	name := mangledFuncName("", "identity", []types.Type{types.I32})
	assert.NotEqual(t, "identity", name)
	assert.Contains(t, name, "identity")
}

func TestMonoStateDedupesRepeatedRequests(t *testing.T) {
	m := newMonoState()
	first := m.requireInstantiation(monoFunc, "", "identity", []types.Type{types.I32})
	second := m.requireInstantiation(monoFunc, "", "identity", []types.Type{types.I32})
	assert.Equal(t, first, second)

	job, ok := m.pop()
	assert.True(t, ok)
	assert.Equal(t, "identity", job.name)

	_, ok = m.pop()
	assert.False(t, ok, "the deduped second request must not enqueue a second job")
}

func TestMonoStateFIFOOrder(t *testing.T) {
	m := newMonoState()
	m.requireInstantiation(monoFunc, "", "first", []types.Type{types.I32})
	m.requireInstantiation(monoFunc, "", "second", []types.Type{types.I64})

	j1, ok := m.pop()
	assert.True(t, ok)
	assert.Equal(t, "first", j1.name)

	j2, ok := m.pop()
	assert.True(t, ok)
	assert.Equal(t, "second", j2.name)

	_, ok = m.pop()
	assert.False(t, ok)
}

func TestSubstitutionOfMapsParamsToArgs(t *testing.T) {
	subst := substitutionOf([]string{"T", "U"}, []types.Type{types.I32, types.Str})
	assert.Equal(t, types.I32, subst["T"])
	assert.Equal(t, types.Str, subst["U"])
}

func TestApplySubstReplacesGenericParameter(t *testing.T) {
	subst := map[string]types.Type{"T": types.I64}
	in := &types.Named{Name: "T"}
	out := applySubst(in, subst)
	assert.True(t, types.Equal(types.I64, out))
}

func TestApplySubstRecursesIntoContainers(t *testing.T) {
	subst := map[string]types.Type{"T": types.Bool}
	in := &types.Slice{Elem: &types.Named{Name: "T"}}
	out, ok := applySubst(in, subst).(*types.Slice)
	assert.True(t, ok)
	assert.True(t, types.Equal(types.Bool, out.Elem))
}

func TestApplySubstLeavesUnrelatedNamedTypesAlone(t *testing.T) {
	subst := map[string]types.Type{"T": types.I64}
	in := &types.Named{Name: "Box", TypeArgs: []types.Type{&types.Named{Name: "T"}}}
	out, ok := applySubst(in, subst).(*types.Named)
	assert.True(t, ok)
	assert.Equal(t, "Box", out.Name)
	assert.True(t, types.Equal(types.I64, out.TypeArgs[0]))
}
