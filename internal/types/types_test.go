package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tml/internal/types"
)

func TestPrimitiveProperties(t *testing.T) {
	assert.True(t, types.I32.IsInteger())
	assert.False(t, types.I32.IsUnsigned())
	assert.True(t, types.U64.IsUnsigned())
	assert.True(t, types.F64.IsFloat())
	assert.False(t, types.Bool.IsInteger())
	assert.Equal(t, 32, types.I32.BitWidth())
	assert.Equal(t, 64, types.U64.BitWidth())
	assert.Equal(t, "I32", types.I32.String())
}

func TestNamedStringIncludesTypeArgs(t *testing.T) {
	box := &types.Named{Name: "Box", TypeArgs: []types.Type{types.I32}}
	assert.Equal(t, "Box<I32>", box.String())

	bare := &types.Named{Name: "Widget"}
	assert.Equal(t, "Widget", bare.String())
}

func TestEqualStructural(t *testing.T) {
	a := &types.Named{Name: "Box", ModulePath: "app", TypeArgs: []types.Type{types.I32}}
	b := &types.Named{Name: "Box", ModulePath: "app", TypeArgs: []types.Type{types.I32}}
	c := &types.Named{Name: "Box", ModulePath: "other", TypeArgs: []types.Type{types.I32}}

	assert.True(t, types.Equal(a, b))
	assert.False(t, types.Equal(a, c))
	assert.False(t, types.Equal(types.I32, types.I64))
	assert.True(t, types.Equal(types.I32, types.I32))

	refA := &types.Ref{Mut: true, Inner: types.Str}
	refB := &types.Ref{Mut: true, Inner: types.Str}
	refC := &types.Ref{Mut: false, Inner: types.Str}
	assert.True(t, types.Equal(refA, refB))
	assert.False(t, types.Equal(refA, refC))
}

func TestIsCopy(t *testing.T) {
	assert.True(t, types.IsCopy(types.I32))
	assert.True(t, types.IsCopy(&types.Ref{Inner: types.I32}))
	assert.True(t, types.IsCopy(&types.Ptr{Inner: types.I32}))
	assert.True(t, types.IsCopy(&types.Tuple{Elems: []types.Type{types.I32, types.Bool}}))

	assert.False(t, types.IsCopy(&types.Named{Name: "Widget"}))
	assert.False(t, types.IsCopy(&types.Class{Name: "Entity"}))
	assert.False(t, types.IsCopy(&types.Slice{Elem: types.I32}))
	assert.False(t, types.IsCopy(&types.Tuple{Elems: []types.Type{types.I32, &types.Named{Name: "Widget"}}}))
}

func TestEnvResolveMethodInherentBeforeBase(t *testing.T) {
	env := types.NewEnv()
	env.Classes["Animal"] = &types.ClassInfo{
		Name:    "Animal",
		Methods: map[string]*types.FuncSig{"speak": {Name: "speak", IsVirtual: true}},
	}
	env.Classes["Dog"] = &types.ClassInfo{
		Name:    "Dog",
		Base:    "Animal",
		Methods: map[string]*types.FuncSig{"fetch": {Name: "fetch"}},
	}
	env.Impls = append(env.Impls, &types.ImplRecord{
		SelfName: "Dog",
		Methods:  map[string]*types.FuncSig{"speak": {Name: "speak", IsOverride: true}},
	})

	fetch := env.ResolveMethod("Dog", "fetch")
	require.NotNil(t, fetch)
	assert.Equal(t, "fetch", fetch.Name)

	speak := env.ResolveMethod("Dog", "speak")
	require.NotNil(t, speak)
	assert.True(t, speak.IsOverride, "impl-provided method should win over the inherited base method")

	base := env.ResolveMethod("Animal", "speak")
	require.NotNil(t, base)
	assert.True(t, base.IsVirtual)

	assert.Nil(t, env.ResolveMethod("Dog", "fly"))
}

func TestEnvFindImplPrefersSpecificTrait(t *testing.T) {
	env := types.NewEnv()
	inherent := &types.ImplRecord{SelfName: "Box"}
	traitImpl := &types.ImplRecord{SelfName: "Box", Trait: "Comparable"}
	env.Impls = append(env.Impls, inherent, traitImpl)

	assert.Same(t, inherent, env.FindImpl("", "Box"))
	assert.Same(t, traitImpl, env.FindImpl("Comparable", "Box"))
	assert.Nil(t, env.FindImpl("Other", "Nonexistent"))
}
