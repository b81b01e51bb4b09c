package mangle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tml/internal/mangle"
	"tml/internal/types"
)

func TestMangleType(t *testing.T) {
	box := &types.Named{Name: "Box", TypeArgs: []types.Type{types.I32}}
	assert.Equal(t, "Box__I32", mangle.Type(box))

	pair := &types.Named{Name: "Pair", TypeArgs: []types.Type{box, types.F64}}
	assert.Equal(t, "Pair__Box__I32__F64", mangle.Type(pair))

	assert.Equal(t, "ptr_I32", mangle.Type(&types.Ptr{Inner: types.I32}))
	assert.Equal(t, "mutptr_I32", mangle.Type(&types.Ptr{Mut: true, Inner: types.I32}))
	assert.Equal(t, "ref_Str", mangle.Type(&types.Ref{Inner: types.Str}))
	assert.Equal(t, "mutref_Str", mangle.Type(&types.Ref{Mut: true, Inner: types.Str}))
	assert.Equal(t, "dyn_Comparable", mangle.Type(&types.DynBehavior{Trait: "Comparable"}))
	assert.Equal(t, "tuple_I32__Bool", mangle.Type(&types.Tuple{Elems: []types.Type{types.I32, types.Bool}}))
}

func arityFor(m map[string]int) mangle.Arity {
	return func(name string) (int, bool) {
		n, ok := m[name]
		return n, ok
	}
}

func TestDecodeSimpleGeneric(t *testing.T) {
	got, err := mangle.Decode("Box__I32", arityFor(map[string]int{"Box": 1}))
	require.NoError(t, err)
	named, ok := got.(*types.Named)
	require.True(t, ok)
	assert.Equal(t, "Box", named.Name)
	require.Len(t, named.TypeArgs, 1)
	assert.Equal(t, types.I32, named.TypeArgs[0])
}

// TestDecodeAmbiguousWithoutArity exercises the exact A__B__C ambiguity
// spec.md §9 calls out: "Pair__Box__I32__F64" could mean Pair<Box<I32>,
// F64> or Pair<Box, I32, F64> without arity. Both decode correctly once
// the right arity oracle is supplied, proving the split is arity-directed
// rather than positionally guessed.
func TestDecodeAmbiguousWithoutArity(t *testing.T) {
	asNested, err := mangle.Decode("Pair__Box__I32__F64", arityFor(map[string]int{"Pair": 2, "Box": 1}))
	require.NoError(t, err)
	pair := asNested.(*types.Named)
	require.Len(t, pair.TypeArgs, 2)
	box := pair.TypeArgs[0].(*types.Named)
	assert.Equal(t, "Box", box.Name)
	assert.Equal(t, types.I32, box.TypeArgs[0])
	assert.Equal(t, types.F64, pair.TypeArgs[1])

	asFlat, err := mangle.Decode("Pair__Box__I32__F64", arityFor(map[string]int{"Pair": 3, "Box": 0}))
	require.NoError(t, err)
	pairFlat := asFlat.(*types.Named)
	require.Len(t, pairFlat.TypeArgs, 3)
	assert.Equal(t, "Box", pairFlat.TypeArgs[0].(*types.Named).Name)
	assert.Equal(t, types.I32, pairFlat.TypeArgs[1])
	assert.Equal(t, types.F64, pairFlat.TypeArgs[2])
}

func TestDecodeStructuralPrefixes(t *testing.T) {
	noArity := arityFor(map[string]int{})

	got, err := mangle.Decode("mutptr_ref_I32", noArity)
	require.NoError(t, err)
	ptr := got.(*types.Ptr)
	assert.True(t, ptr.Mut)
	ref := ptr.Inner.(*types.Ref)
	assert.False(t, ref.Mut)
	assert.Equal(t, types.I32, ref.Inner)

	got, err = mangle.Decode("array_I32_4", noArity)
	require.NoError(t, err)
	arr := got.(*types.Array)
	assert.Equal(t, int64(4), arr.Size)
	assert.Equal(t, types.I32, arr.Elem)

	got, err = mangle.Decode("dyn_Comparable", noArity)
	require.NoError(t, err)
	dyn := got.(*types.DynBehavior)
	assert.Equal(t, "Comparable", dyn.Trait)
}

func TestDecodeTupleRoundTrip(t *testing.T) {
	tup := &types.Tuple{Elems: []types.Type{types.I32, types.Bool}}
	encoded := mangle.Type(tup)
	require.Equal(t, "tuple_I32__Bool", encoded)

	got, err := mangle.Decode(encoded, arityFor(map[string]int{"tuple": 2}))
	require.NoError(t, err)
	decoded := got.(*types.Tuple)
	require.Len(t, decoded.Elems, 2)
	assert.Equal(t, types.I32, decoded.Elems[0])
	assert.Equal(t, types.Bool, decoded.Elems[1])
}

func TestRoundTripArityDirected(t *testing.T) {
	original := &types.Named{
		Name: "Map",
		TypeArgs: []types.Type{
			&types.Named{Name: "Key"},
			&types.Ptr{Inner: types.I64},
		},
	}
	encoded := mangle.Type(original)
	got, err := mangle.Decode(encoded, arityFor(map[string]int{"Map": 2, "Key": 0}))
	require.NoError(t, err)
	assert.True(t, types.Equal(original, got))
}
