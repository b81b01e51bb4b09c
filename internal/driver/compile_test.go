package driver

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectCacheComputesOnce(t *testing.T) {
	c := NewObjectCache()
	var calls int32

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ir, err := c.Compute("key", func() (string, error) {
				atomic.AddInt32(&calls, 1)
				return "ir-text", nil
			})
			require.NoError(t, err)
			results[i] = ir
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls, "fn must run exactly once across concurrent callers")
	for _, r := range results {
		assert.Equal(t, "ir-text", r)
	}
}

func TestObjectCachePeekBeforeComputeMisses(t *testing.T) {
	c := NewObjectCache()
	_, ok := c.Peek("nope")
	assert.False(t, ok)
}

func TestObjectCachePeekAfterComputeHits(t *testing.T) {
	c := NewObjectCache()
	_, err := c.Compute("k", func() (string, error) { return "v", nil })
	require.NoError(t, err)

	v, ok := c.Peek("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestObjectCacheDistinctKeysDoNotShareResults(t *testing.T) {
	c := NewObjectCache()
	a, _ := c.Compute("a", func() (string, error) { return "A", nil })
	b, _ := c.Compute("b", func() (string, error) { return "B", nil })
	assert.Equal(t, "A", a)
	assert.Equal(t, "B", b)
}

func TestTopoLayersOrdersByUseDependency(t *testing.T) {
	base := &unit{path: "base.tml", modulePath: "base"}
	mid := &unit{path: "mid.tml", modulePath: "mid", deps: []string{"base"}}
	top := &unit{path: "top.tml", modulePath: "top", deps: []string{"mid"}}

	units := map[string]*unit{base.path: base, mid.path: mid, top.path: top}
	byModule := map[string]*unit{"base": base, "mid": mid, "top": top}

	layers, err := topoLayers(units, byModule)
	require.NoError(t, err)
	require.Len(t, layers, 3)
	assert.Equal(t, []string{"base.tml"}, layers[0])
	assert.Equal(t, []string{"mid.tml"}, layers[1])
	assert.Equal(t, []string{"top.tml"}, layers[2])
}

func TestTopoLayersDetectsCycle(t *testing.T) {
	a := &unit{path: "a.tml", modulePath: "a", deps: []string{"b"}}
	b := &unit{path: "b.tml", modulePath: "b", deps: []string{"a"}}

	units := map[string]*unit{a.path: a, b.path: b}
	byModule := map[string]*unit{"a": a, "b": b}

	_, err := topoLayers(units, byModule)
	assert.Error(t, err)
}

func TestTopoLayersIndependentUnitsShareALayer(t *testing.T) {
	a := &unit{path: "a.tml", modulePath: "a"}
	b := &unit{path: "b.tml", modulePath: "b"}

	units := map[string]*unit{a.path: a, b.path: b}
	byModule := map[string]*unit{"a": a, "b": b}

	layers, err := topoLayers(units, byModule)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.ElementsMatch(t, []string{"a.tml", "b.tml"}, layers[0])
}
