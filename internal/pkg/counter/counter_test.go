package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterMergePreservesFirstSeenOrder(t *testing.T) {
	a := New()
	a.Add("organic", 3)
	a.Add("direct", 1)

	b := New()
	b.Add("organic", 2)
	b.Add("social", 1)

	a.Merge(b)

	assert.Equal(t, map[string]int{"organic": 5, "direct": 1, "social": 1}, a.ToMap())

	entries := a.Entries()
	assert.Equal(t, "organic", entries[0].Key)
	assert.Equal(t, "direct", entries[1].Key)
	assert.Equal(t, "social", entries[2].Key)
}

func TestCounterTopNStableTies(t *testing.T) {
	c := New()
	c.Add("alpha", 2)
	c.Add("beta", 5)
	c.Add("gamma", 2)
	c.Add("delta", 7)

	top := c.TopN(3)
	assert.Len(t, top, 3)
	assert.Equal(t, "delta", top[0].Key)
	assert.Equal(t, "beta", top[1].Key)
	// alpha and gamma tie at 2; alpha was seen first
	assert.Equal(t, "alpha", top[2].Key)
}

func TestCounterAddMapDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		c := New()
		c.AddMap(map[string]int{"z": 1, "a": 1, "m": 1})
		entries := c.Entries()
		assert.Equal(t, "a", entries[0].Key)
		assert.Equal(t, "m", entries[1].Key)
		assert.Equal(t, "z", entries[2].Key)
	}
}

func TestCounterTopNBeyondLength(t *testing.T) {
	c := New()
	c.Inc("only")
	top := c.TopN(10)
	assert.Len(t, top, 1)
	assert.Equal(t, "only", top[0].Key)
	assert.Equal(t, 1, top[0].Count)
}
