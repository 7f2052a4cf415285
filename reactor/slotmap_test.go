package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotMap_StaleHandlesNeverResolve(t *testing.T) {
	var m slotMap[string]
	a := m.insert("a")
	b := m.insert("b")
	assert.NotZero(t, a)
	assert.Equal(t, 2, m.len())

	v, ok := m.remove(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = m.get(a)
	assert.False(t, ok)

	c := m.insert("c")
	assert.Equal(t, a.index(), c.index(), "slot reused")
	assert.NotEqual(t, a, c)
	_, ok = m.get(a)
	assert.False(t, ok)

	got, ok := m.get(c)
	require.True(t, ok)
	assert.Equal(t, "c", got)

	_, ok = m.remove(a)
	assert.False(t, ok)

	seen := map[string]bool{}
	m.each(func(_ handle, v string) { seen[v] = true })
	assert.Equal(t, map[string]bool{"b": true, "c": true}, seen)
	_, _ = m.remove(b)
	assert.Equal(t, 1, m.len())
}

func TestSlotMap_GenerationSkipsZero(t *testing.T) {
	var m slotMap[int]
	h := m.insert(1)
	m.slots[h.index()].gen = 0xffffffff
	h = makeHandle(h.index(), 0xffffffff)
	_, ok := m.remove(h)
	require.True(t, ok)
	assert.Equal(t, uint32(1), m.slots[h.index()].gen)

	_, ok = m.get(makeHandle(42, 1))
	assert.False(t, ok)
}
