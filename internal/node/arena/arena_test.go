package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	a := New[string]()
	h1 := a.Insert("a")
	h2 := a.Insert("b")

	v, ok := a.Get(h1)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, a.Len())

	got, ok := a.Remove(h1)
	require.True(t, ok)
	assert.Equal(t, "a", got)
	assert.False(t, a.Valid(h1))
	assert.True(t, a.Valid(h2))
	assert.Equal(t, 1, a.Len())

	_, ok = a.Remove(h1)
	assert.False(t, ok, "double remove")
}

func TestStaleHandleAfterReuse(t *testing.T) {
	a := New[int]()
	old := a.Insert(1)
	a.Remove(old)

	fresh := a.Insert(2)
	assert.Equal(t, old.idx, fresh.idx, "slot reused")
	assert.NotEqual(t, old, fresh)

	_, ok := a.Get(old)
	assert.False(t, ok, "stale handle must not alias the new value")
	assert.Equal(t, 2, a.MustGet(fresh))
}

func TestNilHandle(t *testing.T) {
	a := New[int]()
	a.Insert(7)
	assert.True(t, Nil.IsNil())
	assert.False(t, a.Valid(Nil))
	assert.Panics(t, func() { a.MustGet(Nil) })
}
