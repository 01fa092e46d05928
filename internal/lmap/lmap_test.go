package lmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lepak.sg/loadbench/internal/lmap"
)

func TestSetGet(t *testing.T) {
	l := lmap.New[string, int]()
	l.Set("a", 1)
	v, ok := l.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = l.Get("missing")
	assert.False(t, ok)
}

func TestSet_OverwriteKeepsPosition(t *testing.T) {
	l := lmap.New[string, int]()
	l.Set("a", 1)
	l.Set("b", 2)
	l.Set("a", 100)

	var keys []string
	l.ForEach(func(k string, v int) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []string{"a", "b"}, keys)

	v, _ := l.Get("a")
	assert.Equal(t, 100, v)
}

func TestDelete(t *testing.T) {
	l := lmap.New[string, int]()
	l.Set("a", 1)
	l.Set("b", 2)

	ok := l.Delete("a")
	assert.True(t, ok)
	assert.Equal(t, 1, l.Len())

	ok = l.Delete("a")
	assert.False(t, ok)
}

func TestForEach_StopsEarly(t *testing.T) {
	l := lmap.New[string, int]()
	l.Set("a", 1)
	l.Set("b", 2)
	l.Set("c", 3)

	var seen []string
	l.ForEach(func(k string, v int) bool {
		seen = append(seen, k)
		return k != "b"
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestToMap(t *testing.T) {
	l := lmap.New[string, int]()
	l.Set("a", 1)
	l.Set("b", 2)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, l.ToMap())
}
