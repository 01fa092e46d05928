package lmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.lepak.sg/loadbench/internal/lmap"
)

func TestMergePrecedence_LaterLayerWins(t *testing.T) {
	track := map[string]any{"env": "prod", "track": "geonames"}
	challenge := map[string]any{"env": "staging"}
	operation := map[string]any{"op": "bulk"}
	task := map[string]any{}
	request := map[string]any{"op": "bulk-override"}

	merged := lmap.MergePrecedence(track, challenge, operation, task, request)

	assert.Equal(t, "staging", merged["env"])
	assert.Equal(t, "geonames", merged["track"])
	assert.Equal(t, "bulk-override", merged["op"])
}

func TestMergePrecedenceOrdered_FirstSeenOrder(t *testing.T) {
	track := map[string]any{"a": 1}
	challenge := map[string]any{"b": 2}
	operation := map[string]any{"a": 10, "c": 3}

	merged, order := lmap.MergePrecedenceOrdered(track, challenge, operation)

	assert.Equal(t, 10, merged["a"])
	assert.Equal(t, 2, merged["b"])
	assert.Equal(t, 3, merged["c"])
	assert.ElementsMatch(t, []string{"a", "b", "c"}, order)
	// "a" must appear before "b" since track preceded challenge.
	aIdx, bIdx := indexOf(order, "a"), indexOf(order, "b")
	assert.Less(t, aIdx, bIdx)
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
