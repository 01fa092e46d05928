package graph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lepak.sg/loadbench/internal/graph"
)

func TestTopologicalOrder_RespectsEdges(t *testing.T) {
	g := graph.NewAdjacencyListDigraph[string]()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	order, err := g.TopologicalOrder()
	require.NoError(t, err)

	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["c"])
}

func TestTopologicalOrder_DetectsCycle(t *testing.T) {
	g := graph.NewAdjacencyListDigraph[string]()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	_, err := g.TopologicalOrder()
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrCycleDetected))
}

func TestNeighbours_UnknownNodeReturnsFalse(t *testing.T) {
	g := graph.NewAdjacencyListDigraph[string]()
	g.AddNode("a")

	_, ok := g.Neighbours("z")
	assert.False(t, ok)

	n, ok := g.Neighbours("a")
	assert.True(t, ok)
	assert.Empty(t, n)
}

func TestString_IsDeterministic(t *testing.T) {
	g := graph.NewAdjacencyListDigraph[string]()
	g.AddEdge("b", "c")
	g.AddEdge("a", "c")
	g.AddEdge("a", "b")

	assert.Equal(t, "a -> b c\nb -> c\nc ->", g.String())
}
