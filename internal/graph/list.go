// Package graph provides a small directed-graph primitive used to back
// internal/laminar's dependency ordering for track preparator fan-out.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/slices"
)

// ErrCycleDetected is returned by TopologicalOrder when the graph
// contains a cycle.
var ErrCycleDetected = errors.New("cycle detected")

// AdjacencyListDigraph is a directed graph using an adjacency list
// representation. V should be a small, comparable type (a pointer or
// int-sized value). Multiple edges between the same pair of vertices
// are not supported.
type AdjacencyListDigraph[V comparable] struct {
	adj map[V][]V
}

// NewAdjacencyListDigraph creates an empty graph.
func NewAdjacencyListDigraph[V comparable]() *AdjacencyListDigraph[V] {
	return &AdjacencyListDigraph[V]{
		adj: make(map[V][]V),
	}
}

// AddNode adds a vertex unconnected to any other vertex. It returns
// true if the node didn't already exist.
func (g *AdjacencyListDigraph[V]) AddNode(node V) bool {
	_, ok := g.adj[node]
	if !ok {
		g.adj[node] = nil
	}
	return !ok
}

// AddEdge adds an edge to the graph, adding either endpoint as a node
// if needed. Duplicate edges are ignored.
func (g *AdjacencyListDigraph[V]) AddEdge(from, to V) {
	fromList := g.adj[from]
	if len(fromList) == 0 {
		g.adj[from] = []V{to}
		g.AddNode(to)
		return
	}

	if !g.AddNode(to) {
		for _, tail := range fromList {
			if tail == to {
				return
			}
		}
	}

	g.adj[from] = append(g.adj[from], to)
}

// Nodes returns all vertices in the graph, in no particular order.
func (g *AdjacencyListDigraph[V]) Nodes() []V {
	nodes := make([]V, 0, len(g.adj))
	for n := range g.adj {
		nodes = append(nodes, n)
	}
	return nodes
}

// Has returns true if the vertex is in the graph.
func (g *AdjacencyListDigraph[V]) Has(node V) bool {
	_, ok := g.adj[node]
	return ok
}

// Neighbours returns all neighbours of a vertex, in no particular
// order. (nil, false) is returned if the vertex is not in the graph.
func (g *AdjacencyListDigraph[V]) Neighbours(node V) ([]V, bool) {
	if l, ok := g.adj[node]; !ok {
		return nil, false
	} else if len(l) == 0 {
		return nil, true
	} else {
		return slices.Clone(l), true
	}
}

type line struct {
	node string
	outs []string
}

// String returns a deterministic string representation of the graph:
// one line per node, sorted lexicographically by fmt.Sprint, followed
// by its out-neighbours, also sorted.
func (g *AdjacencyListDigraph[V]) String() string {
	var lines []line

	for node, to := range g.adj {
		toStr := make([]string, len(to))
		for i, neighbour := range to {
			toStr[i] = fmt.Sprint(neighbour)
		}
		slices.Sort(toStr)

		lines = append(lines, line{
			node: fmt.Sprint(node),
			outs: toStr,
		})
	}

	sort.Slice(lines, func(i, j int) bool {
		return lines[i].node < lines[j].node
	})

	var sb strings.Builder
	for i, l := range lines {
		sb.WriteString(l.node)
		sb.WriteString(" ->")
		for _, neighbour := range l.outs {
			sb.WriteRune(' ')
			sb.WriteString(neighbour)
		}
		if i < len(lines)-1 {
			sb.WriteRune('\n')
		}
	}

	return sb.String()
}

// TopologicalOrder returns a topological order of all vertices, or
// ErrCycleDetected if the graph contains a cycle.
func (g *AdjacencyListDigraph[V]) TopologicalOrder() (order []V, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if err2, ok := r.(error); ok && errors.Is(err2, ErrCycleDetected) {
			order = nil
			err = err2
			return
		}
		panic(r)
	}()

	seen := make(map[V]int)
	toVisit := make(map[V]struct{}, len(g.adj))
	for v := range g.adj {
		toVisit[v] = struct{}{}
	}

	i := len(toVisit) - 1
	order = make([]V, len(toVisit))

	var visit func(v V)
	visit = func(v V) {
		switch seen[v] {
		case 1:
			panic(ErrCycleDetected)
		case 2:
			return
		default:
		}
		seen[v] = 1

		for _, neighbour := range g.adj[v] {
			visit(neighbour)
		}

		order[i] = v
		i--
		seen[v] = 2
		delete(toVisit, v)
	}

	for v := range toVisit {
		visit(v)
	}

	return order, nil
}
