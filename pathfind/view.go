package pathfind

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"
)

// Coverage is the read-only view of explored territory the pathfinder needs.
// *coverage.Graph satisfies it.
type Coverage interface {
	HasVisited(id string) bool
	Neighbors(id string) []string
	InFrontier(id string) bool
	VisitCount(id string) int
	HistoryIndexFromEnd(id string) int
	NodeIDs() []string
}

// view adapts Coverage to gonum's traverse.Graph, interning string ids to
// int64 node ids on first sight. Only visited nodes have outgoing edges, so a
// traversal can reach an unvisited node but never pass through one.
type view struct {
	cov   Coverage
	ids   map[string]int64
	names []string
}

func newView(cov Coverage) *view {
	return &view{cov: cov, ids: make(map[string]int64)}
}

func (v *view) intern(id string) graph.Node {
	n, ok := v.ids[id]
	if !ok {
		n = int64(len(v.names))
		v.ids[id] = n
		v.names = append(v.names, id)
	}
	return simple.Node(n)
}

func (v *view) name(n graph.Node) string {
	return v.names[n.ID()]
}

// From returns the neighbors of a visited node in stored order.
func (v *view) From(id int64) graph.Nodes {
	name := v.names[id]
	if !v.cov.HasVisited(name) {
		return graph.Empty
	}
	nbs := v.cov.Neighbors(name)
	nodes := make([]graph.Node, 0, len(nbs))
	for _, nb := range nbs {
		nodes = append(nodes, v.intern(nb))
	}
	return iterator.NewOrderedNodes(nodes)
}

func (v *view) Edge(uid, vid int64) graph.Edge {
	return simple.Edge{F: simple.Node(uid), T: simple.Node(vid)}
}
