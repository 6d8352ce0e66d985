// Package pathfind answers "where is the nearest unexplored node" over the
// coverage graph, either node by node or, for large graphs, cluster by
// cluster.
package pathfind

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/traverse"
)

// DefaultReachableDepth bounds the lookahead used when scoring escape links.
const DefaultReachableDepth = 3

// Route is the shortest path from a visited node to the nearest frontier
// boundary through visited territory.
type Route struct {
	Target     string   `json:"target"`
	NextHop    string   `json:"next_hop"`
	PathLength int      `json:"path_length"`
	Path       []string `json:"path"`
}

// Finder runs path queries against a live coverage graph. Every query reads
// the graph afresh.
type Finder struct {
	cov Coverage
}

// New creates a Finder over cov.
func New(cov Coverage) *Finder {
	return &Finder{cov: cov}
}

// NearestFrontier returns the shortest route from start to any unvisited
// node, or nil when start is unvisited or no frontier is reachable through
// visited nodes. Ties go to the first node discovered in neighbor order.
func (f *Finder) NearestFrontier(start string) *Route {
	if !f.cov.HasVisited(start) {
		return nil
	}
	v := newView(f.cov)
	from := v.intern(start)

	parent := make(map[int64]int64)
	bfs := traverse.BreadthFirst{
		Traverse: func(e graph.Edge) bool {
			to := e.To().ID()
			if _, seen := parent[to]; !seen && to != from.ID() {
				parent[to] = e.From().ID()
			}
			return true
		},
	}
	target := bfs.Walk(v, from, func(n graph.Node, _ int) bool {
		return !f.cov.HasVisited(v.name(n))
	})
	if target == nil {
		return nil
	}

	var rev []string
	for id := target.ID(); ; id = parent[id] {
		rev = append(rev, v.names[id])
		if id == from.ID() {
			break
		}
	}
	path := make([]string, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return &Route{
		Target:     path[len(path)-1],
		NextHop:    path[1],
		PathLength: len(path) - 1,
		Path:       path,
	}
}

// ReachableFrontierCount counts unvisited nodes discoverable within depth
// hops of from, travelling only through visited nodes. from itself is not
// counted.
func (f *Finder) ReachableFrontierCount(from string, depth int) int {
	if depth <= 0 || !f.cov.HasVisited(from) {
		return 0
	}
	v := newView(f.cov)
	start := v.intern(from)

	count := 0
	var bfs traverse.BreadthFirst
	bfs.Walk(v, start, func(n graph.Node, d int) bool {
		if d > depth {
			return true
		}
		if n.ID() != start.ID() && !f.cov.HasVisited(v.name(n)) {
			count++
		}
		return false
	})
	return count
}
