package pathfind

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/BaSui01/panoroam/nodesource"
)

// Clusters maps visited nodes to cluster ids. *cluster.Index satisfies it.
type Clusters interface {
	ClusterOf(id string) (int64, bool)
}

// ClusterRoute is the link chosen by the cluster router.
type ClusterRoute struct {
	Link nodesource.Link `json:"link"`
	// Reposition is set when the link stays inside the current cluster to
	// reach a better exit.
	Reposition bool `json:"reposition"`
	// Distance is the cluster-hop distance to the frontier after taking Link.
	Distance int `json:"distance"`
}

// clusterDistances holds, per cluster, the number of cluster hops to the
// nearest cluster that borders the frontier (0 for boundary clusters).
type clusterDistances map[int64]int

// clusterDistances builds the cluster adjacency from visited-to-visited edges
// and runs one breadth-first search from a virtual node joined to every
// boundary cluster.
func (f *Finder) clusterDistances(clusters Clusters) clusterDistances {
	g := simple.NewUndirectedGraph()
	boundary := make(map[int64]struct{})
	maxID := int64(-1)

	addCluster := func(c int64) {
		if g.Node(c) == nil {
			g.AddNode(simple.Node(c))
		}
		if c > maxID {
			maxID = c
		}
	}

	for _, id := range f.cov.NodeIDs() {
		c, ok := clusters.ClusterOf(id)
		if !ok {
			continue
		}
		addCluster(c)
		for _, nb := range f.cov.Neighbors(id) {
			if !f.cov.HasVisited(nb) {
				boundary[c] = struct{}{}
				continue
			}
			nc, ok := clusters.ClusterOf(nb)
			if !ok || nc == c {
				continue
			}
			addCluster(nc)
			g.SetEdge(simple.Edge{F: simple.Node(c), T: simple.Node(nc)})
		}
	}

	dist := make(clusterDistances)
	if len(boundary) == 0 {
		return dist
	}
	sink := simple.Node(maxID + 1)
	g.AddNode(sink)
	for c := range boundary {
		g.SetEdge(simple.Edge{F: sink, T: simple.Node(c)})
	}

	var bfs traverse.BreadthFirst
	bfs.Walk(g, sink, func(n graph.Node, d int) bool {
		if n.ID() != sink.ID() {
			dist[n.ID()] = d - 1
		}
		return false
	})
	return dist
}

// ClusteredNearestFrontier is the cluster-level router for large graphs. It
// scores each current link by the cluster distance it leads to: a link into
// another cluster is worth 1+d, a link that stays in the current cluster is
// worth 2+d where d is the best exit from its target. Only links that strictly
// reduce the current cluster's distance are accepted; the lowest value wins
// and ties keep the first link. It returns nil when nothing improves.
func (f *Finder) ClusteredNearestFrontier(current string, links []nodesource.Link, clusters Clusters) *ClusterRoute {
	cur, ok := clusters.ClusterOf(current)
	if !ok {
		return nil
	}
	dist := f.clusterDistances(clusters)
	curDist, ok := dist[cur]
	if !ok {
		return nil
	}

	var (
		best      *ClusterRoute
		bestValue int
	)
	consider := func(l nodesource.Link, d int, reposition bool) {
		if d >= curDist {
			return
		}
		value := 1 + d
		if reposition {
			value = 2 + d
		}
		if best == nil || value < bestValue {
			best = &ClusterRoute{Link: l, Reposition: reposition, Distance: d}
			bestValue = value
		}
	}

	for _, l := range links {
		t := l.TargetID
		if t == current || !f.cov.HasVisited(t) {
			continue
		}
		tc, ok := clusters.ClusterOf(t)
		if !ok {
			continue
		}
		if tc != cur {
			if d, ok := dist[tc]; ok {
				consider(l, d, false)
			}
			continue
		}
		if d, ok := f.bestExit(t, cur, clusters, dist); ok {
			consider(l, d, true)
		}
	}
	return best
}

// bestExit returns the lowest cluster distance among id's neighbors outside
// cluster cur.
func (f *Finder) bestExit(id string, cur int64, clusters Clusters, dist clusterDistances) (int, bool) {
	best, found := 0, false
	for _, nb := range f.cov.Neighbors(id) {
		if !f.cov.HasVisited(nb) {
			continue
		}
		nc, ok := clusters.ClusterOf(nb)
		if !ok || nc == cur {
			continue
		}
		d, ok := dist[nc]
		if !ok {
			continue
		}
		if !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}
