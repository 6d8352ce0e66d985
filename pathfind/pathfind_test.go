package pathfind

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/panoroam/coverage"
	"github.com/BaSui01/panoroam/geo"
	"github.com/BaSui01/panoroam/nodesource"
)

var origin = geo.LatLng{Lat: 48.8566, Lng: 2.3522}

func toLinks(ids ...string) []nodesource.Link {
	out := make([]nodesource.Link, len(ids))
	for i, id := range ids {
		out[i] = nodesource.Link{TargetID: id, Heading: float64(i * 45)}
	}
	return out
}

// buildGraph visits nodes in order; adj lists each node's advertised links.
func buildGraph(order []string, adj map[string][]string) *coverage.Graph {
	g := coverage.New(coverage.Options{})
	for i, id := range order {
		g.RecordVisit(id, geo.Project(origin, 0, float64(i*15)), toLinks(adj[id]...))
	}
	return g
}

func TestNearestFrontier_Line(t *testing.T) {
	g := buildGraph([]string{"A", "B", "C"}, map[string][]string{
		"A": {"B"},
		"B": {"A", "C"},
		"C": {"B", "D"},
	})
	r := New(g).NearestFrontier("A")
	require.NotNil(t, r)
	assert.Equal(t, "D", r.Target)
	assert.Equal(t, "B", r.NextHop)
	assert.Equal(t, 3, r.PathLength)
	assert.Equal(t, []string{"A", "B", "C", "D"}, r.Path)
}

func TestNearestFrontier_PicksShortest(t *testing.T) {
	// A-B-C-F1 is three hops, A-E-F2 is two.
	g := buildGraph([]string{"A", "B", "C", "E"}, map[string][]string{
		"A": {"B", "E"},
		"B": {"C"},
		"C": {"F1"},
		"E": {"F2"},
	})
	r := New(g).NearestFrontier("A")
	require.NotNil(t, r)
	assert.Equal(t, "F2", r.Target)
	assert.Equal(t, "E", r.NextHop)
	assert.Equal(t, 2, r.PathLength)
}

func TestNearestFrontier_NoResult(t *testing.T) {
	closed := buildGraph([]string{"A", "B"}, map[string][]string{"A": {"B"}, "B": {"A"}})
	assert.Nil(t, New(closed).NearestFrontier("A"))
	assert.Nil(t, New(closed).NearestFrontier("unknown"))

	// The frontier exists but only behind an unvisited node.
	g := buildGraph([]string{"A", "X"}, map[string][]string{"A": {}, "X": {"Y"}})
	assert.Nil(t, New(g).NearestFrontier("A"))
}

func TestReachableFrontierCount(t *testing.T) {
	g := buildGraph([]string{"A", "B", "C"}, map[string][]string{
		"A": {"B", "F1"},
		"B": {"C", "F2"},
		"C": {"F3", "F4"},
	})
	f := New(g)
	assert.Equal(t, 1, f.ReachableFrontierCount("A", 1))
	assert.Equal(t, 2, f.ReachableFrontierCount("A", 2))
	assert.Equal(t, 4, f.ReachableFrontierCount("A", 3))
	assert.Equal(t, 0, f.ReachableFrontierCount("F1", 3))
	assert.Equal(t, 0, f.ReachableFrontierCount("A", 0))
}

func TestEscapeDirection(t *testing.T) {
	g := buildGraph([]string{"A", "B", "C", "A", "B", "A"}, map[string][]string{
		"A": {"B", "C", "N"},
		"B": {"A"},
		"C": {"A", "F1", "F2"},
	})
	f := New(g)

	link, score, ok := f.EscapeDirection("A", toLinks("B", "C", "N"))
	require.True(t, ok)
	assert.Equal(t, "N", link.TargetID, "frontier targets carry a large bonus")
	assert.InDelta(t, 100, score, 1e-9)

	link, _, ok = f.EscapeDirection("A", toLinks("B", "C"))
	require.True(t, ok)
	// B: -10*2 visits, -2*(10-1) recency, +5*3 reachable (N, F1, F2).
	// C: -10*1 visits, -2*(10-3) recency, +5*3 reachable (F1, F2, N).
	assert.Equal(t, "C", link.TargetID)
	assert.InDelta(t, -9, f.EscapeScore("C"), 1e-9)
	assert.InDelta(t, -23, f.EscapeScore("B"), 1e-9)

	_, _, ok = f.EscapeDirection("A", toLinks("A"))
	assert.False(t, ok)
}

func TestEscapeDirection_TieKeepsFirst(t *testing.T) {
	g := buildGraph([]string{"A"}, map[string][]string{"A": {"X", "Y"}})
	link, _, ok := New(g).EscapeDirection("A", toLinks("X", "Y"))
	require.True(t, ok)
	assert.Equal(t, "X", link.TargetID)
}

// bfsDistance is a reference shortest-path length to any unvisited node.
func bfsDistance(g *coverage.Graph, start string) int {
	dist := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !g.HasVisited(cur) {
			return dist[cur]
		}
		for _, nb := range g.Neighbors(cur) {
			if _, ok := dist[nb]; !ok {
				dist[nb] = dist[cur] + 1
				queue = append(queue, nb)
			}
		}
	}
	return -1
}

func TestNearestFrontier_PathProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 15).Draw(t, "size")
		visited := rapid.IntRange(1, size).Draw(t, "visited")
		adj := make(map[string][]string, size)
		var order []string
		for i := 0; i < visited; i++ {
			id := fmt.Sprintf("n%d", i)
			order = append(order, id)
			for _, j := range rapid.SliceOfN(rapid.IntRange(0, size-1), 0, 3).Draw(t, "links") {
				adj[id] = append(adj[id], fmt.Sprintf("n%d", j))
			}
		}
		g := buildGraph(order, adj)
		start := order[rapid.IntRange(0, len(order)-1).Draw(t, "start")]

		r := New(g).NearestFrontier(start)
		want := bfsDistance(g, start)
		if r == nil {
			if want != -1 {
				t.Fatalf("no route from %s but reference found length %d", start, want)
			}
			return
		}
		if r.PathLength != want {
			t.Fatalf("path length %d, reference %d", r.PathLength, want)
		}
		if r.Path[0] != start || r.NextHop != r.Path[1] || g.HasVisited(r.Target) {
			t.Fatalf("malformed route %+v", r)
		}
		for i := 0; i < len(r.Path)-1; i++ {
			if !g.HasVisited(r.Path[i]) {
				t.Fatalf("route passes through unvisited %s", r.Path[i])
			}
			if !contains(g.Neighbors(r.Path[i]), r.Path[i+1]) {
				t.Fatalf("%s -> %s is not an edge", r.Path[i], r.Path[i+1])
			}
		}
	})
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
