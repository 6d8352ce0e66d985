package coverage

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/panoroam/nodesource"
)

func frontierIDs(g *Graph) []string {
	var ids []string
	for _, e := range g.FrontierEntries() {
		ids = append(ids, e.NodeID)
	}
	sort.Strings(ids)
	return ids
}

func TestSerializeRestore_RoundTrip(t *testing.T) {
	g := newTestGraph()
	g.RecordVisit("A", at(0), links("B", "C"))
	g.RecordVisit("B", at(30), links("A", "D"))
	g.RecordVisit("A", at(0), links("B", "C"))

	snap := g.Serialize()
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	r := newTestGraph()
	r.Restore(decoded)

	assert.ElementsMatch(t, g.NodeIDs(), r.NodeIDs())
	assert.Equal(t, frontierIDs(g), frontierIDs(r))
	for _, id := range g.NodeIDs() {
		assert.ElementsMatch(t, g.Neighbors(id), r.Neighbors(id), id)
		assert.Equal(t, 1, r.VisitCount(id))
	}
	assert.Empty(t, r.History())
	assert.Equal(t, g.Stats().Cells, r.Stats().Cells)

	e, ok := r.FrontierEntry("C")
	require.True(t, ok)
	assert.Equal(t, restoredDescription, e.Description)
}

func TestRestore_OrdersByLastVisit(t *testing.T) {
	g := newTestGraph()
	g.RecordVisit("Z", at(0), links("Y"))
	g.RecordVisit("Y", at(30), links("X"))
	g.RecordVisit("X", at(60), nil)

	r := newTestGraph()
	r.Restore(g.Serialize())
	assert.Equal(t, []string{"Z", "Y", "X"}, r.NodeIDs())
}

func TestRestore_EmptySnapshot(t *testing.T) {
	g := newTestGraph()
	g.RecordVisit("A", at(0), links("B"))
	g.Restore(Snapshot{})
	assert.Equal(t, 0, g.Len())
	assert.False(t, g.HasFrontier())
}

// randomWalk drives a graph through a random visit sequence over a small
// synthetic world and returns the world adjacency.
func randomWalk(t *rapid.T, g *Graph) map[string][]string {
	size := rapid.IntRange(2, 12).Draw(t, "size")
	world := make(map[string][]string, size)
	for i := 0; i < size; i++ {
		id := fmt.Sprintf("n%d", i)
		targets := rapid.SliceOfN(rapid.IntRange(0, size-1), 0, 4).Draw(t, "links-"+id)
		for _, j := range targets {
			world[id] = append(world[id], fmt.Sprintf("n%d", j))
		}
	}
	steps := rapid.IntRange(1, 30).Draw(t, "steps")
	for s := 0; s < steps; s++ {
		id := fmt.Sprintf("n%d", rapid.IntRange(0, size-1).Draw(t, "visit"))
		g.RecordVisit(id, at(float64(s*7)), links(world[id]...))
	}
	return world
}

func checkInvariants(t *rapid.T, g *Graph) {
	visited := map[string]bool{}
	for _, id := range g.NodeIDs() {
		visited[id] = true
	}
	for _, e := range g.FrontierEntries() {
		if visited[e.NodeID] {
			t.Fatalf("%s is both visited and frontier", e.NodeID)
		}
		if !visited[e.DiscoveredFrom] {
			t.Fatalf("frontier entry %s discovered from unvisited %s", e.NodeID, e.DiscoveredFrom)
		}
	}
	for id := range visited {
		for _, nb := range g.Neighbors(id) {
			if !visited[nb] {
				if !g.InFrontier(nb) {
					t.Fatalf("neighbor %s of %s is neither visited nor frontier", nb, id)
				}
				continue
			}
			found := false
			for _, back := range g.Neighbors(nb) {
				if back == id {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("edge %s-%s is not mirrored", id, nb)
			}
		}
	}
	if len(g.History()) > DefaultHistorySize {
		t.Fatalf("history exceeds window: %d", len(g.History()))
	}
}

func TestGraph_InvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := newTestGraph()
		randomWalk(t, g)
		checkInvariants(t, g)

		r := newTestGraph()
		r.Restore(g.Serialize())
		checkInvariants(t, r)
		if len(frontierIDs(r)) != len(frontierIDs(g)) {
			t.Fatalf("restored frontier %v, want %v", frontierIDs(r), frontierIDs(g))
		}
	})
}

func TestGraph_PrunedNeverReturns(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := newTestGraph()
		g.RecordVisit("root", at(0), []nodesource.Link{{TargetID: "gone"}, {TargetID: "n0"}})
		g.Prune("gone")
		randomWalk(t, g)
		for i := 0; i < 3; i++ {
			g.RecordVisit("root", at(0), []nodesource.Link{{TargetID: "gone"}})
		}
		if g.InFrontier("gone") {
			t.Fatalf("pruned id came back")
		}
	})
}
