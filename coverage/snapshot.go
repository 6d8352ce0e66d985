package coverage

import (
	"sort"
	"time"

	"github.com/BaSui01/panoroam/geo"
)

// coordinateDecimals keeps ~11cm of precision in snapshots.
const coordinateDecimals = 6

// restoredDescription marks frontier entries rebuilt from a snapshot, whose
// original link heading and description were not persisted.
const restoredDescription = "restored"

// NodeRecord is the persisted form of a visited node.
type NodeRecord struct {
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Neighbors     []string  `json:"neighbors"`
	LastVisitedAt time.Time `json:"last_visited_at"`
}

// Snapshot is the serialized graph: node id -> record.
type Snapshot struct {
	Nodes map[string]NodeRecord `json:"nodes"`
}

// Serialize flattens the graph into a snapshot.
func (g *Graph) Serialize() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := Snapshot{Nodes: make(map[string]NodeRecord, len(g.nodes))}
	for id, n := range g.nodes {
		pos := n.pos.Round(coordinateDecimals)
		snap.Nodes[id] = NodeRecord{
			Lat:           pos.Lat,
			Lng:           pos.Lng,
			Neighbors:     n.neighbors.items(),
			LastVisitedAt: n.lastVisitedAt,
		}
	}
	return snap
}

// Restore replaces the graph's contents with snap. Visit counters restart at
// one per node, the history window is emptied and the frontier is rebuilt from
// neighbor ids that are not themselves in the snapshot.
func (g *Graph) Restore(snap Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()

	ids := make([]string, 0, len(snap.Nodes))
	for id := range snap.Nodes {
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := snap.Nodes[ids[i]], snap.Nodes[ids[j]]
		if !a.LastVisitedAt.Equal(b.LastVisitedAt) {
			return a.LastVisitedAt.Before(b.LastVisitedAt)
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		rec := snap.Nodes[id]
		pos := geo.LatLng{Lat: rec.Lat, Lng: rec.Lng}
		g.nodes[id] = &node{
			pos:           pos,
			neighbors:     newIDSet(),
			lastVisitedAt: rec.LastVisitedAt,
		}
		g.order = append(g.order, id)
		g.visits[id] = 1
		if cell := geo.CellKey(pos, g.opts.CellSizeMeters); cell != geo.InvalidCell {
			g.cells[cell] = struct{}{}
		}
	}

	for _, id := range ids {
		for _, nb := range snap.Nodes[id].Neighbors {
			g.linkLocked(id, nb, 0, restoredDescription)
		}
	}

	if len(ids) > 0 {
		last := g.nodes[ids[len(ids)-1]].pos
		if last.Valid() {
			g.lastPos = &last
		}
	}
}
