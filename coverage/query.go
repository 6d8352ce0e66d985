package coverage

import (
	"github.com/BaSui01/panoroam/geo"
)

// HasVisited reports whether id (or the id it aliases) has been visited.
func (g *Graph) HasVisited(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[g.canonicalLocked(id)]
	return ok
}

// VisitCount returns how many times id became current.
func (g *Graph) VisitCount(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.visits[g.canonicalLocked(id)]
}

// FrontierSize returns the number of known unvisited nodes.
func (g *Graph) FrontierSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.frontier)
}

// HasFrontier reports whether any unvisited node is known.
func (g *Graph) HasFrontier() bool {
	return g.FrontierSize() > 0
}

// InFrontier reports whether id is a frontier entry.
func (g *Graph) InFrontier(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.frontier[g.canonicalLocked(id)]
	return ok
}

// FrontierEntry returns the frontier entry for id.
func (g *Graph) FrontierEntry(id string) (FrontierEntry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.frontier[g.canonicalLocked(id)]
	if !ok {
		return FrontierEntry{}, false
	}
	return *e, true
}

// FrontierEntries returns the frontier in discovery order.
func (g *Graph) FrontierEntries() []FrontierEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]FrontierEntry, 0, len(g.frontier))
	g.frontierOrder.each(func(id string) {
		out = append(out, *g.frontier[id])
	})
	return out
}

// Len returns the number of visited nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// NodeIDs returns visited ids in first-visit order.
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Neighbors returns the neighbor ids of a visited node in insertion order.
func (g *Graph) Neighbors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[g.canonicalLocked(id)]
	if !ok {
		return nil
	}
	return n.neighbors.items()
}

// Position returns the stored position of a visited node.
func (g *Graph) Position(id string) (geo.LatLng, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[g.canonicalLocked(id)]
	if !ok {
		return geo.LatLng{}, false
	}
	return n.pos, true
}

// History returns the recent-history window, oldest first.
func (g *Graph) History() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.history...)
}

// RestoreHistory replaces the recent-history window, keeping the newest
// entries when h exceeds the window size.
func (g *Graph) RestoreHistory(h []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if over := len(h) - g.opts.HistorySize; over > 0 {
		h = h[over:]
	}
	g.history = append([]string(nil), h...)
}

// HistoryIndexFromEnd returns the distance of id's most recent occurrence from
// the end of the history window (0 = most recent), or -1 when absent.
func (g *Graph) HistoryIndexFromEnd(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id = g.canonicalLocked(id)
	for i := len(g.history) - 1; i >= 0; i-- {
		if g.history[i] == id {
			return len(g.history) - 1 - i
		}
	}
	return -1
}

// SeenBefore reports whether id occurs in the history window other than as
// its newest entry.
func (g *Graph) SeenBefore(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id = g.canonicalLocked(id)
	for i := 0; i < len(g.history)-1; i++ {
		if g.history[i] == id {
			return true
		}
	}
	return false
}

// Stats summarises current coverage.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{
		Visited:        len(g.nodes),
		Frontier:       len(g.frontier),
		Cells:          len(g.cells),
		Aliases:        len(g.aliases),
		DistanceMeters: g.distance,
	}
}

// RestoreDistance sets the accumulated travel distance, used when resuming a
// run from a snapshot.
func (g *Graph) RestoreDistance(meters float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.distance = meters
}
