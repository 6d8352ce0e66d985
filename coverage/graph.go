// Package coverage is the authoritative record of where the explorer has been
// and what is still unknown: visited nodes with mirrored neighbor edges, the
// unvisited frontier, visit counters, a short recent-history window and the
// set of spatial cells touched so far.
package coverage

import (
	"sync"
	"time"

	"github.com/BaSui01/panoroam/geo"
	"github.com/BaSui01/panoroam/nodesource"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultHistorySize    = 10
	DefaultCellSizeMeters = 20.0
)

// Options configures a Graph.
type Options struct {
	HistorySize    int
	CellSizeMeters float64
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.CellSizeMeters <= 0 {
		o.CellSizeMeters = DefaultCellSizeMeters
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// FrontierEntry describes a known but unvisited node.
type FrontierEntry struct {
	NodeID         string  `json:"node_id"`
	DiscoveredFrom string  `json:"discovered_from"`
	Heading        float64 `json:"heading"`
	Description    string  `json:"description,omitempty"`
}

// VisitResult reports what a RecordVisit call discovered.
type VisitResult struct {
	FirstVisit bool
	NewCell    bool
	Cell       string
}

// Stats summarises coverage for step records and status endpoints.
type Stats struct {
	Visited        int     `json:"visited"`
	Frontier       int     `json:"frontier"`
	Cells          int     `json:"cells"`
	Aliases        int     `json:"aliases"`
	DistanceMeters float64 `json:"distance_meters"`
}

type node struct {
	pos           geo.LatLng
	neighbors     *idSet
	lastVisitedAt time.Time
}

// Graph is safe for concurrent readers; mutations are expected from a single
// exploration stream.
type Graph struct {
	opts Options

	mu            sync.RWMutex
	nodes         map[string]*node
	order         []string
	frontier      map[string]*FrontierEntry
	frontierOrder *idSet
	refs          map[string]*idSet // unvisited id -> visited nodes linking to it
	visits        map[string]int
	history       []string
	cells         map[string]struct{}
	aliases       map[string]string
	pruned        map[string]struct{}
	lastPos       *geo.LatLng
	distance      float64
}

// New creates an empty coverage graph.
func New(opts Options) *Graph {
	g := &Graph{opts: opts.withDefaults()}
	g.resetLocked()
	return g
}

func (g *Graph) resetLocked() {
	g.nodes = make(map[string]*node)
	g.order = nil
	g.frontier = make(map[string]*FrontierEntry)
	g.frontierOrder = newIDSet()
	g.refs = make(map[string]*idSet)
	g.visits = make(map[string]int)
	g.history = nil
	g.cells = make(map[string]struct{})
	g.aliases = make(map[string]string)
	g.pruned = make(map[string]struct{})
	g.lastPos = nil
	g.distance = 0
}

// Reset clears the graph, frontier, counters and history together.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

// CellSizeMeters returns the spatial cell edge length.
func (g *Graph) CellSizeMeters() float64 { return g.opts.CellSizeMeters }

// RecordVisit marks id visited at pos with the given outgoing links. It is
// idempotent with respect to graph structure and safe on revisits; counters,
// history and travel distance advance on every call.
func (g *Graph) RecordVisit(id string, pos geo.LatLng, links []nodesource.Link) VisitResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	id = g.canonicalLocked(id)
	n, seen := g.nodes[id]
	if !seen {
		n = &node{neighbors: newIDSet()}
		g.nodes[id] = n
		g.order = append(g.order, id)
		if refs := g.refs[id]; refs != nil {
			for _, r := range refs.items() {
				n.neighbors.add(r)
			}
			delete(g.refs, id)
		}
	}
	n.pos = pos
	n.lastVisitedAt = g.opts.Now()
	g.removeFrontierLocked(id)

	for _, l := range links {
		g.linkLocked(id, l.TargetID, l.Heading, l.Description)
	}

	g.history = append(g.history, id)
	if over := len(g.history) - g.opts.HistorySize; over > 0 {
		g.history = append([]string(nil), g.history[over:]...)
	}
	g.visits[id]++

	cell := geo.CellKey(pos, g.opts.CellSizeMeters)
	newCell := false
	if cell != geo.InvalidCell {
		if _, ok := g.cells[cell]; !ok {
			g.cells[cell] = struct{}{}
			newCell = true
		}
	}

	if pos.Valid() {
		if g.lastPos != nil {
			g.distance += geo.Distance(*g.lastPos, pos)
		}
		p := pos
		g.lastPos = &p
	}

	return VisitResult{FirstVisit: !seen, NewCell: newCell, Cell: cell}
}

// linkLocked records the edge from -> to, mirroring it when to is visited and
// registering to on the frontier otherwise. First discoverer wins.
func (g *Graph) linkLocked(from, to string, heading float64, description string) {
	to = g.canonicalLocked(to)
	if to == "" || to == from {
		return
	}
	if _, dead := g.pruned[to]; dead {
		return
	}
	fn := g.nodes[from]
	fn.neighbors.add(to)

	if other, ok := g.nodes[to]; ok {
		other.neighbors.add(from)
		return
	}

	refs := g.refs[to]
	if refs == nil {
		refs = newIDSet()
		g.refs[to] = refs
	}
	refs.add(from)

	if _, ok := g.frontier[to]; !ok {
		g.frontier[to] = &FrontierEntry{
			NodeID:         to,
			DiscoveredFrom: from,
			Heading:        geo.NormalizeHeading(heading),
			Description:    description,
		}
		g.frontierOrder.add(to)
	}
}

func (g *Graph) removeFrontierLocked(id string) {
	if _, ok := g.frontier[id]; ok {
		delete(g.frontier, id)
		g.frontierOrder.remove(id)
	}
}

// AddEdge records a synthetic edge from a visited node, e.g. the jump out of
// a dead end found by projecting along the last heading. It reports whether
// the edge was recorded.
func (g *Graph) AddEdge(from, to string, heading float64, description string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	from = g.canonicalLocked(from)
	if _, ok := g.nodes[from]; !ok {
		return false
	}
	to = g.canonicalLocked(to)
	if to == "" || to == from {
		return false
	}
	g.linkLocked(from, to, heading, description)
	return true
}

// ResolveAlias records that requesting alias settled at canonical. The alias
// leaves the frontier and every reference to it is rewritten to canonical.
// Ids that were themselves visited are never aliased.
func (g *Graph) ResolveAlias(alias, canonical string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	canonical = g.canonicalLocked(canonical)
	if alias == "" || alias == canonical {
		return false
	}
	if _, visited := g.nodes[alias]; visited {
		return false
	}

	g.aliases[alias] = canonical
	for k, v := range g.aliases {
		if v == alias {
			g.aliases[k] = canonical
		}
	}
	g.removeFrontierLocked(alias)

	refs := g.refs[alias]
	delete(g.refs, alias)
	if refs == nil {
		return true
	}
	for _, r := range refs.items() {
		rn := g.nodes[r]
		if r == canonical {
			rn.neighbors.remove(alias)
			continue
		}
		rn.neighbors.replace(alias, canonical)
		g.linkLocked(r, canonical, 0, "")
	}
	return true
}

// Canonical maps an alias to the id it resolved to; other ids map to themselves.
func (g *Graph) Canonical(id string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.canonicalLocked(id)
}

func (g *Graph) canonicalLocked(id string) string {
	if c, ok := g.aliases[id]; ok {
		return c
	}
	return id
}

// Aliases returns a copy of the alias table.
func (g *Graph) Aliases() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]string, len(g.aliases))
	for k, v := range g.aliases {
		out[k] = v
	}
	return out
}

// RestoreAliases installs a previously saved alias table, rewriting any
// frontier references to aliased ids.
func (g *Graph) RestoreAliases(aliases map[string]string) {
	for alias, canonical := range aliases {
		g.ResolveAlias(alias, canonical)
	}
}

// Prune forgets an unvisited id that the source refuses to resolve. The id is
// removed from the frontier and from every neighbor set, and ignored if it is
// linked again.
func (g *Graph) Prune(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, visited := g.nodes[id]; visited {
		return false
	}
	g.pruned[id] = struct{}{}
	g.removeFrontierLocked(id)
	if refs := g.refs[id]; refs != nil {
		for _, r := range refs.items() {
			g.nodes[r].neighbors.remove(id)
		}
		delete(g.refs, id)
	}
	return true
}
