// GraphSource 是 nodesource.Source 的内存实现。
//
// 节点与边在测试中显式声明, 支持单向边、死胡同、别名与错误注入,
// 并记录每次调用以便断言。
package mocks

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/BaSui01/panoroam/geo"
	"github.com/BaSui01/panoroam/nodesource"
)

// DefaultSearchRadius bounds position queries to nodes this close, in meters.
const DefaultSearchRadius = 6.0

type mockNode struct {
	pos   geo.LatLng
	links []string
}

// SourceCall records one call made to a GraphSource.
type SourceCall struct {
	Method string
	NodeID string
	At     *geo.LatLng
}

// GraphSource is an in-memory implicit graph.
type GraphSource struct {
	mu      sync.Mutex
	nodes   map[string]*mockNode
	aliases map[string]string
	errs    map[string]error
	radius  float64
	calls   []SourceCall
}

// NewGraphSource creates an empty source.
func NewGraphSource() *GraphSource {
	return &GraphSource{
		nodes:   make(map[string]*mockNode),
		aliases: make(map[string]string),
		errs:    make(map[string]error),
		radius:  DefaultSearchRadius,
	}
}

// AddNode declares a node with one-way links to the given ids.
func (g *GraphSource) AddNode(id string, pos geo.LatLng, links ...string) *GraphSource {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		n = &mockNode{}
		g.nodes[id] = n
	}
	n.pos = pos
	n.links = append(n.links, links...)
	return g
}

// Link adds one-way links from -> to...
func (g *GraphSource) Link(from string, to ...string) *GraphSource {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[from]; ok {
		n.links = append(n.links, to...)
	}
	return g
}

// Connect adds links in both directions.
func (g *GraphSource) Connect(a, b string) *GraphSource {
	return g.Link(a, b).Link(b, a)
}

// SetLinks replaces a node's links; no ids makes it a dead end.
func (g *GraphSource) SetLinks(id string, links ...string) *GraphSource {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[id]; ok {
		n.links = append([]string(nil), links...)
	}
	return g
}

// Alias makes requests for alias settle at canonical. The alias may be
// linked to but is never returned as a node id.
func (g *GraphSource) Alias(alias, canonical string) *GraphSource {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.aliases[alias] = canonical
	return g
}

// FailOn makes every call touching id fail with err; nil clears it.
func (g *GraphSource) FailOn(id string, err error) *GraphSource {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.errs, id)
	} else {
		g.errs[id] = err
	}
	return g
}

// SetSearchRadius changes the position query radius.
func (g *GraphSource) SetSearchRadius(meters float64) *GraphSource {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.radius = meters
	return g
}

// Calls returns a copy of the call log.
func (g *GraphSource) Calls() []SourceCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SourceCall(nil), g.calls...)
}

// CallCount counts calls to method ("Expand" or "Settle").
func (g *GraphSource) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Position returns a declared node's position.
func (g *GraphSource) Position(id string) geo.LatLng {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[id]; ok {
		return n.pos
	}
	return geo.LatLng{}
}

// Expand implements nodesource.Source.
func (g *GraphSource) Expand(ctx context.Context, q nodesource.Query) (*nodesource.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	call := SourceCall{Method: "Expand", NodeID: q.NodeID}
	if q.Position != nil {
		p := *q.Position
		call.At = &p
	}
	g.calls = append(g.calls, call)

	if q.Position != nil {
		id, ok := g.nearestLocked(*q.Position)
		if !ok {
			return nil, nodesource.ErrNotFound.WithMessage("no node within %.0fm of %s", g.radius, q.Position)
		}
		return g.nodeLocked(id)
	}
	return g.nodeLocked(q.NodeID)
}

// Settle implements nodesource.Source.
func (g *GraphSource) Settle(ctx context.Context, nodeID string) (*nodesource.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, SourceCall{Method: "Settle", NodeID: nodeID})
	return g.nodeLocked(nodeID)
}

func (g *GraphSource) nodeLocked(id string) (*nodesource.Node, error) {
	if err := g.errs[id]; err != nil {
		return nil, err
	}
	if c, ok := g.aliases[id]; ok {
		id = c
		if err := g.errs[id]; err != nil {
			return nil, err
		}
	}
	n, ok := g.nodes[id]
	if !ok {
		return nil, nodesource.ErrNotFound.WithMessage("unknown node %q", id)
	}

	out := &nodesource.Node{ID: id, Position: n.pos, Links: make([]nodesource.Link, 0, len(n.links))}
	for _, to := range n.links {
		heading := 0.0
		target := to
		if c, ok := g.aliases[to]; ok {
			target = c
		}
		if t, ok := g.nodes[target]; ok {
			heading = geo.Bearing(n.pos, t.pos)
		}
		out.Links = append(out.Links, nodesource.Link{
			TargetID:    to,
			Heading:     heading,
			Description: "to " + to,
		})
	}
	return out, nil
}

func (g *GraphSource) nearestLocked(p geo.LatLng) (string, bool) {
	best, bestDist := "", math.Inf(1)
	for id, n := range g.nodes {
		d := geo.Distance(p, n.pos)
		if d <= g.radius && (d < bestDist || (d == bestDist && id < best)) {
			best, bestDist = id, d
		}
	}
	return best, best != ""
}

// GridID names the node at row r, column c of a Grid.
func GridID(r, c int) string { return fmt.Sprintf("r%dc%d", r, c) }

// Grid builds a rows x cols lattice with spacing meters between neighbors,
// rows running north and columns east of origin, every neighbor pair
// connected both ways.
func Grid(rows, cols int, spacing float64, origin geo.LatLng) *GraphSource {
	g := NewGraphSource()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			pos := geo.Project(geo.Project(origin, 0, float64(r)*spacing), 90, float64(c)*spacing)
			g.AddNode(GridID(r, c), pos)
		}
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c+1 < cols {
				g.Connect(GridID(r, c), GridID(r, c+1))
			}
			if r+1 < rows {
				g.Connect(GridID(r, c), GridID(r+1, c))
			}
		}
	}
	return g
}

// Line builds n nodes named ids[i] spaced along heading east, connected both
// ways in sequence.
func Line(origin geo.LatLng, spacing float64, ids ...string) *GraphSource {
	g := NewGraphSource()
	for i, id := range ids {
		g.AddNode(id, geo.Project(origin, 90, float64(i)*spacing))
	}
	for i := 0; i+1 < len(ids); i++ {
		g.Connect(ids[i], ids[i+1])
	}
	return g
}
