// Package nodesource defines the contract for the external imagery graph: a
// service that expands a node id or a position into a node with outgoing
// links, and that can settle the viewer at a node.
package nodesource

import (
	"context"
	"fmt"

	"github.com/BaSui01/panoroam/geo"
	"github.com/BaSui01/panoroam/types"
)

// ErrNotFound is returned when no node exists near a query.
var ErrNotFound = types.NewError(types.ErrNodeNotFound, "no node found near query")

// Link is an outgoing edge advertised by a node.
type Link struct {
	TargetID    string  `json:"target_id"`
	Heading     float64 `json:"heading"`
	Description string  `json:"description,omitempty"`
}

// Node is the expanded view of one panorama.
type Node struct {
	ID       string     `json:"id"`
	Position geo.LatLng `json:"position"`
	Links    []Link     `json:"links"`
}

// Query selects a node either by id or by position. Exactly one is set.
type Query struct {
	NodeID   string      `json:"node_id,omitempty"`
	Position *geo.LatLng `json:"position,omitempty"`
}

// ByID builds an id query.
func ByID(id string) Query { return Query{NodeID: id} }

// ByPosition builds a position query.
func ByPosition(p geo.LatLng) Query { return Query{Position: &p} }

func (q Query) String() string {
	if q.Position != nil {
		return "position " + q.Position.String()
	}
	return fmt.Sprintf("node %q", q.NodeID)
}

// Source is the imagery graph. Settle may resolve to a different node id than
// requested when the source exposes several ids for one location.
type Source interface {
	Expand(ctx context.Context, q Query) (*Node, error)
	Settle(ctx context.Context, nodeID string) (*Node, error)
}
