// Package cluster groups node ids that the imagery source exposes for the same
// physical spot. Assignment is first-match-wins against running-mean centroids
// and never revisited, so membership depends on discovery order.
package cluster

import (
	"sync"

	"github.com/BaSui01/panoroam/geo"
)

// DefaultThresholdMeters is the join radius used when none is configured.
const DefaultThresholdMeters = 8.0

// Graph is the subset of the coverage graph needed to rebuild the index.
type Graph interface {
	NodeIDs() []string
	Position(id string) (geo.LatLng, bool)
}

// Cluster is a group of node ids treated as one location for routing.
type Cluster struct {
	ID       int64
	Members  []string
	Centroid geo.LatLng
}

// Index is the pano cluster index. It is safe for concurrent use.
type Index struct {
	threshold float64

	mu       sync.RWMutex
	clusters []*Cluster // insertion order, ID == position
	byNode   map[string]int64
}

// NewIndex creates an empty index joining nodes within thresholdMeters of a
// cluster centroid.
func NewIndex(thresholdMeters float64) *Index {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}
	return &Index{
		threshold: thresholdMeters,
		byNode:    make(map[string]int64),
	}
}

// Threshold returns the join radius in meters.
func (x *Index) Threshold() float64 { return x.threshold }

// Assign places id into the first cluster (in creation order) whose centroid
// lies within the threshold, or into a new singleton cluster. It is a no-op
// for ids that are already assigned and returns the id's cluster.
func (x *Index) Assign(id string, pos geo.LatLng) int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.assignLocked(id, pos)
}

func (x *Index) assignLocked(id string, pos geo.LatLng) int64 {
	if cid, ok := x.byNode[id]; ok {
		return cid
	}

	for _, c := range x.clusters {
		if geo.Distance(c.Centroid, pos) > x.threshold {
			continue
		}
		n := float64(len(c.Members))
		c.Centroid = geo.LatLng{
			Lat: (c.Centroid.Lat*n + pos.Lat) / (n + 1),
			Lng: (c.Centroid.Lng*n + pos.Lng) / (n + 1),
		}
		c.Members = append(c.Members, id)
		x.byNode[id] = c.ID
		return c.ID
	}

	c := &Cluster{
		ID:       int64(len(x.clusters)),
		Members:  []string{id},
		Centroid: pos,
	}
	x.clusters = append(x.clusters, c)
	x.byNode[id] = c.ID
	return c.ID
}

// ClusterOf returns the cluster id for a node.
func (x *Index) ClusterOf(id string) (int64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	cid, ok := x.byNode[id]
	return cid, ok
}

// MembersOf returns a copy of the cluster's member ids in assignment order.
func (x *Index) MembersOf(clusterID int64) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if clusterID < 0 || clusterID >= int64(len(x.clusters)) {
		return nil
	}
	return append([]string(nil), x.clusters[clusterID].Members...)
}

// Centroid returns the cluster's running-mean position.
func (x *Index) Centroid(clusterID int64) (geo.LatLng, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if clusterID < 0 || clusterID >= int64(len(x.clusters)) {
		return geo.LatLng{}, false
	}
	return x.clusters[clusterID].Centroid, true
}

// Len returns the number of clusters.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.clusters)
}

// Reset drops every cluster.
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.clusters = nil
	x.byNode = make(map[string]int64)
}

// RebuildFromGraph re-derives the index from scratch, assigning visited nodes
// in the graph's visit order.
func (x *Index) RebuildFromGraph(g Graph) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.clusters = nil
	x.byNode = make(map[string]int64)
	for _, id := range g.NodeIDs() {
		if pos, ok := g.Position(id); ok {
			x.assignLocked(id, pos)
		}
	}
}
