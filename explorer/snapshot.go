package explorer

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/panoroam/coverage"
	"github.com/BaSui01/panoroam/nodesource"
)

// SnapshotVersion is bumped on incompatible changes to Snapshot.
const SnapshotVersion = 1

// Snapshot is everything needed to resume a run: the coverage graph plus the
// agent's own bookkeeping.
type Snapshot struct {
	Version           int               `json:"version"`
	RunID             string            `json:"run_id"`
	StepIndex         int               `json:"step_index"`
	CurrentID         string            `json:"current_id"`
	Mode              Mode              `json:"mode"`
	LastHeading       *float64          `json:"last_heading,omitempty"`
	StepsSinceNewCell int               `json:"steps_since_new_cell"`
	History           []string          `json:"history"`
	Aliases           map[string]string `json:"aliases,omitempty"`
	DistanceMeters    float64           `json:"distance_meters"`
	Graph             coverage.Snapshot `json:"graph"`
	SavedAt           time.Time         `json:"saved_at"`
}

// Snapshot captures the agent's state. It waits for an in-flight step to
// finish so that the graph and the scalars agree.
func (a *Agent) Snapshot() Snapshot {
	a.stepMu.Lock()
	defer a.stepMu.Unlock()

	a.mu.RLock()
	snap := Snapshot{
		Version:           SnapshotVersion,
		RunID:             a.runID,
		StepIndex:         a.stepIndex,
		Mode:              a.lastMode,
		StepsSinceNewCell: a.stepsSinceNewCell,
		SavedAt:           a.now(),
	}
	if a.current != nil {
		snap.CurrentID = a.current.ID
	}
	if a.lastHeading != nil {
		h := *a.lastHeading
		snap.LastHeading = &h
	}
	a.mu.RUnlock()

	snap.Graph = a.graph.Serialize()
	snap.History = a.graph.History()
	snap.Aliases = a.graph.Aliases()
	snap.DistanceMeters = a.graph.Stats().DistanceMeters
	return snap
}

// Restore replaces the agent's state with snap. The current node must be part
// of the snapshot's graph; its links are fetched again on the next step.
func (a *Agent) Restore(snap Snapshot) error {
	if snap.Version > SnapshotVersion {
		return ErrInvalidSnapshot.WithMessage("snapshot version %d is newer than %d", snap.Version, SnapshotVersion)
	}
	rec, ok := snap.Graph.Nodes[snap.CurrentID]
	if snap.CurrentID == "" || !ok {
		return ErrInvalidSnapshot.WithMessage("current node %q is not in the snapshot graph", snap.CurrentID)
	}

	if !a.stepMu.TryLock() {
		return ErrStepInFlight
	}
	defer a.stepMu.Unlock()

	a.graph.Restore(snap.Graph)
	a.graph.RestoreAliases(snap.Aliases)
	a.graph.RestoreHistory(snap.History)
	a.graph.RestoreDistance(snap.DistanceMeters)

	a.clusters.RebuildFromGraph(a.graph)
	for alias, canonical := range snap.Aliases {
		if pos, ok := a.graph.Position(canonical); ok {
			a.clusters.Assign(alias, pos)
		}
	}

	a.mu.Lock()
	a.runID = snap.RunID
	a.stepIndex = snap.StepIndex
	a.lastMode = snap.Mode
	a.stepsSinceNewCell = snap.StepsSinceNewCell
	a.lastHeading = nil
	if snap.LastHeading != nil {
		h := *snap.LastHeading
		a.lastHeading = &h
	}
	cur := &nodesource.Node{ID: snap.CurrentID}
	cur.Position.Lat, cur.Position.Lng = rec.Lat, rec.Lng
	a.current = cur
	a.mu.Unlock()

	a.publishCoverage()
	a.logger.Info("exploration restored",
		zap.String("run_id", snap.RunID),
		zap.Int("step_index", snap.StepIndex),
		zap.String("node_id", snap.CurrentID),
		zap.Int("visited", len(snap.Graph.Nodes)))
	return nil
}
