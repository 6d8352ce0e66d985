package explorer

import (
	"time"

	"github.com/BaSui01/panoroam/coverage"
	"github.com/BaSui01/panoroam/geo"
)

// Loop guard labels carried in StepRecord.LoopGuard.
const (
	LoopGuardAlternating = "alternating"
	LoopGuardCycle       = "cycle"
	LoopGuardStale       = "stale_cells"
	LoopGuardOverridden  = "overridden"
)

// Fallback causes set by the agent itself; vision fallbacks carry the
// decider's cause.
const (
	FallbackInvalidSelection = "invalid_selection"
)

// StepRecord is the outcome of one AdvanceStep, handed to sinks and stores.
type StepRecord struct {
	ID        string `json:"id"`
	RunID     string `json:"run_id"`
	StepIndex int    `json:"step_index"`
	Mode      Mode   `json:"mode"`

	FromNodeID string `json:"from_node_id"`
	// RequestedNodeID is the link target or frontier id asked for;
	// ChosenNodeID is where the source actually settled.
	RequestedNodeID string     `json:"requested_node_id"`
	ChosenNodeID    string     `json:"chosen_node_id"`
	Heading         float64    `json:"heading"`
	Position        geo.LatLng `json:"position"`
	Rationale       string     `json:"rationale"`

	Observations   []string `json:"observations,omitempty"`
	VisionUsed     bool     `json:"vision_used"`
	VisionAttempts int      `json:"vision_attempts,omitempty"`
	FallbackCause  string   `json:"fallback_cause,omitempty"`
	LoopGuard      string   `json:"loop_guard,omitempty"`
	// RecoveredFrom is the dead-end node the step recovered from, if any.
	RecoveredFrom string `json:"recovered_from,omitempty"`
	NewCell       bool   `json:"new_cell"`
	FirstVisit    bool   `json:"first_visit"`

	Coverage  coverage.Stats `json:"coverage"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
}

// Recovered reports whether the step passed through dead-end recovery.
func (r *StepRecord) Recovered() bool { return r.RecoveredFrom != "" }
