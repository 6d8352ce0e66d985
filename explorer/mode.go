package explorer

import "fmt"

// Mode labels how a step chose its move. It is informational only; the
// agent derives behaviour afresh on every step.
type Mode int

const (
	ModeExploring Mode = iota
	ModePathfinding
	ModeSingleOption
	ModeDeadEndRecovery
	ModeTeleport
)

var modeNames = [...]string{
	ModeExploring:       "exploring",
	ModePathfinding:     "pathfinding_to_frontier",
	ModeSingleOption:    "single_option",
	ModeDeadEndRecovery: "dead_end_recovery",
	ModeTeleport:        "teleport_to_frontier",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Mechanical reports whether the move was taken without vision by following
// the graph: pathfinding towards the frontier or the single-option shortcut.
func (m Mode) Mechanical() bool {
	return m == ModePathfinding || m == ModeSingleOption
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(modeNames) {
		return nil, fmt.Errorf("unknown mode %d", int(m))
	}
	return []byte(modeNames[m]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	for i, name := range modeNames {
		if name == string(b) {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", b)
}
