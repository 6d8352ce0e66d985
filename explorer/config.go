package explorer

import (
	"github.com/BaSui01/panoroam/cluster"
	"github.com/BaSui01/panoroam/coverage"
)

// Config tunes the step state machine.
type Config struct {
	CellSizeMeters         float64
	ClusterThresholdMeters float64
	HistorySize            int

	DeadEndStepMeters float64
	DeadEndMaxMeters  float64

	// StaleCellThreshold forces a teleport once this many consecutive steps
	// have found no new spatial cell.
	StaleCellThreshold int

	AlternatingMinLength int
	CycleMinPeriod       int
	CycleMaxPeriod       int
	CycleMinRepeats      int

	// ClusterRoutingMinNodes switches stuck routing to the cluster router
	// once the graph has at least this many visited nodes.
	ClusterRoutingMinNodes int

	// MaxTeleportAttempts bounds how many frontier entries a single teleport
	// tries before giving up.
	MaxTeleportAttempts int
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		CellSizeMeters:         coverage.DefaultCellSizeMeters,
		ClusterThresholdMeters: cluster.DefaultThresholdMeters,
		HistorySize:            coverage.DefaultHistorySize,
		DeadEndStepMeters:      10,
		DeadEndMaxMeters:       120,
		StaleCellThreshold:     40,
		AlternatingMinLength:   coverage.DefaultAlternatingMinLength,
		CycleMinPeriod:         coverage.DefaultCycleMinPeriod,
		CycleMaxPeriod:         coverage.DefaultCycleMaxPeriod,
		CycleMinRepeats:        coverage.DefaultCycleMinRepeats,
		ClusterRoutingMinNodes: 2000,
		MaxTeleportAttempts:    5,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CellSizeMeters <= 0 {
		c.CellSizeMeters = def.CellSizeMeters
	}
	if c.ClusterThresholdMeters <= 0 {
		c.ClusterThresholdMeters = def.ClusterThresholdMeters
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.DeadEndStepMeters <= 0 {
		c.DeadEndStepMeters = def.DeadEndStepMeters
	}
	if c.DeadEndMaxMeters <= 0 {
		c.DeadEndMaxMeters = def.DeadEndMaxMeters
	}
	if c.StaleCellThreshold <= 0 {
		c.StaleCellThreshold = def.StaleCellThreshold
	}
	if c.AlternatingMinLength <= 0 {
		c.AlternatingMinLength = def.AlternatingMinLength
	}
	if c.ClusterRoutingMinNodes <= 0 {
		c.ClusterRoutingMinNodes = def.ClusterRoutingMinNodes
	}
	if c.MaxTeleportAttempts <= 0 {
		c.MaxTeleportAttempts = def.MaxTeleportAttempts
	}
	return c
}

func (c Config) cycleOptions() coverage.CycleOptions {
	return coverage.CycleOptions{
		MinPeriod:  c.CycleMinPeriod,
		MaxPeriod:  c.CycleMaxPeriod,
		MinRepeats: c.CycleMinRepeats,
	}
}
