package explorer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/panoroam/cluster"
	"github.com/BaSui01/panoroam/coverage"
	"github.com/BaSui01/panoroam/geo"
	"github.com/BaSui01/panoroam/nodesource"
	"github.com/BaSui01/panoroam/observe"
	"github.com/BaSui01/panoroam/pathfind"
	"github.com/BaSui01/panoroam/vision"
)

const instrumentationName = "github.com/BaSui01/panoroam/explorer"

// Decider chooses among candidate directions. *vision.Decider implements it.
type Decider interface {
	Decide(ctx context.Context, req vision.Request) vision.Decision
}

// Metrics receives per-step telemetry. *metrics.Collector implements it.
type Metrics interface {
	RecordStep(mode, status string, duration time.Duration)
	RecordVisionDecision(fallbackCause string, attempts int)
	RecordLoopGuard(kind string)
	SetCoverage(visited, frontier, cells int, distanceMeters float64)
}

type nopMetrics struct{}

func (nopMetrics) RecordStep(string, string, time.Duration) {}
func (nopMetrics) RecordVisionDecision(string, int) {}
func (nopMetrics) RecordLoopGuard(string) {}
func (nopMetrics) SetCoverage(int, int, int, float64) {}

// Option configures an Agent.
type Option func(*Agent)

// WithDecider sets the vision decider. Without one, multi-option steps use
// the decider's fallback choice.
func WithDecider(d Decider) Option { return func(a *Agent) { a.decider = d } }

// WithCapturer sets the observation capturer. Defaults to observe.Noop.
func WithCapturer(c observe.Capturer) Option { return func(a *Agent) { a.capturer = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(a *Agent) { a.logger = l } }

// WithTracer sets the tracer. Defaults to the global otel tracer.
func WithTracer(t trace.Tracer) Option { return func(a *Agent) { a.tracer = t } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(a *Agent) { a.metrics = m } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(a *Agent) { a.now = now } }

// Agent is one exploration stream. It owns its coverage graph and cluster
// index; independent agents share nothing.
type Agent struct {
	cfg      Config
	source   nodesource.Source
	decider  Decider
	capturer observe.Capturer
	logger   *zap.Logger
	tracer   trace.Tracer
	metrics  Metrics
	now      func() time.Time

	graph    *coverage.Graph
	clusters *cluster.Index
	finder   *pathfind.Finder

	// stepMu is held for the whole of a step, Seed, Restore or Reset.
	stepMu   sync.Mutex
	inFlight atomic.Bool

	// mu guards the fields below for concurrent readers such as Stats.
	mu                sync.RWMutex
	runID             string
	current           *nodesource.Node
	stepIndex         int
	lastMode          Mode
	lastHeading       *float64
	stepsSinceNewCell int
}

// New creates an Agent over source.
func New(source nodesource.Source, cfg Config, opts ...Option) *Agent {
	a := &Agent{
		cfg:    cfg.withDefaults(),
		source: source,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.With(zap.String("component", "explorer"))
	if a.decider == nil {
		a.decider = vision.NewDecider(nil, vision.DefaultConfig(), a.logger)
	}
	if a.capturer == nil {
		a.capturer = observe.Noop{}
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(instrumentationName)
	}
	if a.metrics == nil {
		a.metrics = nopMetrics{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	a.graph = coverage.New(coverage.Options{
		HistorySize:    a.cfg.HistorySize,
		CellSizeMeters: a.cfg.CellSizeMeters,
		Now:            a.now,
	})
	a.clusters = cluster.NewIndex(a.cfg.ClusterThresholdMeters)
	a.finder = pathfind.New(a.graph)
	return a
}

// Graph exposes the coverage graph for read-only inspection.
func (a *Agent) Graph() *coverage.Graph { return a.graph }

// Clusters exposes the cluster index for read-only inspection.
func (a *Agent) Clusters() *cluster.Index { return a.clusters }

// InFlight reports whether a step is currently executing.
func (a *Agent) InFlight() bool { return a.inFlight.Load() }

// Seed starts a new run at the node nearest to q. Previous coverage is
// discarded.
func (a *Agent) Seed(ctx context.Context, q nodesource.Query) (*nodesource.Node, error) {
	if !a.stepMu.TryLock() {
		return nil, ErrStepInFlight
	}
	defer a.stepMu.Unlock()

	found, err := a.source.Expand(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", q, err)
	}
	settled, err := a.source.Settle(ctx, found.ID)
	if err != nil {
		return nil, fmt.Errorf("seed settle %s: %w", found.ID, err)
	}

	a.resetLocked()
	a.mu.Lock()
	a.runID = uuid.NewString()
	a.mu.Unlock()

	if settled.ID != found.ID {
		a.graph.ResolveAlias(found.ID, settled.ID)
	}
	res := a.commitVisit(settled, found.ID)
	a.mu.Lock()
	a.current = settled
	a.mu.Unlock()
	a.publishCoverage()

	a.logger.Info("exploration seeded",
		zap.String("run_id", a.RunID()),
		zap.String("node_id", settled.ID),
		zap.Stringer("position", settled.Position),
		zap.Bool("new_cell", res.NewCell))
	return settled, nil
}

// Reset clears all coverage and forgets the current node.
func (a *Agent) Reset() error {
	if !a.stepMu.TryLock() {
		return ErrStepInFlight
	}
	defer a.stepMu.Unlock()
	a.resetLocked()
	return nil
}

func (a *Agent) resetLocked() {
	a.graph.Reset()
	a.clusters.Reset()
	a.mu.Lock()
	a.runID = ""
	a.current = nil
	a.stepIndex = 0
	a.lastMode = ModeExploring
	a.lastHeading = nil
	a.stepsSinceNewCell = 0
	a.mu.Unlock()
}

// RunID returns the current run id, empty before Seed.
func (a *Agent) RunID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.runID
}

// Stats is a point-in-time view of the agent.
type Stats struct {
	RunID             string         `json:"run_id"`
	StepIndex         int            `json:"step_index"`
	LastMode          Mode           `json:"last_mode"`
	CurrentID         string         `json:"current_id,omitempty"`
	Position          *geo.LatLng    `json:"position,omitempty"`
	Coverage          coverage.Stats `json:"coverage"`
	Clusters          int            `json:"clusters"`
	StepsSinceNewCell int            `json:"steps_since_new_cell"`
	InFlight          bool           `json:"in_flight"`
}

// Stats returns a snapshot of counters; safe to call during a step.
func (a *Agent) Stats() Stats {
	a.mu.RLock()
	s := Stats{
		RunID:             a.runID,
		StepIndex:         a.stepIndex,
		LastMode:          a.lastMode,
		StepsSinceNewCell: a.stepsSinceNewCell,
	}
	if a.current != nil {
		s.CurrentID = a.current.ID
		p := a.current.Position
		s.Position = &p
	}
	a.mu.RUnlock()

	s.Coverage = a.graph.Stats()
	s.Clusters = a.clusters.Len()
	s.InFlight = a.InFlight()
	return s
}

// commitVisit records settled as visited, assigning it (and the id that was
// requested, when different) to a cluster, and updates the stale-cell
// counter.
func (a *Agent) commitVisit(settled *nodesource.Node, requested string) coverage.VisitResult {
	links := a.normalizeLinks(settled.ID, settled.Links)
	res := a.graph.RecordVisit(settled.ID, settled.Position, links)
	a.clusters.Assign(settled.ID, settled.Position)
	if requested != "" && requested != settled.ID {
		a.clusters.Assign(requested, settled.Position)
	}

	a.mu.Lock()
	if res.NewCell {
		a.stepsSinceNewCell = 0
	} else {
		a.stepsSinceNewCell++
	}
	a.mu.Unlock()
	return res
}

// normalizeLinks canonicalises link targets through known aliases and drops
// empty, self and duplicate targets. The first link to a target wins.
func (a *Agent) normalizeLinks(self string, links []nodesource.Link) []nodesource.Link {
	self = a.graph.Canonical(self)
	out := make([]nodesource.Link, 0, len(links))
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		if l.TargetID == "" {
			continue
		}
		l.TargetID = a.graph.Canonical(l.TargetID)
		if l.TargetID == self {
			continue
		}
		if _, dup := seen[l.TargetID]; dup {
			continue
		}
		seen[l.TargetID] = struct{}{}
		out = append(out, l)
	}
	return out
}

func (a *Agent) publishCoverage() {
	s := a.graph.Stats()
	a.metrics.SetCoverage(s.Visited, s.Frontier, s.Cells, s.DistanceMeters)
}
