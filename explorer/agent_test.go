package explorer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/BaSui01/panoroam/coverage"
	"github.com/BaSui01/panoroam/geo"
	"github.com/BaSui01/panoroam/nodesource"
	"github.com/BaSui01/panoroam/testutil"
	"github.com/BaSui01/panoroam/testutil/mocks"
	"github.com/BaSui01/panoroam/types"
	"github.com/BaSui01/panoroam/vision"
)

var origin = geo.LatLng{Lat: 40.7128, Lng: -74.0060}

func east(m float64) geo.LatLng  { return geo.Project(origin, 90, m) }
func north(m float64) geo.LatLng { return geo.Project(origin, 0, m) }

func testDecider(p vision.Provider) *vision.Decider {
	return vision.NewDecider(p, vision.Config{MaxAttempts: 2}, zap.NewNop())
}

func newTestAgent(src nodesource.Source, cfg Config, opts ...Option) *Agent {
	return New(src, cfg, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
}

func seed(t *testing.T, a *Agent, id string) {
	t.Helper()
	_, err := a.Seed(testutil.TestContext(t), nodesource.ByID(id))
	require.NoError(t, err)
}

func step(t *testing.T, a *Agent) *StepRecord {
	t.Helper()
	rec, err := a.AdvanceStep(testutil.TestContext(t))
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

// restoreAt installs a hand-built state: nodes are visited in the given
// order, history is restored verbatim and current is the last visited node.
func restoreAt(t *testing.T, a *Agent, current string, history []string, nodes map[string]coverage.NodeRecord) {
	t.Helper()
	require.NoError(t, a.Restore(Snapshot{
		Version:   SnapshotVersion,
		RunID:     "run-test",
		CurrentID: current,
		History:   history,
		Graph:     coverage.Snapshot{Nodes: nodes},
	}))
}

func nodeRecord(pos geo.LatLng, at int, neighbors ...string) coverage.NodeRecord {
	return coverage.NodeRecord{
		Lat:           pos.Lat,
		Lng:           pos.Lng,
		Neighbors:     neighbors,
		LastVisitedAt: time.Date(2025, 1, 1, 0, 0, at, 0, time.UTC),
	}
}

type recordingMetrics struct {
	mu        sync.Mutex
	steps     map[string]int
	guards    []string
	decisions int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{steps: make(map[string]int)}
}

func (m *recordingMetrics) RecordStep(mode, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[mode+"/"+status]++
}

func (m *recordingMetrics) RecordVisionDecision(string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions++
}

func (m *recordingMetrics) RecordLoopGuard(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guards = append(m.guards, kind)
}

func (m *recordingMetrics) SetCoverage(int, int, int, float64) {}

// forkSource is A with links to B (east) and C (north), both linking back.
func forkSource() *mocks.GraphSource {
	return mocks.NewGraphSource().
		AddNode("A", origin, "B", "C").
		AddNode("B", east(15), "A").
		AddNode("C", north(15), "A")
}

func TestAdvanceStep_NotSeeded(t *testing.T) {
	a := newTestAgent(forkSource(), DefaultConfig())
	_, err := a.AdvanceStep(context.Background())
	assert.ErrorIs(t, err, ErrNotSeeded)
}

func TestSeed(t *testing.T) {
	a := newTestAgent(forkSource(), DefaultConfig())
	node, err := a.Seed(context.Background(), nodesource.ByPosition(geo.Project(origin, 45, 2)))
	require.NoError(t, err)
	assert.Equal(t, "A", node.ID)

	st := a.Stats()
	assert.NotEmpty(t, st.RunID)
	assert.Equal(t, "A", st.CurrentID)
	assert.Equal(t, 1, st.Coverage.Visited)
	assert.Equal(t, 2, st.Coverage.Frontier)
	assert.Equal(t, 1, st.Clusters)
	assert.Equal(t, 0, st.StepIndex)
}

func TestSeed_NotFound(t *testing.T) {
	a := newTestAgent(forkSource(), DefaultConfig())
	_, err := a.Seed(context.Background(), nodesource.ByPosition(east(500)))
	assert.ErrorIs(t, err, nodesource.ErrNotFound)
}

func TestAdvanceStep_MultiOptionConsultsVision(t *testing.T) {
	provider := mocks.NewMockProvider().WithChoice(1, "north looks open")
	capturer := mocks.NewMockCapturer()
	a := newTestAgent(forkSource(), DefaultConfig(),
		WithDecider(testDecider(provider)),
		WithCapturer(capturer))
	seed(t, a, "A")

	rec := step(t, a)
	assert.Equal(t, ModeExploring, rec.Mode)
	assert.Equal(t, "C", rec.ChosenNodeID)
	assert.Equal(t, "A", rec.FromNodeID)
	assert.Equal(t, "north looks open", rec.Rationale)
	assert.True(t, rec.VisionUsed)
	assert.Empty(t, rec.FallbackCause)
	assert.Len(t, rec.Observations, 2)
	assert.Equal(t, 1, rec.StepIndex)
	assert.True(t, rec.FirstVisit)
	assert.Equal(t, 2, rec.Coverage.Visited)

	assert.Equal(t, 1, provider.CallCount())
	require.Len(t, capturer.Requests(), 2)
	assert.Equal(t, "A", capturer.Requests()[0].NodeID)
	assert.Len(t, provider.Calls()[0].Images, 2)
}

func TestAdvanceStep_SingleOptionSkipsVision(t *testing.T) {
	provider := mocks.NewMockProvider().WithChoice(0, "east")
	capturer := mocks.NewMockCapturer()
	a := newTestAgent(forkSource(), DefaultConfig(),
		WithDecider(testDecider(provider)),
		WithCapturer(capturer))
	seed(t, a, "A")

	assert.Equal(t, "B", step(t, a).ChosenNodeID)

	// B only links back to A.
	back := step(t, a)
	assert.Equal(t, "A", back.ChosenNodeID)
	assert.Equal(t, ModeSingleOption, back.Mode)

	// At A, B is visited and C is not: the target set is [C] only.
	rec := step(t, a)
	assert.Equal(t, ModeSingleOption, rec.Mode)
	assert.Equal(t, "C", rec.ChosenNodeID)
	assert.False(t, rec.VisionUsed)
	assert.Empty(t, rec.Observations)

	assert.Equal(t, 1, provider.CallCount())
	assert.Len(t, capturer.Requests(), 2)
}

func TestAdvanceStep_InvalidSelectionCorrected(t *testing.T) {
	provider := mocks.NewMockProvider().WithChoice(7, "off the end")
	a := newTestAgent(forkSource(), DefaultConfig(), WithDecider(testDecider(provider)))
	seed(t, a, "A")

	rec := step(t, a)
	assert.Equal(t, "B", rec.ChosenNodeID)
	assert.Equal(t, FallbackInvalidSelection, rec.FallbackCause)
	assert.True(t, rec.VisionUsed)
}

func TestAdvanceStep_VisionFailureFallsBack(t *testing.T) {
	provider := mocks.NewMockProvider().
		WithErrors(types.NewError(types.ErrUnauthorized, "bad key"))
	a := newTestAgent(forkSource(), DefaultConfig(), WithDecider(testDecider(provider)))
	seed(t, a, "A")

	rec := step(t, a)
	assert.Equal(t, "B", rec.ChosenNodeID)
	assert.Equal(t, vision.FailureAuth.String(), rec.FallbackCause)
	assert.Equal(t, 1, provider.CallCount())
}

func TestAdvanceStep_CaptureFailureIsAbsorbed(t *testing.T) {
	provider := mocks.NewMockProvider().WithChoice(1, "")
	capturer := mocks.NewMockCapturer().WithError(errors.New("browser crashed"))
	a := newTestAgent(forkSource(), DefaultConfig(),
		WithDecider(testDecider(provider)),
		WithCapturer(capturer))
	seed(t, a, "A")

	rec := step(t, a)
	assert.Equal(t, "C", rec.ChosenNodeID)
	assert.Empty(t, rec.Observations)
	assert.Empty(t, provider.Calls()[0].Images)
}

func TestAdvanceStep_WithoutDeciderUsesFallback(t *testing.T) {
	a := newTestAgent(forkSource(), DefaultConfig())
	seed(t, a, "A")

	rec := step(t, a)
	assert.Equal(t, "B", rec.ChosenNodeID)
	assert.Equal(t, "no_provider", rec.FallbackCause)
}

// loopSource: A links only to B; B links to A and F.
func loopSource(withF bool) *mocks.GraphSource {
	src := mocks.NewGraphSource().
		AddNode("A", origin, "B").
		AddNode("B", east(15), "A", "F")
	if withF {
		src.AddNode("F", east(30), "B")
	}
	return src
}

func loopState() map[string]coverage.NodeRecord {
	return map[string]coverage.NodeRecord{
		"A": nodeRecord(origin, 1, "B"),
		"B": nodeRecord(east(15), 2, "A", "F"),
	}
}

func TestAdvanceStep_AlternatingLoopForcesTeleport(t *testing.T) {
	src := loopSource(true)
	metrics := newRecordingMetrics()
	a := newTestAgent(src, DefaultConfig(), WithMetrics(metrics))
	restoreAt(t, a, "A", []string{"A", "B", "A", "B", "A"}, loopState())
	require.True(t, a.Graph().InFrontier("F"))

	rec := step(t, a)
	assert.Equal(t, ModeTeleport, rec.Mode)
	assert.Equal(t, LoopGuardAlternating, rec.LoopGuard)
	assert.Equal(t, "F", rec.ChosenNodeID)
	assert.Equal(t, []string{LoopGuardAlternating}, metrics.guards)

	for _, c := range src.Calls() {
		if c.Method == "Settle" {
			assert.NotEqual(t, "B", c.NodeID, "the sixth alternation must not be committed")
		}
	}
	assert.Nil(t, a.Snapshot().LastHeading)
}

func TestAdvanceStep_LoopGuardOverriddenWithoutFrontier(t *testing.T) {
	// F is known to the graph but the source cannot resolve it.
	src := loopSource(false)
	a := newTestAgent(src, DefaultConfig())
	restoreAt(t, a, "A", []string{"A", "B", "A", "B", "A"}, loopState())

	rec := step(t, a)
	assert.Equal(t, ModePathfinding, rec.Mode)
	assert.Equal(t, LoopGuardOverridden, rec.LoopGuard)
	assert.Equal(t, "B", rec.ChosenNodeID)
	assert.False(t, a.Graph().InFrontier("F"), "unresolvable frontier entries are pruned")
}

func TestAdvanceStep_MultiOptionDropsLoopingCandidate(t *testing.T) {
	src := mocks.NewGraphSource().
		AddNode("A", origin, "B", "C").
		AddNode("B", east(15), "A").
		AddNode("C", north(15), "A")
	provider := mocks.NewMockProvider().WithChoice(0, "east again")
	a := newTestAgent(src, DefaultConfig(), WithDecider(testDecider(provider)))
	restoreAt(t, a, "A", []string{"A", "B", "A", "B", "A"}, map[string]coverage.NodeRecord{
		"A": nodeRecord(origin, 1, "B", "C"),
	})

	rec := step(t, a)
	assert.Equal(t, "C", rec.ChosenNodeID)
	assert.Equal(t, ModeExploring, rec.Mode)
	assert.Equal(t, LoopGuardAlternating, rec.LoopGuard)
	assert.True(t, rec.VisionUsed)
	assert.Equal(t, 1, provider.CallCount())
}

func TestAdvanceStep_ExplorationComplete(t *testing.T) {
	src := mocks.Line(origin, 15, "A", "B")
	a := newTestAgent(src, DefaultConfig())
	seed(t, a, "A")

	assert.Equal(t, "B", step(t, a).ChosenNodeID)
	assert.Equal(t, "A", step(t, a).ChosenNodeID)

	_, err := a.AdvanceStep(context.Background())
	assert.ErrorIs(t, err, ErrExplorationComplete)
}

func TestAdvanceStep_StuckRoutesThroughVisitedNodes(t *testing.T) {
	// A-B-C-D in a line; D unvisited. Agent at A having bounced A,B,A.
	src := mocks.Line(origin, 15, "A", "B", "C", "D")
	a := newTestAgent(src, DefaultConfig())
	restoreAt(t, a, "A", []string{"B", "A", "C", "B", "A"}, map[string]coverage.NodeRecord{
		"A": nodeRecord(east(0), 3, "B"),
		"B": nodeRecord(east(15), 2, "A", "C"),
		"C": nodeRecord(east(30), 1, "B", "D"),
	})

	rec := step(t, a)
	assert.Equal(t, ModePathfinding, rec.Mode)
	assert.Equal(t, "B", rec.ChosenNodeID)
	assert.Contains(t, rec.Rationale, "path to frontier D")
	assert.False(t, rec.VisionUsed)
}

func TestAdvanceStep_StuckUsesClusterRouter(t *testing.T) {
	src := mocks.Line(origin, 15, "A", "B", "C", "D")
	cfg := DefaultConfig()
	cfg.ClusterRoutingMinNodes = 1
	a := newTestAgent(src, cfg)
	restoreAt(t, a, "A", []string{"B", "A", "C", "B", "A"}, map[string]coverage.NodeRecord{
		"A": nodeRecord(east(0), 3, "B"),
		"B": nodeRecord(east(15), 2, "A", "C"),
		"C": nodeRecord(east(30), 1, "B", "D"),
	})
	require.Equal(t, 3, a.Stats().Clusters)

	rec := step(t, a)
	assert.Equal(t, ModePathfinding, rec.Mode)
	assert.Equal(t, "B", rec.ChosenNodeID)
	assert.Equal(t, "cluster route, 1 cluster hops to frontier", rec.Rationale)
	assert.False(t, rec.VisionUsed)

	rec = step(t, a)
	assert.Equal(t, ModePathfinding, rec.Mode)
	assert.Equal(t, "C", rec.ChosenNodeID)
	assert.Equal(t, "cluster route, 0 cluster hops to frontier", rec.Rationale)

	rec = step(t, a)
	assert.Equal(t, ModeSingleOption, rec.Mode)
	assert.Equal(t, "D", rec.ChosenNodeID)
}

func TestAdvanceStep_DeadEndRecovery(t *testing.T) {
	src := mocks.NewGraphSource().
		AddNode("A", origin, "B").
		AddNode("B", east(15)).
		AddNode("C", east(45), "D").
		AddNode("D", east(60), "C")
	a := newTestAgent(src, DefaultConfig())
	seed(t, a, "A")
	assert.Equal(t, "B", step(t, a).ChosenNodeID)

	rec := step(t, a)
	assert.Equal(t, ModeDeadEndRecovery, rec.Mode)
	assert.Equal(t, "B", rec.RecoveredFrom)
	assert.True(t, rec.Recovered())
	assert.Equal(t, "B", rec.FromNodeID)
	assert.Equal(t, "D", rec.ChosenNodeID)

	g := a.Graph()
	assert.True(t, g.HasVisited("C"))
	assert.Contains(t, g.Neighbors("B"), "C", "synthetic edge out of the dead end")
	assert.Contains(t, g.Neighbors("C"), "B")

	walks := 0
	for _, c := range src.Calls() {
		if c.Method == "Expand" && c.At != nil {
			walks++
		}
	}
	assert.Equal(t, 3, walks, "lookups at 10, 20 and 30 meters")
}

func TestAdvanceStep_DeadEndExhausted(t *testing.T) {
	src := mocks.NewGraphSource().
		AddNode("A", origin, "B").
		AddNode("B", east(15))
	a := newTestAgent(src, DefaultConfig())
	seed(t, a, "A")
	step(t, a)

	_, err := a.AdvanceStep(context.Background())
	assert.ErrorIs(t, err, ErrNoNavigableNode)
	assert.ErrorIs(t, err, ErrExplorationComplete, "nothing left to teleport to")

	st := a.Stats()
	assert.Equal(t, "B", st.CurrentID)
	assert.Equal(t, 1, st.StepIndex)
	assert.Equal(t, 2, st.Coverage.Visited)
}

func TestAdvanceStep_DeadEndWithoutHeading(t *testing.T) {
	src := mocks.NewGraphSource().AddNode("A", origin)
	a := newTestAgent(src, DefaultConfig())
	seed(t, a, "A")

	_, err := a.AdvanceStep(context.Background())
	assert.ErrorIs(t, err, ErrNoNavigableNode)
	assert.ErrorIs(t, err, ErrExplorationComplete)
	assert.Equal(t, 1, src.CallCount("Settle"), "only the seed settled")
}

func TestAdvanceStep_TeleportIntoDeadEndLeavesByTeleport(t *testing.T) {
	src := mocks.NewGraphSource().
		AddNode("A", origin, "B").
		AddNode("B", east(15), "A", "F", "G").
		AddNode("F", east(30)).
		AddNode("G", north(15), "B", "H").
		AddNode("H", north(30), "G")
	a := newTestAgent(src, DefaultConfig())
	restoreAt(t, a, "A", []string{"A", "B", "A", "B", "A"}, map[string]coverage.NodeRecord{
		"A": nodeRecord(origin, 1, "B"),
		"B": nodeRecord(east(15), 2, "A", "F", "G"),
	})

	rec := step(t, a)
	require.Equal(t, ModeTeleport, rec.Mode)
	require.Equal(t, "F", rec.ChosenNodeID)
	require.Nil(t, a.Snapshot().LastHeading)

	rec = step(t, a)
	assert.Equal(t, ModeTeleport, rec.Mode)
	assert.Equal(t, "F", rec.FromNodeID)
	assert.Equal(t, "F", rec.RecoveredFrom)
	assert.Equal(t, "G", rec.ChosenNodeID)
	assert.Contains(t, rec.Rationale, "dead end")
	assert.Nil(t, a.Snapshot().LastHeading)

	rec = step(t, a)
	assert.Equal(t, ModeSingleOption, rec.Mode)
	assert.Equal(t, "H", rec.ChosenNodeID)
	assert.Equal(t, "G", step(t, a).ChosenNodeID)

	_, err := a.AdvanceStep(context.Background())
	assert.ErrorIs(t, err, ErrExplorationComplete)
	assert.Equal(t, 5, a.Stats().Coverage.Visited)
}

func TestAdvanceStep_RestoredAtDeadEndWithFrontier(t *testing.T) {
	src := mocks.NewGraphSource().
		AddNode("A", origin, "B", "C").
		AddNode("B", east(15)).
		AddNode("C", north(15), "A")
	a := newTestAgent(src, DefaultConfig())
	restoreAt(t, a, "B", []string{"A", "B"}, map[string]coverage.NodeRecord{
		"A": nodeRecord(origin, 1, "B", "C"),
		"B": nodeRecord(east(15), 2, "A"),
	})
	require.Nil(t, a.Snapshot().LastHeading)

	rec := step(t, a)
	assert.Equal(t, ModeTeleport, rec.Mode)
	assert.Equal(t, "B", rec.RecoveredFrom)
	assert.Equal(t, "C", rec.ChosenNodeID)
	assert.Zero(t, a.Stats().Coverage.Frontier)
}

func TestAdvanceStep_StaleCellsForceTeleport(t *testing.T) {
	src := mocks.Line(origin, 15, "S0", "S1", "S2", "S3", "S4")
	cfg := DefaultConfig()
	cfg.CellSizeMeters = 10000
	cfg.StaleCellThreshold = 1
	a := newTestAgent(src, cfg)
	seed(t, a, "S0")

	assert.Equal(t, "S1", step(t, a).ChosenNodeID)
	assert.Equal(t, "S2", step(t, a).ChosenNodeID)
	require.Equal(t, 2, a.Stats().StepsSinceNewCell)

	rec := step(t, a)
	assert.Equal(t, ModeTeleport, rec.Mode)
	assert.Equal(t, LoopGuardStale, rec.LoopGuard)
	assert.Equal(t, "S3", rec.ChosenNodeID)
	assert.Equal(t, 0, a.Stats().StepsSinceNewCell)
}

func TestAdvanceStep_AliasResolution(t *testing.T) {
	src := mocks.NewGraphSource().
		AddNode("A", origin, "B-alt", "C").
		AddNode("B", east(15), "A").
		AddNode("C", north(15), "A").
		Alias("B-alt", "B")
	provider := mocks.NewMockProvider().WithChoice(0, "")
	a := newTestAgent(src, DefaultConfig(), WithDecider(testDecider(provider)))
	seed(t, a, "A")
	require.True(t, a.Graph().InFrontier("B-alt"))

	rec := step(t, a)
	assert.Equal(t, "B-alt", rec.RequestedNodeID)
	assert.Equal(t, "B", rec.ChosenNodeID)

	g := a.Graph()
	assert.True(t, g.HasVisited("B"))
	assert.False(t, g.InFrontier("B-alt"))
	assert.Equal(t, "B", g.Canonical("B-alt"))
	assert.Contains(t, g.Neighbors("A"), "B")
	assert.NotContains(t, g.Neighbors("A"), "B-alt")

	ca, ok := a.Clusters().ClusterOf("B-alt")
	require.True(t, ok)
	cb, _ := a.Clusters().ClusterOf("B")
	assert.Equal(t, cb, ca)

	// Back at A the alias link is canonical and visited: only C remains.
	assert.Equal(t, "A", step(t, a).ChosenNodeID)
	next := step(t, a)
	assert.Equal(t, ModeSingleOption, next.Mode)
	assert.Equal(t, "C", next.ChosenNodeID)
}

func TestAdvanceStep_SourceErrorLeavesStateUntouched(t *testing.T) {
	src := forkSource()
	a := newTestAgent(src, DefaultConfig())
	seed(t, a, "A")
	before := a.Stats()

	boom := types.NewError(types.ErrUpstreamError, "imagery backend down")
	src.FailOn("A", boom)

	_, err := a.AdvanceStep(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	after := a.Stats()
	assert.Equal(t, before.StepIndex, after.StepIndex)
	assert.Equal(t, before.CurrentID, after.CurrentID)
	assert.Equal(t, before.Coverage, after.Coverage)
	assert.False(t, a.InFlight())

	src.FailOn("A", nil)
	step(t, a)
}

func TestAdvanceStep_Cancelled(t *testing.T) {
	a := newTestAgent(forkSource(), DefaultConfig())
	seed(t, a, "A")

	_, err := a.AdvanceStep(testutil.CancelledContext())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, a.Stats().StepIndex)
}

// blockingSource parks the first Expand until released.
type blockingSource struct {
	nodesource.Source
	once    sync.Once
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) Expand(ctx context.Context, q nodesource.Query) (*nodesource.Node, error) {
	select {
	case <-b.armed:
		b.once.Do(func() { close(b.entered) })
		<-b.release
	default:
	}
	return b.Source.Expand(ctx, q)
}

func TestAdvanceStep_RejectsOverlappingCalls(t *testing.T) {
	src := &blockingSource{
		Source:  forkSource(),
		armed:   make(chan struct{}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	a := newTestAgent(src, DefaultConfig())
	seed(t, a, "A")
	close(src.armed)

	done := make(chan error, 1)
	go func() {
		_, err := a.AdvanceStep(context.Background())
		done <- err
	}()
	<-src.entered

	assert.True(t, a.InFlight())
	_, err := a.AdvanceStep(context.Background())
	assert.ErrorIs(t, err, ErrStepInFlight)
	assert.Equal(t, types.ErrAgentBusy, types.GetErrorCode(err))
	assert.ErrorIs(t, a.Reset(), ErrStepInFlight)
	_, err = a.Seed(context.Background(), nodesource.ByID("A"))
	assert.ErrorIs(t, err, ErrStepInFlight)

	close(src.release)
	require.NoError(t, <-done)
	assert.False(t, a.InFlight())
	assert.Equal(t, 1, a.Stats().StepIndex)
}

func TestReset(t *testing.T) {
	a := newTestAgent(forkSource(), DefaultConfig())
	seed(t, a, "A")
	step(t, a)

	require.NoError(t, a.Reset())
	st := a.Stats()
	assert.Empty(t, st.RunID)
	assert.Empty(t, st.CurrentID)
	assert.Zero(t, st.Coverage.Visited)
	assert.Zero(t, st.Clusters)

	_, err := a.AdvanceStep(context.Background())
	assert.ErrorIs(t, err, ErrNotSeeded)
}

func TestAdvanceStep_MetricsAndTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	metrics := newRecordingMetrics()

	src := forkSource()
	a := newTestAgent(src, DefaultConfig(),
		WithDecider(testDecider(mocks.NewMockProvider())),
		WithMetrics(metrics),
		WithTracer(tp.Tracer("test")))
	seed(t, a, "A")

	step(t, a)
	src.FailOn("B", errors.New("flaky"))
	_, err := a.AdvanceStep(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, metrics.steps["exploring/ok"])
	assert.Equal(t, 1, metrics.steps["exploring/failed"])
	assert.Equal(t, 1, metrics.decisions)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "explorer.AdvanceStep", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("explorer.mode", "exploring"))
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("explorer.mechanical", false))
	assert.Contains(t, spans[0].Attributes(), attribute.String("explorer.chosen_node", "B"))
	assert.NotEmpty(t, spans[1].Events(), "failed step records the error")
}

func TestNormalizeLinks(t *testing.T) {
	a := newTestAgent(forkSource(), DefaultConfig())
	a.graph.RecordVisit("A", origin, nil)
	a.graph.AddEdge("A", "X", 0, "")
	a.graph.ResolveAlias("X", "Y")

	got := a.normalizeLinks("A", []nodesource.Link{
		{TargetID: "B", Heading: 90},
		{TargetID: ""},
		{TargetID: "A"},
		{TargetID: "X", Heading: 10},
		{TargetID: "B", Heading: 270},
		{TargetID: "Y", Heading: 20},
	})
	require.Len(t, got, 2)
	assert.Equal(t, nodesource.Link{TargetID: "B", Heading: 90}, got[0])
	assert.Equal(t, "Y", got[1].TargetID)
	assert.Equal(t, 10.0, got[1].Heading)
}
