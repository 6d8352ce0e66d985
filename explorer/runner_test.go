package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/panoroam/nodesource"
	"github.com/BaSui01/panoroam/persistence"
	"github.com/BaSui01/panoroam/testutil"
	"github.com/BaSui01/panoroam/testutil/mocks"
)

func fastRunner(a *Agent, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	cfg.StepDelay = 0
	return NewRunner(a, cfg, opts...)
}

type collectingSink struct {
	mu   sync.Mutex
	recs []*StepRecord
}

func (s *collectingSink) Publish(_ context.Context, rec *StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *collectingSink) chosen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recs))
	for i, r := range s.recs {
		out[i] = r.ChosenNodeID
	}
	return out
}

func TestRunner_RunsToCompletion(t *testing.T) {
	ctx := testutil.TestContext(t)
	a := newTestAgent(mocks.Line(origin, 15, "A", "B", "C"), DefaultConfig())
	seed(t, a, "A")

	store := persistence.NewMemoryStore()
	sink := &collectingSink{}
	failing := StepSinkFunc(func(context.Context, *StepRecord) error { return errors.New("sink down") })
	r := fastRunner(a, RunnerConfig{SnapshotEvery: 1}, WithStore(store), WithSinks(failing, sink))

	require.NoError(t, r.Run(ctx))

	st := r.Status()
	assert.Equal(t, RunStateCompleted, st.State)
	assert.Equal(t, 3, st.Steps)
	assert.Zero(t, st.Failures)
	assert.Equal(t, []string{"B", "C", "B"}, sink.chosen())
	assert.Equal(t, 4, st.Snapshots, "one per step plus the final checkpoint")

	stored, err := store.Load(ctx, a.RunID())
	require.NoError(t, err)
	assert.Equal(t, 3, stored.StepIndex)
	assert.Equal(t, "B", stored.Metadata["current_id"])
	assert.Equal(t, "3", stored.Metadata["visited"])

	var snap Snapshot
	require.NoError(t, json.Unmarshal(stored.Payload, &snap))
	assert.Equal(t, "B", snap.CurrentID)
}

func TestRunner_DeadEndsDoNotStallTheRun(t *testing.T) {
	ctx := testutil.TestContext(t)
	// Both branches off A end in dead ends; the second is only reachable by
	// teleporting out of the first.
	src := mocks.NewGraphSource().
		AddNode("A", origin, "B", "C").
		AddNode("B", east(15)).
		AddNode("C", north(15))
	a := newTestAgent(src, DefaultConfig())
	seed(t, a, "A")

	sink := &collectingSink{}
	r := fastRunner(a, RunnerConfig{MaxSteps: 20}, WithSinks(sink))
	require.NoError(t, r.Run(ctx))

	st := r.Status()
	assert.Equal(t, RunStateCompleted, st.State)
	assert.Zero(t, st.Failures)
	assert.Equal(t, 3, a.Stats().Coverage.Visited)
	assert.Len(t, sink.chosen(), 2)
}

func TestRunner_MaxSteps(t *testing.T) {
	a := newTestAgent(mocks.Grid(3, 3, 15, origin), DefaultConfig())
	seed(t, a, mocks.GridID(0, 0))

	r := fastRunner(a, RunnerConfig{MaxSteps: 2})
	require.NoError(t, r.Run(context.Background()))

	st := r.Status()
	assert.Equal(t, RunStateStopped, st.State)
	assert.Equal(t, 2, st.Steps)
	assert.Equal(t, 2, a.Stats().StepIndex)
}

func TestRunner_SetStepDelay(t *testing.T) {
	a := newTestAgent(mocks.Line(origin, 15, "A", "B"), DefaultConfig())
	seed(t, a, "A")

	r := NewRunner(a, RunnerConfig{StepDelay: time.Hour, MaxSteps: 2})
	r.SetStepDelay(-time.Second)
	assert.Zero(t, r.stepDelay())

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner kept the original delay")
	}
	assert.Equal(t, 2, r.Status().Steps)
}

// flakySource fails the first n Expand calls.
type flakySource struct {
	nodesource.Source
	left atomic.Int32
}

func (f *flakySource) Expand(ctx context.Context, q nodesource.Query) (*nodesource.Node, error) {
	if f.left.Add(-1) >= 0 {
		return nil, errors.New("flaky backend")
	}
	return f.Source.Expand(ctx, q)
}

func TestRunner_ContinuesAfterStepFailure(t *testing.T) {
	src := &flakySource{Source: mocks.Line(origin, 15, "A", "B")}
	a := newTestAgent(src, DefaultConfig())
	seed(t, a, "A")
	src.left.Store(1)

	r := fastRunner(a, RunnerConfig{})
	require.NoError(t, r.Run(context.Background()))

	st := r.Status()
	assert.Equal(t, RunStateCompleted, st.State)
	assert.Equal(t, 2, st.Steps)
	assert.Equal(t, 1, st.Failures)
	assert.Contains(t, st.LastError, "flaky backend")
}

func TestRunner_StopAndWait(t *testing.T) {
	a := newTestAgent(mocks.Grid(5, 5, 15, origin), DefaultConfig())
	seed(t, a, mocks.GridID(0, 0))

	r := NewRunner(a, RunnerConfig{StepDelay: 20 * time.Millisecond})
	require.NoError(t, r.Start(context.Background()))
	testutil.AssertEventuallyTrue(t, func() bool { return r.Status().Steps >= 2 }, 5*time.Second)

	assert.ErrorIs(t, r.Start(context.Background()), ErrRunnerActive)
	assert.ErrorIs(t, r.Run(context.Background()), ErrRunnerActive)

	r.Stop()
	r.Stop()
	require.NoError(t, r.Wait())

	st := r.Status()
	assert.Equal(t, RunStateStopped, st.State)
	assert.Equal(t, st.Steps, a.Stats().StepIndex)
	assert.False(t, a.InFlight())
}

func TestRunner_Cancelled(t *testing.T) {
	a := newTestAgent(mocks.Grid(3, 3, 15, origin), DefaultConfig())
	seed(t, a, mocks.GridID(0, 0))
	store := persistence.NewMemoryStore()

	r := NewRunner(a, RunnerConfig{StepDelay: time.Hour}, WithStore(store))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))
	testutil.AssertEventuallyTrue(t, func() bool { return r.Status().Steps == 1 }, 5*time.Second)
	cancel()

	assert.ErrorIs(t, r.Wait(), context.Canceled)
	assert.Equal(t, RunStateCancelled, r.Status().State)

	_, err := store.Load(context.Background(), a.RunID())
	assert.NoError(t, err, "a cancelled run still checkpoints")
}

func TestRunner_Resume(t *testing.T) {
	ctx := testutil.TestContext(t)
	src := mocks.Line(origin, 15, "A", "B", "C")
	store := persistence.NewMemoryStore()

	first := newTestAgent(src, DefaultConfig())
	seed(t, first, "A")
	r1 := fastRunner(first, RunnerConfig{MaxSteps: 1, SnapshotID: "line"}, WithStore(store))
	require.NoError(t, r1.Run(ctx))

	second := newTestAgent(src, DefaultConfig())
	r2 := fastRunner(second, RunnerConfig{SnapshotID: "line"}, WithStore(store))
	require.NoError(t, r2.Resume(ctx, "line"))
	assert.Equal(t, first.RunID(), second.RunID())
	assert.Equal(t, "B", second.Stats().CurrentID)
	assert.Equal(t, 1, second.Stats().StepIndex)

	require.NoError(t, r2.Run(ctx))
	assert.Equal(t, RunStateCompleted, r2.Status().State)
	assert.Equal(t, 3, second.Stats().Coverage.Visited)
}

func TestRunner_ResumeErrors(t *testing.T) {
	ctx := context.Background()
	a := newTestAgent(forkSource(), DefaultConfig())

	assert.Error(t, NewRunner(a, RunnerConfig{}).Resume(ctx, "x"))

	store := persistence.NewMemoryStore()
	r := NewRunner(a, RunnerConfig{}, WithStore(store))
	assert.ErrorIs(t, r.Resume(ctx, "missing"), persistence.ErrNotFound)

	require.NoError(t, store.Save(ctx, &persistence.Snapshot{ID: "bad", Payload: json.RawMessage(`{"version": 1}`)}))
	assert.ErrorIs(t, r.Resume(ctx, "bad"), ErrInvalidSnapshot)

	assert.ErrorIs(t, r.SaveSnapshot(ctx), ErrNotSeeded)
}
