package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/panoroam/persistence"
	"github.com/BaSui01/panoroam/types"
)

// ErrRunnerActive is returned when Run or Start is called on a running Runner.
var ErrRunnerActive = types.NewError(types.ErrAgentBusy, "runner is already active")

// StepSink receives every committed step record, e.g. a broadcaster or an
// audit log. Sink errors are logged and never stop the run.
type StepSink interface {
	Publish(ctx context.Context, rec *StepRecord) error
}

// StepSinkFunc adapts a function to StepSink.
type StepSinkFunc func(ctx context.Context, rec *StepRecord) error

// Publish implements StepSink.
func (f StepSinkFunc) Publish(ctx context.Context, rec *StepRecord) error { return f(ctx, rec) }

// RunState is the lifecycle state of a Runner.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateStopped   RunState = "stopped"
	RunStateCompleted RunState = "completed"
	RunStateCancelled RunState = "cancelled"
)

// RunnerConfig configures the stepping loop.
type RunnerConfig struct {
	// StepDelay is the pause between the end of one step and the start of
	// the next.
	StepDelay time.Duration `json:"step_delay" yaml:"step_delay"`
	// MaxSteps stops the run after this many committed steps; 0 is unbounded.
	MaxSteps int `json:"max_steps" yaml:"max_steps"`
	// SnapshotEvery saves a snapshot every N committed steps; 0 disables
	// periodic snapshots.
	SnapshotEvery int `json:"snapshot_every" yaml:"snapshot_every"`
	// SnapshotID names the stored snapshot; the run id is used when empty.
	SnapshotID string `json:"snapshot_id" yaml:"snapshot_id"`
}

// DefaultRunnerConfig returns the reference loop settings.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		StepDelay:     2 * time.Second,
		SnapshotEvery: 25,
	}
}

// RunnerStatus is a point-in-time view of a Runner.
type RunnerStatus struct {
	State      RunState  `json:"state"`
	Steps      int       `json:"steps"`
	Failures   int       `json:"failures"`
	LastError  string    `json:"last_error,omitempty"`
	LastStepAt time.Time `json:"last_step_at,omitempty"`
	Snapshots  int       `json:"snapshots"`
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStore enables snapshots to store.
func WithStore(store persistence.Store) RunnerOption {
	return func(r *Runner) { r.store = store }
}

// WithSinks adds step sinks.
func WithSinks(sinks ...StepSink) RunnerOption {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// Runner drives an Agent with fixed-delay scheduling: the next step is
// scheduled only after the previous one returned. Stop is cooperative and
// never interrupts a step in flight.
type Runner struct {
	agent  *Agent
	cfg    RunnerConfig
	store  persistence.Store
	sinks  []StepSink
	logger *zap.Logger

	mu       sync.Mutex
	status   RunnerStatus
	stop     chan struct{}
	stopOnce *sync.Once
	done     chan struct{}
	err      error
}

// NewRunner creates a Runner for agent.
func NewRunner(agent *Agent, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	if cfg.StepDelay < 0 {
		cfg.StepDelay = 0
	}
	r := &Runner{
		agent:  agent,
		cfg:    cfg,
		status: RunnerStatus{State: RunStateIdle},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.With(zap.String("component", "runner"))
	return r
}

// Run steps the agent until the frontier is exhausted, MaxSteps is reached,
// Stop is called or ctx is cancelled. Step failures are logged and the loop
// continues. A final snapshot is saved on the way out.
func (r *Runner) Run(ctx context.Context) error {
	stop, err := r.begin()
	if err != nil {
		return err
	}
	return r.finish(r.loop(ctx, stop))
}

// Start runs the loop in the background. Use Wait for its result.
func (r *Runner) Start(ctx context.Context) error {
	stop, err := r.begin()
	if err != nil {
		return err
	}
	go func() {
		_ = r.finish(r.loop(ctx, stop))
	}()
	return nil
}

// Stop asks the loop to exit before its next step. It does not wait; call
// Wait for that.
func (r *Runner) Stop() {
	r.mu.Lock()
	stop, once := r.stop, r.stopOnce
	r.mu.Unlock()
	if stop == nil {
		return
	}
	once.Do(func() { close(stop) })
}

// Wait blocks until the current run, if any, has returned, including its
// in-flight step.
func (r *Runner) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Status returns the loop counters.
func (r *Runner) Status() RunnerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SetStepDelay changes the pause between steps, starting with the next wait.
func (r *Runner) SetStepDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.StepDelay = d
}

func (r *Runner) stepDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.StepDelay
}

func (r *Runner) begin() (chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State == RunStateRunning {
		return nil, ErrRunnerActive
	}
	r.status.State = RunStateRunning
	r.stop = make(chan struct{})
	r.stopOnce = &sync.Once{}
	r.done = make(chan struct{})
	r.err = nil
	return r.stop, nil
}

func (r *Runner) finish(state RunState, err error) error {
	r.mu.Lock()
	r.status.State = state
	r.err = err
	done := r.done
	r.mu.Unlock()
	close(done)
	return err
}

func (r *Runner) loop(ctx context.Context, stop <-chan struct{}) (RunState, error) {
	r.logger.Info("runner started",
		zap.String("run_id", r.agent.RunID()),
		zap.Duration("step_delay", r.stepDelay()),
		zap.Int("max_steps", r.cfg.MaxSteps))

	committed := 0
	for {
		select {
		case <-ctx.Done():
			r.checkpoint(context.WithoutCancel(ctx))
			return RunStateCancelled, ctx.Err()
		case <-stop:
			r.checkpoint(ctx)
			r.logger.Info("runner stopped", zap.Int("steps", committed))
			return RunStateStopped, nil
		default:
		}

		rec, err := r.agent.AdvanceStep(ctx)
		switch {
		case err == nil:
			committed++
			r.record(rec)
			r.publish(ctx, rec)
			if r.cfg.SnapshotEvery > 0 && committed%r.cfg.SnapshotEvery == 0 {
				r.checkpoint(ctx)
			}
		case errors.Is(err, ErrExplorationComplete):
			r.checkpoint(ctx)
			r.logger.Info("exploration complete", zap.Int("steps", committed))
			return RunStateCompleted, nil
		case ctx.Err() != nil:
			r.checkpoint(context.WithoutCancel(ctx))
			return RunStateCancelled, ctx.Err()
		default:
			r.fail(err)
		}

		if r.cfg.MaxSteps > 0 && committed >= r.cfg.MaxSteps {
			r.checkpoint(ctx)
			r.logger.Info("step limit reached", zap.Int("steps", committed))
			return RunStateStopped, nil
		}

		timer := time.NewTimer(r.stepDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			r.checkpoint(context.WithoutCancel(ctx))
			return RunStateCancelled, ctx.Err()
		case <-stop:
			timer.Stop()
			r.checkpoint(ctx)
			r.logger.Info("runner stopped", zap.Int("steps", committed))
			return RunStateStopped, nil
		case <-timer.C:
		}
	}
}

func (r *Runner) record(rec *StepRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Steps++
	r.status.LastStepAt = rec.Timestamp
}

func (r *Runner) fail(err error) {
	r.mu.Lock()
	r.status.Failures++
	r.status.LastError = err.Error()
	r.mu.Unlock()
	r.logger.Warn("step failed, continuing", zap.Error(err))
}

func (r *Runner) publish(ctx context.Context, rec *StepRecord) {
	for i, sink := range r.sinks {
		if err := sink.Publish(ctx, rec); err != nil {
			r.logger.Warn("step sink failed",
				zap.Int("sink", i),
				zap.Int("step", rec.StepIndex),
				zap.Error(err))
		}
	}
}

func (r *Runner) checkpoint(ctx context.Context) {
	if r.store == nil {
		return
	}
	if err := r.SaveSnapshot(ctx); err != nil {
		r.logger.Error("failed to save snapshot", zap.Error(err))
	}
}

func (r *Runner) snapshotID() string {
	if r.cfg.SnapshotID != "" {
		return r.cfg.SnapshotID
	}
	return r.agent.RunID()
}

// SaveSnapshot stores the agent's current state.
func (r *Runner) SaveSnapshot(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	snap := r.agent.Snapshot()
	if snap.CurrentID == "" {
		return ErrNotSeeded
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	err = r.store.Save(ctx, &persistence.Snapshot{
		ID:        r.snapshotID(),
		RunID:     snap.RunID,
		StepIndex: snap.StepIndex,
		Payload:   payload,
		Metadata: map[string]string{
			"current_id": snap.CurrentID,
			"mode":       snap.Mode.String(),
			"visited":    strconv.Itoa(len(snap.Graph.Nodes)),
		},
		SavedAt: snap.SavedAt,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.status.Snapshots++
	r.mu.Unlock()
	r.logger.Debug("snapshot saved",
		zap.String("snapshot_id", r.snapshotID()),
		zap.Int("step_index", snap.StepIndex))
	return nil
}

// Resume restores the agent from the stored snapshot id.
func (r *Runner) Resume(ctx context.Context, id string) error {
	if r.store == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	stored, err := r.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(stored.Payload, &snap); err != nil {
		return ErrInvalidSnapshot.WithCause(err)
	}
	return r.agent.Restore(snap)
}
